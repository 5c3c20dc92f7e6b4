// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bcem/intake/internal/client"
	"github.com/bcem/intake/internal/models"
)

func newReplayCmd() *cobra.Command {
	var perSecond float64
	cmd := &cobra.Command{
		Use:   "replay [dir]",
		Short: "Post every sample message in a directory",
		Long: `Post each *.json InboxMessage in dir (default samples/inbox) to /ingest,
in name order, and print the result per file.

Examples:
  intakectl replay
  intakectl replay --rate 1 ./fixtures`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "samples/inbox"
			if len(args) == 1 {
				dir = args[0]
			}

			runner := client.NewRunner(client.RunnerConfig{Ingester: apiClient(), PerSecond: perSecond})
			result, err := runner.Run(cmd.Context(), dir)
			if err != nil && result == nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, f := range result.Files {
				if f.Err != nil {
					fmt.Fprintf(out, "==> %s error: %v\n", f.Name, f.Err)
					continue
				}
				fmt.Fprintf(out, "==> %s %s confidence=%.2f item=%s\n",
					f.Name, f.Result.Status, f.Result.Confidence, f.Result.ItemID)
			}
			fmt.Fprintf(out, "\napproved=%d pending=%d failed=%d errors=%d\n",
				result.Approved, result.Pending, result.Failed, result.Errors)
			return err
		},
	}
	cmd.Flags().Float64Var(&perSecond, "rate", 5, "maximum requests per second")
	return cmd
}

func newIngestEMLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-eml <file|->",
		Short: "Ingest a raw RFC 5322 message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open %s: %w", args[0], err)
				}
				defer f.Close()
				in = f
			}

			res, err := apiClient().IngestRaw(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newItemsCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List items, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter *models.Status
			if status != "" {
				st, err := models.ParseStatus(status)
				if err != nil {
					return err
				}
				filter = &st
			}

			items, err := apiClient().ListItems(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, it := range items {
				fmt.Fprintf(out, "%s  %-14s  %.2f  %s  %s\n",
					it.ItemID, it.Status, it.Confidence, it.CreatedAt.Format("2006-01-02 15:04:05"), it.MessageID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending_review, approved, rejected, failed)")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show an item with its extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := apiClient().GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), item)
		},
	}
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <item-id>",
		Short: "Print an item's audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := apiClient().ListAudit(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ev := range events {
				fmt.Fprintf(out, "%3d  %s  %-20s  %-12s  %v\n",
					ev.Seq, ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.EventType, ev.Actor, ev.Details)
			}
			return nil
		},
	}
}

func newReviewCmd() *cobra.Command {
	var action models.ReviewAction
	var act string
	cmd := &cobra.Command{
		Use:   "review <item-id>",
		Short: "Approve or reject a pending item",
		Long: `Apply a reviewer decision to an item in pending_review.

Examples:
  intakectl review 3f2a9c0d1e4b5a67 --reviewer ops --action approve
  intakectl review 3f2a9c0d1e4b5a67 --reviewer ops --action reject --reason "duplicate"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.Action = models.Action(act)
			if err := action.Validate(); err != nil {
				return err
			}

			res, err := apiClient().Review(cmd.Context(), args[0], action)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&action.Reviewer, "reviewer", "", "reviewer name (required)")
	cmd.Flags().StringVar(&act, "action", "", "approve or reject (required)")
	cmd.Flags().StringVar(&action.Reason, "reason", "", "optional reason")
	cmd.MarkFlagRequired("reviewer")
	cmd.MarkFlagRequired("action")
	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check intake server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := apiClient().Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
