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

// Command intakectl drives an intake server over HTTP: sample replay, raw
// MIME ingestion, item lookups and reviewer actions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bcem/intake/internal/client"
)

var (
	// serverURL is the base URL of the intake server
	serverURL string
	version   = "dev"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "intakectl",
		Short: "CLI for the email intake service",
		Long: `intakectl talks to a running intake server. It replays sample inbox
messages, ingests raw .eml files and lets reviewers inspect and act on items.`,
		Version:       version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("API_URL", "http://127.0.0.1:8000"), "intake server URL")

	root.AddCommand(
		newReplayCmd(),
		newIngestEMLCmd(),
		newItemsCmd(),
		newShowCmd(),
		newAuditCmd(),
		newReviewCmd(),
		newHealthCmd(),
	)
	return root
}

func apiClient() *client.Client {
	return client.New(serverURL, nil)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
