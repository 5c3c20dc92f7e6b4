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

package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a ledger item.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
	StatusFailed        Status = "failed"
)

// ParseStatus validates a status string from an external caller.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPendingReview, StatusApproved, StatusRejected, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Item is one ledger row: exactly one per distinct message id.
// Extraction is nil for failed items, which carry Error instead.
type Item struct {
	ItemID     string      `json:"item_id"`
	MessageID  string      `json:"message_id"`
	Status     Status      `json:"status"`
	Confidence float64     `json:"confidence"`
	Extraction *Extraction `json:"extraction,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Audit event types written by the orchestrator.
const (
	EventIngested            = "ingested"
	EventIngestFailed        = "ingest_failed"
	EventDestinationsWritten = "destinations_written"
	EventDestinationsFailed  = "destinations_failed"
	EventNotified            = "slack_notified"
	EventNotifyFailed        = "notify_failed"
	EventApproved            = "approved"
	EventRejected            = "rejected"
)

// ActorSystem is the actor recorded for automated pipeline steps.
const ActorSystem = "system"

// AuditEvent is an append-only record scoped to one item. Seq is assigned
// by the ledger and is dense and increasing per item.
type AuditEvent struct {
	Seq       int64          `json:"seq"`
	ItemID    string         `json:"item_id"`
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// RoutedTo describes where an ingested message ended up.
type RoutedTo string

const (
	RoutedAutoApproved     RoutedTo = "auto_approved"
	RoutedHumanReview      RoutedTo = "human_review_queue"
	RoutedIdempotentReturn RoutedTo = "idempotent_return"
)

// IngestResult is returned to the transport for every successful ingestion,
// including idempotent replays.
type IngestResult struct {
	ItemID     string   `json:"item_id"`
	Status     Status   `json:"status"`
	Confidence float64  `json:"confidence"`
	RoutedTo   RoutedTo `json:"routed_to"`
}

// Action is a reviewer decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ReviewAction is a reviewer's decision on a pending item.
type ReviewAction struct {
	Reviewer string `json:"reviewer"`
	Action   Action `json:"action"`
	Reason   string `json:"reason,omitempty"`
}

// Validate checks the reviewer and action fields.
func (a *ReviewAction) Validate() error {
	var problems []string
	if a.Reviewer == "" {
		problems = append(problems, "reviewer: required")
	}
	if a.Action != ActionApprove && a.Action != ActionReject {
		problems = append(problems, fmt.Sprintf("action: must be approve or reject, got %q", a.Action))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ReviewResult is returned after a reviewer action is applied.
type ReviewResult struct {
	OK     bool   `json:"ok"`
	Status Status `json:"status"`
}
