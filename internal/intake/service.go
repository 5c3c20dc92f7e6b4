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

// Package intake runs the ingestion state machine: it turns inbound
// messages into ledger items, routes them to auto-approval or human
// review, applies reviewer decisions, and performs the export and
// notification steps for every item that becomes approved.
//
// Items move pending_review -> approved | rejected on reviewer action.
// approved, rejected and failed are terminal. Export and notification run
// after the status is committed and their failures are recorded in the
// audit log without touching the status.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/intake/internal/export"
	"github.com/bcem/intake/internal/extract"
	"github.com/bcem/intake/internal/ledger"
	"github.com/bcem/intake/internal/metrics"
	"github.com/bcem/intake/internal/models"
	"github.com/bcem/intake/internal/notify"
	"github.com/bcem/intake/internal/review"
)

var (
	// ErrNotFound is returned for unknown item ids.
	ErrNotFound = errors.New("item not found")

	// ErrConflict is returned when a reviewer acts on an item that is not
	// pending review.
	ErrConflict = errors.New("item is not pending review")
)

// DefaultThreshold is the confidence below which items go to a reviewer.
const DefaultThreshold = 0.78

// defaultSideEffectTimeout bounds the export and notification phase.
const defaultSideEffectTimeout = 30 * time.Second

// Config wires a Service.
type Config struct {
	Engine       *extract.Engine
	Ledger       ledger.Ledger
	Destinations []export.Destination
	Notifier     notify.Notifier
	Metrics      *metrics.Metrics

	// Threshold defaults to DefaultThreshold when nil. Zero disables the
	// confidence check; the other review guardrails still apply.
	Threshold *float64

	// SideEffectTimeout defaults to 30s.
	SideEffectTimeout time.Duration
}

// Service is the ingestion orchestrator. It holds no per-item state; the
// ledger is the only shared resource.
type Service struct {
	engine            *extract.Engine
	ledger            ledger.Ledger
	destinations      []export.Destination
	notifier          notify.Notifier
	metrics           *metrics.Metrics
	threshold         float64
	sideEffectTimeout time.Duration
	now               func() time.Time
}

// New creates a Service. Engine and Ledger are required.
func New(cfg Config) *Service {
	threshold := DefaultThreshold
	if cfg.Threshold != nil {
		threshold = *cfg.Threshold
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = defaultSideEffectTimeout
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Log{}
	}
	return &Service{
		engine:            cfg.Engine,
		ledger:            cfg.Ledger,
		destinations:      cfg.Destinations,
		notifier:          cfg.Notifier,
		metrics:           cfg.Metrics,
		threshold:         threshold,
		sideEffectTimeout: cfg.SideEffectTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// Threshold returns the configured review threshold.
func (s *Service) Threshold() float64 {
	return s.threshold
}

// Ingest processes one message. Re-ingesting a known message id returns
// the stored outcome with RoutedIdempotentReturn and has no side effects.
// Invalid messages are rejected with *models.ValidationError before the
// ledger is touched. Messages that fail extraction are stored as failed
// and the *extract.Error is returned.
func (s *Service) Ingest(ctx context.Context, msg *models.InboxMessage) (*models.IngestResult, error) {
	start := time.Now()

	if err := msg.Validate(); err != nil {
		s.metrics.IngestError("validation")
		return nil, err
	}

	if existing, err := s.ledger.GetByMessageID(ctx, msg.MessageID); err == nil {
		return s.replay(existing, start), nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		s.metrics.IngestError("internal")
		return nil, fmt.Errorf("look up message %s: %w", msg.MessageID, err)
	}

	itemID := extract.ItemID(msg.MessageID)

	ex, err := s.engine.Extract(msg)
	if err != nil {
		return s.fail(ctx, msg, itemID, err, start)
	}

	flagged, reasons := review.NeedsReview(ex, s.threshold)
	status, routed := models.StatusApproved, models.RoutedAutoApproved
	if flagged {
		status, routed = models.StatusPendingReview, models.RoutedHumanReview
	}

	now := s.now()
	item := models.Item{
		ItemID:     itemID,
		MessageID:  msg.MessageID,
		Status:     status,
		Confidence: ex.Confidence,
		Extraction: ex,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.ledger.CreateItem(ctx, item); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			return s.replayLostRace(ctx, msg.MessageID, start)
		}
		s.metrics.IngestError("internal")
		return nil, fmt.Errorf("create item %s: %w", itemID, err)
	}

	// The item is committed: approval side effects run even when the audit
	// append fails, since a retry only replays the stored item.
	_, auditErr := s.ledger.AppendAudit(ctx, models.AuditEvent{
		ItemID:    itemID,
		EventType: models.EventIngested,
		Actor:     models.ActorSystem,
		Details: map[string]any{
			"status":         string(status),
			"confidence":     ex.Confidence,
			"review_reasons": reasons,
		},
	})

	if status == models.StatusApproved {
		s.deliver(ctx, itemID, ex, "")
	}

	if auditErr != nil {
		s.metrics.IngestError("internal")
		return nil, fmt.Errorf("audit ingestion of %s: %w", itemID, auditErr)
	}

	slog.Info("message ingested",
		"item_id", itemID,
		"message_id", msg.MessageID,
		"status", status,
		"confidence", ex.Confidence,
		"review_reasons", reasons,
	)

	s.metrics.ObserveIngest(string(routed), ex.Confidence, time.Since(start).Seconds(), true)
	return &models.IngestResult{
		ItemID:     itemID,
		Status:     status,
		Confidence: ex.Confidence,
		RoutedTo:   routed,
	}, nil
}

// fail stores a failed item and returns the extraction error.
func (s *Service) fail(ctx context.Context, msg *models.InboxMessage, itemID string, cause error, start time.Time) (*models.IngestResult, error) {
	now := s.now()
	item := models.Item{
		ItemID:    itemID,
		MessageID: msg.MessageID,
		Status:    models.StatusFailed,
		Error:     cause.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.ledger.CreateItem(ctx, item); err != nil {
		if errors.Is(err, ledger.ErrAlreadyExists) {
			return s.replayLostRace(ctx, msg.MessageID, start)
		}
		s.metrics.IngestError("internal")
		return nil, fmt.Errorf("store failed item %s: %w (extraction: %v)", itemID, err, cause)
	}

	if _, err := s.ledger.AppendAudit(ctx, models.AuditEvent{
		ItemID:    itemID,
		EventType: models.EventIngestFailed,
		Actor:     models.ActorSystem,
		Details:   map[string]any{"error": cause.Error()},
	}); err != nil {
		slog.Error("failed to audit ingestion failure", "item_id", itemID, "error", err)
	}

	slog.Warn("extraction failed",
		"item_id", itemID,
		"message_id", msg.MessageID,
		"error", cause,
	)
	s.metrics.IngestError("extraction")
	return nil, cause
}

// replayLostRace handles a concurrent ingestion that created the item
// first: the winner's outcome is returned as a replay.
func (s *Service) replayLostRace(ctx context.Context, messageID string, start time.Time) (*models.IngestResult, error) {
	existing, err := s.ledger.GetByMessageID(ctx, messageID)
	if err != nil {
		s.metrics.IngestError("internal")
		return nil, fmt.Errorf("load winning item for %s: %w", messageID, err)
	}
	slog.Info("concurrent ingestion lost the create race", "item_id", existing.ItemID, "message_id", messageID)
	return s.replay(existing, start), nil
}

func (s *Service) replay(item *models.Item, start time.Time) *models.IngestResult {
	slog.Info("idempotent replay", "item_id", item.ItemID, "message_id", item.MessageID, "status", item.Status)
	s.metrics.ObserveIngest(string(models.RoutedIdempotentReturn), item.Confidence, time.Since(start).Seconds(), false)
	return &models.IngestResult{
		ItemID:     item.ItemID,
		Status:     item.Status,
		Confidence: item.Confidence,
		RoutedTo:   models.RoutedIdempotentReturn,
	}
}

// Review applies a reviewer decision to a pending item. It returns
// ErrNotFound for unknown items and ErrConflict when the item is not
// pending review; in both cases nothing changes.
func (s *Service) Review(ctx context.Context, itemID string, action models.ReviewAction) (*models.ReviewResult, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != models.StatusPendingReview {
		return nil, fmt.Errorf("%w: %s is %s", ErrConflict, itemID, item.Status)
	}

	to, event := models.StatusRejected, models.EventRejected
	if action.Action == models.ActionApprove {
		to, event = models.StatusApproved, models.EventApproved
	}

	err = s.ledger.UpdateStatus(ctx, itemID, models.StatusPendingReview, to)
	switch {
	case errors.Is(err, ledger.ErrStatusMismatch):
		return nil, fmt.Errorf("%w: %s changed concurrently", ErrConflict, itemID)
	case errors.Is(err, ledger.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, itemID)
	case err != nil:
		return nil, fmt.Errorf("update status of %s: %w", itemID, err)
	}

	var reason any
	if action.Reason != "" {
		reason = action.Reason
	}
	_, auditErr := s.ledger.AppendAudit(ctx, models.AuditEvent{
		ItemID:    itemID,
		EventType: event,
		Actor:     action.Reviewer,
		Details:   map[string]any{"reason": reason},
	})

	slog.Info("review applied",
		"item_id", itemID,
		"reviewer", action.Reviewer,
		"action", action.Action,
		"status", to,
	)
	s.metrics.Review(string(action.Action))

	if to == models.StatusApproved && item.Extraction != nil {
		s.deliver(ctx, itemID, item.Extraction, action.Reviewer)
	}

	if auditErr != nil {
		return nil, fmt.Errorf("audit %s of %s (status committed): %w", action.Action, itemID, auditErr)
	}
	return &models.ReviewResult{OK: true, Status: to}, nil
}

// deliver writes the export rows and sends the notification for a newly
// approved item. The status is already committed, so failures only
// produce audit events.
func (s *Service) deliver(ctx context.Context, itemID string, ex *models.Extraction, reviewer string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.sideEffectTimeout)
	defer cancel()

	row := export.RowFromExtraction(ex)
	failures := map[string]any{}
	for _, d := range s.destinations {
		if err := d.Append(ctx, row); err != nil {
			slog.Warn("export failed", "item_id", itemID, "destination", d.Name(), "error", err)
			failures[d.Name()] = err.Error()
			s.metrics.SideEffectFailed("export")
		}
	}
	if len(failures) == 0 {
		s.audit(ctx, itemID, models.EventDestinationsWritten, map[string]any{"row": row.Map()})
	} else {
		s.audit(ctx, itemID, models.EventDestinationsFailed, map[string]any{"row": row.Map(), "errors": failures})
	}

	summary := Summary(itemID, ex, reviewer)
	if err := s.notifier.Notify(ctx, summary); err != nil {
		slog.Warn("notification failed", "item_id", itemID, "error", err)
		s.metrics.SideEffectFailed("notify")
		s.audit(ctx, itemID, models.EventNotifyFailed, map[string]any{"error": err.Error()})
		return
	}
	s.audit(ctx, itemID, models.EventNotified, map[string]any{"summary": summary})
}

func (s *Service) audit(ctx context.Context, itemID, eventType string, details map[string]any) {
	if _, err := s.ledger.AppendAudit(ctx, models.AuditEvent{
		ItemID:    itemID,
		EventType: eventType,
		Actor:     models.ActorSystem,
		Details:   details,
	}); err != nil {
		slog.Error("failed to append audit event", "item_id", itemID, "event_type", eventType, "error", err)
	}
}

// GetItem returns a stored item.
func (s *Service) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	item, err := s.ledger.GetItem(ctx, itemID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", itemID, err)
	}
	return item, nil
}

// ListItems returns items newest first; status may be nil.
func (s *Service) ListItems(ctx context.Context, status *models.Status) ([]models.Item, error) {
	items, err := s.ledger.ListItems(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if items == nil {
		items = []models.Item{}
	}
	return items, nil
}

// ListAudit returns an item's audit log in order.
func (s *Service) ListAudit(ctx context.Context, itemID string) ([]models.AuditEvent, error) {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	events, err := s.ledger.ListAudit(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("list audit for %s: %w", itemID, err)
	}
	return events, nil
}
