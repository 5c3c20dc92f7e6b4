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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bcem/intake/internal/models"
)

// runLedgerSuite exercises the Ledger contract. newLedger must return an
// empty ledger.
func runLedgerSuite(t *testing.T, newLedger func(t *testing.T) Ledger) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newLedger(t)) })
	t.Run("CreateIfAbsent", func(t *testing.T) { testCreateIfAbsent(t, newLedger(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newLedger(t)) })
	t.Run("UpdateStatus", func(t *testing.T) { testUpdateStatus(t, newLedger(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newLedger(t)) })
	t.Run("ListItems", func(t *testing.T) { testListItems(t, newLedger(t)) })
}

func testItem(id string, status models.Status, created time.Time) models.Item {
	company := "ExampleCo"
	return models.Item{
		ItemID:     "item-" + id,
		MessageID:  "msg-" + id,
		Status:     status,
		Confidence: 0.85,
		Extraction: &models.Extraction{
			RequestID:       "0123456789abcdef",
			RequestType:     models.RequestPurchase,
			Priority:        models.PriorityHigh,
			Company:         &company,
			Requester:       models.Requester{Name: "A", Email: "a@example.com"},
			Description:     "Company: ExampleCo",
			LineItems:       []models.LineItem{{Item: "Widget", Qty: 2}},
			Confidence:      0.85,
			ExtractionNotes: []string{"company_explicit"},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func testCreateAndGet(t *testing.T, l Ledger) {
	ctx := context.Background()
	item := testItem("1", models.StatusPendingReview, time.Now().UTC())

	if err := l.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	got, err := l.GetItem(ctx, item.ItemID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.MessageID != item.MessageID || got.Status != item.Status || got.Confidence != item.Confidence {
		t.Errorf("GetItem = %+v", got)
	}
	if got.Extraction == nil || *got.Extraction.Company != "ExampleCo" || len(got.Extraction.LineItems) != 1 {
		t.Errorf("extraction round trip lost data: %+v", got.Extraction)
	}

	byMsg, err := l.GetByMessageID(ctx, item.MessageID)
	if err != nil {
		t.Fatalf("GetByMessageID: %v", err)
	}
	if byMsg.ItemID != item.ItemID {
		t.Errorf("GetByMessageID item = %q, want %q", byMsg.ItemID, item.ItemID)
	}

	if _, err := l.GetItem(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := l.GetByMessageID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByMessageID(missing) err = %v, want ErrNotFound", err)
	}

	failed := models.Item{ItemID: "item-f", MessageID: "msg-f", Status: models.StatusFailed, Error: "schema validation failed"}
	if err := l.CreateItem(ctx, failed); err != nil {
		t.Fatalf("CreateItem(failed): %v", err)
	}
	got, err = l.GetItem(ctx, "item-f")
	if err != nil {
		t.Fatalf("GetItem(failed): %v", err)
	}
	if got.Extraction != nil || got.Error != failed.Error {
		t.Errorf("failed item = %+v", got)
	}
}

func testCreateIfAbsent(t *testing.T, l Ledger) {
	ctx := context.Background()
	item := testItem("dup", models.StatusApproved, time.Now().UTC())

	if err := l.CreateItem(ctx, item); err != nil {
		t.Fatalf("first CreateItem: %v", err)
	}

	again := item
	again.Status = models.StatusPendingReview
	if err := l.CreateItem(ctx, again); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second CreateItem err = %v, want ErrAlreadyExists", err)
	}

	got, _ := l.GetItem(ctx, item.ItemID)
	if got.Status != models.StatusApproved {
		t.Errorf("existing item was overwritten: status %q", got.Status)
	}
}

// testConcurrentCreate races many inserts for one message id; exactly one
// may win.
func testConcurrentCreate(t *testing.T, l Ledger) {
	ctx := context.Background()
	item := testItem("race", models.StatusPendingReview, time.Now().UTC())

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		dupes   int
		unknown []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.CreateItem(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyExists):
				dupes++
			default:
				unknown = append(unknown, err)
			}
		}()
	}
	wg.Wait()

	if len(unknown) > 0 {
		t.Fatalf("unexpected errors: %v", unknown)
	}
	if wins != 1 || dupes != workers-1 {
		t.Errorf("wins = %d, dupes = %d; want 1 and %d", wins, dupes, workers-1)
	}

	items, err := l.ListItems(ctx, nil)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
}

func testUpdateStatus(t *testing.T, l Ledger) {
	ctx := context.Background()
	item := testItem("s", models.StatusPendingReview, time.Now().UTC())
	if err := l.CreateItem(ctx, item); err != nil {
		t.Fatal(err)
	}

	if err := l.UpdateStatus(ctx, item.ItemID, models.StatusPendingReview, models.StatusRejected); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := l.GetItem(ctx, item.ItemID)
	if got.Status != models.StatusRejected {
		t.Errorf("status = %q, want rejected", got.Status)
	}

	err := l.UpdateStatus(ctx, item.ItemID, models.StatusPendingReview, models.StatusApproved)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Errorf("second UpdateStatus err = %v, want ErrStatusMismatch", err)
	}
	got, _ = l.GetItem(ctx, item.ItemID)
	if got.Status != models.StatusRejected {
		t.Errorf("status changed after mismatch: %q", got.Status)
	}

	err = l.UpdateStatus(ctx, "missing", models.StatusPendingReview, models.StatusApproved)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus(missing) err = %v, want ErrNotFound", err)
	}
}

func testAudit(t *testing.T, l Ledger) {
	ctx := context.Background()
	a := testItem("a", models.StatusPendingReview, time.Now().UTC())
	b := testItem("b", models.StatusPendingReview, time.Now().UTC())
	for _, it := range []models.Item{a, b} {
		if err := l.CreateItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	types := []string{models.EventIngested, models.EventApproved, models.EventDestinationsWritten, models.EventNotified}
	for i, et := range types {
		ev, err := l.AppendAudit(ctx, models.AuditEvent{
			ItemID:    a.ItemID,
			EventType: et,
			Actor:     models.ActorSystem,
			Details:   map[string]any{"step": i},
		})
		if err != nil {
			t.Fatalf("AppendAudit: %v", err)
		}
		if ev.Seq != int64(i+1) {
			t.Errorf("seq = %d, want %d", ev.Seq, i+1)
		}
		if ev.CreatedAt.IsZero() {
			t.Error("CreatedAt not set")
		}
	}

	// Sequences are per item.
	ev, err := l.AppendAudit(ctx, models.AuditEvent{ItemID: b.ItemID, EventType: models.EventIngested, Actor: models.ActorSystem})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Seq != 1 {
		t.Errorf("seq for second item = %d, want 1", ev.Seq)
	}

	events, err := l.ListAudit(ctx, a.ItemID)
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(events) != len(types) {
		t.Fatalf("got %d events, want %d", len(events), len(types))
	}
	for i, ev := range events {
		if ev.EventType != types[i] || ev.Seq != int64(i+1) {
			t.Errorf("event %d = %s/%d", i, ev.EventType, ev.Seq)
		}
		if step, ok := ev.Details["step"].(float64); !ok || int(step) != i {
			t.Errorf("event %d details = %v", i, ev.Details)
		}
	}

	if _, err := l.AppendAudit(ctx, models.AuditEvent{ItemID: "missing", EventType: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendAudit(missing) err = %v, want ErrNotFound", err)
	}

	empty, err := l.ListAudit(ctx, "missing")
	if err != nil || len(empty) != 0 {
		t.Errorf("ListAudit(missing) = %v, %v", empty, err)
	}
}

func testListItems(t *testing.T, l Ledger) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	statuses := []models.Status{models.StatusApproved, models.StatusPendingReview, models.StatusPendingReview, models.StatusFailed}

	for i, st := range statuses {
		it := testItem(fmt.Sprint(i), st, base.Add(time.Duration(i)*time.Minute))
		if err := l.CreateItem(ctx, it); err != nil {
			t.Fatal(err)
		}
	}

	all, err := l.ListItems(ctx, nil)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != len(statuses) {
		t.Fatalf("got %d items, want %d", len(all), len(statuses))
	}
	if all[0].ItemID != "item-3" || all[len(all)-1].ItemID != "item-0" {
		t.Errorf("items not newest first: %s .. %s", all[0].ItemID, all[len(all)-1].ItemID)
	}

	pending := models.StatusPendingReview
	got, err := l.ListItems(ctx, &pending)
	if err != nil {
		t.Fatalf("ListItems(pending): %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d pending items, want 2", len(got))
	}
	for _, it := range got {
		if it.Status != models.StatusPendingReview {
			t.Errorf("unexpected status %q", it.Status)
		}
	}
}
