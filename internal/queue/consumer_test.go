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

package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bcem/intake/internal/extract"
	"github.com/bcem/intake/internal/models"
)

// --- Mock implementations ---

type mockIngester struct {
	err   error
	calls []string
}

func (m *mockIngester) Ingest(_ context.Context, msg *models.InboxMessage) (*models.IngestResult, error) {
	m.calls = append(m.calls, msg.MessageID)
	if m.err != nil {
		return nil, m.err
	}
	return &models.IngestResult{ItemID: "item-" + msg.MessageID, RoutedTo: models.RoutedAutoApproved}, nil
}

type mockDeduper struct {
	seen      map[string]bool
	forgotten []string
}

func (m *mockDeduper) IsNew(_ context.Context, id string) (bool, error) {
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *mockDeduper) Forget(_ context.Context, id string) error {
	delete(m.seen, id)
	m.forgotten = append(m.forgotten, id)
	return nil
}

const payload = `{"message_id":"msg_001","from":{"name":"A","email":"a@example.com"},"subject":"Purchase","received_at":"2026-01-23T09:30:00Z","body":"Item: Widget, Qty: 3"}`

func TestConsumer_HandleIngests(t *testing.T) {
	ing := &mockIngester{}
	dd := &mockDeduper{seen: map[string]bool{}}
	c := NewConsumer(nil, "intake:inbound", ing, dd)

	if err := c.handle(context.Background(), payload); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(ing.calls) != 1 || ing.calls[0] != "msg_001" {
		t.Errorf("calls = %v", ing.calls)
	}

	// Redelivery is filtered before reaching the ingester.
	if err := c.handle(context.Background(), payload); err != nil {
		t.Fatalf("handle redelivery: %v", err)
	}
	if len(ing.calls) != 1 {
		t.Errorf("redelivery reached the ingester: %v", ing.calls)
	}
}

func TestConsumer_HandlePermanentFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"validation", &models.ValidationError{Problems: []string{"from.email: required"}}},
		{"extraction", fmt.Errorf("wrapped: %w", &extract.Error{Violations: []string{"company"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &mockIngester{err: tt.err}
			dd := &mockDeduper{seen: map[string]bool{}}
			c := NewConsumer(nil, "intake:inbound", ing, dd)

			err := c.handle(context.Background(), payload)
			if err == nil {
				t.Fatal("expected error")
			}
			if len(dd.forgotten) != 0 {
				t.Errorf("permanent failure released dedup key")
			}
		})
	}
}

func TestConsumer_HandleMalformed(t *testing.T) {
	ing := &mockIngester{}
	c := NewConsumer(nil, "intake:inbound", ing, nil)

	if err := c.handle(context.Background(), "{not json"); err == nil {
		t.Error("expected decode error")
	}
	if len(ing.calls) != 0 {
		t.Errorf("malformed payload reached the ingester")
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(errors.New("connection refused")) {
		t.Error("plain error classified as permanent")
	}
	if !Permanent(&models.ValidationError{}) {
		t.Error("validation error not permanent")
	}
}
