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

package extract

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/bcem/intake/internal/models"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func purchaseMessage() *models.InboxMessage {
	return &models.InboxMessage{
		MessageID:  "msg_001",
		From:       models.Sender{Name: "Alex Buyer", Email: "alex@exampleco.com"},
		Subject:    "Purchase order for widgets",
		ReceivedAt: time.Date(2026, 1, 23, 9, 30, 0, 0, time.UTC),
		Body:       "Hi team,\nCompany: ExampleCo. Priority: high. Needed by: 2026-02-02. Item: Widget, Qty: 3.\nThanks",
	}
}

func lowSignalMessage() *models.InboxMessage {
	return &models.InboxMessage{
		MessageID:  "msg_004",
		From:       models.Sender{Name: "Unknown", Email: "unknown@example.net"},
		Subject:    "Quick question",
		ReceivedAt: time.Date(2026, 1, 23, 10, 10, 0, 0, time.UTC),
		Body:       "Hey, can you help?",
	}
}

// TestExtract_PurchaseRequest covers the fully specified purchase order.
func TestExtract_PurchaseRequest(t *testing.T) {
	ex, err := newEngine(t).Extract(purchaseMessage())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if ex.RequestType != models.RequestPurchase {
		t.Errorf("request_type = %q", ex.RequestType)
	}
	if ex.Priority != models.PriorityHigh && ex.Priority != models.PriorityUrgent {
		t.Errorf("priority = %q", ex.Priority)
	}
	if ex.DueDate == nil || *ex.DueDate != "2026-02-02" {
		t.Errorf("due_date = %v", ex.DueDate)
	}
	if ex.Company == nil || *ex.Company != "ExampleCo" {
		t.Errorf("company = %v", ex.Company)
	}
	if len(ex.LineItems) != 1 || ex.LineItems[0].Item != "Widget" || ex.LineItems[0].Qty != 3 {
		t.Errorf("line_items = %+v", ex.LineItems)
	}
	if ex.Confidence < 0.70 {
		t.Errorf("confidence = %v, want >= 0.70", ex.Confidence)
	}
	if ex.Requester.Email != "alex@exampleco.com" || ex.Requester.Name != "Alex Buyer" {
		t.Errorf("requester = %+v", ex.Requester)
	}

	wantNotes := []string{
		"type_hint:purchase->purchase_request",
		"priority_explicit:body",
		"company_explicit",
		"due_parsed:2026-02-02",
		"line_items:1",
	}
	if !reflect.DeepEqual(ex.ExtractionNotes, wantNotes) {
		t.Errorf("notes = %v, want %v", ex.ExtractionNotes, wantNotes)
	}
}

// TestExtract_LowSignal covers a message with nothing to detect.
func TestExtract_LowSignal(t *testing.T) {
	ex, err := newEngine(t).Extract(lowSignalMessage())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if ex.RequestType != models.RequestOther {
		t.Errorf("request_type = %q", ex.RequestType)
	}
	if ex.Confidence > 0.60 {
		t.Errorf("confidence = %v, want <= 0.60", ex.Confidence)
	}
	if ex.Company != nil || ex.DueDate != nil {
		t.Errorf("unexpected company/due: %v %v", ex.Company, ex.DueDate)
	}
	if ex.LineItems == nil {
		t.Error("line_items should be an empty slice, not nil")
	}
	if ex.Description != "Hey, can you help?" {
		t.Errorf("description = %q", ex.Description)
	}
}

// TestExtract_Deterministic verifies repeated extraction is byte-identical.
func TestExtract_Deterministic(t *testing.T) {
	e := newEngine(t)

	for _, msg := range []*models.InboxMessage{purchaseMessage(), lowSignalMessage()} {
		first, err := e.Extract(msg)
		if err != nil {
			t.Fatalf("Extract: %v", err)
		}
		a, _ := json.Marshal(first)

		for i := 0; i < 5; i++ {
			again, err := e.Extract(msg)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			b, _ := json.Marshal(again)
			if string(a) != string(b) {
				t.Fatalf("run %d differs:\n%s\n%s", i, a, b)
			}
		}
	}
}

func TestRequestIDAndItemID(t *testing.T) {
	msg := purchaseMessage()

	if RequestID(msg) != RequestID(purchaseMessage()) {
		t.Error("request id should be stable")
	}

	other := purchaseMessage()
	other.Subject = "Different subject"
	if RequestID(other) == RequestID(msg) {
		t.Error("request id should depend on subject")
	}
	if ItemID(other.MessageID) != ItemID(msg.MessageID) {
		t.Error("item id should depend on the message id only")
	}
	if ItemID(msg.MessageID) == RequestID(msg) {
		t.Error("item id and request id should differ")
	}
}

// TestExtract_SchemaRejectsZeroQuantity verifies the schema guardrail
// catches values the detectors let through.
func TestExtract_SchemaRejectsZeroQuantity(t *testing.T) {
	msg := purchaseMessage()
	msg.Body = "Company: ExampleCo. Item: Widget, Qty: 0."

	_, err := newEngine(t).Extract(msg)
	var exErr *Error
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want *extract.Error", err)
	}
	if len(exErr.Violations) == 0 {
		t.Error("expected at least one violation")
	}
}

// TestExtract_CustomSchema verifies business rules can be tightened in the
// schema without code changes.
func TestExtract_CustomSchema(t *testing.T) {
	var doc map[string]any
	if err := json.Unmarshal(DefaultSchema, &doc); err != nil {
		t.Fatal(err)
	}
	props := doc["properties"].(map[string]any)
	props["company"] = map[string]any{"type": "string", "minLength": 1}

	custom, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(custom)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if _, err := e.Extract(purchaseMessage()); err != nil {
		t.Errorf("message with company should pass: %v", err)
	}

	_, err = e.Extract(lowSignalMessage())
	var exErr *Error
	if !errors.As(err, &exErr) {
		t.Fatalf("err = %v, want *extract.Error", err)
	}
}

func TestNewEngine_InvalidSchema(t *testing.T) {
	if _, err := NewEngine([]byte("{not json")); err == nil {
		t.Error("expected error for malformed schema")
	}
}
