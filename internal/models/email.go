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

// Package models defines the data structures shared across the intake service.
package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Sender is the name and address an inbound message was sent from.
type Sender struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// InboxMessage is a raw inbound message as handed over by the transport.
//
// MessageID is the idempotency key for the whole pipeline: a given id is
// extracted, persisted and exported at most once.
type InboxMessage struct {
	MessageID  string    `json:"message_id"`
	From       Sender    `json:"from"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at"`
	Body       string    `json:"body"`
}

// Validate checks the message shape before anything is written to the ledger.
// Every problem is reported, not just the first.
func (m *InboxMessage) Validate() error {
	var problems []string

	if strings.TrimSpace(m.MessageID) == "" {
		problems = append(problems, "message_id: required")
	}
	if strings.TrimSpace(m.From.Email) == "" {
		problems = append(problems, "from.email: required")
	} else if addr, err := mail.ParseAddress(m.From.Email); err != nil || addr.Address != m.From.Email {
		problems = append(problems, fmt.Sprintf("from.email: invalid address %q", m.From.Email))
	}
	if m.ReceivedAt.IsZero() {
		problems = append(problems, "received_at: required")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError reports a malformed inbound message.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + strings.Join(e.Problems, "; ")
}
