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

// Package mailparse converts raw RFC 5322 / MIME messages into the
// InboxMessage the pipeline ingests.
package mailparse

import (
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"github.com/bcem/intake/internal/models"
	"github.com/bcem/intake/internal/textutil"
)

// Parse reads a raw message. received is used when the message has no
// usable Date header.
//
// Messages without a Message-ID get one derived from sender, subject, date
// and body, so resubmitting the same file stays idempotent.
func Parse(r io.Reader, received time.Time) (*models.InboxMessage, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("read mime envelope: %w", err)
	}

	msg := &models.InboxMessage{
		Subject:    env.GetHeader("Subject"),
		Body:       strings.TrimSpace(env.Text),
		ReceivedAt: received.UTC(),
	}

	rawFrom := env.GetHeader("From")
	if addr, err := mail.ParseAddress(rawFrom); err == nil {
		msg.From = models.Sender{Name: addr.Name, Email: addr.Address}
	} else {
		// Left as-is so validation reports it.
		msg.From = models.Sender{Email: strings.TrimSpace(rawFrom)}
	}

	rawDate := env.GetHeader("Date")
	if date, err := mail.ParseDate(rawDate); err == nil {
		msg.ReceivedAt = date.UTC()
	}

	msg.MessageID = strings.Trim(strings.TrimSpace(env.GetHeader("Message-ID")), "<>")
	if msg.MessageID == "" {
		msg.MessageID = "mime-" + textutil.StableID(rawFrom, msg.Subject, rawDate, msg.Body)
	}

	return msg, nil
}
