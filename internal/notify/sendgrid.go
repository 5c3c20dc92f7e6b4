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

package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email sends summaries through SendGrid.
type Email struct {
	// mu guards client, which stores the request body between calls.
	mu     sync.Mutex
	client *sendgrid.Client
	from   *mail.Email
	to     *mail.Email
}

// NewEmail creates a SendGrid notifier.
func NewEmail(apiKey, fromAddress, toAddress string) *Email {
	return &Email{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("Intake", fromAddress),
		to:     mail.NewEmail("", toAddress),
	}
}

// WithBaseURL points the client at a different API host.
func (e *Email) WithBaseURL(host string) *Email {
	e.client.BaseURL = strings.TrimRight(host, "/") + "/v3/mail/send"
	return e
}

func (e *Email) Notify(ctx context.Context, text string) error {
	subject, _, _ := strings.Cut(text, "\n")
	htmlContent := "<pre>" + html.EscapeString(text) + "</pre>"

	message := mail.NewSingleEmail(e.from, subject, e.to, text, htmlContent)
	e.mu.Lock()
	resp, err := e.client.SendWithContext(ctx, message)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
