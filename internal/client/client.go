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

// Package client is a small HTTP client for the intake API, used by
// intakectl and the sample replay runner.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bcem/intake/internal/models"
)

// APIError is a non-2xx response from the intake API.
type APIError struct {
	StatusCode int      `json:"-"`
	Code       string   `json:"error"`
	Detail     []string `json:"detail"`
}

func (e *APIError) Error() string {
	if len(e.Detail) > 0 {
		return fmt.Sprintf("intake api %d: %s: %s", e.StatusCode, e.Code, strings.Join(e.Detail, "; "))
	}
	return fmt.Sprintf("intake api %d: %s", e.StatusCode, e.Code)
}

// Client talks to one intake server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL. A nil httpClient gets a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Ingest posts a JSON message.
func (c *Client) Ingest(ctx context.Context, msg *models.InboxMessage) (*models.IngestResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return c.IngestJSON(ctx, body)
}

// IngestJSON posts an already-encoded message document as is.
func (c *Client) IngestJSON(ctx context.Context, body []byte) (*models.IngestResult, error) {
	var res models.IngestResult
	if err := c.do(ctx, http.MethodPost, "/ingest", "application/json", bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// IngestRaw posts an RFC 5322 message.
func (c *Client) IngestRaw(ctx context.Context, raw io.Reader) (*models.IngestResult, error) {
	var res models.IngestResult
	if err := c.do(ctx, http.MethodPost, "/ingest/raw", "message/rfc822", raw, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListItems lists items, optionally filtered by status.
func (c *Client) ListItems(ctx context.Context, status *models.Status) ([]models.Item, error) {
	path := "/items"
	if status != nil {
		path += "?" + url.Values{"status": {string(*status)}}.Encode()
	}
	var items []models.Item
	if err := c.do(ctx, http.MethodGet, path, "", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetItem fetches one item.
func (c *Client) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	var item models.Item
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID), "", nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// ListAudit fetches an item's audit log.
func (c *Client) ListAudit(ctx context.Context, itemID string) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	if err := c.do(ctx, http.MethodGet, "/items/"+url.PathEscape(itemID)+"/audit", "", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Review applies a reviewer action.
func (c *Client) Review(ctx context.Context, itemID string, action models.ReviewAction) (*models.ReviewResult, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal review: %w", err)
	}
	var res models.ReviewResult
	path := "/items/" + url.PathEscape(itemID) + "/review"
	if err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Health returns nil when the server reports healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", "", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Code == "" {
			apiErr.Code = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
