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

// Package ledger is the durable record of ingested items and their audit
// logs. It is the only shared mutable state in the pipeline, so every
// operation that the orchestrator relies on for correctness is atomic:
// item creation is create-if-absent on the message id, status changes are
// compare-and-set, and audit appends get a dense per-item sequence number.
package ledger

import (
	"context"
	"errors"

	"github.com/bcem/intake/internal/models"
)

var (
	// ErrAlreadyExists is returned by CreateItem when an item for the same
	// message id (or item id) is already stored.
	ErrAlreadyExists = errors.New("ledger: item already exists")

	// ErrNotFound is returned when an item does not exist.
	ErrNotFound = errors.New("ledger: item not found")

	// ErrStatusMismatch is returned by UpdateStatus when the item is no
	// longer in the expected status.
	ErrStatusMismatch = errors.New("ledger: status mismatch")
)

// Ledger stores items and their audit events.
type Ledger interface {
	// CreateItem inserts the item unless one with the same message id exists.
	CreateItem(ctx context.Context, item models.Item) error

	// GetByMessageID returns ErrNotFound when the message was never ingested.
	GetByMessageID(ctx context.Context, messageID string) (*models.Item, error)

	// GetItem returns ErrNotFound for unknown item ids.
	GetItem(ctx context.Context, itemID string) (*models.Item, error)

	// ListItems returns items newest first, optionally filtered by status.
	ListItems(ctx context.Context, status *models.Status) ([]models.Item, error)

	// UpdateStatus moves an item from one status to another atomically.
	UpdateStatus(ctx context.Context, itemID string, from, to models.Status) error

	// AppendAudit stores the event and returns it with Seq and CreatedAt set.
	AppendAudit(ctx context.Context, ev models.AuditEvent) (models.AuditEvent, error)

	// ListAudit returns an item's events in sequence order.
	ListAudit(ctx context.Context, itemID string) ([]models.AuditEvent, error)

	Close() error
}
