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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/intake/internal/models"
)

// Postgres is the ledger backed by a PostgreSQL pool. The unique index on
// message_id is what arbitrates concurrent ingestion of the same message.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a ledger on the given pool and ensures its tables exist.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	p := &Postgres{pool: pool}
	if err := p.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure ledger schema: %w", err)
	}
	slog.Info("postgres ledger initialised")
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS items (
			item_id     TEXT PRIMARY KEY,
			message_id  TEXT NOT NULL UNIQUE,
			status      TEXT NOT NULL,
			confidence  DOUBLE PRECISION NOT NULL,
			extraction  JSONB,
			error       TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_items_status ON items(status);
		CREATE INDEX IF NOT EXISTS idx_items_created ON items(created_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			id          BIGSERIAL PRIMARY KEY,
			item_id     TEXT NOT NULL REFERENCES items(item_id),
			seq         BIGINT NOT NULL,
			event_type  TEXT NOT NULL,
			actor       TEXT NOT NULL,
			details     JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(item_id, seq)
		);
	`)
	return err
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// CreateItem inserts the item; a conflict on either key means it exists.
func (p *Postgres) CreateItem(ctx context.Context, item models.Item) error {
	extraction, err := marshalExtraction(item.Extraction)
	if err != nil {
		return err
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO items
			(item_id, message_id, status, confidence, extraction, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7::timestamptz, NOW()), COALESCE($7::timestamptz, NOW()))
		ON CONFLICT DO NOTHING
	`, item.ItemID, item.MessageID, string(item.Status), item.Confidence, extraction, item.Error, nullTime(item))
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ItemID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// GetByMessageID retrieves the item created for a message.
func (p *Postgres) GetByMessageID(ctx context.Context, messageID string) (*models.Item, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT item_id, message_id, status, confidence, extraction, error, created_at, updated_at
		FROM items
		WHERE message_id = $1
	`, messageID)
	return scanItem(row)
}

// GetItem retrieves an item by its id.
func (p *Postgres) GetItem(ctx context.Context, itemID string) (*models.Item, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT item_id, message_id, status, confidence, extraction, error, created_at, updated_at
		FROM items
		WHERE item_id = $1
	`, itemID)
	return scanItem(row)
}

// ListItems returns items newest first, optionally filtered by status.
func (p *Postgres) ListItems(ctx context.Context, status *models.Status) ([]models.Item, error) {
	var filter *string
	if status != nil {
		s := string(*status)
		filter = &s
	}

	rows, err := p.pool.Query(ctx, `
		SELECT item_id, message_id, status, confidence, extraction, error, created_at, updated_at
		FROM items
		WHERE $1::text IS NULL OR status = $1
		ORDER BY created_at DESC, item_id
	`, filter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectItems(rows)
}

// UpdateStatus changes the status only if it still equals from.
func (p *Postgres) UpdateStatus(ctx context.Context, itemID string, from, to models.Status) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE items
		SET status = $1, updated_at = NOW()
		WHERE item_id = $2 AND status = $3
	`, string(to), itemID, string(from))
	if err != nil {
		return fmt.Errorf("update status of %s: %w", itemID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := p.GetItem(ctx, itemID); err != nil {
		return err
	}
	return ErrStatusMismatch
}

// AppendAudit locks the item row so concurrent appends for the same item
// get consecutive sequence numbers.
func (p *Postgres) AppendAudit(ctx context.Context, ev models.AuditEvent) (models.AuditEvent, error) {
	if ev.Details == nil {
		ev.Details = map[string]any{}
	}
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return ev, fmt.Errorf("marshal audit details: %w", err)
	}

	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var one int
		err := tx.QueryRow(ctx, `SELECT 1 FROM items WHERE item_id = $1 FOR UPDATE`, ev.ItemID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return tx.QueryRow(ctx, `
			INSERT INTO audit_log (item_id, seq, event_type, actor, details)
			SELECT $1::text, COALESCE(MAX(seq), 0) + 1, $2::text, $3::text, $4::jsonb
			FROM audit_log
			WHERE item_id = $1
			RETURNING seq, created_at
		`, ev.ItemID, ev.EventType, ev.Actor, details).Scan(&ev.Seq, &ev.CreatedAt)
	})
	if err != nil {
		return ev, fmt.Errorf("append audit event for %s: %w", ev.ItemID, err)
	}
	return ev, nil
}

// ListAudit returns the item's audit events in sequence order.
func (p *Postgres) ListAudit(ctx context.Context, itemID string) ([]models.AuditEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT seq, item_id, event_type, actor, details, created_at
		FROM audit_log
		WHERE item_id = $1
		ORDER BY seq
	`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.AuditEvent{}
	for rows.Next() {
		var (
			ev      models.AuditEvent
			details []byte
		)
		if err := rows.Scan(&ev.Seq, &ev.ItemID, &ev.EventType, &ev.Actor, &details, &ev.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(details, &ev.Details); err != nil {
			return nil, fmt.Errorf("decode audit details: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func marshalExtraction(ex *models.Extraction) ([]byte, error) {
	if ex == nil {
		return nil, nil
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction: %w", err)
	}
	return b, nil
}

func nullTime(item models.Item) any {
	if item.CreatedAt.IsZero() {
		return nil
	}
	return item.CreatedAt
}

// scanItem scans a single row into an Item.
func scanItem(row pgx.Row) (*models.Item, error) {
	it, err := scanItemFields(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

// collectItems scans multiple rows into a slice of Items.
func collectItems(rows pgx.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		it, err := scanItemFields(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func scanItemFields(row pgx.Row) (*models.Item, error) {
	var (
		it         models.Item
		status     string
		extraction []byte
	)
	if err := row.Scan(
		&it.ItemID, &it.MessageID, &status, &it.Confidence,
		&extraction, &it.Error, &it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	it.Status = models.Status(status)

	if extraction != nil {
		it.Extraction = &models.Extraction{}
		if err := json.Unmarshal(extraction, it.Extraction); err != nil {
			return nil, fmt.Errorf("decode extraction for %s: %w", it.ItemID, err)
		}
	}
	return &it, nil
}
