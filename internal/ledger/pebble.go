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
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/bcem/intake/internal/models"
)

// Key layout:
//
//	item/<item_id>              -> JSON models.Item
//	msg/<message_id>            -> item_id
//	audit/<item_id>/<seq:020d>  -> JSON models.AuditEvent
//	auditseq/<item_id>          -> last assigned seq
const (
	itemPrefix     = "item/"
	msgPrefix      = "msg/"
	auditPrefix    = "audit/"
	auditSeqPrefix = "auditseq/"
)

// Pebble is an embedded ledger for single-process deployments. Pebble has
// no multi-key transactions, so a mutex serialises every read-check-write
// sequence; batches make each mutation land atomically.
type Pebble struct {
	db  *pebble.DB
	mu  sync.Mutex
	now func() time.Time
}

// OpenPebble opens (or creates) a Pebble ledger at path. opts may be nil;
// tests pass an in-memory FS.
func OpenPebble(path string, opts *pebble.Options) (*Pebble, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble ledger %s: %w", path, err)
	}
	slog.Info("pebble ledger opened", "path", path)
	return &Pebble{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	return p.db.Close()
}

// CreateItem inserts the item and its message id index in one batch.
func (p *Pebble) CreateItem(_ context.Context, item models.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, key := range []string{msgPrefix + item.MessageID, itemPrefix + item.ItemID} {
		exists, err := p.has(key)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyExists
		}
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = p.now()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(itemPrefix+item.ItemID), data, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(msgPrefix+item.MessageID), []byte(item.ItemID), nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit item %s: %w", item.ItemID, err)
	}
	return nil
}

// GetByMessageID resolves the message index and loads the item.
func (p *Pebble) GetByMessageID(_ context.Context, messageID string) (*models.Item, error) {
	itemID, err := p.get(msgPrefix + messageID)
	if err != nil {
		return nil, err
	}
	return p.loadItem(string(itemID))
}

// GetItem loads a single item.
func (p *Pebble) GetItem(_ context.Context, itemID string) (*models.Item, error) {
	return p.loadItem(itemID)
}

// ListItems scans all items. The ledger is sized for an operations backlog,
// not for analytics, so a full scan is acceptable.
func (p *Pebble) ListItems(_ context.Context, status *models.Status) ([]models.Item, error) {
	var items []models.Item
	err := p.scan(itemPrefix, func(v []byte) error {
		var it models.Item
		if err := json.Unmarshal(v, &it); err != nil {
			return fmt.Errorf("decode item: %w", err)
		}
		if status == nil || it.Status == *status {
			items = append(items, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(items, func(a, b models.Item) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ItemID, b.ItemID)
	})
	return items, nil
}

// UpdateStatus performs the compare-and-set under the ledger mutex.
func (p *Pebble) UpdateStatus(_ context.Context, itemID string, from, to models.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, err := p.loadItem(itemID)
	if err != nil {
		return err
	}
	if item.Status != from {
		return ErrStatusMismatch
	}

	item.Status = to
	item.UpdatedAt = p.now()
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	return p.db.Set([]byte(itemPrefix+itemID), data, pebble.Sync)
}

// AppendAudit assigns the next sequence number and stores the event.
func (p *Pebble) AppendAudit(_ context.Context, ev models.AuditEvent) (models.AuditEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	exists, err := p.has(itemPrefix + ev.ItemID)
	if err != nil {
		return ev, err
	}
	if !exists {
		return ev, ErrNotFound
	}

	var last int64
	raw, err := p.get(auditSeqPrefix + ev.ItemID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return ev, err
	default:
		if last, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
			return ev, fmt.Errorf("corrupt audit sequence for %s: %w", ev.ItemID, err)
		}
	}

	ev.Seq = last + 1
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = p.now()
	}
	if ev.Details == nil {
		ev.Details = map[string]any{}
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return ev, fmt.Errorf("marshal audit event: %w", err)
	}

	b := p.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(auditKey(ev.ItemID, ev.Seq)), data, nil); err != nil {
		return ev, err
	}
	if err := b.Set([]byte(auditSeqPrefix+ev.ItemID), []byte(strconv.FormatInt(ev.Seq, 10)), nil); err != nil {
		return ev, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return ev, fmt.Errorf("commit audit event: %w", err)
	}
	return ev, nil
}

// ListAudit returns the item's events; zero-padded keys keep them in order.
func (p *Pebble) ListAudit(_ context.Context, itemID string) ([]models.AuditEvent, error) {
	events := []models.AuditEvent{}
	err := p.scan(auditPrefix+itemID+"/", func(v []byte) error {
		var ev models.AuditEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

func auditKey(itemID string, seq int64) string {
	return fmt.Sprintf("%s%s/%020d", auditPrefix, itemID, seq)
}

func (p *Pebble) loadItem(itemID string) (*models.Item, error) {
	v, err := p.get(itemPrefix + itemID)
	if err != nil {
		return nil, err
	}
	var it models.Item
	if err := json.Unmarshal(v, &it); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", itemID, err)
	}
	return &it, nil
}

// get copies the value out before releasing it back to Pebble.
func (p *Pebble) get(key string) ([]byte, error) {
	v, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (p *Pebble) has(key string) (bool, error) {
	_, err := p.get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *Pebble) scan(prefix string, fn func(v []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// prefixEnd returns the smallest key greater than every key with prefix.
// Prefixes here end in '/', so bumping the last byte is enough.
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}
