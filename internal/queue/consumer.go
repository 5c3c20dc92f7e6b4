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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/intake/internal/extract"
	"github.com/bcem/intake/internal/models"
)

// Ingester is the part of the intake service the consumer drives.
type Ingester interface {
	Ingest(ctx context.Context, msg *models.InboxMessage) (*models.IngestResult, error)
}

// Deduper filters redelivered message ids.
type Deduper interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
	Forget(ctx context.Context, messageID string) error
}

// Consumer pops InboxMessage JSON documents from a Redis list and ingests
// them one at a time.
type Consumer struct {
	rdb       *redis.Client
	queueName string
	ingester  Ingester
	dedup     Deduper
	block     time.Duration
}

// NewConsumer creates a consumer for queueName. dedup may be nil.
func NewConsumer(rdb *redis.Client, queueName string, ingester Ingester, dedup Deduper) *Consumer {
	return &Consumer{
		rdb:       rdb,
		queueName: queueName,
		ingester:  ingester,
		dedup:     dedup,
		block:     5 * time.Second,
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("inbound queue consumer started", "queue", c.queueName)

	for {
		if ctx.Err() != nil {
			slog.Info("inbound queue consumer stopped", "queue", c.queueName)
			return nil
		}

		res, err := c.rdb.BRPop(ctx, c.block, c.queueName).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("redis BRPOP failed", "queue", c.queueName, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		// res is [queue, payload].
		if err := c.handle(ctx, res[1]); err != nil {
			slog.Error("inbound message not processed", "queue", c.queueName, "error", err)
		}
	}
}

// handle ingests one payload. Malformed and unprocessable messages are
// dropped; anything else is pushed back for another attempt.
func (c *Consumer) handle(ctx context.Context, payload string) error {
	var msg models.InboxMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return fmt.Errorf("decode inbound message: %w", err)
	}

	if c.dedup != nil && msg.MessageID != "" {
		isNew, err := c.dedup.IsNew(ctx, msg.MessageID)
		if err != nil {
			slog.Warn("dedup check failed, ingesting anyway", "message_id", msg.MessageID, "error", err)
		} else if !isNew {
			slog.Info("skipping redelivered message", "message_id", msg.MessageID)
			return nil
		}
	}

	result, err := c.ingester.Ingest(ctx, &msg)
	if err == nil {
		slog.Info("queued message ingested",
			"message_id", msg.MessageID,
			"item_id", result.ItemID,
			"routed_to", result.RoutedTo,
		)
		return nil
	}

	if Permanent(err) {
		return fmt.Errorf("message %s rejected: %w", msg.MessageID, err)
	}

	if c.dedup != nil && msg.MessageID != "" {
		if ferr := c.dedup.Forget(ctx, msg.MessageID); ferr != nil {
			slog.Warn("failed to release dedup key", "message_id", msg.MessageID, "error", ferr)
		}
	}
	if rerr := c.rdb.LPush(context.WithoutCancel(ctx), c.queueName, payload).Err(); rerr != nil {
		return fmt.Errorf("requeue message %s after %v: %w", msg.MessageID, err, rerr)
	}
	return fmt.Errorf("message %s requeued: %w", msg.MessageID, err)
}

// Permanent reports whether retrying the message can never succeed.
func Permanent(err error) bool {
	var verr *models.ValidationError
	var xerr *extract.Error
	return errors.As(err, &verr) || errors.As(err, &xerr)
}
