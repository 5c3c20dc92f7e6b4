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

// Package queue connects the intake service to Redis lists: approved rows
// are published for downstream consumers, and inbound messages can be
// consumed from a list instead of arriving over HTTP.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/intake/internal/export"
)

// Publisher pushes approved rows onto a Redis list. It satisfies
// export.Destination.
type Publisher struct {
	rdb       *redis.Client
	queueName string
	now       func() time.Time
}

// NewPublisher creates a new Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Envelope wraps each published row. ID is unique per publish, so a row
// delivered twice can be told apart from two approvals.
type Envelope struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	PublishedAt time.Time  `json:"published_at"`
	Row         export.Row `json:"row"`
}

// KindApprovedRequest tags rows for approved intake requests.
const KindApprovedRequest = "intake.approved_request"

func (p *Publisher) Name() string { return "queue:" + p.queueName }

// Append publishes the row. Consumers read with BRPOP, so LPUSH keeps the
// list first-in first-out.
func (p *Publisher) Append(ctx context.Context, row export.Row) error {
	env := Envelope{
		ID:          uuid.New().String(),
		Kind:        KindApprovedRequest,
		PublishedAt: p.now(),
		Row:         row,
	}

	msgJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal export envelope: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, string(msgJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published approved request to queue",
		"envelope_id", env.ID,
		"request_id", row.RequestID,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
