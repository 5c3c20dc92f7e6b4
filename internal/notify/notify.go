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

// Package notify delivers approval summaries to people. Callers hand over
// text that is already redacted; notifiers deliver it best-effort.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Notifier delivers a summary.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Log writes summaries to the structured log. It is used when no webhook
// is configured.
type Log struct{}

func (Log) Notify(_ context.Context, text string) error {
	slog.Info("notification (no webhook configured)", "text", text)
	return nil
}

// Multi fans a summary out to every notifier. All are attempted; the
// returned error joins every failure.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
