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

package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/bcem/intake/internal/models"
)

// Ingester posts one encoded message document.
type Ingester interface {
	IngestJSON(ctx context.Context, body []byte) (*models.IngestResult, error)
}

// ReplayResult summarises a completed replay run.
type ReplayResult struct {
	Files    []FileResult
	Approved int
	Pending  int
	Failed   int
	Errors   int
	Elapsed  time.Duration
}

// FileResult is the outcome of posting one sample file.
type FileResult struct {
	Name   string
	Result *models.IngestResult
	Err    error
}

// Runner posts sample message files to the intake API.
type Runner struct {
	ingester Ingester
	limiter  *rate.Limiter
}

// RunnerConfig holds dependencies for the replay runner.
type RunnerConfig struct {
	Ingester Ingester
	// PerSecond caps requests per second; zero means 5.
	PerSecond float64
}

// NewRunner creates a replay runner.
func NewRunner(cfg RunnerConfig) *Runner {
	perSecond := cfg.PerSecond
	if perSecond == 0 {
		perSecond = 5
	}
	return &Runner{
		ingester: cfg.Ingester,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Run posts every *.json file in dir, in name order. A failed file is
// recorded and the run continues; an empty directory is an error.
func (r *Runner) Run(ctx context.Context, dir string) (*ReplayResult, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no sample files found in %s", dir)
	}
	sort.Strings(files)

	start := time.Now()
	slog.Info("starting sample replay", "dir", dir, "files", len(files))

	result := &ReplayResult{}
	for _, path := range files {
		if err := r.limiter.Wait(ctx); err != nil {
			return result, err
		}

		fr := FileResult{Name: filepath.Base(path)}
		fr.Result, fr.Err = r.post(ctx, path)
		result.Files = append(result.Files, fr)

		if fr.Err != nil {
			slog.Warn("replay: ingest failed", "file", fr.Name, "error", fr.Err)
			result.Errors++
			if errors.Is(fr.Err, context.Canceled) {
				return result, fr.Err
			}
			continue
		}

		switch fr.Result.Status {
		case models.StatusApproved:
			result.Approved++
		case models.StatusPendingReview:
			result.Pending++
		default:
			result.Failed++
		}
	}

	result.Elapsed = time.Since(start)

	slog.Info("sample replay complete",
		"approved", result.Approved,
		"pending", result.Pending,
		"failed", result.Failed,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

func (r *Runner) post(ctx context.Context, path string) (*models.IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return r.ingester.IngestJSON(ctx, data)
}
