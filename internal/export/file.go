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

package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// CSVFile appends rows to a CSV sheet, writing the header when the file
// is first created.
type CSVFile struct {
	path string
	open func(path string) (io.WriteCloser, error)
	mu   sync.Mutex
}

// NewCSVFile returns a CSV destination at path. The file and its parent
// directory are created on first append.
func NewCSVFile(path string) *CSVFile {
	return &CSVFile{path: path, open: openAppend}
}

func (c *CSVFile) Name() string { return "sheet" }

// Append writes one record.
func (c *CSVFile) Append(_ context.Context, row Row) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, statErr := os.Stat(c.path)
	fresh := errors.Is(statErr, fs.ErrNotExist)

	f, err := c.open(c.path)
	if err != nil {
		return err
	}
	defer closeFile(f, c.path, &err)

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	if err := w.Write(row.Record()); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv %s: %w", c.path, err)
	}
	return nil
}

// JSONLFile appends rows as JSON lines.
type JSONLFile struct {
	path string
	open func(path string) (io.WriteCloser, error)
	mu   sync.Mutex
}

// NewJSONLFile returns a JSONL destination at path.
func NewJSONLFile(path string) *JSONLFile {
	return &JSONLFile{path: path, open: openAppend}
}

func (j *JSONLFile) Name() string { return "crm" }

// Append writes one line.
func (j *JSONLFile) Append(_ context.Context, row Row) (err error) {
	line, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.open(j.path)
	if err != nil {
		return err
	}
	defer closeFile(f, j.path, &err)

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write jsonl %s: %w", j.path, err)
	}
	return nil
}

// closeFile reports a close failure unless an earlier error is already set.
func closeFile(f io.Closer, path string, err *error) {
	if cerr := f.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("close %s: %w", path, cerr)
	}
}

func openAppend(path string) (io.WriteCloser, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open export file: %w", err)
	}
	return f, nil
}
