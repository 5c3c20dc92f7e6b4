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

// Package export writes approved requests to downstream destinations:
// a spreadsheet-style CSV file, a CRM-style JSONL file and a Redis list.
// Every destination appends one flat row per approval; delivery is
// at-least-once and rows carry no ordering guarantee.
package export

import (
	"context"
	"strconv"

	"github.com/bcem/intake/internal/models"
)

// Destination appends one row to a downstream system.
type Destination interface {
	Name() string
	Append(ctx context.Context, row Row) error
}

// Row is the denormalized record handed to every destination.
type Row struct {
	RequestID      string  `json:"request_id"`
	RequestType    string  `json:"request_type"`
	Priority       string  `json:"priority"`
	DueDate        *string `json:"due_date"`
	Company        *string `json:"company"`
	RequesterName  string  `json:"requester_name"`
	RequesterEmail string  `json:"requester_email"`
	Confidence     float64 `json:"confidence"`
}

// Columns is the CSV header, in field order.
var Columns = []string{
	"request_id",
	"request_type",
	"priority",
	"due_date",
	"company",
	"requester_name",
	"requester_email",
	"confidence",
}

// RowFromExtraction flattens an extraction.
func RowFromExtraction(ex *models.Extraction) Row {
	return Row{
		RequestID:      ex.RequestID,
		RequestType:    string(ex.RequestType),
		Priority:       string(ex.Priority),
		DueDate:        ex.DueDate,
		Company:        ex.Company,
		RequesterName:  ex.Requester.Name,
		RequesterEmail: ex.Requester.Email,
		Confidence:     ex.Confidence,
	}
}

// Record returns the row's values in Columns order. Missing optional
// fields become empty strings.
func (r Row) Record() []string {
	return []string{
		r.RequestID,
		r.RequestType,
		r.Priority,
		deref(r.DueDate),
		deref(r.Company),
		r.RequesterName,
		r.RequesterEmail,
		strconv.FormatFloat(r.Confidence, 'f', -1, 64),
	}
}

// Map returns the row as a generic map for audit details.
func (r Row) Map() map[string]any {
	return map[string]any{
		"request_id":      r.RequestID,
		"request_type":    r.RequestType,
		"priority":        r.Priority,
		"due_date":        r.DueDate,
		"company":         r.Company,
		"requester_name":  r.RequesterName,
		"requester_email": r.RequesterEmail,
		"confidence":      r.Confidence,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
