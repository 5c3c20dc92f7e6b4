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

// Package extract assembles an Extraction from an inbound message by running
// the field detectors and the confidence scorer, then checks the result
// against the extraction JSON Schema before handing it on.
package extract

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/bcem/intake/internal/detect"
	"github.com/bcem/intake/internal/models"
	"github.com/bcem/intake/internal/scoring"
	"github.com/bcem/intake/internal/textutil"
)

// DefaultSchema is the extraction schema compiled into the binary.
//
//go:embed extraction_schema.json
var DefaultSchema []byte

// Error is returned when the assembled extraction violates the schema.
type Error struct {
	Violations []string
}

func (e *Error) Error() string {
	return "schema validation failed: " + strings.Join(e.Violations, "; ")
}

// Engine extracts structured requests from messages. It holds only the
// resolved schema and is safe for concurrent use.
type Engine struct {
	schema *jsonschema.Resolved
}

// NewEngine resolves the given JSON Schema document. A nil or empty
// document selects DefaultSchema.
func NewEngine(schemaJSON []byte) (*Engine, error) {
	if len(schemaJSON) == 0 {
		schemaJSON = DefaultSchema
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(schemaJSON, &s); err != nil {
		return nil, fmt.Errorf("parse extraction schema: %w", err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve extraction schema: %w", err)
	}

	return &Engine{schema: resolved}, nil
}

// Extract runs every detector over the message and returns the validated
// extraction. Identical messages always produce identical extractions.
func (e *Engine) Extract(msg *models.InboxMessage) (*models.Extraction, error) {
	ex := Assemble(msg)
	if err := e.Validate(ex); err != nil {
		return nil, err
	}
	return ex, nil
}

// Assemble builds the extraction without the schema check.
func Assemble(msg *models.InboxMessage) *models.Extraction {
	subject, body := msg.Subject, msg.Body

	requestType, typeNotes := detect.RequestType(subject, body)
	priority, priorityNotes := detect.Priority(subject, body)
	company, companyNotes := detect.Company(body)
	due := detect.DetectDueDate(subject, body, msg.ReceivedAt)
	lineItems, itemNotes := detect.LineItems(body)

	notes := make([]string, 0, 8)
	notes = append(notes, typeNotes...)
	notes = append(notes, priorityNotes...)
	notes = append(notes, companyNotes...)
	notes = append(notes, due.Note())
	notes = append(notes, itemNotes...)

	if lineItems == nil {
		lineItems = []models.LineItem{}
	}

	description := textutil.NormalizeWhitespace(body)

	confidence := scoring.Confidence(scoring.Inputs{
		RequestType:   requestType,
		Priority:      priority,
		Company:       company,
		DueDate:       due.Value(),
		Description:   description,
		LineItemCount: len(lineItems),
		Notes:         notes,
	})

	return &models.Extraction{
		RequestID:   RequestID(msg),
		RequestType: requestType,
		Priority:    priority,
		DueDate:     due.Value(),
		Company:     company,
		Requester: models.Requester{
			Name:  msg.From.Name,
			Email: msg.From.Email,
		},
		Description:     description,
		LineItems:       lineItems,
		Confidence:      confidence,
		ExtractionNotes: notes,
	}
}

// RequestID derives the request identifier from message id, sender and subject.
func RequestID(msg *models.InboxMessage) string {
	return textutil.StableID(msg.MessageID, msg.From.Email, msg.Subject)
}

// ItemID derives the ledger key for a message. Unlike RequestID it depends
// on the message id alone.
func ItemID(messageID string) string {
	return textutil.StableID("item", messageID)
}

// Validate checks the extraction's JSON form against the schema.
func (e *Engine) Validate(ex *models.Extraction) error {
	raw, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal extraction: %w", err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("unmarshal extraction: %w", err)
	}

	if err := e.schema.Validate(instance); err != nil {
		return &Error{Violations: violations(err)}
	}
	return nil
}

// violations flattens a validation error into one entry per reported problem.
func violations(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, violations(e)...)
		}
		return out
	}
	return []string{err.Error()}
}
