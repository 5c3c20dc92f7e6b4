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

// Package detect holds the field detectors that turn free text into
// structured values. Every detector is a pure function returning the value
// it found together with diagnostic notes explaining the decision.
package detect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bcem/intake/internal/models"
	"github.com/bcem/intake/internal/textutil"
)

// TypeRule maps a lower-case substring to a request type.
type TypeRule struct {
	Keyword string
	Type    models.RequestType
}

// TypeRules is evaluated in order; the first keyword found wins, so more
// specific keywords must come before the generic ones they contain.
var TypeRules = []TypeRule{
	{"purchase", models.RequestPurchase},
	{"order", models.RequestPurchase},
	{"billing", models.RequestCustomerIssue},
	{"error", models.RequestCustomerIssue},
	{"issue", models.RequestCustomerIssue},
	{"incident", models.RequestCustomerIssue},
	{"change request", models.RequestOpsChange},
	{"change", models.RequestOpsChange},
	{"update", models.RequestOpsChange},
}

// PriorityHint maps a lower-case substring to a priority.
type PriorityHint struct {
	Keyword  string
	Priority models.Priority
}

// PriorityHints is evaluated in order when no explicit declaration exists.
var PriorityHints = []PriorityHint{
	{"urgent", models.PriorityUrgent},
	{"asap", models.PriorityUrgent},
	{"high", models.PriorityHigh},
	{"medium", models.PriorityMedium},
	{"low", models.PriorityLow},
}

// NoteNoTypeHint is the note emitted when no request type rule fired.
const NoteNoTypeHint = "type_hint:none"

var (
	priorityRE = regexp.MustCompile(`(?i)\bPriority:\s*(urgent|high|medium|low)\b`)
	companyRE  = regexp.MustCompile(`(?i)\bCompany:[ \t]*([^\r\n]*)`)
	lineItemRE = regexp.MustCompile(`(?i)\bItem:\s*(.+?),\s*Qty:\s*(\d+)\b`)

	// sentenceEndRE finds where a declared value stops when other
	// declarations follow on the same line: "ExampleCo. Priority: high".
	sentenceEndRE = regexp.MustCompile(`[.;](\s|$)`)
)

// RequestType classifies subject and body with TypeRules.
func RequestType(subject, body string) (models.RequestType, []string) {
	text := strings.ToLower(subject + " " + body)
	for _, rule := range TypeRules {
		if strings.Contains(text, rule.Keyword) {
			return rule.Type, []string{"type_hint:" + rule.Keyword + "->" + string(rule.Type)}
		}
	}
	return models.RequestOther, []string{NoteNoTypeHint}
}

// Priority prefers an explicit "Priority: <level>" in the body, then falls
// back to PriorityHints over subject and body, then to medium.
func Priority(subject, body string) (models.Priority, []string) {
	if m := priorityRE.FindStringSubmatch(body); m != nil {
		return models.Priority(strings.ToLower(m[1])), []string{"priority_explicit:body"}
	}

	text := strings.ToLower(subject + " " + body)
	for _, hint := range PriorityHints {
		if strings.Contains(text, hint.Keyword) {
			return hint.Priority, []string{"priority_hint:" + hint.Keyword}
		}
	}

	return models.PriorityMedium, []string{"priority_default:medium"}
}

// Company reads an explicit "Company: <value>" declaration from the body.
func Company(body string) (*string, []string) {
	m := companyRE.FindStringSubmatch(body)
	if m == nil {
		return nil, []string{"company:none"}
	}

	value := m[1]
	if loc := sentenceEndRE.FindStringIndex(value); loc != nil {
		value = value[:loc[0]]
	}
	value = strings.TrimRight(textutil.NormalizeWhitespace(value), ".,;: ")
	if value == "" {
		return nil, []string{"company:none"}
	}

	return &value, []string{"company_explicit"}
}

// LineItems collects every "Item: <name>, Qty: <n>" in the body.
// Quantities are not range-checked here; the extraction schema does that.
func LineItems(body string) ([]models.LineItem, []string) {
	var (
		items []models.LineItem
		notes []string
	)

	for _, m := range lineItemRE.FindAllStringSubmatch(body, -1) {
		qty, err := strconv.Atoi(m[2])
		if err != nil {
			notes = append(notes, "line_item_qty_invalid:"+m[2])
			continue
		}
		items = append(items, models.LineItem{
			Item: textutil.NormalizeWhitespace(m[1]),
			Qty:  qty,
		})
	}

	if len(items) > 0 {
		notes = append(notes, "line_items:"+strconv.Itoa(len(items)))
	} else {
		notes = append(notes, "line_items:none")
	}
	return items, notes
}
