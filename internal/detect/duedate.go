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

package detect

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	dueRE = regexp.MustCompile(`(?i)\b(N(?:eeded)? by|Due|Deadline):?\s*([0-9]{4}-[0-9]{2}-[0-9]{2}|[A-Za-z]{3,9}\s+\d{1,2})\b`)
	isoRE = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)
)

// monthDayLayouts are tried before the fuzzy parser for "<Month> <day>"
// expressions, once the reference year has been appended.
var monthDayLayouts = []string{
	"January 2 2006",
	"Jan 2 2006",
}

// DueDate is the outcome of due date detection. The three cases are
// distinguishable: nothing labeled (Raw empty), parsed (Date set) and
// found but unparseable (Reason set).
type DueDate struct {
	Raw    string
	Date   string
	Reason string
}

// Found reports whether a labeled date expression was present.
func (d DueDate) Found() bool { return d.Raw != "" }

// Parsed reports whether the expression resolved to a calendar date.
func (d DueDate) Parsed() bool { return d.Date != "" }

// Value returns the ISO date, or nil when none was resolved.
func (d DueDate) Value() *string {
	if !d.Parsed() {
		return nil
	}
	v := d.Date
	return &v
}

// Note renders the diagnostic note for the outcome.
func (d DueDate) Note() string {
	switch {
	case !d.Found():
		return "due:none"
	case d.Parsed():
		return "due_parsed:" + d.Raw
	default:
		return "due_parse_failed:" + d.Raw
	}
}

// DetectDueDate scans subject and body for a labeled date ("Needed by",
// "Due", "Deadline"). Expressions without a year take the year of ref, the
// message's received time, so the result never depends on the wall clock.
// Parse failures are reported in the result, never returned as errors.
func DetectDueDate(subject, body string, ref time.Time) DueDate {
	m := dueRE.FindStringSubmatch(subject + "\n" + body)
	if m == nil {
		return DueDate{}
	}

	raw := strings.TrimSpace(m[2])
	t, err := parseDate(raw, ref.UTC().Year())
	if err != nil {
		return DueDate{Raw: raw, Reason: err.Error()}
	}
	return DueDate{Raw: raw, Date: t.Format(time.DateOnly)}
}

func parseDate(raw string, year int) (time.Time, error) {
	if isoRE.MatchString(raw) {
		return time.Parse(time.DateOnly, raw)
	}

	fields := strings.Fields(raw)
	// "Sept" is common in mail but matches neither month layout.
	if len(fields) > 0 && strings.EqualFold(fields[0], "sept") {
		fields[0] = "Sep"
	}
	withYear := strings.Join(fields, " ") + " " + strconv.Itoa(year)
	for _, layout := range monthDayLayouts {
		if t, err := time.Parse(layout, withYear); err == nil {
			return t, nil
		}
	}

	return dateparse.ParseIn(withYear, time.UTC, dateparse.PreferMonthFirst(true))
}
