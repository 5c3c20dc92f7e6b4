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

// Package textutil holds the small text helpers shared by extraction,
// the orchestrator and the notifiers.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	whitespaceRE = regexp.MustCompile(`\s+`)
	emailRE      = regexp.MustCompile(`([A-Za-z0-9._%+-]+)@([A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	phoneRE      = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
	isoDateRE    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// NormalizeWhitespace collapses runs of whitespace to one space and trims.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// StableID hashes the parts into a 16 hex character identifier.
// Identical parts always give the identical id.
func StableID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// RedactPII masks email addresses and phone-like digit runs. ISO dates
// look like phone numbers to the pattern and are left alone.
func RedactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[REDACTED_EMAIL]")
	return phoneRE.ReplaceAllStringFunc(s, func(m string) string {
		if isoDateRE.MatchString(m) {
			return m
		}
		return "[REDACTED_PHONE]"
	})
}
