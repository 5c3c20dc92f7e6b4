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

// Package review decides whether an extraction needs a human reviewer.
package review

import (
	"strconv"
	"unicode/utf8"

	"github.com/bcem/intake/internal/models"
)

// MinDescriptionLength is the shortest description considered useful, in
// characters.
const MinDescriptionLength = 25

// Reasons reported by NeedsReview.
const (
	ReasonUnknownType          = "unknown_request_type"
	ReasonLowSignal            = "low_signal_description"
	ReasonPurchaseMissingItems = "purchase_missing_line_items"
	reasonBelowThreshold       = "confidence_below_threshold"
)

// NeedsReview evaluates every guardrail and returns all that fired. The
// extraction must go to a human whenever the reasons list is non-empty.
func NeedsReview(ex *models.Extraction, threshold float64) (bool, []string) {
	reasons := []string{}

	if ex.Confidence < threshold {
		reasons = append(reasons, reasonBelowThreshold+":"+formatScore(ex.Confidence)+"<"+formatScore(threshold))
	}
	if ex.RequestType == models.RequestOther {
		reasons = append(reasons, ReasonUnknownType)
	}
	if utf8.RuneCountInString(ex.Description) < MinDescriptionLength {
		reasons = append(reasons, ReasonLowSignal)
	}
	if ex.RequestType == models.RequestPurchase && len(ex.LineItems) == 0 {
		reasons = append(reasons, ReasonPurchaseMissingItems)
	}

	return len(reasons) > 0, reasons
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
