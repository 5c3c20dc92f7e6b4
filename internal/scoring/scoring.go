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

// Package scoring computes the extraction confidence score.
package scoring

import (
	"math"
	"slices"
	"unicode/utf8"

	"github.com/bcem/intake/internal/detect"
	"github.com/bcem/intake/internal/models"
)

// Base is the score every extraction starts from.
const Base = 0.40

// Inputs are the detector outputs the score depends on.
type Inputs struct {
	RequestType   models.RequestType
	Priority      models.Priority
	Company       *string
	DueDate       *string
	Description   string
	LineItemCount int
	Notes         []string
}

// Confidence scores an extraction in [0,1], rounded to two decimals.
// Every adjustment is independent of the others.
func Confidence(in Inputs) float64 {
	score := Base

	if in.RequestType != models.RequestOther {
		score += 0.15
	}
	if in.Priority == models.PriorityHigh || in.Priority == models.PriorityUrgent {
		score += 0.05
	}
	if in.Company != nil && *in.Company != "" {
		score += 0.10
	}
	if in.DueDate != nil && *in.DueDate != "" {
		score += 0.10
	}
	if utf8.RuneCountInString(in.Description) >= 30 {
		score += 0.10
	}
	if in.LineItemCount > 0 {
		score += 0.10
	}

	if slices.Contains(in.Notes, detect.NoteNoTypeHint) {
		score -= 0.08
	}
	if in.RequestType == models.RequestPurchase && in.LineItemCount == 0 {
		score -= 0.10
	}

	return math.Max(0, math.Min(1, math.Round(score*100)/100))
}
