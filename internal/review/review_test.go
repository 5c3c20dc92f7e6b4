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

package review

import (
	"reflect"
	"strings"
	"testing"

	"github.com/bcem/intake/internal/models"
)

func TestNeedsReview(t *testing.T) {
	long := strings.Repeat("a", 40)

	tests := []struct {
		name    string
		ex      models.Extraction
		want    bool
		reasons []string
	}{
		{
			name:    "clean purchase",
			ex:      models.Extraction{RequestType: models.RequestPurchase, Description: long, LineItems: []models.LineItem{{Item: "Widget", Qty: 1}}, Confidence: 0.9},
			want:    false,
			reasons: []string{},
		},
		{
			name:    "below threshold only",
			ex:      models.Extraction{RequestType: models.RequestCustomerIssue, Description: long, Confidence: 0.7},
			want:    true,
			reasons: []string{"confidence_below_threshold:0.7<0.78"},
		},
		{
			name:    "threshold is inclusive",
			ex:      models.Extraction{RequestType: models.RequestCustomerIssue, Description: long, Confidence: 0.78},
			want:    false,
			reasons: []string{},
		},
		{
			name:    "all guardrails accumulate",
			ex:      models.Extraction{RequestType: models.RequestOther, Description: "Hey, can you help?", Confidence: 0.32},
			want:    true,
			reasons: []string{"confidence_below_threshold:0.32<0.78", ReasonUnknownType, ReasonLowSignal},
		},
		{
			name:    "confident purchase without items",
			ex:      models.Extraction{RequestType: models.RequestPurchase, Description: long, Confidence: 0.95},
			want:    true,
			reasons: []string{ReasonPurchaseMissingItems},
		},
		{
			name:    "short description",
			ex:      models.Extraction{RequestType: models.RequestOpsChange, Description: strings.Repeat("a", 24), Confidence: 0.9},
			want:    true,
			reasons: []string{ReasonLowSignal},
		},
		{
			// 19 characters, 26 bytes.
			name:    "short non-ASCII description",
			ex:      models.Extraction{RequestType: models.RequestOpsChange, Description: "Café–ñoño ¿qué tal?", Confidence: 0.9},
			want:    true,
			reasons: []string{ReasonLowSignal},
		},
		{
			name:    "non-ASCII description at the limit",
			ex:      models.Extraction{RequestType: models.RequestOpsChange, Description: strings.Repeat("é", 25), Confidence: 0.9},
			want:    false,
			reasons: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reasons := NeedsReview(&tt.ex, 0.78)
			if got != tt.want {
				t.Errorf("NeedsReview() = %v, want %v", got, tt.want)
			}
			if !reflect.DeepEqual(reasons, tt.reasons) {
				t.Errorf("reasons = %v, want %v", reasons, tt.reasons)
			}
		})
	}
}
