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

package intake

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bcem/intake/internal/models"
	"github.com/bcem/intake/internal/textutil"
)

// Summary renders the notification text for an approved item. reviewer is
// empty on the automatic path. Free-text fields are redacted; the item id
// is left intact so the message can be traced back to the ledger.
func Summary(itemID string, ex *models.Extraction, reviewer string) string {
	var b strings.Builder
	if reviewer == "" {
		b.WriteString("Auto-approved intake\n")
	} else {
		b.WriteString("Human-approved intake\n")
	}
	fmt.Fprintf(&b, "- type: %s\n", ex.RequestType)
	fmt.Fprintf(&b, "- priority: %s\n", ex.Priority)
	fmt.Fprintf(&b, "- due: %s\n", textutil.RedactPII(orNA(ex.DueDate)))
	fmt.Fprintf(&b, "- company: %s\n", textutil.RedactPII(orNA(ex.Company)))
	fmt.Fprintf(&b, "- requester: %s\n", textutil.RedactPII(fmt.Sprintf("%s <%s>", ex.Requester.Name, ex.Requester.Email)))
	fmt.Fprintf(&b, "- confidence: %s\n", strconv.FormatFloat(ex.Confidence, 'f', -1, 64))
	fmt.Fprintf(&b, "- item_id: %s", itemID)
	if reviewer != "" {
		fmt.Fprintf(&b, "\n- reviewer: %s", textutil.RedactPII(reviewer))
	}
	return b.String()
}

func orNA(s *string) string {
	if s == nil || *s == "" {
		return "n/a"
	}
	return *s
}
