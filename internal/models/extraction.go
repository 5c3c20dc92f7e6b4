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

package models

// RequestType classifies what an inbound message is asking for.
type RequestType string

const (
	RequestPurchase       RequestType = "purchase_request"
	RequestCustomerIssue  RequestType = "customer_issue"
	RequestOpsChange      RequestType = "ops_change"
	RequestGeneralInquiry RequestType = "general_inquiry"
	RequestOther          RequestType = "other"
)

// Priority is the urgency of a request.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// LineItem is a single requested item. Owned by an Extraction.
type LineItem struct {
	Item  string  `json:"item"`
	Qty   int     `json:"qty"`
	Notes *string `json:"notes"`
}

// Requester is a snapshot of the sender at extraction time.
type Requester struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Extraction is the structured request derived from a message.
//
// Its JSON form is validated against the extraction schema and stored
// verbatim in the ledger, so field names are part of the storage contract.
type Extraction struct {
	RequestID       string      `json:"request_id"`
	RequestType     RequestType `json:"request_type"`
	Priority        Priority    `json:"priority"`
	DueDate         *string     `json:"due_date"`
	Company         *string     `json:"company"`
	Requester       Requester   `json:"requester"`
	Description     string      `json:"description"`
	LineItems       []LineItem  `json:"line_items"`
	Confidence      float64     `json:"confidence"`
	ExtractionNotes []string    `json:"extraction_notes"`
}
