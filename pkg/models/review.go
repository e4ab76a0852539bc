package models

import (
	"encoding/json"
	"time"
)

// ReviewStatus constants
const (
	ReviewStatusPending  = "pending"
	ReviewStatusResolved = "resolved"
	ReviewStatusSkipped  = "skipped"
)

// ReviewQueueEntry is a sponsor text awaiting human adjudication. At most one
// pending entry exists per (run_id, external_key, normalized_sponsor_text);
// resolved and skipped rows are retained as history.
type ReviewQueueEntry struct {
	ID                    int64           `json:"id" db:"id"`
	RunID                 string          `json:"run_id" db:"run_id"`
	ExternalKey           string          `json:"external_key" db:"external_key"`
	SponsorText           string          `json:"sponsor_text" db:"sponsor_text"`
	NormalizedSponsorText string          `json:"normalized_sponsor_text" db:"normalized_sponsor_text"`
	Candidates            json.RawMessage `json:"candidates" db:"candidates"`
	Reason                string          `json:"reason" db:"reason"`
	Status                string          `json:"status" db:"status"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	ResolvedAt            *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy            *string         `json:"resolved_by,omitempty" db:"resolved_by"`
}

// AdjudicateRequest is the request to resolve or skip a review entry
type AdjudicateRequest struct {
	Status    string `json:"status" validate:"required,oneof=resolved skipped"`
	CompanyID *int64 `json:"company_id,omitempty"`
}

// ReviewListResponse is the response for listing review entries
type ReviewListResponse struct {
	Items      []ReviewQueueEntry `json:"items"`
	TotalCount int                `json:"total_count"`
}
