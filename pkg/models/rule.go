package models

import "time"

// DeterministicRule maps a regular-expression pattern to a company. Rules are
// evaluated priority descending, then id ascending, so equal-priority rules
// break ties deterministically.
type DeterministicRule struct {
	ID        int64     `json:"id" db:"id"`
	Pattern   string    `json:"pattern" db:"pattern"`
	CompanyID int64     `json:"company_id" db:"company_id"`
	Priority  int       `json:"priority" db:"priority"`
	Method    string    `json:"method" db:"method"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateRuleRequest is the request to create a deterministic rule
type CreateRuleRequest struct {
	Pattern   string `json:"pattern" validate:"required"`
	CompanyID int64  `json:"company_id" validate:"required"`
	Priority  int    `json:"priority"`
}

// UpdateRuleRequest is the request to update a deterministic rule
type UpdateRuleRequest struct {
	Pattern  *string `json:"pattern,omitempty"`
	Priority *int    `json:"priority,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// IgnoreSponsorPattern suppresses alias promotion (and candidate-based
// acceptance) for sponsor texts that are never real companies, such as
// government agencies and cooperative groups.
type IgnoreSponsorPattern struct {
	ID        int64     `json:"id" db:"id"`
	Pattern   string    `json:"pattern" db:"pattern"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CreateIgnorePatternRequest is the request to create an ignore pattern
type CreateIgnorePatternRequest struct {
	Pattern string `json:"pattern" validate:"required"`
	Reason  string `json:"reason"`
}
