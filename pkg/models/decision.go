package models

import (
	"encoding/json"
	"time"
)

// MatchMode identifies how a resolution outcome was produced
type MatchMode string

const (
	// Deterministic modes: exact-string or rule evidence, confidence 1.0.
	MatchModeAliasExact    MatchMode = "alias_exact"
	MatchModeCompanyExact  MatchMode = "company_name_exact"
	MatchModeDomainExact   MatchMode = "domain_exact"
	MatchModeWebsiteDomain MatchMode = "website_domain"
	MatchModeRule          MatchMode = "det_rule"

	// Probabilistic modes: calibrated-score evidence.
	MatchModeProbabilistic MatchMode = "probabilistic"
	MatchModeReview        MatchMode = "review"
	MatchModeReject        MatchMode = "reject"

	// MatchModeAdjudicated marks a decision written by a human reviewer.
	MatchModeAdjudicated MatchMode = "adjudicated"
)

// IsDeterministic reports whether the mode represents ground-truth evidence.
func (m MatchMode) IsDeterministic() bool {
	switch m {
	case MatchModeAliasExact, MatchModeCompanyExact, MatchModeDomainExact,
		MatchModeWebsiteDomain, MatchModeRule:
		return true
	}
	return false
}

// Candidate is a company proposed as a possible match for a sponsor text,
// prior to scoring. Similarity is the maximum trigram similarity across the
// company's name and all of its aliases.
type Candidate struct {
	CompanyID      int64   `json:"company_id" db:"company_id"`
	Name           string  `json:"name" db:"name"`
	Similarity     float64 `json:"similarity" db:"similarity"`
	AliasPrefixHit bool    `json:"alias_prefix_hit" db:"alias_prefix_hit"`
}

// ScoredCandidate is a candidate with its feature vector and calibrated
// probability attached.
type ScoredCandidate struct {
	Candidate
	Features    map[string]float64 `json:"features"`
	RawScore    float64            `json:"raw_score"`
	Probability float64            `json:"probability"`
}

// Decision is the outcome of resolving one sponsor text.
type Decision struct {
	Mode        MatchMode          `json:"mode"`
	CompanyID   *int64             `json:"company_id,omitempty"`
	Probability float64            `json:"probability"`
	Top2Margin  float64            `json:"top2_margin"`
	Features    map[string]float64 `json:"features,omitempty"`
	Evidence    string             `json:"evidence,omitempty"`
}

// ResolutionDecision is the durable record of a decision, unique on
// (run_id, external_key, normalized_sponsor_text). Re-running the same batch
// overwrites the prior row.
type ResolutionDecision struct {
	ID                    int64           `json:"id" db:"id"`
	RunID                 string          `json:"run_id" db:"run_id"`
	ExternalKey           string          `json:"external_key" db:"external_key"`
	SponsorText           string          `json:"sponsor_text" db:"sponsor_text"`
	NormalizedSponsorText string          `json:"normalized_sponsor_text" db:"normalized_sponsor_text"`
	CompanyID             *int64          `json:"company_id,omitempty" db:"company_id"`
	MatchMode             MatchMode       `json:"match_mode" db:"match_mode"`
	Probability           float64         `json:"probability" db:"probability"`
	Top2Margin            float64         `json:"top2_margin" db:"top2_margin"`
	Features              json.RawMessage `json:"features" db:"features"`
	Evidence              string          `json:"evidence" db:"evidence"`
	DecidedBy             string          `json:"decided_by" db:"decided_by"`
	DecidedAt             time.Time       `json:"decided_at" db:"decided_at"`
}
