// Package resolution orchestrates the full pipeline for one sponsor text:
// normalize, deterministic pass, candidate retrieval, scoring, decision,
// persistence, and the alias-promotion feedback loop.
package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/trialmesh/aster/config"
	"github.com/trialmesh/aster/pkg/decision"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/normalize"
	"github.com/trialmesh/aster/pkg/requestcontext"
	"github.com/trialmesh/aster/pkg/resolver"
	"github.com/trialmesh/aster/pkg/scoring"
	"github.com/trialmesh/aster/pkg/tracing"
)

// ResolveRequest is one sponsor text to resolve
type ResolveRequest struct {
	RunID       string           `json:"run_id" validate:"required"`
	ExternalKey string           `json:"external_key" validate:"required"`
	SponsorText string           `json:"sponsor_text" validate:"required"`
	Context     *scoring.Context `json:"context,omitempty"`
}

// DeterministicResolver is the exact-evidence pass
type DeterministicResolver interface {
	Resolve(ctx context.Context, rawText, normalizedText string, rules *resolver.RuleSet) (resolver.Outcome, error)
}

// CandidateStore retrieves fuzzy candidates
type CandidateStore interface {
	TopK(ctx context.Context, normalizedQuery string, k int, minSimilarity float64) ([]models.Candidate, error)
}

// DecisionStore persists decisions
type DecisionStore interface {
	Upsert(ctx context.Context, dec models.ResolutionDecision) (*models.ResolutionDecision, error)
}

// ReviewStore persists review entries
type ReviewStore interface {
	UpsertPending(ctx context.Context, entry models.ReviewQueueEntry) (*models.ReviewQueueEntry, error)
}

// RuleStore loads the per-run rule and ignore-list snapshots
type RuleStore interface {
	ListActive(ctx context.Context) ([]models.DeterministicRule, error)
	ListIgnorePatterns(ctx context.Context) ([]models.IgnoreSponsorPattern, error)
}

// Options tune the pipeline
type Options struct {
	CandidateK             int
	CandidateMinSimilarity float64
	BatchWorkerCount       int
	RecordTimeout          time.Duration
	PromotionVisibility    string
	ProbabilisticEnabled   bool
}

// Service resolves sponsor texts to canonical companies
type Service struct {
	deterministic DeterministicResolver
	candidates    CandidateStore
	decisions     DecisionStore
	reviews       ReviewStore
	rules         RuleStore
	aliases       AliasWriter
	scorer        *scoring.Scorer
	opts          Options
	logger        ectologger.Logger
}

// NewService creates a resolution service
func NewService(
	deterministic DeterministicResolver,
	candidates CandidateStore,
	decisions DecisionStore,
	reviews ReviewStore,
	rules RuleStore,
	aliases AliasWriter,
	scorer *scoring.Scorer,
	opts Options,
	logger ectologger.Logger,
) *Service {
	if opts.CandidateK <= 0 {
		opts.CandidateK = 25
	}
	if opts.BatchWorkerCount <= 0 {
		opts.BatchWorkerCount = 4
	}
	return &Service{
		deterministic: deterministic,
		candidates:    candidates,
		decisions:     decisions,
		reviews:       reviews,
		rules:         rules,
		aliases:       aliases,
		scorer:        scorer,
		opts:          opts,
		logger:        logger,
	}
}

// Run holds the reference-data snapshot one run resolves against. Rules and
// ignore patterns are loaded once at run start so every record in the run
// sees the same tables.
type Run struct {
	ID       string
	rules    *resolver.RuleSet
	promoter *Promoter
}

// NewRun snapshots the rule and ignore-pattern tables for a run
func (s *Service) NewRun(ctx context.Context, runID string) (*Run, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.NewRun")
	defer span.End()

	rules, err := s.rules.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	ignorePatterns, err := s.rules.ListIgnorePatterns(ctx)
	if err != nil {
		return nil, err
	}

	buffered := s.opts.PromotionVisibility != config.PromotionVisibilityLive
	return &Run{
		ID:       runID,
		rules:    resolver.NewRuleSet(rules, s.logger),
		promoter: NewPromoter(s.aliases, ignorePatterns, buffered, s.logger),
	}, nil
}

// Close flushes any promotions buffered during the run
func (s *Service) Close(ctx context.Context, run *Run) {
	run.promoter.Flush(ctx)
}

// Resolve handles one request end to end in its own single-record run
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*models.Decision, error) {
	run, err := s.NewRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	defer s.Close(ctx, run)

	return s.ResolveInRun(ctx, run, req)
}

// ResolveInRun resolves one record against a run's snapshot and persists the
// outcome.
func (s *Service) ResolveInRun(ctx context.Context, run *Run, req ResolveRequest) (*models.Decision, error) {
	ctx, span := tracing.StartSpan(ctx, "resolution.Service.ResolveInRun")
	defer span.End()

	if s.opts.RecordTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RecordTimeout)
		defer cancel()
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":       run.ID,
		"external_key": req.ExternalKey,
	})

	normalized := normalize.Normalize(req.SponsorText)
	if normalized == "" {
		dec := models.Decision{Mode: models.MatchModeReject, Evidence: "empty after normalization"}
		if err := s.persistDecision(ctx, run, req, normalized, dec); err != nil {
			return nil, err
		}
		return &dec, nil
	}

	outcome, err := s.deterministic.Resolve(ctx, req.SponsorText, normalized, run.rules)
	if err != nil {
		return nil, err
	}

	switch outcome.Kind {
	case resolver.OutcomeUnique:
		companyID := outcome.CompanyID
		dec := models.Decision{
			Mode:        outcome.Mode,
			CompanyID:   &companyID,
			Probability: 1.0,
			Top2Margin:  1.0,
			Evidence:    outcome.Evidence,
		}
		if err := s.persistDecision(ctx, run, req, normalized, dec); err != nil {
			return nil, err
		}
		s.promote(ctx, run, companyID, req.SponsorText, log)
		return &dec, nil

	case resolver.OutcomeAmbiguous:
		dec := models.Decision{
			Mode:     models.MatchModeReview,
			Evidence: fmt.Sprintf("ambiguous %s match", outcome.Mode),
		}
		if err := s.persistDecision(ctx, run, req, normalized, dec); err != nil {
			return nil, err
		}
		if err := s.enqueueReview(ctx, run, req, normalized, nil, dec.Evidence); err != nil {
			return nil, err
		}
		return &dec, nil
	}

	if !s.opts.ProbabilisticEnabled {
		dec := models.Decision{Mode: models.MatchModeReject, Evidence: "no deterministic match"}
		if err := s.persistDecision(ctx, run, req, normalized, dec); err != nil {
			return nil, err
		}
		return &dec, nil
	}

	candidates, err := s.candidates.TopK(ctx, normalized, s.opts.CandidateK, s.opts.CandidateMinSimilarity)
	if err != nil {
		return nil, err
	}

	scoredCandidates := s.scorer.ScoreCandidates(req.SponsorText, candidates, req.Context)
	dec := decision.Decide(scoredCandidates, s.scorer.Thresholds())

	// An accepted match for a sponsor text on the ignore list is never
	// trusted: those texts are known non-companies.
	if dec.Mode == models.MatchModeProbabilistic && run.promoter.Ignored(req.SponsorText) {
		dec = models.Decision{
			Mode:        models.MatchModeReview,
			Probability: dec.Probability,
			Top2Margin:  dec.Top2Margin,
			Features:    dec.Features,
			Evidence:    "sponsor text matches ignore pattern",
		}
	}

	if err := s.persistDecision(ctx, run, req, normalized, dec); err != nil {
		return nil, err
	}

	switch dec.Mode {
	case models.MatchModeProbabilistic:
		s.promote(ctx, run, *dec.CompanyID, req.SponsorText, log)
	case models.MatchModeReview:
		reason := dec.Evidence
		if reason == "" {
			reason = reviewReason(dec, s.scorer.Thresholds())
		}
		if err := s.enqueueReview(ctx, run, req, normalized, scoredCandidates, reason); err != nil {
			return nil, err
		}
	}

	return &dec, nil
}

func (s *Service) promote(ctx context.Context, run *Run, companyID int64, sponsorText string, log ectologger.Logger) {
	if _, err := run.promoter.Promote(ctx, companyID, sponsorText); err != nil {
		log.WithError(err).WithFields(map[string]any{"company_id": companyID}).Warn("Alias promotion failed")
	}
}

func (s *Service) persistDecision(ctx context.Context, run *Run, req ResolveRequest, normalized string, dec models.Decision) error {
	features := json.RawMessage(`{}`)
	if len(dec.Features) > 0 {
		if b, err := json.Marshal(dec.Features); err == nil {
			features = b
		}
	}

	row := models.ResolutionDecision{
		RunID:                 run.ID,
		ExternalKey:           req.ExternalKey,
		SponsorText:           req.SponsorText,
		NormalizedSponsorText: normalized,
		CompanyID:             dec.CompanyID,
		MatchMode:             dec.Mode,
		Probability:           dec.Probability,
		Top2Margin:            dec.Top2Margin,
		Features:              features,
		Evidence:              dec.Evidence,
		DecidedBy:             decidedBy(ctx),
		DecidedAt:             time.Now().UTC(),
	}

	// The upsert is idempotent by key, so a unique-violation race with a
	// concurrent writer is safe to retry once.
	_, err := s.decisions.Upsert(ctx, row)
	if err != nil {
		_, err = s.decisions.Upsert(ctx, row)
	}
	return err
}

func (s *Service) enqueueReview(ctx context.Context, run *Run, req ResolveRequest, normalized string, candidates []models.ScoredCandidate, reason string) error {
	snapshot := json.RawMessage(`[]`)
	if len(candidates) > 0 {
		if b, err := json.Marshal(candidates); err == nil {
			snapshot = b
		}
	}

	entry := models.ReviewQueueEntry{
		RunID:                 run.ID,
		ExternalKey:           req.ExternalKey,
		SponsorText:           req.SponsorText,
		NormalizedSponsorText: normalized,
		Candidates:            snapshot,
		Reason:                reason,
	}

	_, err := s.reviews.UpsertPending(ctx, entry)
	if err != nil {
		_, err = s.reviews.UpsertPending(ctx, entry)
	}
	return err
}

func reviewReason(dec models.Decision, th models.Thresholds) string {
	if dec.Probability >= th.TauAccept {
		return fmt.Sprintf("top-2 margin %.4f below %.4f", dec.Top2Margin, th.MinTop2Margin)
	}
	return fmt.Sprintf("probability %.4f inside review band [%.4f, %.4f)", dec.Probability, th.ReviewLow, th.TauAccept)
}

func decidedBy(ctx context.Context) string {
	if actor := requestcontext.GetActor(ctx); actor != "" {
		return actor
	}
	return "aster"
}
