package resolution

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialmesh/aster/config"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/resolver"
	"github.com/trialmesh/aster/pkg/scoring"
)

type fakeDeterministic struct {
	outcome resolver.Outcome
	err     error
	calls   int
}

func (f *fakeDeterministic) Resolve(_ context.Context, _, _ string, _ *resolver.RuleSet) (resolver.Outcome, error) {
	f.calls++
	return f.outcome, f.err
}

type fakeCandidates struct {
	candidates []models.Candidate
	err        error
	calls      int
}

func (f *fakeCandidates) TopK(_ context.Context, _ string, _ int, _ float64) ([]models.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

type fakeDecisions struct {
	mu   sync.Mutex
	rows map[string]models.ResolutionDecision
}

func newFakeDecisions() *fakeDecisions {
	return &fakeDecisions{rows: map[string]models.ResolutionDecision{}}
}

func (f *fakeDecisions) Upsert(_ context.Context, dec models.ResolutionDecision) (*models.ResolutionDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := dec.RunID + "|" + dec.ExternalKey + "|" + dec.NormalizedSponsorText
	dec.ID = int64(len(f.rows) + 1)
	if existing, ok := f.rows[key]; ok {
		dec.ID = existing.ID
	}
	f.rows[key] = dec
	return &dec, nil
}

func (f *fakeDecisions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func (f *fakeDecisions) get(runID, externalKey, normalized string) (models.ResolutionDecision, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[runID+"|"+externalKey+"|"+normalized]
	return row, ok
}

type fakeReviews struct {
	mu   sync.Mutex
	rows map[string]models.ReviewQueueEntry
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{rows: map[string]models.ReviewQueueEntry{}}
}

func (f *fakeReviews) UpsertPending(_ context.Context, entry models.ReviewQueueEntry) (*models.ReviewQueueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := entry.RunID + "|" + entry.ExternalKey + "|" + entry.NormalizedSponsorText
	entry.Status = models.ReviewStatusPending
	f.rows[key] = entry
	return &entry, nil
}

func (f *fakeReviews) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeRules struct {
	rules          []models.DeterministicRule
	ignorePatterns []models.IgnoreSponsorPattern
}

func (f *fakeRules) ListActive(_ context.Context) ([]models.DeterministicRule, error) {
	return f.rules, nil
}

func (f *fakeRules) ListIgnorePatterns(_ context.Context) ([]models.IgnoreSponsorPattern, error) {
	return f.ignorePatterns, nil
}

type fakeAliases struct {
	mu       sync.Mutex
	inserted map[string]bool
}

func newFakeAliases() *fakeAliases {
	return &fakeAliases{inserted: map[string]bool{}}
}

func (f *fakeAliases) InsertIfAbsent(_ context.Context, companyID int64, rawAlias string, aliasType models.AliasType, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d|%s|%s", companyID, rawAlias, aliasType)
	if f.inserted[key] {
		return false, nil
	}
	f.inserted[key] = true
	return true, nil
}

func (f *fakeAliases) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func testScorer() *scoring.Scorer {
	return scoring.NewScorer(&models.CalibrationArtifact{
		Version:     "test",
		Weights:     map[string]float64{scoring.FeatureNameSimilarity: 10.0},
		Intercept:   -5.0,
		Calibration: models.Calibration{Method: scoring.CalibrationIdentity},
		Thresholds:  models.Thresholds{TauAccept: 0.9, ReviewLow: 0.4, MinTop2Margin: 0.05},
	})
}

type fixture struct {
	service    *Service
	det        *fakeDeterministic
	candidates *fakeCandidates
	decisions  *fakeDecisions
	reviews    *fakeReviews
	aliases    *fakeAliases
}

// identity calibration of raw = -5 + 10*similarity: similarity 0.6 -> p=1.0,
// 0.55 -> 0.5, 0.5 -> 0.0
func newFixture(opts Options) *fixture {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	f := &fixture{
		det:        &fakeDeterministic{outcome: resolver.Outcome{Kind: resolver.OutcomeNotFound}},
		candidates: &fakeCandidates{},
		decisions:  newFakeDecisions(),
		reviews:    newFakeReviews(),
		aliases:    newFakeAliases(),
	}
	if opts.PromotionVisibility == "" {
		opts.PromotionVisibility = config.PromotionVisibilityLive
	}
	opts.ProbabilisticEnabled = true
	f.service = NewService(f.det, f.candidates, f.decisions, f.reviews,
		&fakeRules{}, f.aliases, testScorer(), opts, logger)
	return f
}

func TestService_DeterministicAccept(t *testing.T) {
	f := newFixture(Options{})
	f.det.outcome = resolver.Outcome{
		Kind:      resolver.OutcomeUnique,
		Mode:      models.MatchModeRule,
		CompanyID: 42,
		Evidence:  "rule 1",
	}

	dec, err := f.service.Resolve(context.Background(), ResolveRequest{
		RunID: "r1", ExternalKey: "NCT001", SponsorText: "Genentech, Inc.",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchModeRule, dec.Mode)
	require.NotNil(t, dec.CompanyID)
	assert.Equal(t, int64(42), *dec.CompanyID)
	assert.Equal(t, 1.0, dec.Probability)
	assert.Equal(t, 1.0, dec.Top2Margin)

	// persisted, candidates never consulted, alias promoted
	row, ok := f.decisions.get("r1", "NCT001", "genentech inc")
	require.True(t, ok)
	assert.Equal(t, models.MatchModeRule, row.MatchMode)
	assert.Equal(t, 0, f.candidates.calls)
	assert.Equal(t, 1, f.aliases.count())
}

func TestService_AmbiguousGoesToReview(t *testing.T) {
	f := newFixture(Options{})
	f.det.outcome = resolver.Outcome{Kind: resolver.OutcomeAmbiguous, Mode: models.MatchModeAliasExact}

	dec, err := f.service.Resolve(context.Background(), ResolveRequest{
		RunID: "r1", ExternalKey: "NCT002", SponsorText: "ABC Pharma",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchModeReview, dec.Mode)
	assert.Nil(t, dec.CompanyID)
	assert.Equal(t, 0, f.candidates.calls)
	assert.Equal(t, 1, f.reviews.count())
}

func TestService_EmptyNormalizedRejects(t *testing.T) {
	f := newFixture(Options{})

	dec, err := f.service.Resolve(context.Background(), ResolveRequest{
		RunID: "r1", ExternalKey: "NCT003", SponsorText: "***",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchModeReject, dec.Mode)
	assert.Equal(t, 0, f.det.calls)
	assert.Equal(t, 0, f.candidates.calls)
	assert.Equal(t, 1, f.decisions.count())
}

func TestService_ProbabilisticPaths(t *testing.T) {
	t.Run("strong candidate accepts and promotes", func(t *testing.T) {
		f := newFixture(Options{})
		f.candidates.candidates = []models.Candidate{
			{CompanyID: 7, Name: "Alpha Therapeutics", Similarity: 0.65},
		}

		dec, err := f.service.Resolve(context.Background(), ResolveRequest{
			RunID: "r1", ExternalKey: "NCT004", SponsorText: "Alpha Therapeutics",
		})
		require.NoError(t, err)
		assert.Equal(t, models.MatchModeProbabilistic, dec.Mode)
		require.NotNil(t, dec.CompanyID)
		assert.Equal(t, int64(7), *dec.CompanyID)
		assert.Equal(t, 1, f.aliases.count())
		assert.Equal(t, 0, f.reviews.count())
	})

	t.Run("mid band candidate goes to review with snapshot", func(t *testing.T) {
		f := newFixture(Options{})
		f.candidates.candidates = []models.Candidate{
			{CompanyID: 7, Name: "Alpha Therapeutics", Similarity: 0.55},
		}

		dec, err := f.service.Resolve(context.Background(), ResolveRequest{
			RunID: "r1", ExternalKey: "NCT005", SponsorText: "Alpha Tx",
		})
		require.NoError(t, err)
		assert.Equal(t, models.MatchModeReview, dec.Mode)
		assert.Equal(t, 1, f.reviews.count())
		assert.Equal(t, 0, f.aliases.count())
	})

	t.Run("no candidates rejects", func(t *testing.T) {
		f := newFixture(Options{})

		dec, err := f.service.Resolve(context.Background(), ResolveRequest{
			RunID: "r1", ExternalKey: "NCT006", SponsorText: "Zeta Unknown",
		})
		require.NoError(t, err)
		assert.Equal(t, models.MatchModeReject, dec.Mode)
		assert.Equal(t, 0, f.reviews.count())
	})
}

func TestService_IgnorePatternBlocksAcceptance(t *testing.T) {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	f := newFixture(Options{})
	f.candidates.candidates = []models.Candidate{
		{CompanyID: 7, Name: "National Cancer Cooperative", Similarity: 0.65},
	}
	f.service = NewService(f.det, f.candidates, f.decisions, f.reviews,
		&fakeRules{ignorePatterns: []models.IgnoreSponsorPattern{{ID: 1, Pattern: `cooperative group`}}},
		f.aliases, testScorer(),
		Options{PromotionVisibility: config.PromotionVisibilityLive, ProbabilisticEnabled: true},
		logger)

	dec, err := f.service.Resolve(context.Background(), ResolveRequest{
		RunID: "r1", ExternalKey: "NCT007", SponsorText: "National Cancer COOPERATIVE Group",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MatchModeReview, dec.Mode)
	assert.Equal(t, 0, f.aliases.count())
	assert.Equal(t, 1, f.reviews.count())
}

func TestService_SnapshotPromotionFlushesAtClose(t *testing.T) {
	f := newFixture(Options{PromotionVisibility: config.PromotionVisibilitySnapshot})
	f.det.outcome = resolver.Outcome{
		Kind: resolver.OutcomeUnique, Mode: models.MatchModeRule, CompanyID: 42,
	}

	run, err := f.service.NewRun(context.Background(), "r1")
	require.NoError(t, err)

	_, err = f.service.ResolveInRun(context.Background(), run, ResolveRequest{
		RunID: "r1", ExternalKey: "NCT008", SponsorText: "Genentech, Inc.",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.aliases.count())

	f.service.Close(context.Background(), run)
	assert.Equal(t, 1, f.aliases.count())
}

func TestService_DecisionUpsertIsIdempotent(t *testing.T) {
	f := newFixture(Options{})
	f.det.outcome = resolver.Outcome{
		Kind: resolver.OutcomeUnique, Mode: models.MatchModeCompanyExact, CompanyID: 3,
	}

	req := ResolveRequest{RunID: "r1", ExternalKey: "NCT009", SponsorText: "Beta Bio"}
	_, err := f.service.Resolve(context.Background(), req)
	require.NoError(t, err)
	_, err = f.service.Resolve(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, f.decisions.count())
}

func TestService_ResolveBatch(t *testing.T) {
	f := newFixture(Options{BatchWorkerCount: 3})
	f.candidates.candidates = []models.Candidate{
		{CompanyID: 7, Name: "Alpha Therapeutics", Similarity: 0.65},
	}

	records := make(chan BatchRecord)
	go func() {
		defer close(records)
		for i := 0; i < 10; i++ {
			records <- BatchRecord{
				ExternalKey: fmt.Sprintf("NCT%03d", i),
				SponsorText: "Alpha Therapeutics",
			}
		}
	}()

	var mu sync.Mutex
	var results []BatchResult
	summary, err := f.service.ResolveBatch(context.Background(), "batch-1", records, func(r BatchResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, 10, summary.Total)
	assert.Equal(t, 10, summary.Resolved)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, results, 10)
	assert.Equal(t, 10, f.decisions.count())
}

func TestService_BatchRecordFailureDoesNotAbort(t *testing.T) {
	f := newFixture(Options{BatchWorkerCount: 2})
	f.det.err = fmt.Errorf("store unavailable")

	records := make(chan BatchRecord)
	go func() {
		defer close(records)
		records <- BatchRecord{ExternalKey: "NCT001", SponsorText: "Alpha"}
		records <- BatchRecord{ExternalKey: "NCT002", SponsorText: "Beta"}
	}()

	summary, err := f.service.ResolveBatch(context.Background(), "batch-2", records, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Failed)
}
