package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialmesh/aster/pkg/models"
)

func scored(companyID int64, p float64) models.ScoredCandidate {
	return models.ScoredCandidate{
		Candidate:   models.Candidate{CompanyID: companyID, Name: "c"},
		Probability: p,
		Features:    map[string]float64{"name_similarity": p},
	}
}

func TestDecide(t *testing.T) {
	th := models.Thresholds{TauAccept: 0.95, ReviewLow: 0.5, MinTop2Margin: 0.05}

	t.Run("empty list rejects", func(t *testing.T) {
		d := Decide(nil, th)
		assert.Equal(t, models.MatchModeReject, d.Mode)
		assert.Nil(t, d.CompanyID)
	})

	t.Run("below review_low rejects", func(t *testing.T) {
		d := Decide([]models.ScoredCandidate{scored(1, 0.4)}, th)
		assert.Equal(t, models.MatchModeReject, d.Mode)
		assert.Nil(t, d.CompanyID)
		assert.NotNil(t, d.Features)
	})

	t.Run("single strong candidate accepts", func(t *testing.T) {
		d := Decide([]models.ScoredCandidate{scored(1, 0.97)}, th)
		assert.Equal(t, models.MatchModeProbabilistic, d.Mode)
		require.NotNil(t, d.CompanyID)
		assert.Equal(t, int64(1), *d.CompanyID)
		assert.Equal(t, 1.0, d.Top2Margin)
	})

	t.Run("strong candidate with clear margin accepts", func(t *testing.T) {
		d := Decide([]models.ScoredCandidate{scored(1, 0.97), scored(2, 0.6)}, th)
		assert.Equal(t, models.MatchModeProbabilistic, d.Mode)
		require.NotNil(t, d.CompanyID)
		assert.Equal(t, int64(1), *d.CompanyID)
		assert.InDelta(t, 0.37, d.Top2Margin, 1e-12)
	})

	t.Run("thin margin sends to review", func(t *testing.T) {
		thin := models.Thresholds{TauAccept: 0.995, ReviewLow: 0.5, MinTop2Margin: 0.01}
		d := Decide([]models.ScoredCandidate{scored(1, 0.996), scored(2, 0.994)}, thin)
		assert.Equal(t, models.MatchModeReview, d.Mode)
		assert.Nil(t, d.CompanyID)
	})

	t.Run("mid band sends to review", func(t *testing.T) {
		d := Decide([]models.ScoredCandidate{scored(1, 0.7)}, th)
		assert.Equal(t, models.MatchModeReview, d.Mode)
	})

	t.Run("duplicate company rows never trigger margin review", func(t *testing.T) {
		d := Decide([]models.ScoredCandidate{scored(1, 0.97), scored(1, 0.96)}, th)
		assert.Equal(t, models.MatchModeProbabilistic, d.Mode)
		require.NotNil(t, d.CompanyID)
		assert.Equal(t, int64(1), *d.CompanyID)
		assert.Equal(t, 1.0, d.Top2Margin)
	})

	t.Run("near tie with require_unique_winner reviews", func(t *testing.T) {
		strict := models.Thresholds{TauAccept: 0.9, ReviewLow: 0.5, MinTop2Margin: 0, RequireUniqueWinner: true}
		d := Decide([]models.ScoredCandidate{scored(1, 0.95), scored(2, 0.95)}, strict)
		assert.Equal(t, models.MatchModeReview, d.Mode)
	})

	t.Run("exact tie without unique winner requirement accepts first", func(t *testing.T) {
		loose := models.Thresholds{TauAccept: 0.9, ReviewLow: 0.5, MinTop2Margin: 0}
		d := Decide([]models.ScoredCandidate{scored(1, 0.95), scored(2, 0.95)}, loose)
		assert.Equal(t, models.MatchModeProbabilistic, d.Mode)
		require.NotNil(t, d.CompanyID)
		assert.Equal(t, int64(1), *d.CompanyID)
	})
}

func TestDecide_Monotonic(t *testing.T) {
	// Raising the winner's probability never demotes the outcome.
	th := models.Thresholds{TauAccept: 0.9, ReviewLow: 0.4, MinTop2Margin: 0.05}
	rank := func(mode models.MatchMode) int {
		switch mode {
		case models.MatchModeReject:
			return 0
		case models.MatchModeReview:
			return 1
		default:
			return 2
		}
	}

	prev := -1
	for p := 0.0; p <= 1.0; p += 0.05 {
		d := Decide([]models.ScoredCandidate{scored(1, p)}, th)
		r := rank(d.Mode)
		assert.GreaterOrEqual(t, r, prev, "outcome regressed at p=%f", p)
		prev = r
	}
}
