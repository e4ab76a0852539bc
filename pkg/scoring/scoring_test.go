package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialmesh/aster/pkg/models"
)

func TestBuildFeatures_SchemaComplete(t *testing.T) {
	candidate := models.Candidate{CompanyID: 1, Name: "Alpha Therapeutics", Similarity: 0.8}
	features := BuildFeatures("Alpha Therapeutics Inc", candidate, nil)

	require.Len(t, features, len(FeatureNames))
	for _, name := range FeatureNames {
		_, ok := features[name]
		assert.True(t, ok, "feature %s missing", name)
	}
	assert.Equal(t, 0.8, features[FeatureNameSimilarity])
	assert.Equal(t, 1.0, features[FeatureTokenOverlap])
}

func TestBuildFeatures_AcademicPenalty(t *testing.T) {
	candidate := models.Candidate{CompanyID: 5, Name: "General Pharma", Similarity: 0.6}

	features := BuildFeatures("Massachusetts General Hospital", candidate, nil)
	assert.Equal(t, 1.0, features[FeatureAcademicKeywordPenalty])

	features = BuildFeatures("Massachusetts General Pharma", candidate, nil)
	assert.Equal(t, 0.0, features[FeatureAcademicKeywordPenalty])
}

func TestBuildFeatures_Acronym(t *testing.T) {
	candidate := models.Candidate{CompanyID: 2, Name: "Bristol Myers Squibb Company", Similarity: 0.3}

	features := BuildFeatures("BMS", candidate, nil)
	assert.Equal(t, 1.0, features[FeatureAcronymExact])

	features = BuildFeatures("BMX", candidate, nil)
	assert.Equal(t, 0.0, features[FeatureAcronymExact])
}

func TestBuildFeatures_StrongTokens(t *testing.T) {
	candidate := models.Candidate{CompanyID: 3, Name: "Regeneron Pharmaceuticals", Similarity: 0.9}

	features := BuildFeatures("Regeneron Pharmaceuticals, Inc.", candidate, nil)
	// "regeneron" is strong; "pharmaceuticals" is generic and never counts.
	assert.Equal(t, 1.0, features[FeatureStrongTokenOverlap])
}

func TestBuildFeatures_Context(t *testing.T) {
	candidate := models.Candidate{CompanyID: 4, Name: "Alpha-Thera Ltd", Similarity: 0.7}
	recordCtx := &Context{
		Domains:    []string{"alpha-thera.com", "alphathera.co.uk"},
		Tickers:    []string{"ALTH"},
		AssetCodes: []string{"AT-1201"},
	}

	features := BuildFeatures("Study sponsored by Alpha-Thera (NASDAQ: ALTH) of AT-1201", candidate, recordCtx)
	assert.Equal(t, 1.0, features[FeatureDomainRootMatch])
	assert.Equal(t, 1.0, features[FeatureExtraDomainHit])
	assert.Equal(t, 1.0, features[FeatureTickerMention])
	assert.Equal(t, 1.0, features[FeatureAssetCodeCooccurrence])
}

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadArtifact(t *testing.T) {
	t.Run("valid artifact loads", func(t *testing.T) {
		path := writeArtifact(t, `{
			"version": "2026-08-01",
			"weights": {"name_similarity": 4.0, "academic_keyword_penalty": -3.0},
			"intercept": -2.0,
			"calibration": {"method": "sigmoid"},
			"thresholds": {"tau_accept": 0.95, "review_low": 0.5, "min_top2_margin": 0.05}
		}`)

		artifact, err := LoadArtifact(path)
		require.NoError(t, err)
		assert.Equal(t, "2026-08-01", artifact.Version)
		assert.Equal(t, 0.95, artifact.Thresholds.TauAccept)
	})

	t.Run("missing weights is fatal", func(t *testing.T) {
		path := writeArtifact(t, `{
			"version": "v1",
			"weights": {},
			"calibration": {"method": "sigmoid"},
			"thresholds": {"tau_accept": 0.9}
		}`)

		_, err := LoadArtifact(path)
		assert.Error(t, err)
	})

	t.Run("unknown feature weight is fatal", func(t *testing.T) {
		path := writeArtifact(t, `{
			"version": "v1",
			"weights": {"mystery_signal": 1.0},
			"calibration": {"method": "sigmoid"},
			"thresholds": {"tau_accept": 0.9}
		}`)

		_, err := LoadArtifact(path)
		assert.Error(t, err)
	})

	t.Run("unknown calibration method is fatal", func(t *testing.T) {
		path := writeArtifact(t, `{
			"version": "v1",
			"weights": {"name_similarity": 1.0},
			"calibration": {"method": "isotonic"},
			"thresholds": {"tau_accept": 0.9}
		}`)

		_, err := LoadArtifact(path)
		assert.Error(t, err)
	})

	t.Run("negative platt slope is fatal", func(t *testing.T) {
		path := writeArtifact(t, `{
			"version": "v1",
			"weights": {"name_similarity": 1.0},
			"calibration": {"method": "platt", "a": -2.0, "b": 0.5},
			"thresholds": {"tau_accept": 0.9}
		}`)

		_, err := LoadArtifact(path)
		assert.Error(t, err)
	})

	t.Run("review_low above tau_accept is fatal", func(t *testing.T) {
		path := writeArtifact(t, `{
			"version": "v1",
			"weights": {"name_similarity": 1.0},
			"calibration": {"method": "sigmoid"},
			"thresholds": {"tau_accept": 0.5, "review_low": 0.9}
		}`)

		_, err := LoadArtifact(path)
		assert.Error(t, err)
	})
}

func TestCalibrate_Monotonic(t *testing.T) {
	methods := []models.Calibration{
		{Method: CalibrationSigmoid},
		{Method: CalibrationPlatt, A: 2.0, B: -1.0},
		{Method: CalibrationIdentity},
	}

	for _, cal := range methods {
		prev := -1.0
		for raw := -5.0; raw <= 5.0; raw += 0.25 {
			p := Calibrate(cal, raw)
			assert.GreaterOrEqual(t, p, prev, "method %s not monotonic at %f", cal.Method, raw)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			prev = p
		}
	}
}

func TestScorer(t *testing.T) {
	artifact := &models.CalibrationArtifact{
		Version: "v1",
		Weights: map[string]float64{
			FeatureNameSimilarity:         5.0,
			FeatureAcademicKeywordPenalty: -4.0,
		},
		Intercept:   -2.0,
		Calibration: models.Calibration{Method: CalibrationSigmoid},
		Thresholds:  models.Thresholds{TauAccept: 0.9, ReviewLow: 0.3, MinTop2Margin: 0.05},
	}
	scorer := NewScorer(artifact)

	t.Run("raw score is linear in features", func(t *testing.T) {
		raw := scorer.RawScore(map[string]float64{FeatureNameSimilarity: 0.8})
		assert.InDelta(t, -2.0+5.0*0.8, raw, 1e-12)
	})

	t.Run("academic sponsor scores below industry sponsor", func(t *testing.T) {
		industry := scorer.ScoreCandidates("Alpha Therapeutics", []models.Candidate{
			{CompanyID: 1, Name: "Alpha Therapeutics", Similarity: 0.9},
		}, nil)
		academic := scorer.ScoreCandidates("Alpha University Hospital", []models.Candidate{
			{CompanyID: 1, Name: "Alpha Therapeutics", Similarity: 0.9},
		}, nil)

		require.Len(t, industry, 1)
		require.Len(t, academic, 1)
		assert.Greater(t, industry[0].Probability, academic[0].Probability)
	})

	t.Run("candidates are ranked by probability", func(t *testing.T) {
		scored := scorer.ScoreCandidates("Alpha Therapeutics", []models.Candidate{
			{CompanyID: 1, Name: "Alpha Therapeutics", Similarity: 0.5},
			{CompanyID: 2, Name: "Alpha Therapeutics", Similarity: 0.95},
		}, nil)

		require.Len(t, scored, 2)
		assert.Equal(t, int64(2), scored[0].CompanyID)
		assert.GreaterOrEqual(t, scored[0].Probability, scored[1].Probability)
	})
}
