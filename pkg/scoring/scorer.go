package scoring

import (
	"sort"

	"github.com/trialmesh/aster/pkg/models"
)

// Scorer applies a calibration artifact to candidate feature vectors
type Scorer struct {
	artifact *models.CalibrationArtifact
}

// NewScorer creates a scorer from a validated artifact
func NewScorer(artifact *models.CalibrationArtifact) *Scorer {
	return &Scorer{artifact: artifact}
}

// Thresholds returns the decision thresholds bundled with the artifact
func (s *Scorer) Thresholds() models.Thresholds {
	return s.artifact.Thresholds
}

// Version returns the artifact version
func (s *Scorer) Version() string {
	return s.artifact.Version
}

// RawScore computes intercept + sum of weight * feature. Features without a
// weight and weights without a feature both contribute nothing.
func (s *Scorer) RawScore(features map[string]float64) float64 {
	score := s.artifact.Intercept
	for name, weight := range s.artifact.Weights {
		score += weight * features[name]
	}
	return score
}

// Probability maps a raw score through the artifact's calibration
func (s *Scorer) Probability(rawScore float64) float64 {
	return Calibrate(s.artifact.Calibration, rawScore)
}

// ScoreCandidates builds features and probabilities for every candidate and
// returns them sorted by probability descending, company id ascending.
func (s *Scorer) ScoreCandidates(sponsorText string, candidates []models.Candidate, recordCtx *Context) []models.ScoredCandidate {
	scored := make([]models.ScoredCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		features := BuildFeatures(sponsorText, candidate, recordCtx)
		raw := s.RawScore(features)
		scored = append(scored, models.ScoredCandidate{
			Candidate:   candidate,
			Features:    features,
			RawScore:    raw,
			Probability: s.Probability(raw),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Probability != scored[j].Probability {
			return scored[i].Probability > scored[j].Probability
		}
		return scored[i].CompanyID < scored[j].CompanyID
	})

	return scored
}
