// Package decision classifies a ranked, scored candidate list as an accept,
// a review, or a reject under the artifact's threshold policy.
package decision

import (
	"github.com/trialmesh/aster/pkg/models"
)

// probEpsilon is the tolerance used when comparing candidate probabilities
// for the unique-winner check.
const probEpsilon = 1e-9

// Decide applies the threshold and margin policy to scored candidates. The
// input must already be sorted by probability descending. Candidates are
// deduplicated by company before the top-2 margin is computed, so two rows
// for the same company never trigger a spurious review.
func Decide(scored []models.ScoredCandidate, th models.Thresholds) models.Decision {
	ranked := dedupeByCompany(scored)

	if len(ranked) == 0 {
		return models.Decision{Mode: models.MatchModeReject}
	}

	top := ranked[0]
	margin := 1.0
	if len(ranked) > 1 {
		margin = top.Probability - ranked[1].Probability
	}

	if top.Probability < th.ReviewLow {
		return models.Decision{
			Mode:        models.MatchModeReject,
			Probability: top.Probability,
			Top2Margin:  margin,
			Features:    top.Features,
		}
	}

	if top.Probability >= th.TauAccept {
		uniqueWinner := len(ranked) == 1 || margin > probEpsilon
		if (len(ranked) == 1 || margin >= th.MinTop2Margin) &&
			(!th.RequireUniqueWinner || uniqueWinner) {
			companyID := top.CompanyID
			return models.Decision{
				Mode:        models.MatchModeProbabilistic,
				CompanyID:   &companyID,
				Probability: top.Probability,
				Top2Margin:  margin,
				Features:    top.Features,
			}
		}
	}

	return models.Decision{
		Mode:        models.MatchModeReview,
		Probability: top.Probability,
		Top2Margin:  margin,
		Features:    top.Features,
	}
}

// dedupeByCompany keeps the best-ranked row per company, preserving order
func dedupeByCompany(scored []models.ScoredCandidate) []models.ScoredCandidate {
	seen := make(map[int64]bool, len(scored))
	out := make([]models.ScoredCandidate, 0, len(scored))
	for _, s := range scored {
		if seen[s.CompanyID] {
			continue
		}
		seen[s.CompanyID] = true
		out = append(out, s)
	}
	return out
}
