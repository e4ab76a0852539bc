package candidate

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/trialmesh/aster/internal/database"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/tracing"
)

// Per-company best trigram similarity across the company name and all of its
// aliases, with a flag for any alias that starts with the query text.
const topKQuery = `
	SELECT c.id AS company_id,
	       c.name AS name,
	       GREATEST(
	           similarity(c.normalized_name, $1),
	           COALESCE(MAX(similarity(a.normalized_alias, $1)), 0)
	       ) AS similarity,
	       COALESCE(bool_or(a.normalized_alias LIKE $1 || '%'), false) AS alias_prefix_hit
	FROM companies c
	LEFT JOIN company_aliases a ON a.company_id = c.id
	WHERE c.normalized_name % $1 OR a.normalized_alias % $1
	GROUP BY c.id, c.name, c.normalized_name
	HAVING GREATEST(
	           similarity(c.normalized_name, $1),
	           COALESCE(MAX(similarity(a.normalized_alias, $1)), 0)
	       ) >= $2
	ORDER BY alias_prefix_hit DESC, similarity DESC, company_id ASC
	LIMIT $3
`

// Repository retrieves scoring candidates via pg_trgm similarity
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new candidate repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// TopK returns up to k candidate companies for the normalized query, ordered
// by alias prefix hits first, then similarity, then company id. An empty query
// short-circuits to an empty result without touching the store.
func (r *Repository) TopK(ctx context.Context, normalizedQuery string, k int, minSimilarity float64) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "candidate.Repository.TopK")
	defer span.End()

	if normalizedQuery == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 25
	}

	var candidates []models.Candidate
	if err := r.db.SelectContext(ctx, &candidates, topKQuery, normalizedQuery, minSimilarity, k); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"query": normalizedQuery,
			"k":     k,
		}).Error("Failed to retrieve candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to retrieve candidates")
	}

	return candidates, nil
}
