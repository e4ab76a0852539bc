package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/trialmesh/aster/internal/database"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/tracing"
)

var columns = []string{
	"id", "run_id", "external_key", "sponsor_text", "normalized_sponsor_text",
	"company_id", "match_mode", "probability", "top2_margin", "features",
	"evidence", "decided_by", "decided_at",
}

// Repository persists resolution decisions
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new decision repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert writes a decision keyed on (run_id, external_key,
// normalized_sponsor_text). A replay of the same record in the same run
// overwrites the earlier row instead of adding a duplicate.
func (r *Repository) Upsert(ctx context.Context, dec models.ResolutionDecision) (*models.ResolutionDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.Upsert")
	defer span.End()

	if dec.DecidedAt.IsZero() {
		dec.DecidedAt = time.Now().UTC()
	}
	if len(dec.Features) == 0 {
		dec.Features = json.RawMessage(`{}`)
	}
	if dec.DecidedBy == "" {
		dec.DecidedBy = "aster"
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("resolution_decisions")
	sb.Cols("run_id", "external_key", "sponsor_text", "normalized_sponsor_text",
		"company_id", "match_mode", "probability", "top2_margin", "features",
		"evidence", "decided_by", "decided_at")
	sb.Values(dec.RunID, dec.ExternalKey, dec.SponsorText, dec.NormalizedSponsorText,
		dec.CompanyID, string(dec.MatchMode), dec.Probability, dec.Top2Margin,
		[]byte(dec.Features), dec.Evidence, dec.DecidedBy, dec.DecidedAt)

	query, args := sb.Build()
	query += ` ON CONFLICT (run_id, external_key, normalized_sponsor_text) DO UPDATE SET
		sponsor_text = EXCLUDED.sponsor_text,
		company_id = EXCLUDED.company_id,
		match_mode = EXCLUDED.match_mode,
		probability = EXCLUDED.probability,
		top2_margin = EXCLUDED.top2_margin,
		features = EXCLUDED.features,
		evidence = EXCLUDED.evidence,
		decided_by = EXCLUDED.decided_by,
		decided_at = EXCLUDED.decided_at
		RETURNING id`

	if err := r.db.GetContext(ctx, &dec.ID, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":       dec.RunID,
			"external_key": dec.ExternalKey,
		}).Error("Failed to upsert decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to persist decision")
	}

	return &dec, nil
}

// GetByKey fetches the decision for one record within a run
func (r *Repository) GetByKey(ctx context.Context, runID, externalKey, normalizedSponsorText string) (*models.ResolutionDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.GetByKey")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolution_decisions")
	sb.Where(
		sb.Equal("run_id", runID),
		sb.Equal("external_key", externalKey),
		sb.Equal("normalized_sponsor_text", normalizedSponsorText),
	)

	query, args := sb.Build()
	var dec models.ResolutionDecision
	if err := r.db.GetContext(ctx, &dec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "decision not found")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get decision")
	}

	return &dec, nil
}

// ListByRun returns every decision recorded for a run
func (r *Repository) ListByRun(ctx context.Context, runID string) ([]models.ResolutionDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "decision.Repository.ListByRun")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("resolution_decisions")
	sb.Where(sb.Equal("run_id", runID))
	sb.OrderBy("id")

	query, args := sb.Build()
	var decisions []models.ResolutionDecision
	if err := r.db.SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": runID}).Error("Failed to list decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list decisions")
	}

	return decisions, nil
}
