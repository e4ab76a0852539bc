package review

import (
	"context"
	"encoding/json"
	"fmt"
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
	"candidates", "reason", "status", "created_at", "resolved_at", "resolved_by",
}

// Repository persists the human review queue
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// UpsertPending enqueues a record for review. At most one pending entry
// exists per (run_id, external_key, normalized_sponsor_text); a replay
// refreshes the candidates and reason on the existing pending row. Resolved
// and skipped rows are never touched.
func (r *Repository) UpsertPending(ctx context.Context, entry models.ReviewQueueEntry) (*models.ReviewQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.UpsertPending")
	defer span.End()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.Candidates) == 0 {
		entry.Candidates = json.RawMessage(`[]`)
	}
	entry.Status = models.ReviewStatusPending

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("review_queue")
	sb.Cols("run_id", "external_key", "sponsor_text", "normalized_sponsor_text",
		"candidates", "reason", "status", "created_at")
	sb.Values(entry.RunID, entry.ExternalKey, entry.SponsorText, entry.NormalizedSponsorText,
		[]byte(entry.Candidates), entry.Reason, entry.Status, entry.CreatedAt)

	query, args := sb.Build()
	query += ` ON CONFLICT (run_id, external_key, normalized_sponsor_text) WHERE status = 'pending' DO UPDATE SET
		candidates = EXCLUDED.candidates,
		reason = EXCLUDED.reason
		RETURNING id`

	if err := r.db.GetContext(ctx, &entry.ID, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":       entry.RunID,
			"external_key": entry.ExternalKey,
		}).Error("Failed to enqueue review entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue review entry")
	}

	return &entry, nil
}

// GetByID fetches one review entry
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.ReviewQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("review_queue")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var entry models.ReviewQueueEntry
	if err := r.db.GetContext(ctx, &entry, query, args...); err != nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review entry %d not found", id))
	}

	return &entry, nil
}

// Adjudicate moves a pending entry to resolved or skipped, stamping who and
// when. A second adjudication of the same entry is rejected.
func (r *Repository) Adjudicate(ctx context.Context, id int64, status, resolvedBy string) (*models.ReviewQueueEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.Adjudicate")
	defer span.End()

	if status != models.ReviewStatusResolved && status != models.ReviewStatusSkipped {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "status must be resolved or skipped")
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("review_queue")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("status", models.ReviewStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"review_id": id}).Error("Failed to adjudicate review entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to adjudicate review entry")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("review entry %d is not pending", id))
	}

	return r.GetByID(ctx, id)
}

// ListPending returns pending entries, oldest first, optionally filtered by
// run.
func (r *Repository) ListPending(ctx context.Context, runID string, limit int) (*models.ReviewListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.ListPending")
	defer span.End()

	if limit < 1 || limit > 500 {
		limit = 100
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("review_queue")
	countSb.Where(countSb.Equal("status", models.ReviewStatusPending))
	if runID != "" {
		countSb.Where(countSb.Equal("run_id", runID))
	}

	query, args := countSb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count review entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review entries")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("review_queue")
	sb.Where(sb.Equal("status", models.ReviewStatusPending))
	if runID != "" {
		sb.Where(sb.Equal("run_id", runID))
	}
	sb.OrderBy("created_at ASC", "id ASC")
	sb.Limit(limit)

	query, args = sb.Build()
	var entries []models.ReviewQueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review entries")
	}

	return &models.ReviewListResponse{
		Items:      entries,
		TotalCount: total,
	}, nil
}
