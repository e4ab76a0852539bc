package rule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/trialmesh/aster/internal/database"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/tracing"
)

var columns = []string{
	"id", "pattern", "company_id", "priority", "method", "is_active",
	"created_at", "updated_at",
}

// Repository handles deterministic rules and ignore patterns
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListActive returns active rules in evaluation order: priority descending,
// then id ascending.
func (r *Repository) ListActive(ctx context.Context) ([]models.DeterministicRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("deterministic_rules")
	sb.Where(sb.Equal("is_active", true))
	sb.OrderBy("priority DESC", "id ASC")

	query, args := sb.Build()
	var rules []models.DeterministicRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list rules")
	}

	return rules, nil
}

// List returns every rule, active or not
func (r *Repository) List(ctx context.Context) ([]models.DeterministicRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("deterministic_rules")
	sb.OrderBy("priority DESC", "id ASC")

	query, args := sb.Build()
	var rules []models.DeterministicRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list rules")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list rules")
	}

	return rules, nil
}

// Create inserts a rule. The pattern must compile as a Go regular expression;
// writes are rejected up front so malformed patterns never reach the table.
func (r *Repository) Create(ctx context.Context, req models.CreateRuleRequest) (*models.DeterministicRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Create")
	defer span.End()

	if _, err := regexp.Compile(req.Pattern); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid pattern: %v", err))
	}

	now := time.Now().UTC()
	ruleRow := models.DeterministicRule{
		Pattern:   req.Pattern,
		CompanyID: req.CompanyID,
		Priority:  req.Priority,
		Method:    string(models.MatchModeRule),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("deterministic_rules")
	sb.Cols("pattern", "company_id", "priority", "method", "is_active", "created_at", "updated_at")
	sb.Values(ruleRow.Pattern, ruleRow.CompanyID, ruleRow.Priority, ruleRow.Method, ruleRow.IsActive, ruleRow.CreatedAt, ruleRow.UpdatedAt)

	query, args := sb.Build()
	query += " RETURNING id"

	if err := r.db.GetContext(ctx, &ruleRow.ID, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, httperror.NewHTTPError(http.StatusConflict, "a rule with this pattern already exists")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create rule")
	}

	return &ruleRow, nil
}

// Update applies partial updates to a rule
func (r *Repository) Update(ctx context.Context, id int64, req models.UpdateRuleRequest) (*models.DeterministicRule, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Update")
	defer span.End()

	if req.Pattern != nil {
		if _, err := regexp.Compile(*req.Pattern); err != nil {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid pattern: %v", err))
		}
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("deterministic_rules")

	assignments := []string{sb.Assign("updated_at", time.Now().UTC())}
	if req.Pattern != nil {
		assignments = append(assignments, sb.Assign("pattern", *req.Pattern))
	}
	if req.Priority != nil {
		assignments = append(assignments, sb.Assign("priority", *req.Priority))
	}
	if req.IsActive != nil {
		assignments = append(assignments, sb.Assign("is_active", *req.IsActive))
	}

	sb.Set(assignments...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": id}).Error("Failed to update rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update rule")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %d not found", id))
	}

	return r.getByID(ctx, id)
}

// Delete removes a rule
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom("deterministic_rules")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"rule_id": id}).Error("Failed to delete rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete rule")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %d not found", id))
	}

	return nil
}

func (r *Repository) getByID(ctx context.Context, id int64) (*models.DeterministicRule, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("deterministic_rules")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var ruleRow models.DeterministicRule
	if err := r.db.GetContext(ctx, &ruleRow, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("rule %d not found", id))
		}
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get rule")
	}

	return &ruleRow, nil
}

// ListIgnorePatterns returns every ignore pattern
func (r *Repository) ListIgnorePatterns(ctx context.Context) ([]models.IgnoreSponsorPattern, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.ListIgnorePatterns")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "pattern", "reason", "created_at")
	sb.From("ignore_sponsor_patterns")
	sb.OrderBy("id")

	query, args := sb.Build()
	var patterns []models.IgnoreSponsorPattern
	if err := r.db.SelectContext(ctx, &patterns, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list ignore patterns")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ignore patterns")
	}

	return patterns, nil
}

// CreateIgnorePattern inserts an ignore pattern, rejecting ones that do not
// compile.
func (r *Repository) CreateIgnorePattern(ctx context.Context, req models.CreateIgnorePatternRequest) (*models.IgnoreSponsorPattern, error) {
	ctx, span := tracing.StartSpan(ctx, "rule.Repository.CreateIgnorePattern")
	defer span.End()

	if _, err := regexp.Compile(req.Pattern); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid pattern: %v", err))
	}

	pattern := models.IgnoreSponsorPattern{
		Pattern:   req.Pattern,
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("ignore_sponsor_patterns")
	sb.Cols("pattern", "reason", "created_at")
	sb.Values(pattern.Pattern, pattern.Reason, pattern.CreatedAt)

	query, args := sb.Build()
	query += " RETURNING id"

	if err := r.db.GetContext(ctx, &pattern.ID, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, httperror.NewHTTPError(http.StatusConflict, "an ignore pattern with this expression already exists")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create ignore pattern")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create ignore pattern")
	}

	return &pattern, nil
}
