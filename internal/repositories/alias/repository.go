package alias

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/trialmesh/aster/internal/database"
	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/normalize"
	"github.com/trialmesh/aster/pkg/tracing"
)

var columns = []string{
	"id", "company_id", "alias", "normalized_alias", "alias_type", "source",
	"valid_from", "valid_until", "created_at",
}

// Repository handles company alias persistence and exact lookups
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new alias repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertIfAbsent inserts an alias, ignoring the write if the same
// (company_id, normalized_alias, alias_type) row already exists. The returned
// bool reports whether a new row was actually written.
func (r *Repository) InsertIfAbsent(ctx context.Context, companyID int64, rawAlias string, aliasType models.AliasType, source string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.InsertIfAbsent")
	defer span.End()

	normalized := normalize.Normalize(rawAlias)
	if normalized == "" {
		return false, httperror.NewHTTPError(http.StatusBadRequest, "alias normalizes to empty")
	}
	if !models.ValidAliasType(aliasType) {
		return false, httperror.NewHTTPError(http.StatusBadRequest, "unknown alias type")
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("company_aliases")
	sb.Cols("company_id", "alias", "normalized_alias", "alias_type", "source", "created_at")
	sb.Values(companyID, rawAlias, normalized, string(aliasType), source, time.Now().UTC())

	query, args := sb.Build()
	query += " ON CONFLICT (company_id, normalized_alias, alias_type) DO NOTHING"

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"company_id": companyID,
			"alias_type": aliasType,
		}).Error("Failed to insert alias")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert alias")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert alias")
	}

	return affected > 0, nil
}

// ListByNormalized returns aliases whose normalized form equals the query,
// restricted to the given types. Distinct owning companies in the result mean
// the alias is ambiguous.
func (r *Repository) ListByNormalized(ctx context.Context, normalized string, types []models.AliasType) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByNormalized")
	defer span.End()

	if len(types) == 0 {
		types = models.DefaultExactMatchAliasTypes
	}
	typeValues := make([]any, len(types))
	for i, t := range types {
		typeValues[i] = string(t)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("company_aliases")
	sb.Where(
		sb.Equal("normalized_alias", normalized),
		sb.In("alias_type", typeValues...),
	)
	sb.OrderBy("company_id", "id")

	query, args := sb.Build()
	var aliases []models.Alias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aliases by normalized form")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list aliases")
	}

	return aliases, nil
}

// ListByDomainValue returns domain-type aliases whose stored value matches the
// given domain, case-insensitive, ignoring a leading "www.".
func (r *Repository) ListByDomainValue(ctx context.Context, domain string) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByDomainValue")
	defer span.End()

	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))

	query := `
		SELECT id, company_id, alias, normalized_alias, alias_type, source,
		       valid_from, valid_until, created_at
		FROM company_aliases
		WHERE alias_type = 'domain'
		  AND (lower(alias) = $1 OR lower(alias) = 'www.' || $1)
		ORDER BY company_id, id
	`

	var aliases []models.Alias
	if err := r.db.SelectContext(ctx, &aliases, query, domain); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list aliases by domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list aliases")
	}

	return aliases, nil
}

// ListByCompany returns every alias owned by the company
func (r *Repository) ListByCompany(ctx context.Context, companyID int64) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByCompany")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("company_aliases")
	sb.Where(sb.Equal("company_id", companyID))
	sb.OrderBy("id")

	query, args := sb.Build()
	var aliases []models.Alias
	if err := r.db.SelectContext(ctx, &aliases, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": companyID}).Error("Failed to list company aliases")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list aliases")
	}

	return aliases, nil
}
