package company

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
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
	"id", "name", "normalized_name", "registry_ids", "website_domain",
	"created_at", "updated_at",
}

// Repository handles company persistence and exact lookups
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new company repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a company, computing the normalized name from the raw name.
func (r *Repository) Create(ctx context.Context, req models.CreateCompanyRequest) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Create")
	defer span.End()

	now := time.Now().UTC()
	registryIDs := req.RegistryIDs
	if len(registryIDs) == 0 {
		registryIDs = json.RawMessage(`{}`)
	}

	company := models.Company{
		Name:           req.Name,
		NormalizedName: normalize.Normalize(req.Name),
		RegistryIDs:    registryIDs,
		WebsiteDomain:  req.WebsiteDomain,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("companies")
	sb.Cols("name", "normalized_name", "registry_ids", "website_domain", "created_at", "updated_at")
	sb.Values(company.Name, company.NormalizedName, []byte(company.RegistryIDs), company.WebsiteDomain, company.CreatedAt, company.UpdatedAt)

	query, args := sb.Build()
	query += " RETURNING id"

	if err := r.db.GetContext(ctx, &company.ID, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create company")
	}

	return &company, nil
}

// Update applies partial updates. Any name change recomputes normalized_name.
func (r *Repository) Update(ctx context.Context, id int64, req models.UpdateCompanyRequest) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.Update")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("companies")

	assignments := []string{sb.Assign("updated_at", time.Now().UTC())}
	if req.Name != nil {
		assignments = append(assignments,
			sb.Assign("name", *req.Name),
			sb.Assign("normalized_name", normalize.Normalize(*req.Name)),
		)
	}
	if len(req.RegistryIDs) > 0 {
		assignments = append(assignments, sb.Assign("registry_ids", []byte(req.RegistryIDs)))
	}
	if req.WebsiteDomain != nil {
		assignments = append(assignments, sb.Assign("website_domain", *req.WebsiteDomain))
	}

	sb.Set(assignments...)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"company_id": id}).Error("Failed to update company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update company")
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("company %d not found", id))
	}

	return r.GetByID(ctx, id)
}

// GetByID retrieves a company by ID
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var company models.Company
	if err := r.db.GetContext(ctx, &company, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("company %d not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get company")
	}

	return &company, nil
}

// ListByNormalizedName returns every company whose normalized name equals the
// query. The caller decides what more than one hit means.
func (r *Repository) ListByNormalizedName(ctx context.Context, normalized string) ([]models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.ListByNormalizedName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.Where(sb.Equal("normalized_name", normalized))
	sb.OrderBy("id")

	query, args := sb.Build()
	var companies []models.Company
	if err := r.db.SelectContext(ctx, &companies, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list companies by normalized name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list companies")
	}

	return companies, nil
}

// ListByWebsiteDomain returns companies whose website domain matches,
// case-insensitive, ignoring a leading "www.".
func (r *Repository) ListByWebsiteDomain(ctx context.Context, domain string) ([]models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.ListByWebsiteDomain")
	defer span.End()

	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))

	query := `
		SELECT ` + strings.Join(columns, ", ") + `
		FROM companies
		WHERE lower(website_domain) = $1 OR lower(website_domain) = 'www.' || $1
		ORDER BY id
	`

	var companies []models.Company
	if err := r.db.SelectContext(ctx, &companies, query, domain); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list companies by website domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list companies")
	}

	return companies, nil
}

// List retrieves a page of companies
func (r *Repository) List(ctx context.Context, page, pageSize int) (*models.CompanyListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "company.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM companies"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list companies")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("companies")
	sb.OrderBy("name")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var companies []models.Company
	if err := r.db.SelectContext(ctx, &companies, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list companies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list companies")
	}

	return &models.CompanyListResponse{
		Items:      companies,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}
