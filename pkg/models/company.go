package models

import (
	"encoding/json"
	"time"
)

// Company is a canonical company identity in the reference database.
// NormalizedName is a pure function of Name and is recomputed by the
// repository on every name write.
type Company struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	NormalizedName string          `json:"normalized_name" db:"normalized_name"`
	RegistryIDs    json.RawMessage `json:"registry_ids,omitempty" db:"registry_ids"`
	WebsiteDomain  *string         `json:"website_domain,omitempty" db:"website_domain"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// CreateCompanyRequest is the request to create a company
type CreateCompanyRequest struct {
	Name          string          `json:"name" validate:"required"`
	RegistryIDs   json.RawMessage `json:"registry_ids,omitempty"`
	WebsiteDomain *string         `json:"website_domain,omitempty"`
}

// UpdateCompanyRequest is the request to update a company
type UpdateCompanyRequest struct {
	Name          *string         `json:"name,omitempty"`
	RegistryIDs   json.RawMessage `json:"registry_ids,omitempty"`
	WebsiteDomain *string         `json:"website_domain,omitempty"`
}

// CompanyListResponse is the response for listing companies
type CompanyListResponse struct {
	Items      []Company `json:"items"`
	TotalCount int       `json:"total_count"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
}
