package models

import "time"

// AliasType classifies how an alias relates to its owning company
type AliasType string

const (
	AliasTypeLegal      AliasType = "legal"
	AliasTypeFormerName AliasType = "former_name"
	AliasTypeAka        AliasType = "aka"
	AliasTypeDba        AliasType = "dba"
	AliasTypeSubsidiary AliasType = "subsidiary"
	AliasTypeDomain     AliasType = "domain"
	AliasTypeShort      AliasType = "short"
)

// AllAliasTypes lists every valid alias type.
var AllAliasTypes = []AliasType{
	AliasTypeLegal, AliasTypeFormerName, AliasTypeAka, AliasTypeDba,
	AliasTypeSubsidiary, AliasTypeDomain, AliasTypeShort,
}

// DefaultExactMatchAliasTypes are the alias types consulted by the exact-alias
// deterministic step: everything except domain, which has its own step.
var DefaultExactMatchAliasTypes = []AliasType{
	AliasTypeLegal, AliasTypeFormerName, AliasTypeAka, AliasTypeDba,
	AliasTypeSubsidiary, AliasTypeShort,
}

// Alias is an alternative name owned by exactly one company.
// (company_id, normalized_alias, alias_type) is the idempotent upsert key.
type Alias struct {
	ID              int64      `json:"id" db:"id"`
	CompanyID       int64      `json:"company_id" db:"company_id"`
	Alias           string     `json:"alias" db:"alias"`
	NormalizedAlias string     `json:"normalized_alias" db:"normalized_alias"`
	AliasType       AliasType  `json:"alias_type" db:"alias_type"`
	Source          string     `json:"source" db:"source"`
	ValidFrom       *time.Time `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until,omitempty" db:"valid_until"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// CreateAliasRequest is the request to attach an alias to a company
type CreateAliasRequest struct {
	Alias     string    `json:"alias" validate:"required"`
	AliasType AliasType `json:"alias_type" validate:"required"`
	Source    string    `json:"source"`
}

// ValidAliasType reports whether t is one of the known alias types.
func ValidAliasType(t AliasType) bool {
	for _, known := range AllAliasTypes {
		if t == known {
			return true
		}
	}
	return false
}
