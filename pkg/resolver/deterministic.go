package resolver

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/normalize"
	"github.com/trialmesh/aster/pkg/tracing"
)

// OutcomeKind tags the result of the deterministic pass
type OutcomeKind string

const (
	// OutcomeUnique means exactly one company matched.
	OutcomeUnique OutcomeKind = "unique"
	// OutcomeAmbiguous means a step matched more than one distinct company.
	// Ambiguity is a terminal no-match: later steps never run.
	OutcomeAmbiguous OutcomeKind = "ambiguous"
	// OutcomeNotFound means no deterministic step matched.
	OutcomeNotFound OutcomeKind = "not_found"
)

// Outcome is the result of the deterministic pass over one sponsor text
type Outcome struct {
	Kind      OutcomeKind
	Mode      models.MatchMode
	CompanyID int64
	Evidence  string
}

// AliasStore is the alias lookup surface the resolver needs
type AliasStore interface {
	ListByNormalized(ctx context.Context, normalized string, types []models.AliasType) ([]models.Alias, error)
	ListByDomainValue(ctx context.Context, domain string) ([]models.Alias, error)
}

// CompanyStore is the company lookup surface the resolver needs
type CompanyStore interface {
	ListByNormalizedName(ctx context.Context, normalized string) ([]models.Company, error)
	ListByWebsiteDomain(ctx context.Context, domain string) ([]models.Company, error)
}

// Deterministic runs the exact-evidence steps in fixed order: alias exact,
// company name exact, domain alias, website domain, regex rules. The first
// step that produces any match, unique or ambiguous, ends the pass.
type Deterministic struct {
	aliases    AliasStore
	companies  CompanyStore
	exactTypes []models.AliasType
	logger     ectologger.Logger
}

// NewDeterministic creates a deterministic resolver
func NewDeterministic(aliases AliasStore, companies CompanyStore, logger ectologger.Logger) *Deterministic {
	return &Deterministic{
		aliases:    aliases,
		companies:  companies,
		exactTypes: models.DefaultExactMatchAliasTypes,
		logger:     logger,
	}
}

// WithExactAliasTypes overrides the alias types consulted by the exact-alias
// step. Empty or nil keeps the default set.
func (d *Deterministic) WithExactAliasTypes(types []models.AliasType) *Deterministic {
	if len(types) > 0 {
		d.exactTypes = types
	}
	return d
}

// Resolve runs the deterministic steps for one sponsor text. rawText is the
// original input, normalizedText its normalized form, rules the compiled rule
// set snapshotted for the current run.
func (d *Deterministic) Resolve(ctx context.Context, rawText, normalizedText string, rules *RuleSet) (Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Deterministic.Resolve")
	defer span.End()

	if normalizedText == "" {
		return Outcome{Kind: OutcomeNotFound}, nil
	}

	outcome, matched, err := d.aliasExact(ctx, normalizedText)
	if err != nil || matched {
		return outcome, err
	}

	outcome, matched, err = d.companyExact(ctx, normalizedText)
	if err != nil || matched {
		return outcome, err
	}

	if domain, ok := normalize.ExtractDomain(rawText); ok {
		outcome, matched, err = d.domainExact(ctx, domain)
		if err != nil || matched {
			return outcome, err
		}

		outcome, matched, err = d.websiteDomain(ctx, domain)
		if err != nil || matched {
			return outcome, err
		}
	}

	if rules != nil {
		if rule, ok := rules.Match(rawText, normalizedText); ok {
			return Outcome{
				Kind:      OutcomeUnique,
				Mode:      models.MatchModeRule,
				CompanyID: rule.Rule.CompanyID,
				Evidence:  fmt.Sprintf("rule %d pattern %q", rule.Rule.ID, rule.Rule.Pattern),
			}, nil
		}
	}

	return Outcome{Kind: OutcomeNotFound}, nil
}

func (d *Deterministic) aliasExact(ctx context.Context, normalizedText string) (Outcome, bool, error) {
	aliases, err := d.aliases.ListByNormalized(ctx, normalizedText, d.exactTypes)
	if err != nil {
		return Outcome{}, false, err
	}
	if len(aliases) == 0 {
		return Outcome{}, false, nil
	}

	companyID, unique := uniqueAliasOwner(aliases)
	if !unique {
		d.logger.WithContext(ctx).WithFields(map[string]any{"normalized": normalizedText}).Info("Alias matches multiple companies")
		return Outcome{Kind: OutcomeAmbiguous, Mode: models.MatchModeAliasExact}, true, nil
	}

	return Outcome{
		Kind:      OutcomeUnique,
		Mode:      models.MatchModeAliasExact,
		CompanyID: companyID,
		Evidence:  fmt.Sprintf("alias %q", normalizedText),
	}, true, nil
}

func (d *Deterministic) companyExact(ctx context.Context, normalizedText string) (Outcome, bool, error) {
	companies, err := d.companies.ListByNormalizedName(ctx, normalizedText)
	if err != nil {
		return Outcome{}, false, err
	}
	switch len(companies) {
	case 0:
		return Outcome{}, false, nil
	case 1:
		return Outcome{
			Kind:      OutcomeUnique,
			Mode:      models.MatchModeCompanyExact,
			CompanyID: companies[0].ID,
			Evidence:  fmt.Sprintf("company name %q", normalizedText),
		}, true, nil
	default:
		return Outcome{Kind: OutcomeAmbiguous, Mode: models.MatchModeCompanyExact}, true, nil
	}
}

func (d *Deterministic) domainExact(ctx context.Context, domain string) (Outcome, bool, error) {
	aliases, err := d.aliases.ListByDomainValue(ctx, domain)
	if err != nil {
		return Outcome{}, false, err
	}
	if len(aliases) == 0 {
		return Outcome{}, false, nil
	}

	companyID, unique := uniqueAliasOwner(aliases)
	if !unique {
		return Outcome{Kind: OutcomeAmbiguous, Mode: models.MatchModeDomainExact}, true, nil
	}

	return Outcome{
		Kind:      OutcomeUnique,
		Mode:      models.MatchModeDomainExact,
		CompanyID: companyID,
		Evidence:  fmt.Sprintf("domain alias %q", domain),
	}, true, nil
}

func (d *Deterministic) websiteDomain(ctx context.Context, domain string) (Outcome, bool, error) {
	companies, err := d.companies.ListByWebsiteDomain(ctx, domain)
	if err != nil {
		return Outcome{}, false, err
	}
	switch len(companies) {
	case 0:
		return Outcome{}, false, nil
	case 1:
		return Outcome{
			Kind:      OutcomeUnique,
			Mode:      models.MatchModeWebsiteDomain,
			CompanyID: companies[0].ID,
			Evidence:  fmt.Sprintf("website domain %q", domain),
		}, true, nil
	default:
		return Outcome{Kind: OutcomeAmbiguous, Mode: models.MatchModeWebsiteDomain}, true, nil
	}
}

func uniqueAliasOwner(aliases []models.Alias) (int64, bool) {
	owner := aliases[0].CompanyID
	for _, a := range aliases[1:] {
		if a.CompanyID != owner {
			return 0, false
		}
	}
	return owner, true
}
