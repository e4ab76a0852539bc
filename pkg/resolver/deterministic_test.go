package resolver

import (
	"context"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/normalize"
)

type fakeAliasStore struct {
	aliases []models.Alias
}

func (f *fakeAliasStore) ListByNormalized(_ context.Context, normalized string, types []models.AliasType) ([]models.Alias, error) {
	allowed := map[models.AliasType]bool{}
	for _, t := range types {
		allowed[t] = true
	}
	var out []models.Alias
	for _, a := range f.aliases {
		if a.NormalizedAlias == normalized && allowed[a.AliasType] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAliasStore) ListByDomainValue(_ context.Context, domain string) ([]models.Alias, error) {
	var out []models.Alias
	for _, a := range f.aliases {
		if a.AliasType == models.AliasTypeDomain && domainValueMatches(a.Alias, domain) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Same contract as the repository query: stored value equals the domain or
// equals it with a literal "www." prefix.
func domainValueMatches(stored, domain string) bool {
	stored = strings.ToLower(stored)
	return stored == domain || stored == "www."+domain
}

type fakeCompanyStore struct {
	companies []models.Company
}

func (f *fakeCompanyStore) ListByNormalizedName(_ context.Context, normalized string) ([]models.Company, error) {
	var out []models.Company
	for _, c := range f.companies {
		if c.NormalizedName == normalized {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCompanyStore) ListByWebsiteDomain(_ context.Context, domain string) ([]models.Company, error) {
	var out []models.Company
	for _, c := range f.companies {
		if c.WebsiteDomain != nil && domainValueMatches(*c.WebsiteDomain, domain) {
			out = append(out, c)
		}
	}
	return out, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
}

func resolve(t *testing.T, d *Deterministic, raw string, rules *RuleSet) Outcome {
	t.Helper()
	outcome, err := d.Resolve(context.Background(), raw, normalize.Normalize(raw), rules)
	require.NoError(t, err)
	return outcome
}

func TestDeterministic_AliasExact(t *testing.T) {
	aliases := &fakeAliasStore{aliases: []models.Alias{
		{ID: 1, CompanyID: 42, NormalizedAlias: "genentech", AliasType: models.AliasTypeAka},
	}}
	companies := &fakeCompanyStore{}
	d := NewDeterministic(aliases, companies, testLogger())

	t.Run("unique alias wins", func(t *testing.T) {
		outcome := resolve(t, d, "Genentech", nil)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
		assert.Equal(t, models.MatchModeAliasExact, outcome.Mode)
		assert.Equal(t, int64(42), outcome.CompanyID)
	})

	t.Run("no match falls through to not found", func(t *testing.T) {
		outcome := resolve(t, d, "Unknown Sponsor", nil)
		assert.Equal(t, OutcomeNotFound, outcome.Kind)
	})

	t.Run("empty normalized text is not found without lookups", func(t *testing.T) {
		outcome := resolve(t, d, "***", nil)
		assert.Equal(t, OutcomeNotFound, outcome.Kind)
	})
}

func TestDeterministic_AmbiguousAliasTerminates(t *testing.T) {
	// Same alias owned by two companies, plus a company whose exact name
	// also matches. Ambiguity at the alias step must end the pass without
	// consulting the company step.
	aliases := &fakeAliasStore{aliases: []models.Alias{
		{ID: 1, CompanyID: 10, NormalizedAlias: "abc pharma", AliasType: models.AliasTypeAka},
		{ID: 2, CompanyID: 11, NormalizedAlias: "abc pharma", AliasType: models.AliasTypeShort},
	}}
	companies := &fakeCompanyStore{companies: []models.Company{
		{ID: 12, Name: "ABC Pharma", NormalizedName: "abc pharma"},
	}}
	d := NewDeterministic(aliases, companies, testLogger())

	outcome := resolve(t, d, "ABC Pharma", nil)
	assert.Equal(t, OutcomeAmbiguous, outcome.Kind)
	assert.Equal(t, models.MatchModeAliasExact, outcome.Mode)
	assert.Zero(t, outcome.CompanyID)
}

func TestDeterministic_CompanyExact(t *testing.T) {
	aliases := &fakeAliasStore{}
	companies := &fakeCompanyStore{companies: []models.Company{
		{ID: 7, Name: "Alpha Therapeutics, Inc.", NormalizedName: "alpha therapeutics inc"},
	}}
	d := NewDeterministic(aliases, companies, testLogger())

	outcome := resolve(t, d, "Alpha Therapeutics, Inc.", nil)
	assert.Equal(t, OutcomeUnique, outcome.Kind)
	assert.Equal(t, models.MatchModeCompanyExact, outcome.Mode)
	assert.Equal(t, int64(7), outcome.CompanyID)
}

func TestDeterministic_DomainSteps(t *testing.T) {
	domain := "alpha-thera.com"
	aliases := &fakeAliasStore{aliases: []models.Alias{
		{ID: 1, CompanyID: 7, Alias: "alpha-thera.com", NormalizedAlias: "alpha-thera com", AliasType: models.AliasTypeDomain},
	}}
	companies := &fakeCompanyStore{companies: []models.Company{
		{ID: 9, Name: "Beta Bio", NormalizedName: "beta bio", WebsiteDomain: &domain},
	}}
	d := NewDeterministic(aliases, companies, testLogger())

	t.Run("domain alias beats website domain", func(t *testing.T) {
		outcome := resolve(t, d, "Contact us at www.alpha-thera.com for details", nil)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
		assert.Equal(t, models.MatchModeDomainExact, outcome.Mode)
		assert.Equal(t, int64(7), outcome.CompanyID)
	})

	t.Run("website domain matches when no domain alias exists", func(t *testing.T) {
		aliases.aliases = nil
		outcome := resolve(t, d, "see alpha-thera.com", nil)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
		assert.Equal(t, models.MatchModeWebsiteDomain, outcome.Mode)
		assert.Equal(t, int64(9), outcome.CompanyID)
	})
}

func TestDeterministic_ExactAliasTypes(t *testing.T) {
	aliases := &fakeAliasStore{aliases: []models.Alias{
		{ID: 1, CompanyID: 42, NormalizedAlias: "genentech", AliasType: models.AliasTypeAka},
	}}
	d := NewDeterministic(aliases, &fakeCompanyStore{}, testLogger()).
		WithExactAliasTypes([]models.AliasType{models.AliasTypeLegal})

	t.Run("excluded type no longer matches", func(t *testing.T) {
		outcome := resolve(t, d, "Genentech", nil)
		assert.Equal(t, OutcomeNotFound, outcome.Kind)
	})

	t.Run("included type still matches", func(t *testing.T) {
		aliases.aliases = append(aliases.aliases, models.Alias{
			ID: 2, CompanyID: 42, NormalizedAlias: "genentech", AliasType: models.AliasTypeLegal,
		})
		outcome := resolve(t, d, "Genentech", nil)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
		assert.Equal(t, int64(42), outcome.CompanyID)
	})

	t.Run("empty override keeps defaults", func(t *testing.T) {
		def := NewDeterministic(aliases, &fakeCompanyStore{}, testLogger()).WithExactAliasTypes(nil)
		outcome := resolve(t, def, "Genentech", nil)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
	})
}

func TestDeterministic_DomainPrefixRules(t *testing.T) {
	t.Run("stored www-prefixed alias matches bare domain", func(t *testing.T) {
		aliases := &fakeAliasStore{aliases: []models.Alias{
			{ID: 1, CompanyID: 7, Alias: "www.acme-bio.com", NormalizedAlias: "www acme-bio com", AliasType: models.AliasTypeDomain},
		}}
		d := NewDeterministic(aliases, &fakeCompanyStore{}, testLogger())

		outcome := resolve(t, d, "see acme-bio.com", nil)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
		assert.Equal(t, models.MatchModeDomainExact, outcome.Mode)
		assert.Equal(t, int64(7), outcome.CompanyID)
	})

	t.Run("partial www run never matches a different host", func(t *testing.T) {
		aliases := &fakeAliasStore{aliases: []models.Alias{
			{ID: 1, CompanyID: 7, Alias: "ww.acme-bio.com", NormalizedAlias: "ww acme-bio com", AliasType: models.AliasTypeDomain},
		}}
		d := NewDeterministic(aliases, &fakeCompanyStore{}, testLogger())

		outcome := resolve(t, d, "see acme-bio.com", nil)
		assert.Equal(t, OutcomeNotFound, outcome.Kind)
	})

	t.Run("single-letter website host never matches a different host", func(t *testing.T) {
		host := "w.xeno.com"
		companies := &fakeCompanyStore{companies: []models.Company{
			{ID: 9, Name: "Xeno", NormalizedName: "xeno", WebsiteDomain: &host},
		}}
		d := NewDeterministic(&fakeAliasStore{}, companies, testLogger())

		outcome := resolve(t, d, "see xeno.com", nil)
		assert.Equal(t, OutcomeNotFound, outcome.Kind)
	})
}

func TestDeterministic_Rules(t *testing.T) {
	aliases := &fakeAliasStore{}
	companies := &fakeCompanyStore{}
	d := NewDeterministic(aliases, companies, testLogger())

	t.Run("rule matches raw text", func(t *testing.T) {
		rules := NewRuleSet([]models.DeterministicRule{
			{ID: 1, Pattern: `(?i)\bGenentech\b`, CompanyID: 42, Priority: 10},
		}, testLogger())

		outcome := resolve(t, d, "Genentech, a member of the Roche Group", rules)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
		assert.Equal(t, models.MatchModeRule, outcome.Mode)
		assert.Equal(t, int64(42), outcome.CompanyID)
		assert.Contains(t, outcome.Evidence, "rule 1")
	})

	t.Run("higher priority wins, then lower id", func(t *testing.T) {
		rules := NewRuleSet([]models.DeterministicRule{
			{ID: 3, Pattern: `(?i)roche`, CompanyID: 1, Priority: 5},
			{ID: 2, Pattern: `(?i)roche`, CompanyID: 2, Priority: 9},
			{ID: 1, Pattern: `(?i)roche`, CompanyID: 3, Priority: 9},
		}, testLogger())

		outcome := resolve(t, d, "Hoffmann-La Roche", rules)
		assert.Equal(t, int64(3), outcome.CompanyID)
	})

	t.Run("malformed patterns are skipped", func(t *testing.T) {
		rules := NewRuleSet([]models.DeterministicRule{
			{ID: 1, Pattern: `([`, CompanyID: 1, Priority: 100},
			{ID: 2, Pattern: `(?i)novartis`, CompanyID: 2, Priority: 1},
		}, testLogger())
		require.Equal(t, 1, rules.Len())

		outcome := resolve(t, d, "Novartis Pharmaceuticals", rules)
		assert.Equal(t, int64(2), outcome.CompanyID)
	})

	t.Run("rule matches dash-folded probe", func(t *testing.T) {
		rules := NewRuleSet([]models.DeterministicRule{
			{ID: 1, Pattern: `Hoffmann-La Roche`, CompanyID: 5, Priority: 0},
		}, testLogger())

		// U+2011 non-breaking hyphen in the raw text
		outcome := resolve(t, d, "Hoffmann‑La Roche Ltd", rules)
		assert.Equal(t, OutcomeUnique, outcome.Kind)
		assert.Equal(t, int64(5), outcome.CompanyID)
	})
}
