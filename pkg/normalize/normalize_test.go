package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases and strips punctuation", "Genentech, Inc.", "genentech inc"},
		{"collapses whitespace", "  Alpha   Beta  ", "alpha beta"},
		{"keeps hyphens", "Alpha-Thera AB-123", "alpha-thera ab-123"},
		{"folds accents", "Société Générale", "societe generale"},
		{"drops non-latin script", "武田 Takeda", "takeda"},
		{"punctuation only is empty", "***", ""},
		{"empty stays empty", "", ""},
		{"ampersand becomes boundary", "Johnson & Johnson", "johnson johnson"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Genentech, Inc.", "Société Générale", "  A  B  ", "***", "AB-123 & co.",
		"Hoffmann‑La Roche", "武田薬品工業株式会社",
	}
	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once), "input %q", input)
	}
}

func TestNormalizeLoose(t *testing.T) {
	assert.Equal(t, NormalizeLoose("Johnson & Johnson"), NormalizeLoose("Johnson and Johnson"))
	assert.Equal(t, "procter gamble", NormalizeLoose("Procter and Gamble"))
}

func TestStripLegalSuffix(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"genentech inc", "genentech"},
		{"acme corp", "acme"},
		{"takeda pharmaceutical company limited", "takeda pharmaceutical"},
		{"takeda kabushiki kaisha", "takeda"},
		{"acme pty ltd", "acme"},
		// sector words are never stripped
		{"acme therapeutics", "acme therapeutics"},
		{"acme pharma", "acme pharma"},
		{"acme biopharma inc", "acme biopharma"},
		// at least one token survives
		{"limited", "limited"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, StripLegalSuffix(tt.input), "input %q", tt.input)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"alpha-thera", "inc"}, Tokenize("Alpha-Thera, Inc."))
	assert.Empty(t, Tokenize("***"))
}

func TestAcronymOf(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Bristol Myers Squibb Company", "bms"},
		{"University of California San Francisco", "csf"},
		{"Alpha-Thera Beta", "ab"},
		{"The Institute of Cancer Research", "cr"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, AcronymOf(tt.input), "input %q", tt.input)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		found    bool
	}{
		{"Visit us at https://alpha-thera.com/contact", "alpha-thera.com", true},
		{"see www.Example.COM for details", "example.com", true},
		{"mail us at info@beta-bio.co.uk", "beta-bio.co.uk", true},
		{"no domain here", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		domain, found := ExtractDomain(tt.input)
		assert.Equal(t, tt.found, found, "input %q", tt.input)
		assert.Equal(t, tt.expected, domain, "input %q", tt.input)
	}
}

func TestHasAcademicKeywords(t *testing.T) {
	assert.True(t, HasAcademicKeywords("Massachusetts General Hospital"))
	assert.True(t, HasAcademicKeywords("University of Oxford"))
	assert.True(t, HasAcademicKeywords("NHS Foundation Trust"))
	assert.False(t, HasAcademicKeywords("Alpha Therapeutics"))
	// substring is not a token hit
	assert.False(t, HasAcademicKeywords("Universal Pictures"))
}

func TestHasLegalSuffixToken(t *testing.T) {
	assert.True(t, HasLegalSuffixToken("Genentech, Inc."))
	assert.True(t, HasLegalSuffixToken("Takeda Kabushiki Kaisha Group"))
	assert.False(t, HasLegalSuffixToken("Alpha Therapeutics"))
}

func TestFoldDashesAndSpaces(t *testing.T) {
	assert.Equal(t, "Hoffmann-La Roche", FoldDashesAndSpaces("Hoffmann‑La Roche"))
	assert.Equal(t, "plain text", FoldDashesAndSpaces("plain text"))
}
