package scoring

import (
	"strings"

	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/normalize"
)

// Feature names in schema order. The order is part of the artifact contract:
// weights fit offline reference these names and nothing else.
const (
	FeatureNameSimilarity         = "name_similarity"
	FeatureTokenOverlap           = "token_overlap"
	FeatureAcronymExact           = "acronym_exact"
	FeatureDomainRootMatch        = "domain_root_match"
	FeatureTickerMention          = "ticker_mention"
	FeatureStrongTokenOverlap     = "strong_token_overlap"
	FeatureAssetCodeCooccurrence  = "asset_code_cooccurrence"
	FeatureExtraDomainHit         = "extra_domain_hit"
	FeatureAcademicKeywordPenalty = "academic_keyword_penalty"
)

// FeatureNames is the fixed feature schema
var FeatureNames = []string{
	FeatureNameSimilarity,
	FeatureTokenOverlap,
	FeatureAcronymExact,
	FeatureDomainRootMatch,
	FeatureTickerMention,
	FeatureStrongTokenOverlap,
	FeatureAssetCodeCooccurrence,
	FeatureExtraDomainHit,
	FeatureAcademicKeywordPenalty,
}

// Tokens too common in the industry to count as strong evidence on their own.
var genericTokens = map[string]bool{
	"therapeutics": true, "pharmaceuticals": true, "pharmaceutical": true,
	"pharma": true, "biopharma": true, "biosciences": true, "bioscience": true,
	"biotechnology": true, "biotech": true, "sciences": true, "medical": true,
	"medicines": true, "health": true, "healthcare": true, "research": true,
	"development": true, "laboratories": true, "group": true, "holdings": true,
	"international": true, "global": true,
}

// Context carries optional record-level signals extracted upstream from the
// trial registration or its documents.
type Context struct {
	Domains    []string `json:"domains,omitempty"`
	Tickers    []string `json:"tickers,omitempty"`
	AssetCodes []string `json:"asset_codes,omitempty"`
}

// BuildFeatures computes the fixed feature vector for one (sponsor text,
// candidate) pair. Every schema feature is present in the result; signals
// that are absent contribute 0.
func BuildFeatures(sponsorText string, candidate models.Candidate, recordCtx *Context) map[string]float64 {
	features := make(map[string]float64, len(FeatureNames))
	for _, name := range FeatureNames {
		features[name] = 0
	}

	queryNorm := normalize.Normalize(sponsorText)
	candidateNorm := normalize.Normalize(candidate.Name)
	queryTokens := normalize.Tokenize(normalize.StripLegalSuffix(queryNorm))
	candidateTokens := normalize.Tokenize(normalize.StripLegalSuffix(candidateNorm))

	features[FeatureNameSimilarity] = candidate.Similarity
	features[FeatureTokenOverlap] = tokenOverlap(queryTokens, candidateTokens)

	if acronymMatches(queryNorm, queryTokens, candidateNorm) {
		features[FeatureAcronymExact] = 1
	}

	features[FeatureStrongTokenOverlap] = strongTokenOverlap(queryTokens, candidateTokens)

	if normalize.HasAcademicKeywords(sponsorText) {
		features[FeatureAcademicKeywordPenalty] = 1
	}

	if recordCtx != nil {
		applyContextFeatures(features, sponsorText, candidateTokens, recordCtx)
	}

	return features
}

func applyContextFeatures(features map[string]float64, sponsorText string, candidateTokens []string, recordCtx *Context) {
	candidateJoined := strings.Join(candidateTokens, "")

	for i, domain := range recordCtx.Domains {
		root := domainRoot(domain)
		if root == "" || !rootMatchesCandidate(root, candidateTokens, candidateJoined) {
			continue
		}
		if i == 0 {
			features[FeatureDomainRootMatch] = 1
		} else {
			features[FeatureExtraDomainHit] = 1
		}
	}

	upperText := strings.ToUpper(sponsorText)
	for _, ticker := range recordCtx.Tickers {
		ticker = strings.ToUpper(strings.TrimSpace(ticker))
		if ticker != "" && containsToken(upperText, ticker) {
			features[FeatureTickerMention] = 1
			break
		}
	}

	for _, code := range recordCtx.AssetCodes {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code != "" && containsToken(upperText, code) {
			features[FeatureAssetCodeCooccurrence] = 1
			break
		}
	}
}

func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	union := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		union[t] = true
	}
	shared := 0
	for _, t := range b {
		if set[t] {
			shared++
			delete(set, t)
		}
		union[t] = true
	}
	return float64(shared) / float64(len(union))
}

func strongTokenOverlap(a, b []string) float64 {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		if isStrongToken(t) {
			set[t] = true
		}
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
			delete(set, t)
		}
	}
	return float64(count)
}

func isStrongToken(token string) bool {
	letters := 0
	for _, r := range token {
		if r >= 'a' && r <= 'z' {
			letters++
		}
	}
	return letters >= 6 && !genericTokens[token]
}

// acronymMatches reports whether the query is, or derives, the candidate's
// acronym. Single-letter acronyms are too weak to count.
func acronymMatches(queryNorm string, queryTokens []string, candidateNorm string) bool {
	candidateAcronym := normalize.AcronymOf(candidateNorm)
	if len(candidateAcronym) < 2 {
		return false
	}
	if len(queryTokens) == 1 && queryTokens[0] == candidateAcronym {
		return true
	}
	return normalize.AcronymOf(queryNorm) == candidateAcronym
}

func domainRoot(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")
	if i := strings.IndexByte(domain, '.'); i > 0 {
		domain = domain[:i]
	}
	return strings.ReplaceAll(domain, "-", "")
}

func rootMatchesCandidate(root string, candidateTokens []string, candidateJoined string) bool {
	if candidateJoined != "" && root == candidateJoined {
		return true
	}
	for _, t := range candidateTokens {
		if root == strings.ReplaceAll(t, "-", "") {
			return true
		}
	}
	return false
}

// containsToken reports whether needle appears in haystack bounded by
// non-alphanumeric characters.
func containsToken(haystack, needle string) bool {
	for start := 0; ; {
		i := strings.Index(haystack[start:], needle)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(needle)
		leftOK := i == 0 || !isAlnum(haystack[i-1])
		rightOK := end == len(haystack) || !isAlnum(haystack[end])
		if leftOK && rightOK {
			return true
		}
		start = i + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
