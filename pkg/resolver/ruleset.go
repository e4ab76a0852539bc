package resolver

import (
	"regexp"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/normalize"
)

// CompiledRule is a deterministic rule with its pattern compiled
type CompiledRule struct {
	Rule models.DeterministicRule
	Re   *regexp.Regexp
}

// RuleSet holds compiled deterministic rules in evaluation order
type RuleSet struct {
	rules []CompiledRule
}

// NewRuleSet compiles the given rules. Malformed patterns are skipped and
// logged rather than failing the whole set, and the result is ordered by
// priority descending then id ascending regardless of input order.
func NewRuleSet(rules []models.DeterministicRule, logger ectologger.Logger) *RuleSet {
	compiled := make([]CompiledRule, 0, len(rules))
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			logger.WithError(err).WithFields(map[string]any{
				"rule_id": rule.ID,
				"pattern": rule.Pattern,
			}).Warn("Skipping rule with malformed pattern")
			continue
		}
		compiled = append(compiled, CompiledRule{Rule: rule, Re: re})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Rule.Priority != compiled[j].Rule.Priority {
			return compiled[i].Rule.Priority > compiled[j].Rule.Priority
		}
		return compiled[i].Rule.ID < compiled[j].Rule.ID
	})

	return &RuleSet{rules: compiled}
}

// Len returns the number of usable rules
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Match returns the first rule matching any probe of the sponsor text: the
// raw text, the raw text with unicode dashes and spaces folded, and the
// normalized form. The first rule in priority order wins.
func (rs *RuleSet) Match(rawText, normalizedText string) (*CompiledRule, bool) {
	probes := []string{
		rawText,
		normalize.FoldDashesAndSpaces(rawText),
		normalizedText,
	}

	for i := range rs.rules {
		for _, probe := range probes {
			if probe == "" {
				continue
			}
			if rs.rules[i].Re.MatchString(probe) {
				return &rs.rules[i], true
			}
		}
	}

	return nil, false
}
