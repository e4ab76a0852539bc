package resolution

import (
	"context"
	"regexp"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/trialmesh/aster/pkg/models"
	"github.com/trialmesh/aster/pkg/normalize"
)

// AliasWriter is the write surface alias promotion needs
type AliasWriter interface {
	InsertIfAbsent(ctx context.Context, companyID int64, rawAlias string, aliasType models.AliasType, source string) (bool, error)
}

// promotionSource marks aliases written by the feedback loop
const promotionSource = "promotion"

type pendingPromotion struct {
	companyID int64
	text      string
	aliasType models.AliasType
}

// Promoter turns accepted sponsor texts into aliases. Texts matching any
// ignore pattern are skipped so generic government and cooperative-group
// names never become aliases. In snapshot mode inserts are buffered until
// Flush, so a run never observes its own promotions.
type Promoter struct {
	aliases  AliasWriter
	ignore   []*regexp.Regexp
	buffered bool
	logger   ectologger.Logger

	mu      sync.Mutex
	pending []pendingPromotion
}

// NewPromoter compiles the ignore patterns case-insensitively. Malformed
// patterns are skipped and logged.
func NewPromoter(aliases AliasWriter, ignorePatterns []models.IgnoreSponsorPattern, buffered bool, logger ectologger.Logger) *Promoter {
	compiled := make([]*regexp.Regexp, 0, len(ignorePatterns))
	for _, p := range ignorePatterns {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			logger.WithError(err).WithFields(map[string]any{
				"pattern_id": p.ID,
				"pattern":    p.Pattern,
			}).Warn("Skipping malformed ignore pattern")
			continue
		}
		compiled = append(compiled, re)
	}

	return &Promoter{
		aliases:  aliases,
		ignore:   compiled,
		buffered: buffered,
		logger:   logger,
	}
}

// Ignored reports whether the sponsor text matches any ignore pattern
func (p *Promoter) Ignored(sponsorText string) bool {
	for _, re := range p.ignore {
		if re.MatchString(sponsorText) {
			return true
		}
	}
	return false
}

// Promote records the sponsor text as an alias of the company. The alias type
// is legal when the text carries a corporate-form token, aka otherwise. The
// returned bool reports whether a new alias row was (or, buffered, will be)
// written; ignored and empty texts return false.
func (p *Promoter) Promote(ctx context.Context, companyID int64, sponsorText string) (bool, error) {
	if normalize.Normalize(sponsorText) == "" || p.Ignored(sponsorText) {
		return false, nil
	}

	aliasType := models.AliasTypeAka
	if normalize.HasLegalSuffixToken(sponsorText) {
		aliasType = models.AliasTypeLegal
	}

	if p.buffered {
		p.mu.Lock()
		p.pending = append(p.pending, pendingPromotion{companyID: companyID, text: sponsorText, aliasType: aliasType})
		p.mu.Unlock()
		return true, nil
	}

	return p.aliases.InsertIfAbsent(ctx, companyID, sponsorText, aliasType, promotionSource)
}

// Flush writes buffered promotions. Individual insert failures are logged and
// skipped; promotion is best-effort and never fails a run.
func (p *Promoter) Flush(ctx context.Context) {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, promo := range pending {
		if _, err := p.aliases.InsertIfAbsent(ctx, promo.companyID, promo.text, promo.aliasType, promotionSource); err != nil {
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"company_id": promo.companyID,
			}).Warn("Failed to flush promoted alias")
		}
	}
}
