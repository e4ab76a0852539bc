// Package normalize provides the string transforms used to compare sponsor
// names: ASCII folding, legal-suffix stripping, tokenization, acronym
// derivation, domain extraction, and academic-keyword detection. Every
// function is pure, total, and safe on arbitrary input.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are corporate-form tokens stripped from the end of a name.
// Sector words (pharma, therapeutics, biopharma, biosciences, pharmaceuticals)
// are deliberately absent: "Acme Therapeutics" and "Acme" are different companies.
var legalSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "corp": {}, "corporation": {},
	"co": {}, "company": {}, "ltd": {}, "limited": {}, "llc": {},
	"lp": {}, "llp": {}, "pllc": {}, "plc": {}, "gmbh": {}, "ag": {},
	"sa": {}, "nv": {}, "bv": {}, "srl": {}, "spa": {}, "sas": {},
	"oy": {}, "ab": {}, "as": {}, "kk": {}, "pte": {}, "pty": {},
	"pvt": {}, "ulc": {}, "kgaa": {},
}

// legalSuffixPairs are two-token corporate forms checked before single tokens.
var legalSuffixPairs = [][2]string{
	{"kabushiki", "kaisha"},
	{"pty", "ltd"},
	{"pte", "ltd"},
	{"co", "ltd"},
	{"de", "cv"},
	{"et", "cie"},
}

// acronymStopwords are skipped when deriving an acronym.
var acronymStopwords = map[string]struct{}{
	"and": {}, "of": {}, "the": {}, "for": {}, "a": {}, "an": {},
	"de": {}, "la": {}, "le": {}, "du": {}, "der": {}, "und": {},
}

// academicKeywords flag sponsors that are institutions rather than companies.
var academicKeywords = map[string]struct{}{
	"university": {}, "universitat": {}, "universite": {}, "universidad": {},
	"college": {}, "hospital": {}, "hospitals": {}, "institute": {},
	"institutes": {}, "institut": {}, "institution": {}, "nhs": {},
	"clinic": {}, "clinique": {}, "school": {}, "academy": {},
	"foundation": {}, "ministry": {}, "government": {}, "council": {},
	"nih": {}, "veterans": {}, "medical": {}, "center": {}, "centre": {},
	"faculty": {}, "hopital": {}, "hopitaux": {}, "klinikum": {},
}

var domainPattern = regexp.MustCompile(`(?i)\b(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}\b`)

// asciiFolder decomposes to NFKD and removes combining marks, so that
// accented letters reduce to their ASCII base before the non-ASCII drop.
var asciiFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// FoldASCII returns s with accents decomposed and every remaining non-ASCII
// code point dropped.
func FoldASCII(s string) string {
	folded, _, err := transform.String(asciiFolder, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize lowercases an ASCII-folded copy of raw, maps every character that
// is not alphanumeric or a hyphen to a space, collapses whitespace runs, and
// trims. Hyphens survive so codes like "AB-123" stay intact.
// Normalize is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.ToLower(FoldASCII(raw))
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// NormalizeLoose is Normalize plus removal of the standalone token "and", so
// "X and Y" and "X & Y" produce the same key ("&" is already mapped to a
// space by Normalize).
func NormalizeLoose(raw string) string {
	tokens := strings.Fields(Normalize(raw))
	kept := tokens[:0]
	for _, t := range tokens {
		if t != "and" {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

// StripLegalSuffix removes trailing corporate-form tokens from a normalized
// name, two-token forms first. At least one token is always kept, so a name
// that is nothing but a suffix ("Limited") survives unchanged.
func StripLegalSuffix(name string) string {
	tokens := strings.Fields(name)
	for len(tokens) > 1 {
		stripped := false
		if len(tokens) > 2 {
			last2 := [2]string{tokens[len(tokens)-2], tokens[len(tokens)-1]}
			for _, pair := range legalSuffixPairs {
				if last2 == pair {
					tokens = tokens[:len(tokens)-2]
					stripped = true
					break
				}
			}
		}
		if !stripped {
			if _, ok := legalSuffixes[tokens[len(tokens)-1]]; ok {
				tokens = tokens[:len(tokens)-1]
				stripped = true
			}
		}
		if !stripped {
			break
		}
	}
	return strings.Join(tokens, " ")
}

// Tokenize splits a string on the Normalize boundary rule; hyphenated tokens
// stay whole.
func Tokenize(name string) []string {
	return strings.Fields(Normalize(name))
}

// AcronymOf builds an acronym from the first letter of each token, skipping
// stop-words, legal-suffix tokens, and academic-institution words. A
// hyphenated token contributes only the letter before its first hyphen.
func AcronymOf(name string) string {
	var b strings.Builder
	for _, token := range Tokenize(name) {
		if _, ok := acronymStopwords[token]; ok {
			continue
		}
		if _, ok := legalSuffixes[token]; ok {
			continue
		}
		if _, ok := academicKeywords[token]; ok {
			continue
		}
		head := token
		if i := strings.IndexByte(token, '-'); i >= 0 {
			head = token[:i]
		}
		if head == "" {
			continue
		}
		r, _ := utf8.DecodeRuneInString(head)
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractDomain finds the first bare or URL-embedded hostname in text,
// lowercased with any leading "www." removed. The second return is false when
// no hostname-like substring exists.
func ExtractDomain(text string) (string, bool) {
	match := domainPattern.FindString(text)
	if match == "" {
		return "", false
	}
	domain := strings.ToLower(match)
	domain = strings.TrimPrefix(domain, "www.")
	if !strings.Contains(domain, ".") {
		return "", false
	}
	return domain, true
}

// HasAcademicKeywords reports whether any academic/government word appears as
// a standalone token in text.
func HasAcademicKeywords(text string) bool {
	for _, token := range Tokenize(text) {
		if _, ok := academicKeywords[token]; ok {
			return true
		}
	}
	return false
}

// HasLegalSuffixToken reports whether any corporate-form token appears in
// text. Used to classify promoted aliases as legal names.
func HasLegalSuffixToken(text string) bool {
	tokens := Tokenize(text)
	for i, token := range tokens {
		if _, ok := legalSuffixes[token]; ok {
			return true
		}
		if i+1 < len(tokens) {
			last2 := [2]string{token, tokens[i+1]}
			for _, pair := range legalSuffixPairs {
				if last2 == pair {
					return true
				}
			}
		}
	}
	return false
}

// foldableRunes maps typographic dash and space variants to their ASCII
// equivalents for rule-probe construction.
var foldableRunes = map[rune]rune{
	'‐': '-', '‑': '-', '‒': '-', '–': '-',
	'—': '-', '―': '-', '−': '-',
	' ': ' ', ' ': ' ', ' ': ' ', ' ': ' ',
	' ': ' ', ' ': ' ', ' ': ' ', ' ': ' ',
	' ': ' ', ' ': ' ', ' ': ' ', '　': ' ',
}

// FoldDashesAndSpaces replaces every Unicode dash variant with an ASCII
// hyphen and every non-breaking/narrow space variant with an ASCII space,
// leaving all other characters untouched.
func FoldDashesAndSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if mapped, ok := foldableRunes[r]; ok {
			return mapped
		}
		return r
	}, s)
}
