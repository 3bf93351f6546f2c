// Package phonetic matches spoken phrases against a glossary of technical
// terms using Double Metaphone codes and Jaro-Winkler similarity from
// github.com/antzucaro/matchr.
//
// A phrase is compared with every glossary term in two passes:
//
//  1. Phonetic: if any Double Metaphone code of a phrase token equals a code
//     of a term token, the term is a candidate and is accepted when its best
//     Jaro-Winkler score reaches the phonetic threshold (default 0.70).
//  2. Fuzzy: without any phonetic candidate, a term is accepted on
//     Jaro-Winkler alone when it reaches the fuzzy threshold (default 0.85).
//
// Phonetic candidates always win over fuzzy ones. Terms are prepared once
// with [Prepare] so that correcting a transcript does not recompute their
// codes for every window.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Default thresholds.
const (
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically aligned term.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a term that has
// no phonetic overlap with the phrase.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher with the default thresholds unless overridden.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: DefaultPhoneticThreshold,
		fuzzyThreshold:    DefaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// term is one glossary entry with its precomputed comparison data.
type term struct {
	display string
	lower   string
	tokens  []string
	joined  string
	codes   map[string]struct{}
}

// Glossary is a prepared, immutable set of terms.
type Glossary struct {
	terms    []term
	maxWords int
}

// Prepare lowercases, tokenises and encodes terms. Blank and duplicate terms
// (case-insensitive) are dropped; the first spelling wins.
func Prepare(terms []string) *Glossary {
	g := &Glossary{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		display := strings.TrimSpace(t)
		lower := strings.ToLower(display)
		if lower == "" {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tokens := strings.Fields(lower)
		g.terms = append(g.terms, term{
			display: display,
			lower:   lower,
			tokens:  tokens,
			joined:  strings.Join(tokens, ""),
			codes:   codesFor(tokens),
		})
		g.maxWords = max(g.maxWords, len(tokens))
	}
	return g
}

// Len returns the number of prepared terms.
func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.terms)
}

// MaxWords returns the word count of the longest term, or 0 when empty.
func (g *Glossary) MaxWords() int {
	if g == nil {
		return 0
	}
	return g.maxWords
}

// Match returns the glossary term most similar to phrase. Terms with more
// words than phrase are not considered. When matched is false, corrected
// equals phrase and confidence is 0.
func (m *Matcher) Match(phrase string, g *Glossary) (corrected string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	if g.Len() == 0 || lower == "" {
		return phrase, 0, false
	}
	tokens := strings.Fields(lower)
	codes := codesFor(tokens)
	joined := strings.Join(tokens, "")

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for i := range g.terms {
		t := &g.terms[i]
		// Recognisers split words far more often than they merge them, so a
		// phrase never matches a term with more words than it has.
		if len(t.tokens) > len(tokens) {
			continue
		}
		score := similarity(tokens, t.tokens, lower, t.lower, joined, t.joined)
		if overlaps(codes, t.codes) {
			if score >= m.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = t.display, score, true
			}
			continue
		}
		if !bestPhonetic && score >= m.fuzzyThreshold && score > bestScore {
			best, bestScore = t.display, score
		}
	}
	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

func codesFor(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score over the full strings, the
// space-stripped strings and, for phrases with as many words as the term, the
// weakest aligned word pair.
func similarity(aTokens, bTokens []string, aFull, bFull, aJoined, bJoined string) float64 {
	score := matchr.JaroWinkler(aFull, bFull, false)
	if s := matchr.JaroWinkler(aJoined, bJoined, false); s > score {
		score = s
	}
	if len(aTokens) == len(bTokens) && len(aTokens) > 1 {
		weakest := 1.0
		for i := range aTokens {
			weakest = min(weakest, matchr.JaroWinkler(aTokens[i], bTokens[i], false))
		}
		score = max(score, weakest)
	}
	return score
}
