package llmcorrect

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/MrWong99/jargonaut/internal/transcript"
)

// declaration is one substitution the model claims to have made.
type declaration struct {
	from       []string
	to         string
	confidence float64
}

func trimPunct(s string) string { return strings.TrimFunc(s, unicode.IsPunct) }

// normalize lowercases s, collapses whitespace and trims surrounding
// punctuation so "Kubernetes." and "kubernetes" compare equal.
func normalize(s string) string { return strings.Join(tokens(s), " ") }

// tokens splits s into lowercase words without surrounding punctuation.
// Words that are pure punctuation are dropped.
func tokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if core := strings.ToLower(trimPunct(f)); core != "" {
			out = append(out, core)
		}
	}
	return out
}

// apply substitutes every occurrence of a declared span in original. A
// declaration is honoured only when its replacement is a known term and also
// appears in corrected. Longer spans are tried first. Punctuation around a
// replaced span is kept.
func apply(original, corrected string, decls []declaration, known map[string]struct{}) (string, []transcript.Correction) {
	have := " " + normalize(corrected) + " "
	valid := decls[:0:0]
	for _, d := range decls {
		target := normalize(d.to)
		if len(d.from) == 0 || target == "" {
			continue
		}
		if _, ok := known[target]; !ok || !strings.Contains(have, " "+target+" ") {
			continue
		}
		valid = append(valid, d)
	}
	if len(valid) == 0 {
		return original, nil
	}
	slices.SortStableFunc(valid, func(a, b declaration) int { return cmp.Compare(len(b.from), len(a.from)) })

	words := strings.Fields(original)
	norm := make([]string, len(words))
	for i, w := range words {
		norm[i] = strings.ToLower(trimPunct(w))
	}

	var (
		out   = make([]string, 0, len(words))
		fixes []transcript.Correction
	)
	for i := 0; i < len(words); {
		d, ok := declaredAt(norm[i:], valid)
		if !ok {
			out = append(out, words[i])
			i++
			continue
		}
		n := len(d.from)
		span := words[i : i+n]
		first, last := span[0], span[n-1]
		leading := first[:strings.Index(first, trimPunct(first))]
		lastCore := trimPunct(last)
		trailing := last[strings.LastIndex(last, lastCore)+len(lastCore):]

		out = append(out, leading+d.to+trailing)
		fixes = append(fixes, transcript.Correction{
			Original:   trimPunct(strings.Join(span, " ")),
			Corrected:  d.to,
			Confidence: d.confidence,
			Method:     Method,
		})
		i += n
	}
	if len(fixes) == 0 {
		return original, nil
	}
	return strings.Join(out, " "), fixes
}

func declaredAt(norm []string, decls []declaration) (declaration, bool) {
	for _, d := range decls {
		if len(d.from) <= len(norm) && slices.Equal(norm[:len(d.from)], d.from) {
			return d, true
		}
	}
	return declaration{}, false
}
