package knowledge

import (
	"math"
	"sort"
	"strings"

	"github.com/MrWong99/jargonaut/pkg/types"
)

const (
	// DefaultSimilarityThreshold is the minimum score a match needs to be
	// returned by Search.
	DefaultSimilarityThreshold = 0.7

	// DefaultSuggestLimit is used when Suggest is called with limit <= 0.
	DefaultSuggestLimit = 5
)

// TextSimilarity scores term against query in [0, 1]:
//
//	exact (case-insensitive)   1.0
//	query contained in term    0.9
//	term contained in query    0.8
//	otherwise                  Jaccard index of the whitespace-separated words
func TextSimilarity(query, term string) float64 {
	q := NormalizeTerm(query)
	t := NormalizeTerm(term)
	switch {
	case q == "" || t == "":
		return 0
	case q == t:
		return 1.0
	case strings.Contains(t, q):
		return 0.9
	case strings.Contains(q, t):
		return 0.8
	}

	qw := wordSet(q)
	tw := wordSet(t)
	inter := 0
	for w := range qw {
		if _, ok := tw[w]; ok {
			inter++
		}
	}
	union := len(qw) + len(tw) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// SuggestionConfidence scores a stored term for a partial input:
// prefix 0.95, substring 0.8, prefix of any word 0.7, otherwise 0.5.
func SuggestionConfidence(partial, term string) float64 {
	p := strings.ToLower(strings.TrimSpace(partial))
	t := strings.ToLower(term)
	switch {
	case strings.HasPrefix(t, p):
		return 0.95
	case strings.Contains(t, p):
		return 0.8
	}
	for _, w := range strings.Fields(t) {
		if strings.HasPrefix(w, p) {
			return 0.7
		}
	}
	return 0.5
}

// CosineSimilarity returns 1 - cosine distance between a and b. ok is false
// when the vectors differ in length or either has zero norm, which is the
// case for the zero embeddings stored when embedding failed.
func CosineSimilarity(a, b []float32) (sim float64, ok bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	sim = dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0, false
	}
	return sim, true
}

// IsZeroVector reports whether every component of v is zero.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// MergeMatches combines candidate lists keyed by normalised term, keeping
// the best score per term. It drops matches below threshold, sorts by
// descending score (ties by term) and cuts to limit.
func MergeMatches(threshold float64, limit int, lists ...[]types.KnowledgeMatch) []types.KnowledgeMatch {
	best := make(map[string]types.KnowledgeMatch)
	for _, list := range lists {
		for _, m := range list {
			if m.Score < threshold {
				continue
			}
			key := NormalizeTerm(m.Term)
			if cur, ok := best[key]; !ok || m.Score > cur.Score {
				best[key] = m
			}
		}
	}

	out := make([]types.KnowledgeMatch, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RankSuggestions sorts by confidence, then usage count, then term, and
// cuts to limit.
func RankSuggestions(s []types.Suggestion, limit int) []types.Suggestion {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Confidence != s[j].Confidence {
			return s[i].Confidence > s[j].Confidence
		}
		if s[i].UsageCount != s[j].UsageCount {
			return s[i].UsageCount > s[j].UsageCount
		}
		return s[i].Term < s[j].Term
	})
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(s) {
		set[w] = struct{}{}
	}
	return set
}
