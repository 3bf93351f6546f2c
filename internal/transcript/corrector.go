// Package transcript fixes speech-to-text output for technical vocabulary.
//
// Recognisers routinely mangle jargon: "kubernetis", "post gress", "cafka".
// [Corrector] slides n-gram windows over the transcript (up to the word count
// of the longest glossary term, longest window first) and replaces every
// window that the [phonetic.Matcher] resolves to a known term. Each
// substitution is recorded as a [Correction] so callers can log or audit it.
package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/jargonaut/internal/transcript/phonetic"
	"github.com/MrWong99/jargonaut/pkg/types"
)

// minWindowRunes skips windows too short to carry a meaningful phonetic code.
const minWindowRunes = 3

// Correction is one substitution.
type Correction struct {
	Original   string  `json:"original"`
	Corrected  string  `json:"corrected"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Result pairs the recogniser output with the corrected text.
type Result struct {
	Original    types.Transcript
	Text        string
	Corrections []Correction
}

// Transcript returns Original with its text replaced by the corrected text.
func (r Result) Transcript() types.Transcript {
	t := r.Original
	t.Text = r.Text
	return t
}

// Corrector is safe for concurrent use.
type Corrector struct {
	matcher *phonetic.Matcher
}

// NewCorrector returns a Corrector using m, or a default matcher when m is nil.
func NewCorrector(m *phonetic.Matcher) *Corrector {
	if m == nil {
		m = phonetic.New()
	}
	return &Corrector{matcher: m}
}

// Correct rewrites t.Text against g. With an empty glossary the text is
// returned unchanged. Corrections is never nil.
func (c *Corrector) Correct(t types.Transcript, g *phonetic.Glossary) Result {
	res := Result{Original: t, Text: t.Text, Corrections: []Correction{}}
	tokens := strings.Fields(t.Text)
	maxWords := g.MaxWords()
	if len(tokens) == 0 || maxWords == 0 {
		return res
	}

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n, repl, corr, ok := c.matchAt(tokens, i, maxWords, g)
		if !ok {
			out = append(out, tokens[i])
			i++
			continue
		}
		out = append(out, repl)
		if corr != nil {
			res.Corrections = append(res.Corrections, *corr)
		}
		i += n
	}
	res.Text = strings.Join(out, " ")
	return res
}

// matchAt tries windows starting at tokens[i], longest first. It returns the
// number of tokens consumed, the replacement text, and a correction when the
// replacement differs from the window beyond letter case.
func (c *Corrector) matchAt(tokens []string, i, maxWords int, g *phonetic.Glossary) (int, string, *Correction, bool) {
	for n := min(maxWords, len(tokens)-i); n >= 1; n-- {
		window, leading, trailing, ok := windowText(tokens[i : i+n])
		if !ok || utf8.RuneCountInString(window) < minWindowRunes {
			continue
		}
		term, conf, matched := c.matcher.Match(window, g)
		if !matched || (n > 1 && c.shrinks(tokens[i:i+n], term, conf, g)) {
			continue
		}
		repl := leading + term + trailing
		if strings.EqualFold(window, term) {
			return n, repl, nil, true
		}
		return n, repl, &Correction{Original: window, Corrected: term, Confidence: conf, Method: "phonetic"}, true
	}
	return 0, "", nil, false
}

// shrinks reports whether dropping the first or last token of a multi-token
// window still yields term at least as confidently. Such a window has
// swallowed a neighbouring word ("on kubernetis") and a shorter one is
// preferred.
func (c *Corrector) shrinks(tokens []string, term string, conf float64, g *phonetic.Glossary) bool {
	for _, sub := range [][]string{tokens[1:], tokens[:len(tokens)-1]} {
		window, _, _, ok := windowText(sub)
		if !ok {
			continue
		}
		if t, s, matched := c.matcher.Match(window, g); matched && t == term && s >= conf {
			return true
		}
	}
	return false
}

// windowText joins the window's tokens without surrounding punctuation. The
// first token's leading and the last token's trailing punctuation are kept
// around the result so they survive a replacement. Windows with punctuation
// between their tokens are rejected because a sentence break never sits
// inside a term.
func windowText(tokens []string) (window, leading, trailing string, ok bool) {
	parts := make([]string, len(tokens))
	last := len(tokens) - 1
	for j, tok := range tokens {
		core := strings.TrimFunc(tok, unicode.IsPunct)
		if core == "" {
			return "", "", "", false
		}
		if (j > 0 && !strings.HasPrefix(tok, core)) || (j < last && !strings.HasSuffix(tok, core)) {
			return "", "", "", false
		}
		parts[j] = core
	}
	leading = tokens[0][:strings.Index(tokens[0], parts[0])]
	end := tokens[last]
	trailing = end[strings.LastIndex(end, parts[last])+len(parts[last]):]
	return strings.Join(parts, " "), leading, trailing, true
}
