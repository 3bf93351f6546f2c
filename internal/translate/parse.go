package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Defaults for the supplementary analysis fields.
const (
	DefaultComplexity = "medium"
	DefaultEffort     = "moderate"
	DefaultStrategic  = "tactical"
)

// Analysis is the structured result of analysing one term.
type Analysis struct {
	Explanation          string   `json:"explanation"`
	Category             string   `json:"category"`
	Confidence           float64  `json:"confidence"`
	BusinessImpact       string   `json:"business_impact"`
	RelatedTerms         []string `json:"related_terms"`
	TechnicalComplexity  string   `json:"technical_complexity"`
	ImplementationEffort string   `json:"implementation_effort"`
	StrategicValue       string   `json:"strategic_value"`
}

var errNoJSON = errors.New("no JSON object in analysis output")

// ParseAnalysis extracts the JSON object between the first '{' and the last
// '}' of raw and validates it. explanation, category, confidence and
// business_impact are required and must be non-empty; confidence is clamped
// to [0, 1]. related_terms keeps only its string items.
func ParseAnalysis(raw string) (Analysis, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return Analysis{}, errNoJSON
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err != nil {
		return Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}

	var (
		a    Analysis
		errs []error
	)
	a.Explanation = requiredString(fields, "explanation", &errs)
	a.Category = requiredString(fields, "category", &errs)
	a.BusinessImpact = requiredString(fields, "business_impact", &errs)

	if rawConf, ok := fields["confidence"]; !ok {
		errs = append(errs, errors.New("missing field confidence"))
	} else if err := json.Unmarshal(rawConf, &a.Confidence); err != nil {
		errs = append(errs, fmt.Errorf("confidence is not numeric: %s", rawConf))
	}
	if err := errors.Join(errs...); err != nil {
		return Analysis{}, err
	}
	a.Confidence = clamp01(a.Confidence)

	a.RelatedTerms = stringItems(fields["related_terms"])
	a.TechnicalComplexity = optionalString(fields, "technical_complexity", DefaultComplexity)
	a.ImplementationEffort = optionalString(fields, "implementation_effort", DefaultEffort)
	a.StrategicValue = optionalString(fields, "strategic_value", DefaultStrategic)
	return a, nil
}

// DegradedAnalysis is the deterministic result used when analysis is
// unavailable or its output cannot be parsed.
func DegradedAnalysis(term string) Analysis {
	return Analysis{
		Explanation: fmt.Sprintf("'%s' is a technical term that requires further analysis. "+
			"Our AI systems are continuously learning to provide comprehensive explanations "+
			"for emerging technologies and methodologies.", term),
		Category:             "Technology",
		Confidence:           0.5,
		BusinessImpact:       "This technology may impact operational efficiency and should be evaluated for strategic implementation potential.",
		RelatedTerms:         []string{},
		TechnicalComplexity:  DefaultComplexity,
		ImplementationEffort: DefaultEffort,
		StrategicValue:       DefaultStrategic,
	}
}

func requiredString(fields map[string]json.RawMessage, key string, errs *[]error) string {
	raw, ok := fields[key]
	if !ok {
		*errs = append(*errs, fmt.Errorf("missing field %s", key))
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		*errs = append(*errs, fmt.Errorf("field %s is not a string", key))
		return ""
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*errs = append(*errs, fmt.Errorf("field %s is empty", key))
	}
	return s
}

func optionalString(fields map[string]json.RawMessage, key, def string) string {
	var s string
	if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return def
}

// stringItems decodes a JSON array and keeps its non-empty string items.
// Anything that is not an array yields an empty slice.
func stringItems(raw json.RawMessage) []string {
	out := []string{}
	var items []any
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, it := range items {
		if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
