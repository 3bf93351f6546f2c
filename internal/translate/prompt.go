package translate

import (
	"fmt"
	"strings"

	"github.com/MrWong99/jargonaut/pkg/types"
)

const (
	maxPromptMatches  = 3
	maxPromptResults  = 3
	maxSnippetRunes   = 300
	promptInstruction = `INSTRUCTIONS:
Provide a comprehensive analysis in JSON format with the following structure:

{
    "explanation": "A clear, professional explanation (100-200 words) that translates technical jargon into business-friendly language. Focus on practical implications and benefits.",
    "category": "Primary technical category (e.g., 'Architecture', 'DevOps', 'Security', 'Data Science', 'Cloud Computing')",
    "confidence": 0.95,
    "business_impact": "Specific business impact statement (50-75 words) explaining how this technology affects operations, costs, or competitive advantage",
    "related_terms": ["term1", "term2", "term3"],
    "technical_complexity": "low|medium|high",
    "implementation_effort": "minimal|moderate|significant",
    "strategic_value": "tactical|operational|strategic"
}

GUIDELINES:
- Use enterprise-appropriate language
- Focus on business value and practical implications
- Avoid overly technical jargon in explanations
- Provide realistic confidence scores (0.7-0.98)
- Include 3-5 related terms that business users might encounter
- Ensure explanations are actionable for decision-makers

Return ONLY the JSON object, no additional text.`
)

// BuildPrompt renders the analysis prompt for term. At most three knowledge
// matches and three web results are included; sections with no content are
// omitted. The output depends only on its inputs.
func BuildPrompt(term string, matches []types.KnowledgeMatch, results []types.WebResult, businessContext string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a technical expert specializing in enterprise technology translation. "+
		"Your task is to analyze the technical term %q and provide a comprehensive explanation suitable for business stakeholders.\n\n", term)
	fmt.Fprintf(&b, "TERM TO ANALYZE: %s\n\n", term)

	if len(matches) > 0 {
		b.WriteString("EXISTING KNOWLEDGE BASE:\n")
		for i, m := range matches[:min(len(matches), maxPromptMatches)] {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, m.Term, m.Explanation)
		}
		b.WriteString("\n")
	}

	if len(results) > 0 {
		b.WriteString("CURRENT WEB CONTEXT:\n")
		for i, r := range results[:min(len(results), maxPromptResults)] {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, r.Title, truncateRunes(r.Snippet, maxSnippetRunes))
		}
		b.WriteString("\n")
	}

	if ctx := strings.TrimSpace(businessContext); ctx != "" {
		fmt.Fprintf(&b, "BUSINESS CONTEXT: %s\n\n", ctx)
	}

	b.WriteString(promptInstruction)
	return b.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
