// Package tavily provides a web search provider backed by the Tavily search
// API (POST https://api.tavily.com/search). It implements search.Provider.
//
// Tavily's own scores are discarded: each result is re-ranked against the
// searched term with a heuristic that favours title hits, trusted
// documentation domains, and documentation-looking URLs.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/jargonaut/pkg/provider/search"
	"github.com/MrWong99/jargonaut/pkg/types"
)

var _ search.Provider = (*Provider)(nil)

const (
	defaultEndpoint   = "https://api.tavily.com/search"
	defaultTimeout    = 30 * time.Second
	defaultMaxResults = 5

	// includeDomainLimit caps how many trusted domains are sent as
	// include_domains. The full list still earns the ranking bonus.
	includeDomainLimit = 5

	// minRelevance drops results scoring at or below this value.
	minRelevance = 0.3
)

// DefaultTrustedDomains are the documentation sources that earn a ranking
// bonus. The first five are sent as include_domains.
var DefaultTrustedDomains = []string{
	"stackoverflow.com",
	"github.com",
	"docs.aws.amazon.com",
	"kubernetes.io",
	"docker.com",
	"microsoft.com",
	"google.com",
	"mozilla.org",
	"w3.org",
	"wikipedia.org",
}

var excludedDomains = []string{
	"reddit.com",
	"pinterest.com",
	"facebook.com",
	"twitter.com",
	"instagram.com",
}

var docIndicators = []string{"docs", "documentation", "guide", "tutorial", "reference"}

// Option is a functional option for configuring the Tavily Provider.
type Option func(*Provider)

// WithEndpoint overrides the search URL. Used to point at a test server.
func WithEndpoint(u string) Option {
	return func(p *Provider) { p.endpoint = u }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithTrustedDomains replaces DefaultTrustedDomains.
func WithTrustedDomains(domains []string) Option {
	return func(p *Provider) { p.trusted = slices.Clone(domains) }
}

// WithMaxResults sets the default number of raw results requested.
func WithMaxResults(n int) Option {
	return func(p *Provider) { p.maxResults = n }
}

// Provider implements search.Provider for Tavily.
type Provider struct {
	apiKey     string
	endpoint   string
	trusted    []string
	maxResults int
	httpClient *http.Client
}

// New creates a Tavily Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("tavily: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		trusted:    slices.Clone(DefaultTrustedDomains),
		maxResults: defaultMaxResults,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ----

type searchRequest struct {
	APIKey            string   `json:"api_key"`
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeRawContent bool     `json:"include_raw_content"`
	MaxResults        int      `json:"max_results"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
}

type searchResponse struct {
	Results []rawResult `json:"results"`
}

type rawResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date"`
}

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, term string, opts search.Options) ([]types.WebResult, error) {
	depth := opts.Depth
	if depth == "" {
		depth = search.DepthAdvanced
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = p.maxResults
	}

	body, err := json.Marshal(searchRequest{
		APIKey:         p.apiKey,
		Query:          EnhanceQuery(term),
		SearchDepth:    depth,
		IncludeAnswer:  true,
		MaxResults:     maxResults,
		IncludeDomains: p.trusted[:min(includeDomainLimit, len(p.trusted))],
		ExcludeDomains: excludedDomains,
	})
	if err != nil {
		return nil, fmt.Errorf("tavily: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}
	return p.rank(sr.Results, term), nil
}

// rank scores, filters and sorts raw results.
func (p *Provider) rank(raw []rawResult, term string) []types.WebResult {
	out := make([]types.WebResult, 0, len(raw))
	for _, r := range raw {
		score := p.relevance(r, term)
		if score <= minRelevance {
			continue
		}
		out = append(out, types.WebResult{
			Title:         r.Title,
			URL:           r.URL,
			Snippet:       r.Content,
			Score:         score,
			SourceType:    SourceType(r.URL),
			PublishedDate: r.PublishedDate,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// relevance scores one result against term in [0, 1].
func (p *Provider) relevance(r rawResult, term string) float64 {
	t := strings.ToLower(term)
	title := strings.ToLower(r.Title)
	content := strings.ToLower(r.Content)
	u := strings.ToLower(r.URL)

	var score float64
	if t != "" && strings.Contains(title, t) {
		score += 0.4
		if strings.HasPrefix(title, t) {
			score += 0.2
		}
	}
	if t != "" {
		score += min(float64(strings.Count(content, t))*0.1, 0.3)
		if strings.Contains(u, t) {
			score += 0.1
		}
	}
	if slices.Contains(p.trusted, domain(u)) {
		score += 0.2
	}
	for _, ind := range docIndicators {
		if strings.Contains(u, ind) || strings.Contains(title, ind) {
			score += 0.15
			break
		}
	}
	return min(score, 1.0)
}

// EnhanceQuery quotes term and appends a topical suffix chosen by keyword.
// Keywords match anywhere in the lower-cased term.
func EnhanceQuery(term string) string {
	t := strings.ToLower(term)
	has := func(kw ...string) bool {
		for _, k := range kw {
			if strings.Contains(t, k) {
				return true
			}
		}
		return false
	}

	q := `"` + term + `"`
	switch {
	case has("api", "service", "framework"):
		return q + " development programming"
	case has("ops", "deploy", "infrastructure"):
		return q + " operations deployment"
	case has("cloud", "aws", "azure", "gcp"):
		return q + " cloud computing"
	case has("data", "analytics", "ml", "ai"):
		return q + " data science machine learning"
	default:
		return q + " technology definition"
	}
}

// SourceType classifies a result URL.
func SourceType(rawURL string) string {
	u := strings.ToLower(rawURL)
	d := domain(u)
	switch {
	case strings.Contains(u, "docs") || strings.Contains(u, "documentation"):
		return "documentation"
	case d == "stackoverflow.com":
		return "qa_forum"
	case d == "github.com":
		return "repository"
	case d == "wikipedia.org" || strings.HasSuffix(d, ".wikipedia.org"):
		return "encyclopedia"
	case strings.Contains(u, "blog") || strings.Contains(d, "medium.com"):
		return "blog"
	case strings.Contains(d, "aws.amazon.com") || strings.Contains(d, "microsoft.com") || strings.Contains(d, "google.com"):
		return "corporate_docs"
	default:
		return "web_article"
	}
}

// domain returns the lower-cased host of rawURL without a leading "www.".
func domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
