// Package web finds a short factual answer to a question on the public web.
package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	DefaultSearchURL  = "https://html.duckduckgo.com/html/"
	DefaultMaxResults = 8
	userAgent         = "Mozilla/5.0 (compatible; ragsql/1.0)"
)

var DefaultAllowlist = []string{"nasa.gov", "wikipedia.org", "britannica.com", "esa.int", "noirlab.edu"}

var rejectedSuffixes = []string{".pdf", ".ppt", ".doc", ".docx"}

// Searcher queries the DuckDuckGo HTML endpoint for ranked result URLs.
type Searcher struct {
	endpoint   string
	maxResults int
	client     *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type SearcherOption func(*Searcher)

func WithHTTPClient(c *http.Client) SearcherOption {
	return func(s *Searcher) { s.client = c }
}

// WithRate limits outgoing searches to perSecond with a burst of one.
func WithRate(perSecond float64) SearcherOption {
	return func(s *Searcher) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithSearchLogger(l *slog.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = l }
}

func NewSearcher(endpoint string, maxResults int, opts ...SearcherOption) *Searcher {
	if endpoint == "" {
		endpoint = DefaultSearchURL
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	s := &Searcher{
		endpoint:   endpoint,
		maxResults: maxResults,
		client:     &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Searcher) Search(ctx context.Context, query string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	urls, err := ParseResults(resp.Body, s.maxResults)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search results", slog.String("query", query), slog.Int("count", len(urls)))
	return urls, nil
}

// ParseResults collects result links from a DuckDuckGo HTML page in rank
// order, unwrapping its redirect links.
func ParseResults(r io.Reader, limit int) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}

	var urls []string
	seen := map[string]bool{}
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if u := resultURL(attr(n, "href")); u != "" && !seen[u] {
				seen[u] = true
				urls = append(urls, u)
				if limit > 0 && len(urls) >= limit {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)
	return urls, nil
}

func resultURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") || u.Host == "" {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		return ""
	}
	return u.String()
}

// PickURL returns the first acceptable URL containing an allowlisted domain,
// else the first acceptable URL. Document downloads are never acceptable.
func PickURL(urls, allowlist []string) (string, bool) {
	for _, u := range urls {
		if acceptable(u) && containsAny(u, allowlist) {
			return u, true
		}
	}
	for _, u := range urls {
		if acceptable(u) {
			return u, true
		}
	}
	return "", false
}

func acceptable(u string) bool {
	if u == "" {
		return false
	}
	lower := strings.ToLower(u)
	for _, s := range rejectedSuffixes {
		if strings.HasSuffix(lower, s) {
			return false
		}
	}
	return true
}

func containsAny(u string, domains []string) bool {
	for _, d := range domains {
		if d != "" && strings.Contains(u, d) {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
