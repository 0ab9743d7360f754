package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	DefaultFetchTimeout = 15 * time.Second
	DefaultMaxPageChars = 12000
	maxPageBytes        = 5 << 20
)

// Fetcher downloads pages and reduces them to visible text.
type Fetcher struct {
	client   *http.Client
	maxChars int
}

func NewFetcher(timeout time.Duration, maxChars int) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxPageChars
	}
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
	}
}

// open returns the body of a successful GET. The caller closes it.
func (f *Fetcher) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := f.open(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return PageText(io.LimitReader(body, maxPageBytes), f.maxChars)
}

// PageText drops script, style and noscript content, collapses whitespace and
// truncates to maxChars runes.
func PageText(r io.Reader, maxChars int) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	text := strings.Join(strings.Fields(b.String()), " ")
	if maxChars > 0 {
		if runes := []rune(text); len(runes) > maxChars {
			text = string(runes[:maxChars])
		}
	}
	return text, nil
}
