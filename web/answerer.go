package web

import (
	"context"
	"log/slog"
)

// Answerer chains search, URL choice, fetch and extraction.
type Answerer struct {
	searcher  *Searcher
	fetcher   *Fetcher
	extractor *Extractor
	allowlist []string
	logger    *slog.Logger
}

func NewAnswerer(s *Searcher, f *Fetcher, e *Extractor, allowlist []string, logger *slog.Logger) *Answerer {
	if allowlist == nil {
		allowlist = DefaultAllowlist
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{searcher: s, fetcher: f, extractor: e, allowlist: allowlist, logger: logger}
}

func (a *Answerer) Answer(ctx context.Context, question string) (string, string, bool, error) {
	urls, err := a.searcher.Search(ctx, question)
	if err != nil {
		return "", "", false, err
	}
	url, ok := PickURL(urls, a.allowlist)
	if !ok {
		a.logger.Info("no usable search result", slog.String("question", question))
		return "", "", false, nil
	}

	text, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", "", false, err
	}
	answer, ok, err := a.extractor.Extract(ctx, question, text)
	if err != nil || !ok {
		return "", "", false, err
	}
	a.logger.Info("web answer found", slog.String("source_url", url))
	return answer, url, true, nil
}
