// Package retriever decides whether retrieved chunks are relevant enough to
// ground an answer, and runs the query-to-answer RAG flow.
package retriever

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"ragsql/types"
)

// Refusal is returned verbatim when no chunk survives the filter.
const Refusal = "I'm sorry, but I couldn't find anything in the documents related to that question."

// minTermLength skips short words such as "the" and "is".
const minTermLength = 3

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Filter applies two gates to a retrieval result: a distance threshold and a
// lexical overlap check against the query.
type Filter struct {
	calibration types.Calibration
}

// NewFilter refuses a store whose metric differs from the one the threshold
// was calibrated on.
func NewFilter(cal types.Calibration, storeMetric types.Metric) (*Filter, error) {
	if cal.Metric == "" {
		cal.Metric = types.MetricL2
	}
	if storeMetric == "" {
		storeMetric = types.MetricL2
	}
	if cal.Metric != storeMetric {
		return nil, types.NewConfigurationError("SIMILARITY_METRIC",
			fmt.Sprintf("threshold calibrated for %s but store ranks by %s", cal.Metric, storeMetric))
	}
	if cal.Threshold <= 0 {
		return nil, types.NewConfigurationError("SIMILARITY_THRESHOLD", "must be positive")
	}
	return &Filter{calibration: cal}, nil
}

func (f *Filter) Calibration() types.Calibration {
	return f.calibration
}

// Apply returns the chunks closer than the threshold, or nothing at all when
// none of them shares a query term. The result is a subsequence of chunks, so
// applying the filter again gives the same result.
func (f *Filter) Apply(query string, chunks []types.RetrievedChunk) []types.RetrievedChunk {
	hits := make([]types.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Distance < f.calibration.Threshold {
			hits = append(hits, c)
		}
	}
	if len(hits) == 0 {
		return hits
	}

	terms := QueryTerms(query)
	for _, c := range hits {
		content := strings.ToLower(c.Content)
		for _, t := range terms {
			if strings.Contains(content, t) {
				return hits
			}
		}
	}
	return hits[:0]
}

// QueryTerms lowercases the words of query longer than three characters.
func QueryTerms(query string) []string {
	var terms []string
	for _, w := range wordRe.FindAllString(query, -1) {
		if utf8.RuneCountInString(w) > minTermLength {
			terms = append(terms, strings.ToLower(w))
		}
	}
	return terms
}
