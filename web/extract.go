package web

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ragsql/model"
	"ragsql/types"
)

const extractPrompt = `You are a precise extractor.
Question: %s
Web page text (may be long and noisy):
---
%s
---
Return ONLY the short factual answer as a few words or a number (no extra text).
If not answerable, return "UNKNOWN".
`

var answerPrefixRe = regexp.MustCompile(`(?i)^\s*Answer:\s*`)

// Extractor pulls a short answer out of page text with the language model.
type Extractor struct {
	llm model.ChatCompleter
}

func NewExtractor(llm model.ChatCompleter) *Extractor {
	return &Extractor{llm: llm}
}

// Extract returns false when the page does not answer the question.
func (e *Extractor) Extract(ctx context.Context, question, text string) (string, bool, error) {
	messages := []types.Message{{Role: types.RoleUser, Content: fmt.Sprintf(extractPrompt, question, text)}}
	reply, err := e.llm.Complete(ctx, messages, model.WithTemperature(0))
	if err != nil {
		return "", false, fmt.Errorf("failed to extract answer: %w", err)
	}
	answer := answerPrefixRe.ReplaceAllString(strings.TrimSpace(reply), "")
	if answer == "" || strings.EqualFold(answer, "UNKNOWN") {
		return "", false, nil
	}
	return answer, true, nil
}
