package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"ragsql/model"
	"ragsql/types"
)

// SchemaDescriber renders the queryable tables as "table(col type, ...)"
// lines.
type SchemaDescriber interface {
	DescribeSchema(ctx context.Context, excluded []string) (string, error)
}

// SQLGenerator turns a question into candidate SQL. Its output is untrusted
// until it passes the safety gate.
type SQLGenerator struct {
	llm      model.ChatCompleter
	excluded []string
	logger   *slog.Logger
}

func NewSQLGenerator(llm model.ChatCompleter, excluded []string, logger *slog.Logger) *SQLGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLGenerator{llm: llm, excluded: excluded, logger: logger}
}

func (g *SQLGenerator) Generate(ctx context.Context, schema SchemaDescriber, question string) (string, error) {
	tables, err := schema.DescribeSchema(ctx, g.excluded)
	if err != nil {
		return "", fmt.Errorf("failed to describe schema: %w", err)
	}

	messages := []types.Message{
		{Role: types.RoleSystem, Content: sqlSystemPrompt},
		{Role: types.RoleUser, Content: fmt.Sprintf(sqlPrompt, tables, question)},
	}
	logPromptSize(ctx, g.logger, messages)

	raw, err := g.llm.Complete(ctx, messages, model.WithTemperature(0))
	if err != nil {
		return "", fmt.Errorf("failed to generate sql: %w", err)
	}
	raw = strings.TrimSpace(raw)
	g.logger.Debug("sql generated", slog.String("sql", raw))
	return raw, nil
}

// Summarizer describes a result table in a friendly sentence or two.
type Summarizer struct {
	llm    model.ChatCompleter
	logger *slog.Logger
}

func NewSummarizer(llm model.ChatCompleter, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{llm: llm, logger: logger}
}

func (s *Summarizer) Summarize(ctx context.Context, question string, table *types.Table) (string, error) {
	records := []map[string]any{}
	if table != nil {
		records = table.Records()
	}
	results, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}

	messages := []types.Message{
		{Role: types.RoleSystem, Content: summarySystemPrompt},
		{Role: types.RoleUser, Content: fmt.Sprintf(summaryPrompt, question, results)},
	}
	reply, err := s.llm.Complete(ctx, messages, model.WithTemperature(0.7))
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
