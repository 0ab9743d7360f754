package cli

import (
	"context"
	"fmt"
	"strings"

	"ragsql/sqlbot"
	"ragsql/types"

	"github.com/spf13/cobra"
)

func newAskCmd(run runFunc) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return run(cmd, func(ctx context.Context, b Backend) (any, error) {
				return b.Ask(ctx, question, k)
			}, func(v any) string {
				return formatAnswer(v.(types.Answer))
			})
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to retrieve")
	return cmd
}

func newSQLCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "sql [question]",
		Short: "Answer a question with a generated SQL query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return run(cmd, func(ctx context.Context, b Backend) (any, error) {
				return b.SQL(ctx, question)
			}, func(v any) string {
				return formatResult(v.(*sqlbot.Result))
			})
		},
	}
}

func newIngestCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Chunk, embed and store documents (.pdf, .txt, .md)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, b Backend) (any, error) {
				out := make([]types.IngestResponse, 0, len(args))
				for _, path := range args {
					resp, err := b.Ingest(ctx, path)
					if err != nil {
						return nil, fmt.Errorf("failed to ingest %s: %w", path, err)
					}
					out = append(out, resp)
				}
				return out, nil
			}, func(v any) string {
				var sb strings.Builder
				for i, r := range v.([]types.IngestResponse) {
					if i > 0 {
						sb.WriteByte('\n')
					}
					fmt.Fprintf(&sb, "%s: %d chunks", r.Source, r.Chunks)
				}
				return sb.String()
			})
		},
	}
}

func newImportTableCmd(run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "import-table [url] [table]",
		Short: "Load the first HTML table of a page into a database table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, table := args[0], args[1]
			return run(cmd, func(ctx context.Context, b Backend) (any, error) {
				n, err := b.ImportTable(ctx, url, table)
				if err != nil {
					return nil, err
				}
				return map[string]any{"table": table, "rows": n}, nil
			}, func(v any) string {
				m := v.(map[string]any)
				return fmt.Sprintf("imported %d rows into %s", m["rows"], m["table"])
			})
		},
	}
}

func formatAnswer(a types.Answer) string {
	var sb strings.Builder
	sb.WriteString(a.Text)
	if len(a.Sources) > 0 {
		sb.WriteString("\n\nSources:")
		for _, s := range a.Sources {
			fmt.Fprintf(&sb, "\n  %s (chunk %d, distance %.3f)", s.Source, s.ChunkIndex, s.Distance)
		}
	}
	return sb.String()
}

func formatResult(r *sqlbot.Result) string {
	var sb strings.Builder
	if r.SQL != "" {
		fmt.Fprintf(&sb, "SQL: %s\n", r.SQL)
	}
	fmt.Fprintf(&sb, "Source: %s\n", r.Source)
	if r.Table != nil && !r.Table.Empty() {
		sb.WriteString(strings.Join(r.Table.Columns, " | "))
		for _, row := range r.Table.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = fmt.Sprint(v)
			}
			sb.WriteString("\n" + strings.Join(cells, " | "))
		}
	} else {
		sb.WriteString("No rows.")
	}
	if r.Summary != "" {
		sb.WriteString("\n\n" + r.Summary)
	}
	return sb.String()
}
