// Package cli is the ragsql command line: the same flows as the HTTP API,
// run once from a terminal.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"ragsql/sqlbot"
	"ragsql/types"

	"github.com/spf13/cobra"
)

// Backend is what the commands run against.
type Backend interface {
	Ask(ctx context.Context, question string, k int) (types.Answer, error)
	SQL(ctx context.Context, question string) (*sqlbot.Result, error)
	Ingest(ctx context.Context, path string) (types.IngestResponse, error)
	ImportTable(ctx context.Context, url, table string) (int64, error)
	Close() error
}

// Opener builds the backend lazily so --help never touches the database.
type Opener func(ctx context.Context) (Backend, error)

func NewRootCmd(open Opener) *cobra.Command {
	var jsonOut bool

	root := &cobra.Command{
		Use:           "ragsql",
		Short:         "Ask questions of your documents and your database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&jsonOut, "json", false, "output results as JSON")

	// run opens the backend for one command and closes it afterwards.
	run := func(cmd *cobra.Command, fn func(context.Context, Backend) (any, error), text func(any) string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		b, err := open(ctx)
		if err != nil {
			return err
		}
		defer b.Close()

		out, err := fn(ctx, b)
		if err != nil {
			return err
		}
		if jsonOut {
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal output: %w", err)
			}
			cmd.Println(string(data))
			return nil
		}
		cmd.Println(text(out))
		return nil
	}

	root.AddCommand(
		newAskCmd(run),
		newSQLCmd(run),
		newIngestCmd(run),
		newImportTableCmd(run),
	)
	return root
}

type runFunc func(cmd *cobra.Command, fn func(context.Context, Backend) (any, error), text func(any) string) error
