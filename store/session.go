package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ragsql/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and *pgxpool.Conn.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Session pins one pooled connection for the lifetime of a request.
type Session struct {
	conn   *pgxpool.Conn
	logger *slog.Logger
}

func (p *PostgresStore) Acquire(ctx context.Context) (*Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{conn: conn, logger: p.logger}, nil
}

func (s *Session) Release() {
	s.conn.Release()
}

// ExecuteSelect runs sql inside a read-only transaction that is always rolled
// back.
func (s *Session) ExecuteSelect(ctx context.Context, sql string) (*types.Table, error) {
	return executeSelect(ctx, s.conn, sql)
}

func (s *Session) AppendWebFact(ctx context.Context, fact types.WebFact) (types.WebFact, error) {
	return appendWebFact(ctx, s.conn, fact)
}

func (s *Session) LatestWebFact(ctx context.Context, question string) (*types.WebFact, error) {
	return latestWebFact(ctx, s.conn, question)
}

func (s *Session) DescribeSchema(ctx context.Context, excluded []string) (string, error) {
	return describeSchema(ctx, s.conn, excluded)
}

func (p *PostgresStore) AppendWebFact(ctx context.Context, fact types.WebFact) (types.WebFact, error) {
	return appendWebFact(ctx, p.pool, fact)
}

func (p *PostgresStore) LatestWebFact(ctx context.Context, question string) (*types.WebFact, error) {
	return latestWebFact(ctx, p.pool, question)
}

func (p *PostgresStore) DescribeSchema(ctx context.Context, excluded []string) (string, error) {
	return describeSchema(ctx, p.pool, excluded)
}

func executeSelect(ctx context.Context, q querier, sql string) (*types.Table, error) {
	tx, err := q.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := &types.Table{Columns: make([]string, len(fields))}
	for i, f := range fields {
		table.Columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// normalizeValue turns driver-specific values into JSON-friendly ones.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}

// appendWebFact commits the fact on its own, independent of any read query
// on the same connection.
func appendWebFact(ctx context.Context, q querier, fact types.WebFact) (types.WebFact, error) {
	tx, err := q.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fact, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO web_facts (question, answer, source_url) VALUES ($1, $2, $3) RETURNING id, fetched_at`,
		fact.Question, fact.Answer, fact.SourceURL,
	).Scan(&fact.ID, &fact.FetchedAt)
	if err != nil {
		return fact, fmt.Errorf("insert web fact: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fact, fmt.Errorf("commit web fact: %w", err)
	}
	return fact, nil
}

// latestWebFact returns nil when no fact matches.
func latestWebFact(ctx context.Context, q querier, question string) (*types.WebFact, error) {
	var f types.WebFact
	err := q.QueryRow(ctx, `
		SELECT id, question, answer, source_url, fetched_at
		FROM web_facts
		WHERE question ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY fetched_at DESC, id DESC
		LIMIT 1
	`, EscapeLike(question)).Scan(&f.ID, &f.Question, &f.Answer, &f.SourceURL, &f.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup web fact: %w", err)
	}
	return &f, nil
}

// EscapeLike makes s match literally inside a LIKE pattern.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type ColumnInfo struct {
	Table  string
	Column string
	Type   string
}

func describeSchema(ctx context.Context, q querier, excluded []string) (string, error) {
	rows, err := q.Query(ctx, `
		SELECT c.relname, a.attname, format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = 'public'
		  AND c.relkind IN ('r', 'v', 'm', 'p')
		  AND a.attnum > 0
		  AND NOT a.attisdropped
		ORDER BY c.relname, a.attnum
	`)
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Table, &c.Column, &c.Type); err != nil {
			return "", fmt.Errorf("describe schema: %w", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	return FormatSchema(cols, excluded), nil
}

// FormatSchema renders columns as one "table(col type, ...)" line per table,
// keeping the input order.
func FormatSchema(cols []ColumnInfo, excluded []string) string {
	skip := make(map[string]bool, len(excluded))
	for _, t := range excluded {
		skip[strings.ToLower(t)] = true
	}

	var (
		lines   []string
		current string
		defs    []string
	)
	flush := func() {
		if current != "" {
			lines = append(lines, fmt.Sprintf("%s(%s)", current, strings.Join(defs, ", ")))
		}
		defs = defs[:0]
	}
	for _, c := range cols {
		if skip[strings.ToLower(c.Table)] {
			continue
		}
		if c.Table != current {
			flush()
			current = c.Table
		}
		defs = append(defs, c.Column+" "+c.Type)
	}
	flush()
	return strings.Join(lines, "\n")
}

// ReplaceTable drops and recreates name as TEXT columns holding rows.
func (p *PostgresStore) ReplaceTable(ctx context.Context, name string, columns []string, rows [][]string) (int64, error) {
	if name == "" || len(columns) == 0 {
		return 0, errors.New("replace table: name and columns are required")
	}

	ident := pgx.Identifier{name}.Sanitize()
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = pgx.Identifier{c}.Sanitize() + " TEXT"
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	src := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(columns))
		for j := range columns {
			if j < len(r) {
				vals[j] = r[j]
			}
		}
		src[i] = vals
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{name}, columns, pgx.CopyFromRows(src))
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit table: %w", err)
	}
	p.logger.Info("table replaced", slog.String("table", name), slog.Int64("rows", n))
	return n, nil
}
