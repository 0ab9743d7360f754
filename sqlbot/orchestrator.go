package sqlbot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ragsql/app/agent"
	"ragsql/types"
)

// Source tells where the rows of a Result came from.
type Source string

const (
	SourceDatabase  Source = "database"
	SourceWebFact   Source = "web_fact"
	SourceWebScrape Source = "web_scrape"
	SourceNone      Source = "none"
)

const maxAttempts = 2

// Session is one database connection held for a whole question.
type Session interface {
	DescribeSchema(ctx context.Context, excluded []string) (string, error)
	ExecuteSelect(ctx context.Context, sql string) (*types.Table, error)
	AppendWebFact(ctx context.Context, fact types.WebFact) (types.WebFact, error)
	LatestWebFact(ctx context.Context, question string) (*types.WebFact, error)
}

type Generator interface {
	Generate(ctx context.Context, schema agent.SchemaDescriber, question string) (string, error)
}

// WebAnswerer looks a question up on the web. ok is false when nothing
// usable was found.
type WebAnswerer interface {
	Answer(ctx context.Context, question string) (answer, url string, ok bool, err error)
}

type Summarizer interface {
	Summarize(ctx context.Context, question string, table *types.Table) (string, error)
}

type Result struct {
	SQL     string       `json:"sql"`
	Table   *types.Table `json:"table"`
	Summary string       `json:"summary"`
	Source  Source       `json:"source"`
}

// attempt is the state of one generate-gate-execute pass.
type attempt struct {
	n   int
	sql string
}

type Orchestrator struct {
	generator  Generator
	web        WebAnswerer
	summarizer Summarizer
	logger     *slog.Logger
}

type Option func(*Orchestrator)

// WithSummarizer enables result summaries. Without one Summary stays empty.
func WithSummarizer(s Summarizer) Option {
	return func(o *Orchestrator) { o.summarizer = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func NewOrchestrator(g Generator, web WebAnswerer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		generator: g,
		web:       web,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle answers question on sess. An UnsafeQueryError from the first
// attempt and any ExecutionError end the request; every other path ends in a
// Result.
func (o *Orchestrator) Handle(ctx context.Context, sess Session, question string) (*Result, error) {
	start := time.Now()
	defer func() {
		o.logger.Info("sql question handled", slog.Duration("took", time.Since(start)))
	}()

	first, q, err := o.generate(ctx, sess, question, 1)
	if err != nil {
		return nil, err
	}
	table, err := o.execute(ctx, sess, q)
	if err != nil {
		return nil, err
	}
	if !table.Empty() {
		return o.finish(ctx, question, &Result{SQL: first.sql, Table: table, Source: SourceDatabase}), nil
	}

	answer, url, ok, err := o.web.Answer(ctx, question)
	if err != nil {
		o.logger.Warn("web fallback failed", slog.Any("error", err))
		ok = false
	}
	if !ok {
		o.logger.Info("no data found", slog.String("sql", first.sql))
		return o.finish(ctx, question, &Result{SQL: first.sql, Table: table, Source: SourceNone}), nil
	}

	if _, err := sess.AppendWebFact(ctx, types.WebFact{Question: question, Answer: answer, SourceURL: url}); err != nil {
		return nil, &types.ExecutionError{SQL: first.sql, Err: err}
	}
	o.logger.Info("web fact stored", slog.String("source_url", url))

	result, sql, err := o.retry(ctx, sess, question, first)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result, err = o.safetyNet(ctx, sess, question, sql, answer, url)
		if err != nil {
			return nil, err
		}
	}
	if err := o.broadcastSource(ctx, sess, question, result); err != nil {
		return nil, err
	}
	return o.finish(ctx, question, result), nil
}

// generate asks for SQL and gates it. A gate failure carries the cleaned SQL.
func (o *Orchestrator) generate(ctx context.Context, sess Session, question string, n int) (attempt, SafeSQL, error) {
	raw, err := o.generator.Generate(ctx, sess, question)
	if err != nil {
		return attempt{n: n}, SafeSQL{}, err
	}
	a := attempt{n: n, sql: Cleanup(raw)}
	q, err := Gate(raw)
	if err != nil {
		o.logger.Warn("generated sql rejected", slog.Int("attempt", n), slog.String("sql", a.sql), slog.Any("error", err))
		return a, SafeSQL{}, err
	}
	return a, q, nil
}

func (o *Orchestrator) execute(ctx context.Context, sess Session, q SafeSQL) (*types.Table, error) {
	table, err := sess.ExecuteSelect(ctx, q.String())
	if err != nil {
		return nil, &types.ExecutionError{SQL: q.String(), Err: err}
	}
	return table, nil
}

// retry regenerates once now that web_facts holds the answer. A nil result
// without error means the second attempt produced nothing usable. The
// returned SQL is the last one that ran.
func (o *Orchestrator) retry(ctx context.Context, sess Session, question string, prev attempt) (*Result, string, error) {
	if prev.n >= maxAttempts {
		return nil, prev.sql, nil
	}
	next, q, err := o.generate(ctx, sess, question, prev.n+1)
	if err != nil {
		var unsafe *types.UnsafeQueryError
		if !errors.As(err, &unsafe) {
			o.logger.Warn("sql regeneration failed", slog.Any("error", err))
		}
		return nil, prev.sql, nil
	}
	table, err := o.execute(ctx, sess, q)
	if err != nil {
		return nil, "", err
	}
	if table.Empty() {
		return nil, next.sql, nil
	}
	return &Result{SQL: next.sql, Table: table, Source: SourceWebFact}, next.sql, nil
}

// safetyNet reads the stored fact directly, or returns the scraped answer
// when even that lookup finds nothing.
func (o *Orchestrator) safetyNet(ctx context.Context, sess Session, question, sql, answer, url string) (*Result, error) {
	fact, err := sess.LatestWebFact(ctx, question)
	if err != nil {
		return nil, &types.ExecutionError{SQL: sql, Err: err}
	}
	if fact != nil {
		table := types.NewTable("answer", "source_url", "fetched_at")
		table.Append(fact.Answer, fact.SourceURL, fact.FetchedAt)
		return &Result{SQL: sql, Table: table, Source: SourceWebFact}, nil
	}
	table := types.NewTable("answer", "source_url")
	table.Append(answer, url)
	return &Result{SQL: sql, Table: table, Source: SourceWebScrape}, nil
}

// broadcastSource adds the latest source_url to results that carry an
// answer column without one.
func (o *Orchestrator) broadcastSource(ctx context.Context, sess Session, question string, r *Result) error {
	if !r.Table.HasColumn("answer") || r.Table.HasColumn("source_url") {
		return nil
	}
	fact, err := sess.LatestWebFact(ctx, question)
	if err != nil {
		return &types.ExecutionError{SQL: r.SQL, Err: err}
	}
	if fact != nil && fact.SourceURL != "" {
		r.Table.Broadcast("source_url", fact.SourceURL)
	}
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, question string, r *Result) *Result {
	if r.Table == nil {
		r.Table = types.NewTable()
	}
	if o.summarizer == nil {
		return r
	}
	summary, err := o.summarizer.Summarize(ctx, question, r.Table)
	if err != nil {
		o.logger.Warn("summary failed", slog.Any("error", err))
		return r
	}
	r.Summary = summary
	return r
}
