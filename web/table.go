package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
)

var ErrNoTable = errors.New("no HTML table found")

// TableWriter replaces a table with TEXT columns.
type TableWriter interface {
	ReplaceTable(ctx context.Context, name string, columns []string, rows [][]string) (int64, error)
}

// TableImporter loads the first HTML table of a page into the database so
// NL-to-SQL can query it.
type TableImporter struct {
	fetcher *Fetcher
	writer  TableWriter
	logger  *slog.Logger
}

func NewTableImporter(f *Fetcher, w TableWriter, logger *slog.Logger) *TableImporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TableImporter{fetcher: f, writer: w, logger: logger}
}

func (t *TableImporter) Import(ctx context.Context, url, table string) (int64, error) {
	body, err := t.fetcher.open(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	columns, rows, err := ParseFirstTable(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", url, err)
	}
	n, err := t.writer.ReplaceTable(ctx, table, columns, rows)
	if err != nil {
		return 0, err
	}
	t.logger.Info("table imported", slog.String("url", url), slog.String("table", table), slog.Int64("rows", n))
	return n, nil
}

// ParseFirstTable reads the header and body rows of the first <table>. The
// first row supplies the column names; blank or repeated names get a
// positional name.
func ParseFirstTable(r io.Reader) ([]string, [][]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse page: %w", err)
	}
	tbl := findFirst(doc, "table")
	if tbl == nil {
		return nil, nil, ErrNoTable
	}

	var rows [][]string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "table" && n != tbl {
			return
		}
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, strings.Join(strings.Fields(nodeText(c)), " "))
				}
			}
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(tbl)

	if len(rows) == 0 {
		return nil, nil, ErrNoTable
	}
	return columnNames(rows[0]), rows[1:], nil
}

func columnNames(header []string) []string {
	cols := make([]string, len(header))
	seen := map[string]bool{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == "" || seen[name] {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name] = true
		cols[i] = name
	}
	return cols
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
