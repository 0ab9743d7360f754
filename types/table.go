package types

import (
	"encoding/json"
	"strings"
)

// Table is a generic row set returned by executed SQL.
type Table struct {
	Columns []string
	Rows    [][]any
}

func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

func (t *Table) Empty() bool {
	return t == nil || len(t.Rows) == 0
}

func (t *Table) Append(values ...any) {
	t.Rows = append(t.Rows, values)
}

// ColumnIndex finds a column case-insensitively, -1 when absent.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func (t *Table) HasColumn(name string) bool {
	return t.ColumnIndex(name) >= 0
}

// Broadcast adds a column holding the same value on every row.
func (t *Table) Broadcast(name string, value any) {
	t.Columns = append(t.Columns, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], value)
	}
}

// Records returns rows keyed by column name.
func (t *Table) Records() []map[string]any {
	if t == nil {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				rec[c] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

func (t *Table) MarshalJSON() ([]byte, error) {
	columns := []string{}
	if t != nil && t.Columns != nil {
		columns = t.Columns
	}
	return json.Marshal(struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}{
		Columns: columns,
		Rows:    t.Records(),
	})
}
