package sqlbot

import (
	"errors"
	"testing"

	"ragsql/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanup(t *testing.T) {
	for _, tc := range []struct {
		name, raw, want string
	}{
		{"Plain statement", "SELECT 1", "SELECT 1"},
		{"Fenced with language", "Here you go:\n```sql\nSELECT name\nFROM planets;\n```\nEnjoy", "SELECT name FROM planets"},
		{"Fenced without language", "```\nSELECT 1\n```", "SELECT 1"},
		{"Upper-case fence tag", "```SQL SELECT 2```", "SELECT 2"},
		{"Only one trailing semicolon dropped", "SELECT 1;;", "SELECT 1;"},
		{"Whitespace collapsed", "  SELECT\t*\n\nFROM   t  ", "SELECT * FROM t"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Cleanup(tc.raw))
		})
	}
}

func TestGate(t *testing.T) {
	t.Run("Clean SELECT is accepted", func(t *testing.T) {
		for _, raw := range []string{
			"SELECT * FROM orders",
			"select o.customer, sum(oi.quantity) AS total FROM orders o JOIN order_items oi ON oi.order_id = o.order_id GROUP BY o.customer ORDER BY total DESC",
			"```sql\nSELECT answer, source_url FROM web_facts WHERE question ILIKE '%Jupiter%' ORDER BY fetched_at DESC LIMIT 1;\n```",
			"SELECT created_at, updated_at FROM events",
			"SELECT 1 UNION SELECT 2",
		} {
			q, err := Gate(raw)
			require.NoError(t, err, raw)
			assert.NotEmpty(t, q.String())
		}
	})

	t.Run("Semicolon separated statements are rejected", func(t *testing.T) {
		q, err := Gate("SELECT * FROM orders; DROP TABLE orders")
		require.Error(t, err)
		assert.Empty(t, q.String())

		var unsafe *types.UnsafeQueryError
		require.True(t, errors.As(err, &unsafe))
		assert.Equal(t, "SELECT * FROM orders; DROP TABLE orders", unsafe.SQL)
		assert.Equal(t, "multiple statements", unsafe.Reason)
		assert.ErrorIs(t, err, types.ErrUnsafeQuery)
		assert.Contains(t, err.Error(), "Generated SQL was not a single safe SELECT.")
	})

	t.Run("Banned words in any case are rejected", func(t *testing.T) {
		for _, raw := range []string{
			"SELECT * FROM t WHERE x IN (DeLeTe)",
			"select 1 from t where note = 'drop'",
			"SELECT * FROM t FOR UPDATE",
			"SELECT grant FROM t",
			"SELECT 1 -- TRUNCATE",
		} {
			_, err := Gate(raw)
			assert.ErrorIs(t, err, types.ErrUnsafeQuery, raw)
		}
	})

	t.Run("Non-SELECT statements are rejected", func(t *testing.T) {
		for _, raw := range []string{
			"WITH x AS (SELECT 1) SELECT * FROM x",
			"EXPLAIN SELECT 1",
			"VALUES (1)",
			"",
		} {
			_, err := Gate(raw)
			assert.ErrorIs(t, err, types.ErrUnsafeQuery, raw)
		}
	})

	t.Run("Parser catches what the word list misses", func(t *testing.T) {
		for _, raw := range []string{
			"SELECT * INTO backup FROM orders",
			"SELECT * FROM orders FOR SHARE",
			"SELECT * FROM orders WHERE",
			"SELECT 1 UNION (SELECT 2 FOR SHARE)",
		} {
			c := Check(raw)
			assert.False(t, c.Safe, raw)
			assert.NotEmpty(t, c.Reason, raw)
		}
	})
}

func TestCheckCandidate(t *testing.T) {
	c := Check("```sql\nSELECT 1;\n```")
	assert.True(t, c.Safe)
	assert.Equal(t, "SELECT 1", c.SQL)
	assert.Equal(t, "```sql\nSELECT 1;\n```", c.Raw)
	assert.Empty(t, c.Reason)
}
