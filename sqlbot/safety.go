// Package sqlbot answers questions with read-only SQL and falls back to the
// web when the database has nothing.
package sqlbot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"ragsql/types"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

var (
	fenceRe      = regexp.MustCompile("(?i)```(?:sql)?\\s*([\\s\\S]*?)```")
	spaceRe      = regexp.MustCompile(`\s+`)
	selectRe     = regexp.MustCompile(`(?i)^\s*select\b`)
	bannedWordRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|truncate|create|grant|revoke|commit|rollback)\b`)
)

// SafeSQL is a statement that passed every check in Gate. The zero value is
// empty and never executed.
type SafeSQL struct {
	sql string
}

func (s SafeSQL) String() string { return s.sql }

// Cleanup takes the body of a markdown fence when there is one, collapses
// whitespace and drops one trailing semicolon.
func Cleanup(raw string) string {
	sql := raw
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		sql = m[1]
	}
	sql = strings.TrimSpace(spaceRe.ReplaceAllString(strings.TrimSpace(sql), " "))
	return strings.TrimSuffix(sql, ";")
}

// Check runs the textual rules and then the parser on a cleaned statement.
func Check(raw string) types.SQLCandidate {
	c := types.SQLCandidate{Raw: raw, SQL: Cleanup(raw)}
	switch {
	case !selectRe.MatchString(c.SQL):
		c.Reason = "statement does not start with SELECT"
	case strings.Contains(c.SQL, ";"):
		c.Reason = "multiple statements"
	case bannedWordRe.MatchString(c.SQL):
		c.Reason = fmt.Sprintf("forbidden keyword %q", strings.ToUpper(bannedWordRe.FindString(c.SQL)))
	default:
		if err := checkParse(c.SQL); err != nil {
			c.Reason = err.Error()
		} else {
			c.Safe = true
		}
	}
	return c
}

// Gate is the only way to obtain a SafeSQL.
func Gate(raw string) (SafeSQL, error) {
	c := Check(raw)
	if !c.Safe {
		return SafeSQL{}, &types.UnsafeQueryError{SQL: c.SQL, Reason: c.Reason}
	}
	return SafeSQL{sql: c.SQL}, nil
}

func checkParse(sql string) error {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return fmt.Errorf("parse error: %v", err)
	}
	if len(tree.Stmts) != 1 {
		return fmt.Errorf("expected one statement, got %d", len(tree.Stmts))
	}
	sel := tree.Stmts[0].GetStmt().GetSelectStmt()
	if sel == nil {
		return errors.New("statement is not a SELECT")
	}
	return checkSelect(sel)
}

func checkSelect(sel *pg_query.SelectStmt) error {
	if sel == nil {
		return nil
	}
	if sel.GetIntoClause() != nil {
		return errors.New("SELECT INTO creates a table")
	}
	if len(sel.GetLockingClause()) > 0 {
		return errors.New("row locking clause")
	}
	if with := sel.GetWithClause(); with != nil {
		for _, node := range with.GetCtes() {
			cte := node.GetCommonTableExpr()
			if cte == nil {
				continue
			}
			q := cte.GetCtequery()
			inner := q.GetSelectStmt()
			if inner == nil {
				return fmt.Errorf("data-modifying CTE %q", cte.GetCtename())
			}
			if err := checkSelect(inner); err != nil {
				return err
			}
		}
	}
	if err := checkSelect(sel.GetLarg()); err != nil {
		return err
	}
	return checkSelect(sel.GetRarg())
}
