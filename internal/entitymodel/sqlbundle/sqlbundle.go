// Package sqlbundle exposes the document persistence DDL to the SQL adapters.
package sqlbundle

import (
	"bufio"
	"strings"

	sqldocs "cadcore/docs/schema/sql"
)

// SQLite returns the SQLite DDL.
func SQLite() string { return sqldocs.SQLite }

// Postgres returns the Postgres DDL.
func Postgres() string { return sqldocs.Postgres }

// SplitStatements splits a semicolon-terminated script into statements,
// dropping blank lines and "--" comment lines.
func SplitStatements(ddl string) []string {
	var (
		stmts   []string
		current strings.Builder
	)
	sc := bufio.NewScanner(strings.NewReader(ddl))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
