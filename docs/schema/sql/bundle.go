// Package sqldocs embeds the document persistence DDL kept in the docs tree.
package sqldocs

import _ "embed"

// SQLite is the SQLite DDL for documents and document_state.
//
//go:embed sqlite.sql
var SQLite string

// Postgres is the Postgres DDL for documents and document_state.
//
//go:embed postgres.sql
var Postgres string
