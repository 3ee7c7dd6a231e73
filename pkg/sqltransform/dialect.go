// Package sqltransform implements the SQL rewriting and policy-enforcement
// engine: read-only classification, pagination injection, count-query
// derivation, WHERE-fragment injection, and table-access validation, all
// performed on a parsed AST rather than on SQL text.
package sqltransform

import "strings"

// Dialect identifies the SQL dialect a statement was parsed with. A
// statement's dialect is fixed at construction and every rendering of that
// statement uses it.
type Dialect string

const (
	DialectPostgres  Dialect = "postgresql"
	DialectMySQL     Dialect = "mysql"
	DialectSQLite    Dialect = "sqlite"
	DialectMSSQL     Dialect = "mssql"
	DialectSnowflake Dialect = "snowflake"

	// DialectOther is the passthrough for database types without catalog
	// query support. Statements still parse and rewrite; structural tools
	// that need catalog SQL refuse it.
	DialectOther Dialect = "other"
)

// MapDialect normalizes a logical database-type name from configuration to
// the dialect the parsing subsystem understands.
func MapDialect(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return DialectPostgres
	case "mysql", "mariadb":
		return DialectMySQL
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "mssql", "sqlserver":
		return DialectMSSQL
	case "snowflake":
		return DialectSnowflake
	default:
		return DialectOther
	}
}

// Supported reports whether the dialect has catalog-query support.
func (d Dialect) Supported() bool {
	return d != DialectOther
}
