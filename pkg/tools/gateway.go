// Package tools implements the MCP tool surface of the SQL gateway. Every
// tool is a thin orchestration over the transformer, the catalog assets,
// and a Gateway that runs the final statements.
package tools

import (
	"context"

	"github.com/txn2/mcp-sql-gateway/pkg/gateway"
	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// Gateway is the database access surface the tools depend on. It is
// satisfied by *gateway.Manager and by fakes in tests.
type Gateway interface {
	Execute(ctx context.Context, database, query string) (*gateway.Result, error)
	Scalar(ctx context.Context, database, query string) (int64, error)
	Ping(ctx context.Context, database string) error
	Dialect(database string) (sqltransform.Dialect, error)
	DefaultSchema(database string) (string, error)
	DatabaseConfig(database string) (*gateway.DatabaseConfig, error)
	DatabaseNames() []string
	Settings() gateway.Settings
	ConfigPath() string
	Reload() (*gateway.ReloadResult, error)
}
