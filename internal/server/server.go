// Package server provides a factory for creating the MCP server.
package server

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-sql-gateway/pkg/gateway"
	"github.com/txn2/mcp-sql-gateway/pkg/middleware"
	"github.com/txn2/mcp-sql-gateway/pkg/tools"
)

// Version is set at build time.
var Version = "dev"

// New creates the MCP server and its database gateway from the configuration
// file at configPath. The caller owns the returned Manager and must Close it
// when the server stops.
func New(configPath string, logger *slog.Logger) (*mcp.Server, *gateway.Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := gateway.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	manager := gateway.NewManager(cfg, configPath, logger)

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "mcp-sql-gateway",
		Version: Version,
	}, nil)
	mcpServer.AddReceivingMiddleware(middleware.MCPLoggingMiddleware(logger))

	tools.NewRegistrar(manager).RegisterTools(mcpServer)

	return mcpServer, manager, nil
}
