package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type executeQueryInput struct {
	Database      string `json:"database" jsonschema:"database name to query"`
	Query         string `json:"query" jsonschema:"SELECT query to execute"`
	Limit         int    `json:"limit,omitempty" jsonschema:"maximum rows per page (default 100)"`
	Page          int    `json:"page,omitempty" jsonschema:"page number (default 1)"`
	AccurateCount bool   `json:"accurate_count,omitempty" jsonschema:"run a COUNT query for exact pagination (slower but accurate)"`
}

type describeTableInput struct {
	Database string `json:"database" jsonschema:"database name"`
	Table    string `json:"table_name" jsonschema:"table to describe"`
	Schema   string `json:"db_schema,omitempty" jsonschema:"schema name (defaults per database type)"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum items per page (default 250)"`
	Page     int    `json:"page,omitempty" jsonschema:"page number (default 1)"`
}

type searchInput struct {
	Database string `json:"database" jsonschema:"database name to search in"`
	Term     string `json:"search_term" jsonschema:"term to match against object names"`
	Schema   string `json:"schema,omitempty" jsonschema:"limit the search to one schema"`
}

type searchTablesInput struct {
	Database string `json:"database" jsonschema:"database name"`
	Term     string `json:"search_term,omitempty" jsonschema:"term to rank tables by, empty lists everything"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum tables per page (default 500)"`
	Page     int    `json:"page,omitempty" jsonschema:"page number (default 1)"`
	Schema   string `json:"schema,omitempty" jsonschema:"limit to one schema"`
}

type sampleTableInput struct {
	Database string `json:"database" jsonschema:"database name"`
	Table    string `json:"table_name" jsonschema:"table to sample"`
	Schema   string `json:"db_schema,omitempty" jsonschema:"schema name (defaults per database type)"`
}

type databaseOnlyInput struct {
	Database string `json:"database" jsonschema:"database name"`
}

type emptyInput struct{}

// Registrar wires the gateway tools into an MCP server.
type Registrar struct {
	gw Gateway
}

// NewRegistrar creates a Registrar over a gateway.
func NewRegistrar(gw Gateway) *Registrar {
	return &Registrar{gw: gw}
}

// RegisterTools registers every enabled tool. When settings name an
// available_tools list, only those are registered.
func (r *Registrar) RegisterTools(s *mcp.Server) {
	enabled := func(name string) bool {
		available := r.gw.Settings().AvailableTools
		if available == nil {
			return true
		}
		for _, candidate := range available {
			if candidate == name {
				return true
			}
		}
		return false
	}

	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	if enabled("list_databases") {
		mcp.AddTool(s, &mcp.Tool{
			Name: "list_databases",
			Description: "List all configured databases and their settings. " +
				"The response includes the config file path so it can be edited and reloaded with reload_config.",
			Annotations: readOnly,
		}, r.handleListDatabases)
	}

	if enabled("execute_query") {
		mcp.AddTool(s, &mcp.Tool{
			Name: "execute_query",
			Description: "Execute a SELECT query on the specified database with pagination. " +
				"Only read-only statements are accepted.",
			Annotations: readOnly,
		}, r.handleExecuteQuery)
	}

	if enabled("describe_table") {
		mcp.AddTool(s, &mcp.Tool{
			Name:        "describe_table",
			Description: "Get table structure including columns and foreign keys, with pagination.",
			Annotations: readOnly,
		}, r.handleDescribeTable)
	}

	if enabled("table_summary") {
		mcp.AddTool(s, &mcp.Tool{
			Name: "table_summary",
			Description: "Get table structure including columns, foreign keys, sample rows, " +
				"and enum values where the database exposes them.",
			Annotations: readOnly,
		}, r.handleTableSummary)
	}

	if enabled("search") {
		mcp.AddTool(s, &mcp.Tool{
			Name: "search",
			Description: "Search tables and columns by name, ranked by relevance. " +
				"Results honor the configured schema and table policy.",
			Annotations: readOnly,
		}, r.handleSearch)
	}

	if enabled("fuzzy_search") {
		mcp.AddTool(s, &mcp.Tool{
			Name: "fuzzy_search",
			Description: "Fuzzy search across tables, columns, and enum values using trigram " +
				"similarity. PostgreSQL databases only.",
			Annotations: readOnly,
		}, r.handleFuzzySearch)
	}

	if enabled("search_tables") {
		mcp.AddTool(s, &mcp.Tool{
			Name:        "search_tables",
			Description: "List tables grouped by schema, optionally ranked against a search term.",
			Annotations: readOnly,
		}, r.handleSearchTables)
	}

	if enabled("sample_table") {
		mcp.AddTool(s, &mcp.Tool{
			Name:        "sample_table",
			Description: "Return the first rows of a table, capped by the configured sample size.",
			Annotations: readOnly,
		}, r.handleSampleTable)
	}

	if enabled("test_connection") {
		mcp.AddTool(s, &mcp.Tool{
			Name:        "test_connection",
			Description: "Test a database connection, useful for debugging configuration issues.",
			Annotations: readOnly,
		}, r.handleTestConnection)
	}

	if enabled("reload_config") {
		mcp.AddTool(s, &mcp.Tool{
			Name:        "reload_config",
			Description: "Reload the configuration file and report what changed.",
		}, r.handleReloadConfig)
	}
}

func (r *Registrar) handleListDatabases(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	list, err := ListDatabases(r.gw)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(list.String()), list, nil
}

func (r *Registrar) handleExecuteQuery(ctx context.Context, _ *mcp.CallToolRequest, input executeQueryInput) (*mcp.CallToolResult, any, error) {
	if input.Limit == 0 {
		input.Limit = 100
	}
	if input.Page == 0 {
		input.Page = 1
	}
	response, err := ExecuteQuery(ctx, r.gw, input.Database, input.Query, input.Limit, input.Page, input.AccurateCount)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleDescribeTable(ctx context.Context, _ *mcp.CallToolRequest, input describeTableInput) (*mcp.CallToolResult, any, error) {
	if input.Limit == 0 {
		input.Limit = 250
	}
	if input.Page == 0 {
		input.Page = 1
	}
	response, err := DescribeTable(ctx, r.gw, input.Database, input.Table, input.Schema, input.Limit, input.Page)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleTableSummary(ctx context.Context, _ *mcp.CallToolRequest, input describeTableInput) (*mcp.CallToolResult, any, error) {
	if input.Limit == 0 {
		input.Limit = 250
	}
	if input.Page == 0 {
		input.Page = 1
	}
	response, err := TableSummary(ctx, r.gw, input.Database, input.Table, input.Schema, input.Limit, input.Page)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	response, err := Search(ctx, r.gw, input.Database, input.Term, input.Schema)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleFuzzySearch(ctx context.Context, _ *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	response, err := FuzzySearch(ctx, r.gw, input.Database, input.Term, input.Schema)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleSearchTables(ctx context.Context, _ *mcp.CallToolRequest, input searchTablesInput) (*mcp.CallToolResult, any, error) {
	if input.Limit == 0 {
		input.Limit = 500
	}
	if input.Page == 0 {
		input.Page = 1
	}
	response, err := SearchTables(ctx, r.gw, input.Database, input.Term, input.Limit, input.Page, input.Schema)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleSampleTable(ctx context.Context, _ *mcp.CallToolRequest, input sampleTableInput) (*mcp.CallToolResult, any, error) {
	response, err := SampleTable(ctx, r.gw, input.Database, input.Table, input.Schema)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleTestConnection(ctx context.Context, _ *mcp.CallToolRequest, input databaseOnlyInput) (*mcp.CallToolResult, any, error) {
	response, err := TestConnection(ctx, r.gw, input.Database)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

func (r *Registrar) handleReloadConfig(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	response, err := ReloadConfig(r.gw)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(response.String()), response, nil
}

// textResult creates a success CallToolResult with a text rendering.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// errorResult creates an error CallToolResult.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Error: %s", err.Error())},
		},
		IsError: true,
	}
}
