package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/txn2/mcp-sql-gateway/pkg/catalog"
	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// SchemaTables groups table names under their schema.
type SchemaTables struct {
	Schema string   `json:"schema"`
	Tables []string `json:"tables"`
}

func (s *SchemaTables) String() string {
	if len(s.Tables) == 0 {
		return fmt.Sprintf("Schema %s: (no tables)", s.Schema)
	}
	return fmt.Sprintf("Schema %s: %s", s.Schema, strings.Join(s.Tables, ", "))
}

// SearchTablesResponse lists tables grouped by schema, ranked by how well
// they match the search term.
type SearchTablesResponse struct {
	Database    string         `json:"database"`
	Schemas     []SchemaTables `json:"schemas"`
	TotalCount  int64          `json:"total_count"`
	CurrentPage int            `json:"current_page"`
	TotalPages  int            `json:"total_pages"`
	SearchTerm  string         `json:"search_term,omitempty"`
}

func (r *SearchTablesResponse) String() string {
	if len(r.Schemas) == 0 {
		return fmt.Sprintf("Database '%s': (no schemas found)", r.Database)
	}

	total := 0
	for _, s := range r.Schemas {
		total += len(s.Tables)
	}
	if total == 0 {
		return fmt.Sprintf("Database '%s': (no tables found)", r.Database)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Database '%s'", r.Database)
	if r.SearchTerm != "" {
		fmt.Fprintf(&b, " (search: '%s')", r.SearchTerm)
	}
	b.WriteString(":\n")
	lines := make([]string, len(r.Schemas))
	for i := range r.Schemas {
		lines[i] = r.Schemas[i].String()
	}
	b.WriteString(strings.Join(lines, "\n"))
	fmt.Fprintf(&b, "\n\nPage %d of %d (Total: %d tables)", r.CurrentPage, r.TotalPages, r.TotalCount)
	return b.String()
}

// SearchTables lists tables matching a term, grouped by schema. An empty
// term lists everything.
func SearchTables(ctx context.Context, gw Gateway, database, term string, limit, page int, schema string) (*SearchTablesResponse, error) {
	dialect, err := gw.Dialect(database)
	if err != nil {
		return nil, err
	}

	tpl, err := catalog.Load(dialect, catalog.QueryTables)
	if err != nil {
		return nil, err
	}

	if dialect == sqltransform.DialectSQLite {
		schema = ""
	}
	query := catalog.Bind(tpl, map[string]string{
		"search_term": term,
		"schema_name": schema,
	})

	result, err := executeQuery(ctx, gw, database, query, limit, page, true, false)
	if err != nil {
		return nil, fmt.Errorf("unable to search tables in database '%s': %w", database, err)
	}

	grouped := map[string][]string{}
	var schemaOrder []string
	for _, row := range result.Rows {
		schemaName, _ := row["schema_name"].(string)
		tableName, _ := row["table_name"].(string)
		if _, ok := grouped[schemaName]; !ok {
			schemaOrder = append(schemaOrder, schemaName)
		}
		grouped[schemaName] = append(grouped[schemaName], tableName)
	}
	sort.Strings(schemaOrder)

	schemas := make([]SchemaTables, 0, len(schemaOrder))
	for _, name := range schemaOrder {
		schemas = append(schemas, SchemaTables{Schema: name, Tables: grouped[name]})
	}

	var total int64
	if result.TotalRows != nil {
		total = *result.TotalRows
	}

	return &SearchTablesResponse{
		Database:    database,
		Schemas:     schemas,
		TotalCount:  total,
		CurrentPage: page,
		TotalPages:  result.TotalPages,
		SearchTerm:  term,
	}, nil
}
