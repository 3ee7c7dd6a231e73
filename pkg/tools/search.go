package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/txn2/mcp-sql-gateway/pkg/catalog"
	"github.com/txn2/mcp-sql-gateway/pkg/gateway"
	"github.com/txn2/mcp-sql-gateway/pkg/policy"
	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// searchPageLimit caps search result sets independently of the global
// row limit.
const searchPageLimit = 250

// SearchRow is one matched database object.
type SearchRow struct {
	ObjectType     string `json:"object_type"`
	SchemaName     string `json:"schema_name"`
	UserDescriptor string `json:"user_friendly_descriptor"`
	DataType       string `json:"data_type,omitempty"`
}

// SearchResponse lists matched objects in relevance order.
type SearchResponse struct {
	Rows []SearchRow `json:"rows"`
}

func (r *SearchResponse) String() string {
	if len(r.Rows) == 0 {
		return "No results found"
	}

	var b strings.Builder
	for _, row := range r.Rows {
		switch {
		case row.ObjectType == "table":
			fmt.Fprintf(&b, "%s: %s\n", row.ObjectType, row.UserDescriptor)
		case row.DataType != "" && row.DataType != "null":
			fmt.Fprintf(&b, "%s: %s (%s) in %s\n", row.ObjectType, row.UserDescriptor, row.DataType, row.SchemaName)
		default:
			fmt.Fprintf(&b, "%s: %s in %s\n", row.ObjectType, row.UserDescriptor, row.SchemaName)
		}
	}
	return b.String()
}

// Search matches tables and columns against a term, ranked by relevance.
// Schema and table policy from the database configuration narrows the
// results, an explicit schema argument overrides the schema policy.
func Search(ctx context.Context, gw Gateway, database, term, schema string) (*SearchResponse, error) {
	return runObjectSearch(ctx, gw, database, catalog.QuerySearch, map[string]string{
		"search_term": term,
	}, schema, true)
}

// FuzzySearch matches tables, columns, and enum values using trigram
// similarity. Only available where the dialect ships a fuzzy query.
func FuzzySearch(ctx context.Context, gw Gateway, database, term, schema string) (*SearchResponse, error) {
	return runObjectSearch(ctx, gw, database, catalog.QueryFuzzy, map[string]string{
		"search_term":   term,
		"schema_filter": schema,
	}, "", false)
}

func runObjectSearch(ctx context.Context, gw Gateway, database, queryName string, params map[string]string, schemaOverride string, applyPolicy bool) (*SearchResponse, error) {
	dialect, err := gw.Dialect(database)
	if err != nil {
		return nil, err
	}

	tpl, err := catalog.Load(dialect, queryName)
	if err != nil {
		return nil, err
	}
	query := catalog.Bind(tpl, params)

	tr, err := sqltransform.New(query, string(dialect))
	if err != nil {
		return nil, err
	}

	if applyPolicy {
		cfg, err := gw.DatabaseConfig(database)
		if err != nil {
			return nil, err
		}
		if err := applySearchPolicy(tr, dialect, cfg, schemaOverride); err != nil {
			return nil, err
		}
	}

	if err := tr.ValidateReadOnly(); err != nil {
		return nil, err
	}

	limit := searchPageLimit
	if max := gw.Settings().MaxRowsPerQuery; max < limit {
		limit = max
	}
	if err := tr.AddPagination(limit, 0); err != nil {
		return nil, err
	}

	sql, err := tr.SQL()
	if err != nil {
		return nil, err
	}

	result, err := gw.Execute(ctx, database, sql)
	if err != nil {
		return nil, err
	}

	response := &SearchResponse{}
	for _, row := range result.RowMaps() {
		str := func(key string) string {
			if s, ok := row[key].(string); ok {
				return s
			}
			return ""
		}
		response.Rows = append(response.Rows, SearchRow{
			ObjectType:     str("object_type"),
			SchemaName:     str("schema_name"),
			UserDescriptor: str("user_friendly_descriptor"),
			DataType:       str("data_type"),
		})
	}
	return response, nil
}

func applySearchPolicy(tr *sqltransform.Transformer, dialect sqltransform.Dialect, cfg *gateway.DatabaseConfig, schemaOverride string) error {
	if cond := policy.SchemaCondition(schemaOverride, cfg.IncludeSchemas, cfg.ExcludeSchemas); cond != "" {
		if err := tr.AddWhereCondition(cond); err != nil {
			return err
		}
	}
	if cond := policy.TableCondition(dialect, cfg.AllowedTables, cfg.DisallowedTables); cond != "" {
		if err := tr.AddWhereCondition(cond); err != nil {
			return err
		}
	}
	return nil
}
