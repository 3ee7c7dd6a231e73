package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// QueryResponse is the paginated result of a read-only query.
type QueryResponse struct {
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	RowCount    int              `json:"row_count"`
	CurrentPage int              `json:"current_page"`
	TotalPages  int              `json:"total_pages"`
	Truncated   bool             `json:"truncated"`
	TotalRows   *int64           `json:"total_rows,omitempty"`
}

func (r *QueryResponse) String() string {
	if len(r.Rows) == 0 {
		return "Query returned 0 rows"
	}

	result := renderTable(r.Columns, r.Rows)

	if r.TotalRows != nil {
		result += fmt.Sprintf("\nPage %d of %d (showing %d of %d rows)",
			r.CurrentPage, r.TotalPages, r.RowCount, *r.TotalRows)
	} else if r.Truncated {
		result += fmt.Sprintf("\nPage %d (showing %d rows, more may exist)",
			r.CurrentPage, r.RowCount)
	} else {
		result += fmt.Sprintf("\nPage %d of %d (showing %d rows)",
			r.CurrentPage, r.TotalPages, r.RowCount)
	}
	return result
}

// ExecuteQuery runs a read-only query with pagination. With accurateCount a
// COUNT derivation of the query runs first so the page arithmetic is exact,
// otherwise a full page is treated as possibly truncated.
func ExecuteQuery(ctx context.Context, gw Gateway, database, query string, limit, page int, accurateCount bool) (*QueryResponse, error) {
	return executeQuery(ctx, gw, database, query, limit, page, accurateCount, true)
}

// executeQuery backs ExecuteQuery and the catalog-driven tools. Catalog
// queries are trusted text over system tables, so only caller-supplied SQL
// goes through the table policy.
func executeQuery(ctx context.Context, gw Gateway, database, query string, limit, page int, accurateCount, enforceTablePolicy bool) (*QueryResponse, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}
	if page < 1 {
		return nil, fmt.Errorf("page number must be greater than 0")
	}

	settings := gw.Settings()
	if limit > settings.MaxRowsPerQuery {
		limit = settings.MaxRowsPerQuery
	}

	dialect, err := gw.Dialect(database)
	if err != nil {
		return nil, err
	}

	tr, err := sqltransform.New(strings.TrimSpace(query), string(dialect))
	if err != nil {
		return nil, err
	}
	if err := tr.ValidateReadOnly(); err != nil {
		return nil, err
	}

	if enforceTablePolicy {
		cfg, err := gw.DatabaseConfig(database)
		if err != nil {
			return nil, err
		}
		if err := tr.ValidateTableAccess(cfg.AllowedTables, cfg.DisallowedTables); err != nil {
			return nil, err
		}
	}

	var totalRows *int64
	if accurateCount {
		countQuery, err := tr.ToCountQuery()
		if err != nil {
			return nil, err
		}
		n, err := gw.Scalar(ctx, database, countQuery)
		if err != nil {
			return nil, err
		}
		totalRows = &n
	}

	offset := (page - 1) * limit
	if err := tr.AddPagination(limit, offset); err != nil {
		return nil, err
	}
	paginated, err := tr.SQL()
	if err != nil {
		return nil, err
	}

	result, err := gw.Execute(ctx, database, paginated)
	if err != nil {
		return nil, err
	}

	rows := result.RowMaps()
	rowCount := len(rows)

	var totalPages int
	var truncated bool
	if totalRows != nil {
		totalPages = 1
		if *totalRows > 0 {
			totalPages = int(math.Ceil(float64(*totalRows) / float64(limit)))
		}
		truncated = int64(page*limit) < *totalRows
	} else {
		truncated = rowCount == limit
		totalPages = page
	}

	return &QueryResponse{
		Columns:     result.Columns,
		Rows:        rows,
		RowCount:    rowCount,
		CurrentPage: page,
		TotalPages:  totalPages,
		Truncated:   truncated,
		TotalRows:   totalRows,
	}, nil
}
