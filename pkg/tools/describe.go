package tools

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/txn2/mcp-sql-gateway/pkg/catalog"
	"github.com/txn2/mcp-sql-gateway/pkg/gateway"
	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// TableNotFoundError reports a table absent from the target database.
type TableNotFoundError struct {
	Table    string
	Database string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("Table '%s' not found in database '%s'", e.Table, e.Database)
}

// ColumnInfo describes one column of a table.
type ColumnInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    any    `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key"`
	EnumValues string `json:"enum_values,omitempty"`
}

// ForeignKey describes one constraint between two tables. Multi-column
// constraints carry all their columns.
type ForeignKey struct {
	FromTable      string   `json:"from_table"`
	FromColumns    []string `json:"from_columns"`
	ToTable        string   `json:"to_table"`
	ToColumns      []string `json:"to_columns"`
	ConstraintName string   `json:"constraint_name,omitempty"`
}

// TableDescription is the structure report of one table. The item list
// (columns, then outgoing constraints, then incoming) is paginated as a
// whole, so a page can start mid-list.
type TableDescription struct {
	Table               string       `json:"table"`
	Columns             []ColumnInfo `json:"columns"`
	SampleRows          [][]any      `json:"sample_rows,omitempty"`
	ForeignKeys         []ForeignKey `json:"foreign_keys"`
	IncomingForeignKeys []ForeignKey `json:"incoming_foreign_keys"`
	TotalCount          int          `json:"total_count"`
	CurrentPage         int          `json:"current_page"`
	TotalPages          int          `json:"total_pages"`
}

func (d *TableDescription) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %q\n", d.Table)

	if len(d.Columns) > 0 {
		b.WriteString("\nCOLUMNS:\n")
		for _, col := range d.Columns {
			parts := []string{col.Type}
			if col.PrimaryKey {
				parts = append(parts, "PRIMARY KEY")
			}
			if col.Nullable {
				parts = append(parts, "nullable")
			} else {
				parts = append(parts, "not null")
			}
			if col.Default != nil {
				parts = append(parts, fmt.Sprintf("default: %v", col.Default))
			}
			if col.EnumValues != "" {
				parts = append(parts, fmt.Sprintf("values: %s", col.EnumValues))
			}
			fmt.Fprintf(&b, "  %s: %s\n", col.Name, strings.Join(parts, ", "))
		}
	}

	if len(d.SampleRows) > 0 && len(d.Columns) > 0 {
		b.WriteString("\nSAMPLE ROWS:\n")
		names := make([]string, len(d.Columns))
		for i, col := range d.Columns {
			names[i] = col.Name
		}
		header := strings.Join(names, " | ")
		fmt.Fprintf(&b, "  %s\n", header)
		fmt.Fprintf(&b, "  %s\n", strings.Repeat("-", len(header)))
		for _, row := range d.SampleRows {
			cells := make([]string, len(row))
			for i, val := range row {
				if val == nil {
					cells[i] = "NULL"
				} else {
					cells[i] = truncate(fmt.Sprintf("%v", val), 50)
				}
			}
			fmt.Fprintf(&b, "  %s\n", strings.Join(cells, " | "))
		}
	}

	if len(d.ForeignKeys) > 0 {
		b.WriteString("\nFOREIGN KEY CONSTRAINTS:\n")
		for _, fk := range d.ForeignKeys {
			fmt.Fprintf(&b, "  %s -> %s(%s)\n",
				strings.Join(fk.FromColumns, ", "), fk.ToTable, strings.Join(fk.ToColumns, ", "))
		}
	}

	if len(d.IncomingForeignKeys) > 0 {
		b.WriteString("\nREFERENCED BY:\n")
		for _, fk := range d.IncomingForeignKeys {
			fmt.Fprintf(&b, "  %s.%s -> %s\n",
				fk.FromTable, strings.Join(fk.FromColumns, ", "), strings.Join(fk.ToColumns, ", "))
		}
	}

	fmt.Fprintf(&b, "\nPage %d of %d (Total: %d items)", d.CurrentPage, d.TotalPages, d.TotalCount)
	return b.String()
}

// DescribeTable reports the columns and foreign keys of a table.
func DescribeTable(ctx context.Context, gw Gateway, database, table, schema string, limit, page int) (*TableDescription, error) {
	return describe(ctx, gw, database, table, schema, limit, page, false)
}

// TableSummary is DescribeTable plus sample rows and enum values where the
// dialect exposes them.
func TableSummary(ctx context.Context, gw Gateway, database, table, schema string, limit, page int) (*TableDescription, error) {
	return describe(ctx, gw, database, table, schema, limit, page, true)
}

func describe(ctx context.Context, gw Gateway, database, table, schema string, limit, page int, withSamples bool) (*TableDescription, error) {
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

	if schema == "" {
		schema, err = gw.DefaultSchema(database)
		if err != nil {
			return nil, err
		}
	}

	exists, err := tableExists(ctx, gw, dialect, database, table, schema)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &TableNotFoundError{Table: table, Database: database}
	}

	columnCount, fkCount, err := itemCounts(ctx, gw, dialect, database, table, schema)
	if err != nil {
		return nil, err
	}

	totalCount := columnCount + fkCount
	totalPages := 1
	if totalCount > 0 {
		totalPages = int(math.Ceil(float64(totalCount) / float64(limit)))
	}
	offset := (page - 1) * limit

	primaryKeys, err := primaryKeySet(ctx, gw, dialect, database, table, schema)
	if err != nil {
		return nil, err
	}

	var enumValues map[string]string
	var sampleRows [][]any
	if withSamples {
		enumValues = enumValueSet(ctx, gw, dialect, database, table, schema)

		sample, err := ExecuteQuery(ctx, gw, database,
			fmt.Sprintf("SELECT * FROM %s.%s", schema, table), 5, 1, false)
		if err != nil {
			return nil, err
		}
		for _, row := range sample.Rows {
			values := make([]any, len(sample.Columns))
			for i, col := range sample.Columns {
				values[i] = row[col]
			}
			sampleRows = append(sampleRows, values)
		}
	}

	// The page walks the combined item list: columns first, constraints
	// after. A page past the columns carries its offset into the
	// constraint list.
	var columns []ColumnInfo
	var outgoing, incoming []ForeignKey

	remaining := limit
	current := offset

	if current < columnCount && remaining > 0 {
		fetch := remaining
		if left := columnCount - current; left < fetch {
			fetch = left
		}
		columns, err = columnsPage(ctx, gw, dialect, database, table, schema, primaryKeys, enumValues, fetch, current)
		if err != nil {
			return nil, err
		}
		remaining -= len(columns)
		current = 0
	} else {
		current -= columnCount
	}

	if current < fkCount && remaining > 0 {
		fetch := remaining
		if left := fkCount - current; left < fetch {
			fetch = left
		}
		fks, err := foreignKeysPage(ctx, gw, dialect, database, table, schema, fetch, current)
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			fromTable := fk.FromTable
			if i := strings.LastIndex(fromTable, "."); i >= 0 {
				fromTable = fromTable[i+1:]
			}
			if strings.EqualFold(fromTable, table) {
				outgoing = append(outgoing, fk)
			} else {
				incoming = append(incoming, fk)
			}
		}
	}

	return &TableDescription{
		Table:               fmt.Sprintf("%s.%s", schema, table),
		Columns:             columns,
		SampleRows:          sampleRows,
		ForeignKeys:         outgoing,
		IncomingForeignKeys: incoming,
		TotalCount:          totalCount,
		CurrentPage:         page,
		TotalPages:          totalPages,
	}, nil
}

func catalogQuery(dialect sqltransform.Dialect, name, table, schema string) (string, error) {
	tpl, err := catalog.Load(dialect, name)
	if err != nil {
		return "", err
	}
	return catalog.Bind(tpl, map[string]string{
		"table_name":  table,
		"schema_name": schema,
	}), nil
}

func tableExists(ctx context.Context, gw Gateway, dialect sqltransform.Dialect, database, table, schema string) (bool, error) {
	query, err := catalogQuery(dialect, catalog.QueryTableExists, table, schema)
	if err != nil {
		return false, err
	}
	result, err := gw.Execute(ctx, database, query)
	if err != nil {
		return false, fmt.Errorf("checking table '%s' in database '%s': %w", table, database, err)
	}
	return len(result.Rows) > 0, nil
}

func itemCounts(ctx context.Context, gw Gateway, dialect sqltransform.Dialect, database, table, schema string) (int, int, error) {
	columnsQuery, err := catalogQuery(dialect, catalog.QueryColumns, table, schema)
	if err != nil {
		return 0, 0, err
	}
	fkQuery, err := catalogQuery(dialect, catalog.QueryForeignKey, table, schema)
	if err != nil {
		return 0, 0, err
	}

	columnCount, err := gw.Scalar(ctx, database, catalog.WrapCount(dialect, columnsQuery))
	if err != nil {
		return 0, 0, fmt.Errorf("counting columns of '%s' in database '%s': %w", table, database, err)
	}
	fkCount, err := gw.Scalar(ctx, database, catalog.WrapCount(dialect, fkQuery))
	if err != nil {
		return 0, 0, fmt.Errorf("counting foreign keys of '%s' in database '%s': %w", table, database, err)
	}
	return int(columnCount), int(fkCount), nil
}

func primaryKeySet(ctx context.Context, gw Gateway, dialect sqltransform.Dialect, database, table, schema string) (map[string]bool, error) {
	query, err := catalogQuery(dialect, catalog.QueryPrimaryKey, table, schema)
	if err != nil {
		return nil, err
	}
	result, err := gw.Execute(ctx, database, query)
	if err != nil {
		return nil, fmt.Errorf("reading primary keys of '%s' in database '%s': %w", table, database, err)
	}
	keys := make(map[string]bool, len(result.Rows))
	for _, row := range result.Rows {
		if name, ok := row[0].(string); ok {
			keys[name] = true
		}
	}
	return keys, nil
}

// enumValueSet is best effort: only postgres ships an enum query, and a
// failure never blocks the table report.
func enumValueSet(ctx context.Context, gw Gateway, dialect sqltransform.Dialect, database, table, schema string) map[string]string {
	query, err := catalogQuery(dialect, catalog.QueryEnumValues, table, schema)
	if err != nil {
		return nil
	}
	result, err := gw.Execute(ctx, database, query)
	if err != nil {
		return nil
	}
	values := make(map[string]string)
	for _, row := range result.Rows {
		name, okName := row[0].(string)
		labels, okLabels := row[1].(string)
		if okName && okLabels && name != "" && labels != "" {
			values[name] = labels
		}
	}
	return values
}

func columnsPage(ctx context.Context, gw Gateway, dialect sqltransform.Dialect, database, table, schema string, primaryKeys map[string]bool, enumValues map[string]string, limit, offset int) ([]ColumnInfo, error) {
	query, err := catalogQuery(dialect, catalog.QueryColumns, table, schema)
	if err != nil {
		return nil, err
	}
	result, err := gw.Execute(ctx, database, catalog.Paginate(dialect, query, limit, offset))
	if err != nil {
		return nil, fmt.Errorf("reading columns of '%s' in database '%s': %w", table, database, err)
	}

	columns := make([]ColumnInfo, 0, len(result.Rows))
	for _, row := range result.Rows {
		name, _ := row[0].(string)
		dataType, _ := row[1].(string)
		nullable := true
		if s, ok := row[2].(string); ok && s != "" {
			nullable = s == "YES"
		}
		columns = append(columns, ColumnInfo{
			Name:       name,
			Type:       dataType,
			Nullable:   nullable,
			Default:    row[3],
			PrimaryKey: primaryKeys[name],
			EnumValues: enumValues[name],
		})
	}
	return columns, nil
}

func foreignKeysPage(ctx context.Context, gw Gateway, dialect sqltransform.Dialect, database, table, schema string, limit, offset int) ([]ForeignKey, error) {
	query, err := catalogQuery(dialect, catalog.QueryForeignKey, table, schema)
	if err != nil {
		return nil, err
	}
	result, err := gw.Execute(ctx, database, catalog.Paginate(dialect, query, limit, offset))
	if err != nil {
		return nil, fmt.Errorf("reading foreign keys of '%s' in database '%s': %w", table, database, err)
	}
	return groupForeignKeys(result), nil
}

// groupForeignKeys folds constraint rows into one ForeignKey per
// constraint. Multi-column constraints arrive as one row per column pair.
func groupForeignKeys(result *gateway.Result) []ForeignKey {
	type group struct {
		fk    ForeignKey
		index int
	}
	groups := make(map[string]*group)
	order := 0

	str := func(v any) string {
		if s, ok := v.(string); ok {
			return s
		}
		return ""
	}

	for _, row := range result.Rows {
		sourceSchema := str(row[0])
		sourceTable := str(row[1])
		sourceColumn := str(row[2])
		destSchema := str(row[3])
		destTable := str(row[4])
		destColumn := str(row[5])
		constraint := str(row[6])

		g, ok := groups[constraint]
		if !ok {
			fromTable := sourceTable
			if sourceSchema != "" {
				fromTable = sourceSchema + "." + sourceTable
			}
			toTable := destTable
			if destSchema != "" {
				toTable = destSchema + "." + destTable
			}
			g = &group{
				fk: ForeignKey{
					FromTable:      fromTable,
					ToTable:        toTable,
					ConstraintName: constraint,
				},
				index: order,
			}
			order++
			groups[constraint] = g
		}
		if sourceColumn != "" {
			g.fk.FromColumns = append(g.fk.FromColumns, sourceColumn)
		}
		if destColumn != "" {
			g.fk.ToColumns = append(g.fk.ToColumns, destColumn)
		}
	}

	fks := make([]ForeignKey, len(groups))
	for _, g := range groups {
		if len(g.fk.FromColumns) == 0 {
			g.fk.FromColumns = []string{"(column mapping not available)"}
		}
		if len(g.fk.ToColumns) == 0 {
			g.fk.ToColumns = []string{"(column mapping not available)"}
		}
		fks[g.index] = g.fk
	}
	return fks
}
