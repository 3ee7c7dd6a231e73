package tools

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// SampleTable returns the first rows of a table, capped by the configured
// sample size.
func SampleTable(ctx context.Context, gw Gateway, database, table, schema string) (*QueryResponse, error) {
	sampleSize := gw.Settings().SampleSize

	if schema == "" {
		var err error
		schema, err = gw.DefaultSchema(database)
		if err != nil {
			return nil, err
		}
	}

	query, _, err := sq.Select("*").From(fmt.Sprintf("%s.%s", schema, table)).ToSql()
	if err != nil {
		return nil, err
	}

	return ExecuteQuery(ctx, gw, database, query, sampleSize, 1, false)
}
