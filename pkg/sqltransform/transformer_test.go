package sqltransform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Keyword assertions are case-insensitive: the generic engine renders
// lowercase keywords, the postgres engine uppercase.
func containsSQL(t *testing.T, sql, want string) {
	t.Helper()
	assert.Contains(t, strings.ToLower(sql), strings.ToLower(want), "rendered SQL: %s", sql)
}

func notContainsSQL(t *testing.T, sql, want string) {
	t.Helper()
	assert.NotContains(t, strings.ToLower(sql), strings.ToLower(want), "rendered SQL: %s", sql)
}

func countSQL(sql, token string) int {
	return strings.Count(strings.ToLower(sql), strings.ToLower(token))
}

func mustSQL(t *testing.T, tr *Transformer) string {
	t.Helper()
	out, err := tr.SQL()
	require.NoError(t, err)
	return out
}

// engineDialects covers both AST engines for dialect-generic behavior.
var engineDialects = []string{"sqlite", "postgresql"}

func TestNew(t *testing.T) {
	t.Run("valid query", func(t *testing.T) {
		tr, err := New("SELECT * FROM users", "")
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM users", tr.Query())
		assert.Equal(t, DialectOther, tr.Dialect())
	})

	t.Run("dialect is recorded", func(t *testing.T) {
		tr, err := New("SELECT * FROM users", "postgres")
		require.NoError(t, err)
		assert.Equal(t, DialectPostgres, tr.Dialect())
	})

	t.Run("invalid SQL fails fast", func(t *testing.T) {
		for _, dialect := range engineDialects {
			_, err := New("SELECT * FROM WHERE", dialect)
			var invalidErr *InvalidSQLError
			require.ErrorAs(t, err, &invalidErr, "dialect %s", dialect)
		}
	})
}

func TestIsReadOnly(t *testing.T) {
	readOnly := []string{
		"SELECT * FROM users",
		"select * from users",
		"SELECT u.id FROM users u JOIN (SELECT id FROM projects WHERE status = 'active') p ON u.project_id = p.id",
		"SELECT * FROM users WHERE id IN (SELECT user_id FROM user_roles WHERE role = 'admin')",
	}
	mutating := []string{
		"INSERT INTO users (name) VALUES ('John')",
		"UPDATE users SET name = 'John' WHERE id = 1",
		"update users set name = 'test'",
		"DELETE FROM users WHERE id = 1",
		"CREATE TABLE users (id INT, name VARCHAR(50))",
		"DROP TABLE users",
		"ALTER TABLE users ADD COLUMN email VARCHAR(100)",
		"TRUNCATE TABLE users",
		"INSERT INTO logs (user_id, message) SELECT id, 'login event' FROM users WHERE active = true",
	}

	for _, dialect := range engineDialects {
		t.Run(dialect, func(t *testing.T) {
			for _, q := range readOnly {
				tr, err := New(q, dialect)
				require.NoError(t, err, "query %q", q)
				assert.True(t, tr.IsReadOnly(), "query %q should be read-only", q)
				assert.NoError(t, tr.ValidateReadOnly())
			}
			for _, q := range mutating {
				tr, err := New(q, dialect)
				require.NoError(t, err, "query %q", q)
				assert.False(t, tr.IsReadOnly(), "query %q should not be read-only", q)
				var roErr *ReadOnlyViolationError
				assert.ErrorAs(t, tr.ValidateReadOnly(), &roErr)
			}
		})
	}

	t.Run("UPDATE hidden in CTE is detected", func(t *testing.T) {
		query := `WITH updated_users AS (
			UPDATE users SET last_login = NOW() WHERE active = true RETURNING id
		)
		SELECT * FROM updated_users`
		tr, err := New(query, "postgresql")
		require.NoError(t, err)
		assert.False(t, tr.IsReadOnly())
	})

	t.Run("CTEs with only SELECTs are read-only", func(t *testing.T) {
		query := `WITH active_projects AS (
			SELECT id, name FROM projects WHERE status = 'active'
		),
		admin_users AS (
			SELECT user_id FROM user_roles WHERE role = 'admin'
		)
		SELECT u.id, p.name
		FROM users u
		JOIN active_projects p ON u.project_id = p.id
		WHERE u.id IN (SELECT user_id FROM admin_users)`
		for _, dialect := range engineDialects {
			tr, err := New(query, dialect)
			require.NoError(t, err, "dialect %s", dialect)
			assert.True(t, tr.IsReadOnly(), "dialect %s", dialect)
		}
	})
}

func TestAddPagination(t *testing.T) {
	for _, dialect := range engineDialects {
		t.Run(dialect, func(t *testing.T) {
			t.Run("adds limit without offset", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(10, 0))
				out := mustSQL(t, tr)
				containsSQL(t, out, "limit 10")
				containsSQL(t, out, "users")
				notContainsSQL(t, out, "offset")
			})

			t.Run("adds limit and offset", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(10, 5))
				out := mustSQL(t, tr)
				containsSQL(t, out, "limit 10")
				containsSQL(t, out, "5")
				assert.Equal(t, 1, countSQL(out, "offset"), out)
			})

			t.Run("tightens a looser existing limit", func(t *testing.T) {
				tr, err := New("SELECT * FROM users LIMIT 100", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(10, 0))
				out := mustSQL(t, tr)
				containsSQL(t, out, "limit 10")
				notContainsSQL(t, out, "100")
			})

			t.Run("keeps a tighter existing limit", func(t *testing.T) {
				tr, err := New("SELECT * FROM users LIMIT 5", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(10, 0))
				out := mustSQL(t, tr)
				containsSQL(t, out, "limit 5")
				notContainsSQL(t, out, "10")
			})

			t.Run("keeps existing limit while applying offset", func(t *testing.T) {
				tr, err := New("SELECT * FROM users LIMIT 10", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(20, 5))
				out := mustSQL(t, tr)
				containsSQL(t, out, "limit 10")
				containsSQL(t, out, "5")
				assert.Equal(t, 1, countSQL(out, "offset"), out)
			})

			t.Run("replaces existing offset", func(t *testing.T) {
				tr, err := New("SELECT * FROM users LIMIT 10 OFFSET 20", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(15, 5))
				out := mustSQL(t, tr)
				notContainsSQL(t, out, "20")
				containsSQL(t, out, "5")
			})

			t.Run("negative limit rejected", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				var pagErr *InvalidPaginationError
				assert.ErrorAs(t, tr.AddPagination(-1, 0), &pagErr)
			})

			t.Run("negative offset rejected", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				var pagErr *InvalidPaginationError
				assert.ErrorAs(t, tr.AddPagination(10, -1), &pagErr)
			})

			t.Run("non-SELECT is a no-op", func(t *testing.T) {
				tr, err := New("UPDATE users SET name = 'x'", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(10, 0))
				notContainsSQL(t, mustSQL(t, tr), "limit")
			})

			t.Run("complex query with joins", func(t *testing.T) {
				query := `SELECT u.id, u.name, p.title
					FROM users u
					JOIN projects p ON u.project_id = p.id
					WHERE u.active = true AND p.status = 'ongoing'
					ORDER BY u.name`
				tr, err := New(query, dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(25, 10))
				out := mustSQL(t, tr)
				containsSQL(t, out, "limit 25")
				containsSQL(t, out, "join")
				containsSQL(t, out, "order by")
			})

			t.Run("only the top level is paginated", func(t *testing.T) {
				query := `SELECT * FROM users u WHERE u.id IN (
					SELECT user_id FROM user_roles WHERE role = 'admin' LIMIT 5
				)`
				tr, err := New(query, dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddPagination(10, 2))
				out := mustSQL(t, tr)
				containsSQL(t, out, "limit 10")
				containsSQL(t, out, "limit 5")
				assert.Equal(t, 2, countSQL(out, "limit"), out)
			})
		})
	}

	t.Run("CTE limits survive top-level pagination", func(t *testing.T) {
		query := `WITH recent_users AS (
			SELECT * FROM users WHERE created_at > '2023-01-01' LIMIT 20
		),
		top_projects AS (
			SELECT * FROM projects ORDER BY priority DESC LIMIT 3
		)
		SELECT u.name, p.title
		FROM recent_users u
		JOIN top_projects p ON u.project_id = p.id`
		for _, dialect := range engineDialects {
			tr, err := New(query, dialect)
			require.NoError(t, err, "dialect %s", dialect)
			require.NoError(t, tr.AddPagination(5, 0))
			out := mustSQL(t, tr)
			assert.Equal(t, 1, countSQL(out, "limit 5"), out)
			containsSQL(t, out, "limit 20")
			containsSQL(t, out, "limit 3")
			assert.Equal(t, 3, countSQL(out, "limit"), out)
		}
	})

	t.Run("round trip stays read-only", func(t *testing.T) {
		for _, dialect := range engineDialects {
			tr, err := New("SELECT * FROM users WHERE active = true", dialect)
			require.NoError(t, err)
			require.NoError(t, tr.AddPagination(7, 3))
			again, err := New(mustSQL(t, tr), dialect)
			require.NoError(t, err, "dialect %s", dialect)
			assert.True(t, again.IsReadOnly())
		}
	})
}

func TestToCountQuery(t *testing.T) {
	for _, dialect := range engineDialects {
		t.Run(dialect, func(t *testing.T) {
			t.Run("wraps a simple select", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				out, err := tr.ToCountQuery()
				require.NoError(t, err)
				containsSQL(t, out, "count(*)")
				containsSQL(t, out, "count_subquery")
				containsSQL(t, out, "users")
			})

			t.Run("strips limit and offset", func(t *testing.T) {
				tr, err := New("SELECT * FROM users LIMIT 10 OFFSET 5", dialect)
				require.NoError(t, err)
				out, err := tr.ToCountQuery()
				require.NoError(t, err)
				containsSQL(t, out, "count(*)")
				notContainsSQL(t, out, "limit")
				notContainsSQL(t, out, "offset")
			})

			t.Run("preserves joins and where", func(t *testing.T) {
				query := `SELECT u.id, u.name, p.title
					FROM users u
					JOIN projects p ON u.project_id = p.id
					WHERE u.active = true
					ORDER BY u.name
					LIMIT 25`
				tr, err := New(query, dialect)
				require.NoError(t, err)
				out, err := tr.ToCountQuery()
				require.NoError(t, err)
				containsSQL(t, out, "count(*)")
				containsSQL(t, out, "join")
				notContainsSQL(t, out, "limit")
			})

			t.Run("preserves group by", func(t *testing.T) {
				tr, err := New("SELECT department, COUNT(*) FROM employees GROUP BY department", dialect)
				require.NoError(t, err)
				out, err := tr.ToCountQuery()
				require.NoError(t, err)
				containsSQL(t, out, "group by")
				containsSQL(t, out, "count_subquery")
			})

			t.Run("non-SELECT counts zero", func(t *testing.T) {
				tr, err := New("UPDATE users SET name = 'x'", dialect)
				require.NoError(t, err)
				out, err := tr.ToCountQuery()
				require.NoError(t, err)
				assert.Equal(t, "SELECT 0 AS count_total", out)
			})

			t.Run("does not disturb the statement", func(t *testing.T) {
				tr, err := New("SELECT * FROM users LIMIT 10", dialect)
				require.NoError(t, err)
				_, err = tr.ToCountQuery()
				require.NoError(t, err)
				containsSQL(t, mustSQL(t, tr), "limit 10")
			})
		})
	}

	t.Run("preserves CTEs", func(t *testing.T) {
		query := `WITH active_users AS (
			SELECT * FROM users WHERE active = true
		)
		SELECT u.name, p.title
		FROM active_users u
		JOIN projects p ON u.project_id = p.id`
		for _, dialect := range engineDialects {
			tr, err := New(query, dialect)
			require.NoError(t, err, "dialect %s", dialect)
			out, err := tr.ToCountQuery()
			require.NoError(t, err)
			containsSQL(t, out, "count(*)")
			containsSQL(t, out, "active_users")
			containsSQL(t, out, "join")
		}
	})
}

func TestAddWhereCondition(t *testing.T) {
	for _, dialect := range engineDialects {
		t.Run(dialect, func(t *testing.T) {
			t.Run("attaches to query without WHERE", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddWhereCondition("active = 1"))
				out := mustSQL(t, tr)
				containsSQL(t, out, "where")
				containsSQL(t, out, "active")
			})

			t.Run("ANDs with existing WHERE", func(t *testing.T) {
				tr, err := New("SELECT * FROM users WHERE id > 10", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddWhereCondition("active = 1"))
				out := mustSQL(t, tr)
				containsSQL(t, out, "and")
				containsSQL(t, out, "id > 10")
				containsSQL(t, out, "active")
			})

			t.Run("OR fragments keep their grouping", func(t *testing.T) {
				tr, err := New("SELECT * FROM objects WHERE relevance > 0", dialect)
				require.NoError(t, err)
				require.NoError(t, tr.AddWhereCondition("name IN ('users') OR object_type != 'table'"))
				again, err := New(mustSQL(t, tr), dialect)
				require.NoError(t, err)
				assert.True(t, again.IsReadOnly())
			})

			t.Run("malformed fragment rejected", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				var invalidErr *InvalidSQLError
				assert.ErrorAs(t, tr.AddWhereCondition("((("), &invalidErr)
			})

			t.Run("non-SELECT is a no-op", func(t *testing.T) {
				tr, err := New("DROP TABLE users", dialect)
				require.NoError(t, err)
				assert.NoError(t, tr.AddWhereCondition("active = 1"))
			})
		})
	}
}

func TestValidateTableAccess(t *testing.T) {
	for _, dialect := range engineDialects {
		t.Run(dialect, func(t *testing.T) {
			t.Run("allowed table passes", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				assert.NoError(t, tr.ValidateTableAccess([]string{"users", "products"}, nil))
			})

			t.Run("table outside the allow list fails", func(t *testing.T) {
				tr, err := New("SELECT * FROM logs", dialect)
				require.NoError(t, err)
				err = tr.ValidateTableAccess([]string{"users", "products"}, nil)
				var accessErr *TableAccessError
				require.ErrorAs(t, err, &accessErr)
				assert.Equal(t, "logs", accessErr.Table)
				assert.Contains(t, err.Error(), "not in the allowed list")
			})

			t.Run("deny list passes unrelated tables", func(t *testing.T) {
				tr, err := New("SELECT * FROM users", dialect)
				require.NoError(t, err)
				assert.NoError(t, tr.ValidateTableAccess(nil, []string{"logs", "temp"}))
			})

			t.Run("denied table fails", func(t *testing.T) {
				tr, err := New("SELECT * FROM logs", dialect)
				require.NoError(t, err)
				err = tr.ValidateTableAccess(nil, []string{"logs", "temp"})
				var accessErr *TableAccessError
				require.ErrorAs(t, err, &accessErr)
				assert.Equal(t, "logs", accessErr.Table)
				assert.Contains(t, err.Error(), "in the excluded list")
			})

			t.Run("joined tables are all checked", func(t *testing.T) {
				query := "SELECT u.name, o.total FROM users u JOIN orders o ON u.id = o.user_id"
				tr, err := New(query, dialect)
				require.NoError(t, err)
				assert.NoError(t, tr.ValidateTableAccess([]string{"users", "orders", "products"}, nil))

				tr, err = New(query, dialect)
				require.NoError(t, err)
				err = tr.ValidateTableAccess([]string{"users", "products"}, nil)
				var accessErr *TableAccessError
				require.ErrorAs(t, err, &accessErr)
				assert.Equal(t, "orders", accessErr.Table)
			})

			t.Run("comparison is case-insensitive", func(t *testing.T) {
				tr, err := New("SELECT * FROM Users", dialect)
				require.NoError(t, err)
				assert.NoError(t, tr.ValidateTableAccess([]string{"USERS"}, nil))
			})

			t.Run("no restrictions is a no-op", func(t *testing.T) {
				tr, err := New("SELECT * FROM anything", dialect)
				require.NoError(t, err)
				assert.NoError(t, tr.ValidateTableAccess(nil, nil))
			})

			t.Run("subquery tables are checked", func(t *testing.T) {
				tr, err := New("SELECT * FROM users WHERE id IN (SELECT user_id FROM logs)", dialect)
				require.NoError(t, err)
				err = tr.ValidateTableAccess([]string{"users"}, nil)
				var accessErr *TableAccessError
				require.ErrorAs(t, err, &accessErr)
				assert.Equal(t, "logs", accessErr.Table)
			})
		})
	}

	t.Run("CTE names are not treated as tables", func(t *testing.T) {
		query := `WITH recent AS (SELECT * FROM users)
			SELECT * FROM recent`
		for _, dialect := range engineDialects {
			tr, err := New(query, dialect)
			require.NoError(t, err, "dialect %s", dialect)
			assert.NoError(t, tr.ValidateTableAccess([]string{"users"}, nil), "dialect %s", dialect)
		}
	})
}

func TestMapDialect(t *testing.T) {
	cases := map[string]Dialect{
		"postgres":   DialectPostgres,
		"postgresql": DialectPostgres,
		"MySQL":      DialectMySQL,
		"mariadb":    DialectMySQL,
		"sqlite":     DialectSQLite,
		"sqlite3":    DialectSQLite,
		"mssql":      DialectMSSQL,
		"sqlserver":  DialectMSSQL,
		"snowflake":  DialectSnowflake,
		"wiggle":     DialectOther,
		"":           DialectOther,
	}
	for name, want := range cases {
		assert.Equal(t, want, MapDialect(name), "input %q", name)
	}
	assert.False(t, DialectOther.Supported())
	assert.True(t, DialectSnowflake.Supported())
}

func TestTransactSQLRendering(t *testing.T) {
	t.Run("pagination becomes an OFFSET FETCH window", func(t *testing.T) {
		tr, err := New("SELECT name FROM sys.tables ORDER BY name", "mssql")
		require.NoError(t, err)
		require.NoError(t, tr.AddPagination(10, 5))
		out := mustSQL(t, tr)
		containsSQL(t, out, "offset 5 rows fetch next 10 rows only")
		notContainsSQL(t, out, "limit")
		assert.NotContains(t, out, "`", out)
	})

	t.Run("window without ORDER BY gets a neutral ordering", func(t *testing.T) {
		tr, err := New("SELECT name FROM sys.tables", "mssql")
		require.NoError(t, err)
		require.NoError(t, tr.AddPagination(10, 0))
		out := mustSQL(t, tr)
		containsSQL(t, out, "order by (select null")
		containsSQL(t, out, "offset 0 rows fetch next 10 rows only")
	})

	t.Run("unquotable identifiers use double quotes", func(t *testing.T) {
		tr, err := New("SELECT t.`unit price` FROM catalog1.t", "mssql")
		require.NoError(t, err)
		out := mustSQL(t, tr)
		assert.Contains(t, out, `"unit price"`, out)
		assert.NotContains(t, out, "`", out)
	})

	t.Run("count query drops ordering and window", func(t *testing.T) {
		tr, err := New("SELECT name FROM sys.tables ORDER BY name LIMIT 10", "mssql")
		require.NoError(t, err)
		out, err := tr.ToCountQuery()
		require.NoError(t, err)
		containsSQL(t, out, "count_subquery")
		notContainsSQL(t, out, "order by")
		notContainsSQL(t, out, "limit")
		assert.NotContains(t, out, "`", out)
	})
}

func TestSnowflakeRendering(t *testing.T) {
	t.Run("offset renders as a trailing clause", func(t *testing.T) {
		tr, err := New("SELECT table_name FROM information_schema.tables", "snowflake")
		require.NoError(t, err)
		require.NoError(t, tr.AddPagination(10, 5))
		out := mustSQL(t, tr)
		containsSQL(t, out, "limit 10 offset 5")
		notContainsSQL(t, out, "limit 5, 10")
		assert.NotContains(t, out, "`", out)
	})

	t.Run("CONCAT calls survive the round trip", func(t *testing.T) {
		tr, err := New("SELECT CONCAT(table_schema, '.', table_name) AS descriptor FROM information_schema.tables", "snowflake")
		require.NoError(t, err)
		out := mustSQL(t, tr)
		containsSQL(t, out, "concat(table_schema, '.', table_name)")
		notContainsSQL(t, out, " or ")
	})
}
