package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	// Drivers for the supported database types.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"

	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// UnknownDatabaseError reports a database name absent from configuration.
type UnknownDatabaseError struct {
	Name string
}

func (e *UnknownDatabaseError) Error() string {
	return fmt.Sprintf("database '%s' not found in configuration", e.Name)
}

// QueryError wraps a driver failure with the database it occurred on.
type QueryError struct {
	Database string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed on database '%s': %v", e.Database, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Result holds the rows of one executed query. Byte slice values are
// converted to strings so results serialize cleanly.
type Result struct {
	Columns []string
	Rows    [][]any
}

// RowMaps returns the rows keyed by column name, preserving row order.
func (r *Result) RowMaps() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		m := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			m[col] = row[i]
		}
		out = append(out, m)
	}
	return out
}

// Scalar returns the first value of the first row as an int64.
func (r *Result) Scalar() (int64, error) {
	if len(r.Rows) == 0 || len(r.Rows[0]) == 0 {
		return 0, fmt.Errorf("query returned no rows")
	}
	switch v := r.Rows[0][0].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		var n int64
		if _, err := fmt.Sscan(v, &n); err != nil {
			return 0, fmt.Errorf("scalar value %q is not numeric", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("scalar value of type %T is not numeric", v)
	}
}

// Manager owns the connection pools for all configured databases. Pools are
// opened lazily on first use and survive until Close or a reload that
// changed their configuration.
type Manager struct {
	mu         sync.RWMutex
	cfg        *Config
	configPath string
	pools      map[string]*sql.DB
	logger     *slog.Logger
}

// NewManager creates a Manager over a validated configuration.
func NewManager(cfg *Config, configPath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:        cfg,
		configPath: configPath,
		pools:      make(map[string]*sql.DB),
		logger:     logger,
	}
}

// ConfigPath returns the path the active configuration was loaded from.
func (m *Manager) ConfigPath() string {
	return m.configPath
}

// Settings returns the global operational limits.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Settings
}

// DatabaseNames returns the configured database names, sorted.
func (m *Manager) DatabaseNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.cfg.Databases))
	for name := range m.cfg.Databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatabaseConfig returns the entry for a database name, matched
// case-insensitively.
func (m *Manager) DatabaseConfig(name string) (*DatabaseConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lookupLocked(name)
}

func (m *Manager) lookupLocked(name string) (*DatabaseConfig, error) {
	if db, ok := m.cfg.Databases[name]; ok {
		return db, nil
	}
	for candidate, db := range m.cfg.Databases {
		if strings.EqualFold(candidate, name) {
			return db, nil
		}
	}
	return nil, &UnknownDatabaseError{Name: name}
}

// Dialect returns the SQL dialect of a configured database.
func (m *Manager) Dialect(name string) (sqltransform.Dialect, error) {
	db, err := m.DatabaseConfig(name)
	if err != nil {
		return sqltransform.DialectOther, err
	}
	return db.Dialect(), nil
}

// DefaultSchema returns the schema tools target when the caller gives none.
func (m *Manager) DefaultSchema(name string) (string, error) {
	db, err := m.DatabaseConfig(name)
	if err != nil {
		return "", err
	}
	return db.SchemaOrDefault(), nil
}

func (m *Manager) pool(name string) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.pools[name]; ok {
		return db, nil
	}

	dbCfg, err := m.lookupLocked(name)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dbCfg.DriverName(), dbCfg.DSN())
	if err != nil {
		return nil, &QueryError{Database: name, Err: err}
	}
	m.pools[name] = db
	m.logger.Debug("opened connection pool", "database", name, "type", dbCfg.Type)
	return db, nil
}

// Execute runs a query and materializes all rows. Callers are responsible
// for constraining the query to read-only statements before calling.
func (m *Manager) Execute(ctx context.Context, database, query string) (*Result, error) {
	db, err := m.pool(database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.Settings().Timeout())
	defer cancel()

	m.logger.Debug("executing query", "database", database, "query", query)

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, &QueryError{Database: database, Err: err}
	}
	defer func() { _ = rows.Close() }()

	result, err := collectRows(rows)
	if err != nil {
		return nil, &QueryError{Database: database, Err: err}
	}
	return result, nil
}

// collectRows materializes a result set. Driver []byte values are converted
// to strings so rows survive past the cursor.
func collectRows(rows *sql.Rows) (*Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Scalar runs a query expected to return a single numeric value.
func (m *Manager) Scalar(ctx context.Context, database, query string) (int64, error) {
	result, err := m.Execute(ctx, database, query)
	if err != nil {
		return 0, err
	}
	n, err := result.Scalar()
	if err != nil {
		return 0, &QueryError{Database: database, Err: err}
	}
	return n, nil
}

// Ping verifies a database is reachable.
func (m *Manager) Ping(ctx context.Context, database string) error {
	db, err := m.pool(database)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.Settings().Timeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return &QueryError{Database: database, Err: err}
	}
	return nil
}

// ReloadResult lists the databases affected by a configuration reload.
type ReloadResult struct {
	Added    []string
	Removed  []string
	Modified []string
}

// Reload re-reads the configuration file and swaps it in. Pools of removed
// or modified databases are closed so they reconnect with fresh settings.
func (m *Manager) Reload() (*ReloadResult, error) {
	newCfg, err := LoadConfig(m.configPath)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := &ReloadResult{}
	for name := range newCfg.Databases {
		if _, ok := m.cfg.Databases[name]; !ok {
			result.Added = append(result.Added, name)
		}
	}
	for name, oldDB := range m.cfg.Databases {
		newDB, ok := newCfg.Databases[name]
		if !ok {
			result.Removed = append(result.Removed, name)
			continue
		}
		if !oldDB.Equal(newDB) {
			result.Modified = append(result.Modified, name)
		}
	}
	sort.Strings(result.Added)
	sort.Strings(result.Removed)
	sort.Strings(result.Modified)

	for _, name := range append(result.Removed, result.Modified...) {
		if db, ok := m.pools[name]; ok {
			if err := db.Close(); err != nil {
				m.logger.Warn("closing stale pool", "database", name, "error", err)
			}
			delete(m.pools, name)
		}
	}

	m.cfg = newCfg
	m.logger.Info("configuration reloaded",
		"added", len(result.Added),
		"removed", len(result.Removed),
		"modified", len(result.Modified))
	return result, nil
}

// Close releases every open connection pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, db := range m.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.pools, name)
	}
	return firstErr
}
