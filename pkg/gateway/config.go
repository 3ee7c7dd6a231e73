// Package gateway manages named database connections and runs read-only
// queries against them on behalf of the MCP tools.
package gateway

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/mcp-sql-gateway/pkg/sqltransform"
)

// EnvConfigPath is consulted when no config flag is given.
const EnvConfigPath = "MCP_SQL_GATEWAY_CONFIG"

// ConfigurationError reports an invalid or unusable configuration.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func configErrorf(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// Config is the root configuration document.
type Config struct {
	Databases map[string]*DatabaseConfig `yaml:"databases"`
	Settings  Settings                   `yaml:"settings"`
}

// DatabaseConfig describes one named connection target.
type DatabaseConfig struct {
	Type             string   `yaml:"type"`
	Description      string   `yaml:"description"`
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	Database         string   `yaml:"database"`
	ConnectionString string   `yaml:"connection_string"`
	DefaultSchema    string   `yaml:"default_schema"`
	IncludeSchemas   []string `yaml:"include_schemas"`
	ExcludeSchemas   []string `yaml:"exclude_schemas"`
	AllowedTables    []string `yaml:"allowed_tables"`
	DisallowedTables []string `yaml:"disallowed_tables"`
}

// Settings holds the global operational limits. query_timeout is in
// seconds.
type Settings struct {
	MaxRowsPerQuery int      `yaml:"max_rows_per_query"`
	SampleSize      int      `yaml:"sample_size"`
	QueryTimeout    int      `yaml:"query_timeout"`
	AvailableTools  []string `yaml:"available_tools"`
}

// Timeout returns the query timeout as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.QueryTimeout) * time.Second
}

var driverByType = map[string]string{
	"postgresql": "postgres",
	"postgres":   "postgres",
	"mysql":      "mysql",
	"sqlite":     "sqlite",
	"mssql":      "sqlserver",
	"snowflake":  "snowflake",
}

var defaultPortByType = map[string]int{
	"postgresql": 5432,
	"postgres":   5432,
	"mysql":      3306,
	"mssql":      1433,
}

// LoadConfig reads, expands, and validates a configuration file.
// The path comes from command line arguments or well-known locations,
// controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Settings.MaxRowsPerQuery == 0 {
		c.Settings.MaxRowsPerQuery = 1000
	}
	if c.Settings.SampleSize == 0 {
		c.Settings.SampleSize = 10
	}
	if c.Settings.QueryTimeout == 0 {
		c.Settings.QueryTimeout = 30
	}
}

// Validate checks the whole document. Database names must be unique
// case-insensitively because tool callers are not expected to preserve case.
func (c *Config) Validate() error {
	if len(c.Databases) == 0 {
		return configErrorf("no databases configured")
	}

	names := make([]string, 0, len(c.Databases))
	for name := range c.Databases {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := map[string]bool{}
	for _, name := range names {
		folded := strings.ToLower(name)
		if seen[folded] {
			return configErrorf("%s is defined twice!", name)
		}
		seen[folded] = true

		if err := c.Databases[name].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single database entry.
func (d *DatabaseConfig) Validate() error {
	if _, ok := driverByType[d.Type]; !ok {
		return configErrorf("Unsupported database type: %s", d.Type)
	}

	if d.Type == "sqlite" {
		if d.ConnectionString == "" && d.Database == "" {
			return configErrorf("Either connection_string or database must be provided")
		}
	} else if d.ConnectionString == "" && (d.Host == "" || d.Database == "" || d.Username == "") {
		return configErrorf("Either connection_string or host/database/username must be provided")
	}

	if len(d.IncludeSchemas) > 0 && len(d.ExcludeSchemas) > 0 {
		return configErrorf("Cannot specify both include_schemas and exclude_schemas")
	}
	if len(d.AllowedTables) > 0 && len(d.DisallowedTables) > 0 {
		return configErrorf("Cannot specify both allowed_tables and disallowed_tables")
	}
	return nil
}

// Dialect maps the configured type onto a SQL dialect.
func (d *DatabaseConfig) Dialect() sqltransform.Dialect {
	return sqltransform.MapDialect(d.Type)
}

// Equal reports whether two entries are identical. Used by reload to
// decide which connection pools must be rebuilt.
func (d *DatabaseConfig) Equal(other *DatabaseConfig) bool {
	if other == nil {
		return false
	}
	a, errA := yaml.Marshal(d)
	b, errB := yaml.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// DriverName returns the database/sql driver registered for this type.
func (d *DatabaseConfig) DriverName() string {
	return driverByType[d.Type]
}

// DSN builds the driver connection string. An explicit connection_string
// always wins.
func (d *DatabaseConfig) DSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}

	port := d.Port
	if port == 0 {
		port = defaultPortByType[d.Type]
	}

	switch d.Type {
	case "postgresql", "postgres":
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(d.Username, d.Password),
			Host:   fmt.Sprintf("%s:%d", d.Host, port),
			Path:   d.Database,
		}
		return u.String()
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s", d.Username, d.Password, d.Host, port, d.Database)
	case "sqlite":
		return d.Database
	case "mssql":
		q := url.Values{}
		q.Set("database", d.Database)
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(d.Username, d.Password),
			Host:     fmt.Sprintf("%s:%d", d.Host, port),
			RawQuery: q.Encode(),
		}
		return u.String()
	case "snowflake":
		// Host is the snowflake account identifier.
		return fmt.Sprintf("%s:%s@%s/%s", d.Username, d.Password, d.Host, d.Database)
	}
	return ""
}

// SchemaOrDefault returns the schema tools should target when the caller
// gave none. Each engine has its own convention, mysql scopes objects by
// database name instead of schema.
func (d *DatabaseConfig) SchemaOrDefault() string {
	if d.DefaultSchema != "" {
		return d.DefaultSchema
	}
	switch d.Type {
	case "postgresql", "postgres":
		return "public"
	case "sqlite":
		return "main"
	case "mssql":
		return "dbo"
	case "snowflake":
		return "PUBLIC"
	case "mysql":
		return d.Database
	}
	return ""
}

// FindConfigFile resolves the configuration path, in order: the explicit
// flag value, the MCP_SQL_GATEWAY_CONFIG environment variable, config.yaml
// in the working directory, the XDG config directory, then the home
// directory.
func FindConfigFile(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}

	if env := os.Getenv(EnvConfigPath); env != "" {
		if _, err := os.Stat(env); err == nil {
			return env, nil
		}
	}

	cwd, err := os.Getwd()
	if err == nil {
		candidate := filepath.Join(cwd, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidate := filepath.Join(home, ".config", "mcp-sql-gateway", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		candidate = filepath.Join(home, "mcp-sql-gateway.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", configErrorf("config file not found")
}
