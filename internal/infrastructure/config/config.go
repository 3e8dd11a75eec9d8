// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

const (
	// DefaultConfigDir is the directory name for tidstore configuration.
	DefaultConfigDir = ".tidstore"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDatabaseFile is the default SQLite database file name.
	DefaultDatabaseFile = "tidstore.db"
	// DefaultLockFile is the default id generator lock file name.
	DefaultLockFile = "tid.lock"
)

// Storage and cache backend names.
const (
	BackendSQLite   = "sqlite"
	BackendQdrant   = "qdrant"
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendNone     = "none"
)

var (
	// reNonIdentifier matches characters that aren't allowed in table names.
	reNonIdentifier = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
	// reColumnName matches valid mapped column names.
	reColumnName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	SQLite   SQLiteConfig    `yaml:"sqlite,omitempty"`
	Qdrant   QdrantConfig    `yaml:"qdrant,omitempty"`
	DynamoDB DynamoDBConfig  `yaml:"dynamodb,omitempty"`
	Storage  StorageConfig   `yaml:"storage,omitempty"`
	Cache    CacheConfig     `yaml:"cache,omitempty"`
	IDGen    IDGenConfig     `yaml:"idgen,omitempty"`
	Log      LogConfig       `yaml:"log,omitempty"`
	Columns  []ColumnMapping `yaml:"columns,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite database.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database. ":memory:" keeps
	// everything in process memory.
	Path            string `yaml:"path,omitempty"`
	StatementsTable string `yaml:"statements_table,omitempty"`
	CacheTable      string `yaml:"cache_table,omitempty"`
}

// QdrantConfig holds configuration for the Qdrant statement storage.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	// NodeID fills the node part of the point UUIDs derived from statement ids.
	NodeID uint64 `yaml:"node_id,omitempty"`
}

// DynamoDBConfig holds configuration for the DynamoDB entity cache.
type DynamoDBConfig struct {
	Table    string `yaml:"table,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// StorageConfig selects the statement storages.
type StorageConfig struct {
	// Default receives every statement whose predicate is not routed.
	Default string `yaml:"default,omitempty"`
	// Routes send statements with the listed predicates to another backend.
	Routes []StorageRoute `yaml:"routes,omitempty"`
	// Legacy backends are read but never written, for migrations.
	Legacy []string `yaml:"legacy,omitempty"`
}

// StorageRoute sends the statements of some predicates to a backend.
type StorageRoute struct {
	Backend    string  `yaml:"backend"`
	Predicates []int64 `yaml:"predicates"`
}

// CacheConfig selects and tunes the entity data cache.
type CacheConfig struct {
	Backend  string        `yaml:"backend,omitempty"`
	TTL      time.Duration `yaml:"ttl,omitempty"`
	DataID   string        `yaml:"data_id,omitempty"`
	Compress bool          `yaml:"compress,omitempty"`
}

// IDGenConfig holds configuration for the TID generator.
type IDGenConfig struct {
	// LockFile serializes id generation across processes on one host.
	LockFile string `yaml:"lock_file,omitempty"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// ColumnMapping promotes one metadata predicate to a dedicated column of
// the statements table.
type ColumnMapping struct {
	Column    string `yaml:"column"`
	Predicate int64  `yaml:"predicate"`
	// Cancellation selects cancellation metadata instead of statement metadata.
	Cancellation bool `yaml:"cancellation,omitempty"`
	// Kind is entity, string, number or timestamp.
	Kind string `yaml:"kind"`
}

// ObjectKind returns the object kind the column stores.
func (m ColumnMapping) ObjectKind() (entities.ObjectKind, error) {
	switch strings.ToLower(m.Kind) {
	case "entity":
		return entities.ObjectEntity, nil
	case "string":
		return entities.ObjectString, nil
	case "number":
		return entities.ObjectNumber, nil
	case "timestamp":
		return entities.ObjectTimestamp, nil
	default:
		return entities.ObjectNone, fmt.Errorf("column %s: unknown kind %q", m.Column, m.Kind)
	}
}

// DefaultColumns returns the qualifier columns used when none are configured.
func DefaultColumns() []ColumnMapping {
	return []ColumnMapping{
		{Column: "author", Predicate: int64(entities.PredicateStatementAuthor), Kind: "entity"},
		{Column: "timestamp", Predicate: int64(entities.PredicateStatementTimestamp), Kind: "timestamp"},
		{Column: "editorialNote", Predicate: int64(entities.PredicateStatementEditorialNote), Kind: "string"},
		{Column: "lang", Predicate: int64(entities.PredicateObjectLang), Kind: "string"},
		{Column: "cancelledBy", Predicate: int64(entities.PredicateCancelledBy), Cancellation: true, Kind: "entity"},
		{Column: "cancellationTs", Predicate: int64(entities.PredicateCancellationTimestamp), Cancellation: true, Kind: "timestamp"},
	}
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		SQLite: SQLiteConfig{
			StatementsTable: "statements",
			CacheTable:      "entity_cache",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "tidstore_statements",
		},
		DynamoDB: DynamoDBConfig{
			Table: "tidstore-entity-cache",
		},
		Storage: StorageConfig{
			Default: BackendSQLite,
		},
		Cache: CacheConfig{
			Backend: BackendMemory,
			TTL:     24 * time.Hour,
			DataID:  "v1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Columns: DefaultColumns(),
	}
}

// Load loads configuration from the .tidstore directory in the given path.
// Relative file paths in the config are resolved against that directory.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'tidstore init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(ConfigDir(basePath))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("TIDSTORE_SQLITE_PATH"); path != "" {
		c.SQLite.Path = path
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		if c.Qdrant.APIKey == "" {
			c.Qdrant.APIKey = key
		}
	}
	if endpoint := os.Getenv("TIDSTORE_DYNAMODB_ENDPOINT"); endpoint != "" {
		c.DynamoDB.Endpoint = endpoint
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		if c.DynamoDB.Region == "" {
			c.DynamoDB.Region = region
		}
	}
}

func (c *Config) resolvePaths(configDir string) {
	if c.SQLite.Path == "" {
		c.SQLite.Path = filepath.Join(configDir, DefaultDatabaseFile)
	} else if c.SQLite.Path != ":memory:" && !filepath.IsAbs(c.SQLite.Path) {
		c.SQLite.Path = filepath.Join(configDir, c.SQLite.Path)
	}
	if c.IDGen.LockFile == "" {
		c.IDGen.LockFile = filepath.Join(configDir, DefaultLockFile)
	} else if !filepath.IsAbs(c.IDGen.LockFile) {
		c.IDGen.LockFile = filepath.Join(configDir, c.IDGen.LockFile)
	}
}

// Validate checks backend names and the column map.
func (c *Config) Validate() error {
	var errs []error

	storageBackends := map[string]bool{BackendSQLite: true, BackendQdrant: true, BackendMemory: true}
	if !storageBackends[c.Storage.Default] {
		errs = append(errs, fmt.Errorf("storage.default: unknown backend %q", c.Storage.Default))
	}
	routed := make(map[int64]string)
	for _, r := range c.Storage.Routes {
		if !storageBackends[r.Backend] {
			errs = append(errs, fmt.Errorf("storage.routes: unknown backend %q", r.Backend))
		}
		for _, p := range r.Predicates {
			if prev, ok := routed[p]; ok {
				if prev == r.Backend {
					errs = append(errs, fmt.Errorf("storage.routes: predicate %d listed twice for %s", p, prev))
				} else {
					errs = append(errs, fmt.Errorf("storage.routes: predicate %d routed to %s and %s", p, prev, r.Backend))
				}
			}
			routed[p] = r.Backend
		}
	}
	for _, l := range c.Storage.Legacy {
		if !storageBackends[l] {
			errs = append(errs, fmt.Errorf("storage.legacy: unknown backend %q", l))
		}
	}

	switch c.Cache.Backend {
	case BackendMemory, BackendDynamoDB, BackendSQLite, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}

	seen := make(map[string]bool, len(c.Columns))
	for _, m := range c.Columns {
		if !reColumnName.MatchString(m.Column) {
			errs = append(errs, fmt.Errorf("columns: invalid column name %q", m.Column))
		}
		if seen[m.Column] {
			errs = append(errs, fmt.Errorf("columns: duplicate column %q", m.Column))
		}
		seen[m.Column] = true
		if !entities.Tid(m.Predicate).Valid() {
			errs = append(errs, fmt.Errorf("columns: column %s has invalid predicate %d", m.Column, m.Predicate))
		}
		if _, err := m.ObjectKind(); err != nil {
			errs = append(errs, fmt.Errorf("columns: %w", err))
		}
	}

	return errors.Join(errs...)
}

// UsesBackend reports whether the storage configuration needs the backend.
func (c *Config) UsesBackend(name string) bool {
	if c.Storage.Default == name {
		return true
	}
	for _, r := range c.Storage.Routes {
		if r.Backend == name {
			return true
		}
	}
	for _, l := range c.Storage.Legacy {
		if l == name {
			return true
		}
	}
	return false
}

// ConfigDir returns the path to the .tidstore config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// Exists checks if a tidstore config exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}

// SanitizeTableName converts a name to a valid table or collection name.
func SanitizeTableName(name string) string {
	name = strings.ToLower(name)

	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	name = reNonIdentifier.ReplaceAllString(name, "")
	name = reMultipleUnderscores.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return "statements"
	}
	return name
}
