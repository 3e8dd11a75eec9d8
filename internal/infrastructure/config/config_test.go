package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ersonp/tidstore/internal/domain/entities"
)

func TestSanitizeTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "statements",
			expected: "statements",
		},
		{
			name:     "uppercase converted",
			input:    "Statements",
			expected: "statements",
		},
		{
			name:     "spaces and hyphens to underscores",
			input:    "legacy statements-v2",
			expected: "legacy_statements_v2",
		},
		{
			name:     "special characters removed",
			input:    "stmts;drop",
			expected: "stmtsdrop",
		},
		{
			name:     "consecutive underscores collapsed",
			input:    "a--b",
			expected: "a_b",
		},
		{
			name:     "empty string returns default",
			input:    "",
			expected: "statements",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeTableName(tt.input))
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, BackendSQLite, cfg.Storage.Default)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "v1", cfg.Cache.DataID)
	assert.Equal(t, "localhost", cfg.Qdrant.Host)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Len(t, cfg.Columns, 6)
	assert.NoError(t, cfg.Validate())
}

func TestConfigFilePath(t *testing.T) {
	assert.Equal(t, "/home/user/project/.tidstore", ConfigDir("/home/user/project"))
	assert.Equal(t, "/home/user/project/.tidstore/config.yaml", ConfigFilePath("/home/user/project"))
}

func TestLoad(t *testing.T) {
	t.Run("missing config", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.ErrorContains(t, err, "config file not found")
	})

	t.Run("default file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteDefault(dir))
		assert.True(t, Exists(dir))

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, DefaultConfigDir, "tidstore.db"), cfg.SQLite.Path)
		assert.Equal(t, filepath.Join(dir, DefaultConfigDir, "tid.lock"), cfg.IDGen.LockFile)
		assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
		assert.Len(t, cfg.Columns, 6, "default columns survive when the file has none")
	})

	t.Run("write default twice fails", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteDefault(dir))
		assert.Error(t, WriteDefault(dir))
	})

	t.Run("custom columns and routes", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, `
storage:
  default: sqlite
  routes:
    - backend: qdrant
      predicates: [2003, 2004]
cache:
  backend: dynamodb
  ttl: 90s
columns:
  - column: author
    predicate: 3001
    kind: entity
`)
		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
		assert.True(t, cfg.UsesBackend(BackendQdrant))
		assert.False(t, cfg.UsesBackend(BackendMemory))
		require.Len(t, cfg.Columns, 1)
		kind, err := cfg.Columns[0].ObjectKind()
		require.NoError(t, err)
		assert.Equal(t, entities.ObjectEntity, kind)
	})

	t.Run("env overrides", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, WriteDefault(dir))
		t.Setenv("TIDSTORE_SQLITE_PATH", ":memory:")
		t.Setenv("QDRANT_API_KEY", "secret")
		t.Setenv("TIDSTORE_DYNAMODB_ENDPOINT", "http://localhost:8000")
		t.Setenv("AWS_REGION", "eu-central-1")

		cfg, err := Load(dir)
		require.NoError(t, err)
		assert.Equal(t, ":memory:", cfg.SQLite.Path)
		assert.Equal(t, "secret", cfg.Qdrant.APIKey)
		assert.Equal(t, "http://localhost:8000", cfg.DynamoDB.Endpoint)
		assert.Equal(t, "eu-central-1", cfg.DynamoDB.Region)
	})

	t.Run("invalid file", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "storage: [not, a, map")
		_, err := Load(dir)
		assert.ErrorContains(t, err, "parsing config file")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "unknown default backend",
			mutate: func(c *Config) { c.Storage.Default = "mysql" },
			errMsg: "storage.default",
		},
		{
			name: "predicate routed twice",
			mutate: func(c *Config) {
				c.Storage.Routes = []StorageRoute{
					{Backend: BackendQdrant, Predicates: []int64{5}},
					{Backend: BackendMemory, Predicates: []int64{5}},
				}
			},
			errMsg: "routed to",
		},
		{
			name: "predicate listed twice for one backend",
			mutate: func(c *Config) {
				c.Storage.Routes = []StorageRoute{
					{Backend: BackendQdrant, Predicates: []int64{5}},
					{Backend: BackendQdrant, Predicates: []int64{6, 5}},
				}
			},
			errMsg: "predicate 5 listed twice for qdrant",
		},
		{
			name:   "unknown cache backend",
			mutate: func(c *Config) { c.Cache.Backend = "redis" },
			errMsg: "cache.backend",
		},
		{
			name:   "bad column name",
			mutate: func(c *Config) { c.Columns[0].Column = "1; DROP TABLE" },
			errMsg: "invalid column name",
		},
		{
			name:   "duplicate column",
			mutate: func(c *Config) { c.Columns[1].Column = c.Columns[0].Column },
			errMsg: "duplicate column",
		},
		{
			name:   "bad kind",
			mutate: func(c *Config) { c.Columns[0].Kind = "blob" },
			errMsg: "unknown kind",
		},
		{
			name:   "bad predicate",
			mutate: func(c *Config) { c.Columns[0].Predicate = 0 },
			errMsg: "invalid predicate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.errMsg)
		})
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Cache.Backend = BackendNone
	cfg.Cache.TTL = 5 * time.Minute

	require.NoError(t, Write(dir, cfg))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, BackendNone, loaded.Cache.Backend)
	assert.Equal(t, 5*time.Minute, loaded.Cache.TTL)
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(ConfigDir(dir), 0755))
	require.NoError(t, os.WriteFile(ConfigFilePath(dir), []byte(content), 0644))
}
