package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigYAML is the default configuration content.
const DefaultConfigYAML = `# tidstore configuration

sqlite:
  path: tidstore.db
  statements_table: statements
  cache_table: entity_cache

qdrant:
  host: localhost
  port: 6334
  collection: tidstore_statements
  # api_key: your-api-key (or set QDRANT_API_KEY env var)

dynamodb:
  table: tidstore-entity-cache
  # region: eu-central-1 (or set AWS_REGION env var)
  # endpoint: http://localhost:8000 (or set TIDSTORE_DYNAMODB_ENDPOINT env var)

storage:
  default: sqlite
  # routes:
  #   - backend: qdrant
  #     predicates: [2003]
  # legacy: []

cache:
  backend: memory
  ttl: 24h
  data_id: v1

idgen:
  lock_file: tid.lock

log:
  level: info
  format: console
`

// WriteDefault creates the .tidstore directory and writes a default config file.
func WriteDefault(basePath string) error {
	configDir := ConfigDir(basePath)
	configFile := filepath.Join(configDir, DefaultConfigFile)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists: %s", configFile)
	}

	if err := os.WriteFile(configFile, []byte(DefaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Write writes the given config to the config file.
func Write(basePath string, cfg *Config) error {
	configDir := ConfigDir(basePath)
	configFile := filepath.Join(configDir, DefaultConfigFile)

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
