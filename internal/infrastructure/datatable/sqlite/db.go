// Package sqlite provides a SQLite implementation of ports.DataTable.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ersonp/tidstore/internal/domain/ports"
	"github.com/ersonp/tidstore/internal/infrastructure/config"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

var reIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB is an open SQLite database holding any number of tables.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens the SQLite database.
func Open(cfg config.SQLiteConfig) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read/write performance
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &DB{db: db, path: cfg.Path}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Table creates the table and its indexes if they don't exist and returns a
// DataTable bound to it.
func (d *DB) Table(ctx context.Context, schema ports.TableSchema) (*Table, error) {
	if err := EnsureTable(ctx, d.db, schema); err != nil {
		return nil, err
	}
	return &Table{db: d.db, q: d.db, schema: schema}, nil
}

// EnsureTable creates the table described by schema if it doesn't exist.
func EnsureTable(ctx context.Context, db *sql.DB, schema ports.TableSchema) error {
	if !reIdentifier.MatchString(schema.Name) {
		return fmt.Errorf("invalid table name %q", schema.Name)
	}

	defs := []string{quote(ports.RowIDColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	var indexes []string
	for _, c := range schema.Columns {
		if !reIdentifier.MatchString(c.Name) || c.Name == ports.RowIDColumn {
			return fmt.Errorf("invalid column name %q", c.Name)
		}
		defs = append(defs, quote(c.Name)+" "+sqlType(c.Type))
		if c.Indexed {
			indexes = append(indexes, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
				quote("idx_"+schema.Name+"_"+c.Name), quote(schema.Name), quote(c.Name)))
		}
	}

	stmts := append([]string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", quote(schema.Name), strings.Join(defs, ",\n\t"))}, indexes...)
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating table %s: %w", schema.Name, err)
		}
	}
	return nil
}

func sqlType(t ports.ColumnType) string {
	switch t {
	case ports.ColumnInteger:
		return "INTEGER"
	case ports.ColumnReal:
		return "REAL"
	case ports.ColumnBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func quote(ident string) string {
	return `"` + ident + `"`
}
