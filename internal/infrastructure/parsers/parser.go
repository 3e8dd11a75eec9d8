// Package parsers reads batch command files.
//
// Commands are kept at the string level, in the same notation the command
// line uses for ids, objects and metadata pairs. Turning them into domain
// commands is up to the caller.
package parsers

import (
	"io"
	"path/filepath"
	"strings"
)

// RawCommand is one make or cancel command as read from a file.
type RawCommand struct {
	Op          string   `json:"op"`
	StatementID string   `json:"statement_id,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Predicate   string   `json:"predicate,omitempty"`
	Object      string   `json:"object,omitempty"`
	Metadata    []string `json:"metadata,omitempty"`
	LineNum     int      `json:"-"` // Line number in source file (set by parser)
}

// Parser defines the interface for parsing batch commands.
type Parser interface {
	Parse(r io.Reader) ([]RawCommand, error)
}

// ForFormat returns the appropriate parser for the given format.
// Supported formats: "json", "csv".
func ForFormat(format string) Parser {
	switch strings.ToLower(format) {
	case "json":
		return &JSONParser{}
	case "csv":
		return &CSVParser{}
	default:
		return nil
	}
}

// ForFile returns the appropriate parser based on file extension.
func ForFile(filename string) Parser {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".json":
		return &JSONParser{}
	case ".csv":
		return &CSVParser{}
	default:
		return nil
	}
}
