package parsers

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONParser parses a JSON array of commands.
type JSONParser struct{}

// Parse reads JSON from the reader and returns parsed commands.
func (p *JSONParser) Parse(r io.Reader) ([]RawCommand, error) {
	var cmds []RawCommand

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cmds); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	// Set line numbers (array index + 1, 1-indexed)
	for i := range cmds {
		cmds[i].LineNum = i + 1
	}

	return cmds, nil
}
