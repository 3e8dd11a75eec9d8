package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// CSVParser parses commands from CSV format.
type CSVParser struct{}

// Parse reads CSV from the reader and returns parsed commands.
// Columns: op (required), statement_id, subject, predicate, object and any
// number of metadata columns, each holding one predicate=object pair.
func (p *CSVParser) Parse(r io.Reader) ([]RawCommand, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	cols, err := p.readHeader(reader)
	if err != nil {
		return nil, err
	}

	return p.readRecords(reader, cols)
}

// csvColumns maps column names to their positions. Metadata may repeat.
type csvColumns struct {
	index    map[string]int
	metadata []int
}

// readHeader reads and validates the CSV header row.
func (p *CSVParser) readHeader(reader *csv.Reader) (csvColumns, error) {
	header, err := reader.Read()
	if err != nil {
		return csvColumns{}, fmt.Errorf("reading CSV header: %w", err)
	}

	cols := csvColumns{index: make(map[string]int)}
	for i, col := range header {
		if col == "metadata" {
			cols.metadata = append(cols.metadata, i)
			continue
		}
		if _, dup := cols.index[col]; dup {
			return csvColumns{}, fmt.Errorf("duplicate column: %s", col)
		}
		cols.index[col] = i
	}

	if _, ok := cols.index["op"]; !ok {
		return csvColumns{}, errors.New("missing required column: op")
	}

	return cols, nil
}

// readRecords reads all data rows and converts them to RawCommands.
func (p *CSVParser) readRecords(reader *csv.Reader, cols csvColumns) ([]RawCommand, error) {
	var cmds []RawCommand
	lineNum := 1 // Header is line 1

	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		cmds = append(cmds, p.parseRecord(record, cols, lineNum))
	}

	return cmds, nil
}

// parseRecord converts a CSV record to a RawCommand.
func (p *CSVParser) parseRecord(record []string, cols csvColumns, lineNum int) RawCommand {
	cmd := RawCommand{
		Op:          getColumn(record, cols.index, "op"),
		StatementID: getColumn(record, cols.index, "statement_id"),
		Subject:     getColumn(record, cols.index, "subject"),
		Predicate:   getColumn(record, cols.index, "predicate"),
		Object:      getColumn(record, cols.index, "object"),
		LineNum:     lineNum,
	}

	for _, idx := range cols.metadata {
		if idx < len(record) && record[idx] != "" {
			cmd.Metadata = append(cmd.Metadata, record[idx])
		}
	}

	return cmd
}

// getColumn safely retrieves a column value from a record.
func getColumn(record []string, colIndex map[string]int, col string) string {
	if idx, ok := colIndex[col]; ok && idx < len(record) {
		return record[idx]
	}
	return ""
}
