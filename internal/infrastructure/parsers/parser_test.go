package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawCommand
	}{
		{
			name:  "single make",
			input: `[{"op": "make", "subject": "100", "predicate": "name", "object": "s:Averroes"}]`,
			expected: []RawCommand{
				{Op: "make", Subject: "100", Predicate: "name", Object: "s:Averroes", LineNum: 1},
			},
		},
		{
			name: "make and cancel with metadata",
			input: `[
				{"op": "cancel", "statement_id": "1712345678901", "metadata": ["cancelNote=s:typo"]},
				{"op": "make", "subject": "100", "predicate": "2003", "object": "Philosopher", "metadata": ["lang=s:en", "sequence=n:1"]}
			]`,
			expected: []RawCommand{
				{Op: "cancel", StatementID: "1712345678901", Metadata: []string{"cancelNote=s:typo"}, LineNum: 1},
				{Op: "make", Subject: "100", Predicate: "2003", Object: "Philosopher",
					Metadata: []string{"lang=s:en", "sequence=n:1"}, LineNum: 2},
			},
		},
		{
			name:     "empty array",
			input:    "[]",
			expected: []RawCommand{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &JSONParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestJSONParser_Parse_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "not json", input: "not json"},
		{name: "unknown field", input: `[{"op": "make", "subjekt": "100"}]`},
		{name: "numeric id", input: `[{"op": "cancel", "statement_id": 12}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &JSONParser{}
			_, err := parser.Parse(strings.NewReader(tt.input))
			assert.ErrorContains(t, err, "parsing JSON")
		})
	}
}

func TestCSVParser_Parse_ValidInput(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []RawCommand
	}{
		{
			name:  "make only",
			input: "op,subject,predicate,object\nmake,100,name,s:Averroes\n",
			expected: []RawCommand{
				{Op: "make", Subject: "100", Predicate: "name", Object: "s:Averroes", LineNum: 2},
			},
		},
		{
			name:     "empty CSV (header only)",
			input:    "op,subject,predicate,object\n",
			expected: nil,
		},
		{
			name:  "columns in different order",
			input: "object,predicate,subject,op\ns:Averroes,name,100,make\n",
			expected: []RawCommand{
				{Op: "make", Subject: "100", Predicate: "name", Object: "s:Averroes", LineNum: 2},
			},
		},
		{
			name: "repeated metadata columns and short rows",
			input: "op,statement_id,subject,predicate,object,metadata,metadata\n" +
				"make,,100,name,\"s:Ibn Rushd, the Commentator\",lang=s:en,\n" +
				"cancel,1712345678901\n",
			expected: []RawCommand{
				{Op: "make", Subject: "100", Predicate: "name", Object: "s:Ibn Rushd, the Commentator",
					Metadata: []string{"lang=s:en"}, LineNum: 2},
				{Op: "cancel", StatementID: "1712345678901", LineNum: 3},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			result, err := parser.Parse(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCSVParser_Parse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		errMsg string
	}{
		{
			name:   "missing op column",
			input:  "subject,predicate,object\n100,name,x\n",
			errMsg: "missing required column: op",
		},
		{
			name:   "duplicate column",
			input:  "op,subject,subject\nmake,1,2\n",
			errMsg: "duplicate column: subject",
		},
		{
			name:   "empty input",
			input:  "",
			errMsg: "reading CSV header",
		},
		{
			name:   "bad quoting",
			input:  "op,object\nmake,\"unterminated\n",
			errMsg: "line 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := &CSVParser{}
			_, err := parser.Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestForFormat(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFormat("json"))
	assert.IsType(t, &CSVParser{}, ForFormat("CSV"))
	assert.Nil(t, ForFormat("unknown"))
}

func TestForFile(t *testing.T) {
	assert.IsType(t, &JSONParser{}, ForFile("batch.json"))
	assert.IsType(t, &CSVParser{}, ForFile("edits.CSV"))
	assert.Nil(t, ForFile("file.txt"))
	assert.Nil(t, ForFile("noextension"))
}
