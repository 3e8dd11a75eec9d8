package main

// legacySuffix is appended to the table or collection name a legacy
// storage reads from.
const legacySuffix = "_legacy"

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
)

// formatAuto picks the batch input format from the file extension.
const formatAuto = "auto"

// Valid output formats.
var validFormats = []string{formatText, formatJSON}
