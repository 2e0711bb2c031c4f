package schema

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledgerline/invoice2csv/internal/common"
)

// Column is one CSV template header annotated with its inferred semantics.
// The column set is produced once per run and immutable thereafter.
type Column struct {
	Header          string   `json:"header"`
	SemanticMeaning string   `json:"semantic_meaning"`
	DataType        string   `json:"data_type"`
	ExpectedFormat  string   `json:"expected_format,omitempty"`
	Aliases         []string `json:"aliases,omitempty"`
}

// Template is the parsed CSV template plus its inferred schema.
type Template struct {
	Headers []string `json:"headers"`
	Columns []Column `json:"schema"`
}

// ReadTemplateHeaders reads only the header row of a CSV template.
func ReadTemplateHeaders(path string) ([]string, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		return nil, common.NewAppError("TEMPLATE_ERROR", fmt.Sprintf("file is not a CSV: %s", path), common.ErrInvalidInput)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	headers, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read template header row: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	if len(headers) == 0 || (len(headers) == 1 && headers[0] == "") {
		return nil, common.NewAppError("TEMPLATE_ERROR", "CSV template has no headers", common.ErrInvalidInput)
	}
	return headers, nil
}

// DescribeColumns renders the schema as a human-readable block for the
// mapping prompt: one line per column with meaning, type and aliases.
func DescribeColumns(cols []Column) string {
	var b strings.Builder
	for _, col := range cols {
		b.WriteString("- ")
		b.WriteString(col.Header)
		if col.SemanticMeaning != "" {
			b.WriteString(" (meaning: ")
			b.WriteString(col.SemanticMeaning)
			b.WriteString(")")
		}
		if col.DataType != "" {
			b.WriteString(" [type: ")
			b.WriteString(col.DataType)
			b.WriteString("]")
		}
		if len(col.Aliases) > 0 {
			b.WriteString(" [aliases: ")
			b.WriteString(strings.Join(col.Aliases, ", "))
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	return b.String()
}
