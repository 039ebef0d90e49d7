package tabular

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ParseCSV parses delimited text into a Table.
//
// Quoted fields may contain commas, quotes and newlines. A leading byte-order
// mark is honoured (UTF-8 or UTF-16) and stripped. Blank lines are skipped.
// Cells beyond the header count are ignored.
func ParseCSV(raw []byte) (*Table, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(transform.NewReader(bytes.NewReader(raw), dec))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("tabular: read csv: %w", err)
	}
	return fromRecords(records)
}
