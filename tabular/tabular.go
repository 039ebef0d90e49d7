// Package tabular turns uploaded row data into header-keyed records.
//
// Supported inputs:
//   - .csv  delimited text (encoding/csv: quoted fields, embedded commas and newlines)
//   - .xlsx spreadsheet (excelize, first sheet unless WithSheet is given)
//
// Both paths share one contract: the first row, trimmed, becomes the header
// list; every following non-blank line becomes a Row. Short rows are padded
// with empty strings.
//
// Usage:
//
//	tbl, err := tabular.Parse("people.csv", raw)
//	if errors.Is(err, tabular.ErrMalformedHeaders) { ... }
//	for _, row := range tbl.Rows {
//	    fmt.Println(row["name"])
//	}
package tabular

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a tabular input type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Detect returns the tabular format based on file extension.
func Detect(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// SupportedFormats returns all supported data file extensions.
func SupportedFormats() []string {
	return []string{"csv", "xlsx"}
}

type config struct {
	sheet string
}

// Option customises Parse behaviour.
type Option func(*config)

// WithSheet selects the spreadsheet sheet to read. Ignored for CSV.
func WithSheet(name string) Option { return func(c *config) { c.sheet = name } }

// Parse dispatches on the file extension of name and parses raw.
func Parse(name string, raw []byte, opts ...Option) (*Table, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}

	format, err := Detect(name)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatCSV:
		return ParseCSV(raw)
	case FormatXLSX:
		return ParseXLSX(raw, cfg.sheet)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// fromRecords applies the shared header/row rules to decoded records.
// Records that are entirely empty (zero cells) are skipped.
func fromRecords(records [][]string) (*Table, error) {
	start := 0
	for start < len(records) && len(records[start]) == 0 {
		start++
	}
	if start == len(records) {
		return nil, ErrEmptyInput
	}

	headers, err := headerSet(records[start])
	if err != nil {
		return nil, err
	}

	tbl := &Table{Headers: headers}
	for _, rec := range records[start+1:] {
		if len(rec) == 0 {
			continue
		}
		row := make(Row, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			} else {
				row[h] = ""
			}
		}
		tbl.Rows = append(tbl.Rows, row)
	}

	if len(tbl.Rows) == 0 {
		return nil, ErrEmptyInput
	}
	return tbl, nil
}

// headerSet trims the header cells and rejects empty or duplicate names.
func headerSet(cells []string) ([]string, error) {
	headers := make([]string, len(cells))
	seen := make(map[string]bool, len(cells))
	for i, c := range cells {
		h := strings.TrimSpace(c)
		if h == "" {
			return nil, &HeaderError{
				Headers: trimAll(cells),
				Reason:  fmt.Sprintf("empty header name in column %d", i+1),
			}
		}
		if seen[h] {
			return nil, &HeaderError{
				Headers: trimAll(cells),
				Reason:  fmt.Sprintf("duplicate header name %q", h),
			}
		}
		seen[h] = true
		headers[i] = h
	}
	return headers, nil
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
