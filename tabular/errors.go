package tabular

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedHeaders is returned when the header row is missing, or holds
// an empty or duplicate name.
var ErrMalformedHeaders = errors.New("tabular: malformed headers")

// ErrEmptyInput is returned when the input holds no data rows.
var ErrEmptyInput = errors.New("tabular: no data rows")

// ErrTooManyRows is returned by CheckRowLimit when a table exceeds the cap.
var ErrTooManyRows = errors.New("tabular: too many rows")

// ErrUnsupportedFormat is returned for data files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("tabular: unsupported format")

// ErrInvalidSpreadsheet is returned when an .xlsx payload cannot be decoded.
var ErrInvalidSpreadsheet = errors.New("tabular: invalid spreadsheet")

// HeaderError carries the offending header row. It matches ErrMalformedHeaders.
type HeaderError struct {
	Headers []string
	Reason  string
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("tabular: malformed headers [%s]: %s", strings.Join(e.Headers, ", "), e.Reason)
}

func (e *HeaderError) Unwrap() error { return ErrMalformedHeaders }

// RowLimitError reports a row count above the configured cap. It matches ErrTooManyRows.
type RowLimitError struct {
	Rows int
	Max  int
}

func (e *RowLimitError) Error() string {
	return fmt.Sprintf("tabular: %d rows exceeds the limit of %d", e.Rows, e.Max)
}

func (e *RowLimitError) Unwrap() error { return ErrTooManyRows }

// CheckRowLimit rejects n rows when max is positive and n exceeds it.
func CheckRowLimit(n, max int) error {
	if max > 0 && n > max {
		return &RowLimitError{Rows: n, Max: max}
	}
	return nil
}
