package tabular

import "strings"

// Row is one record of tabular input, keyed by header name.
// Keys are compared by exact string equality.
type Row map[string]string

// Clone returns an independent copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// With returns a copy of r with key set to value. r is left untouched.
func (r Row) With(key, value string) Row {
	out := r.Clone()
	out[key] = value
	return out
}

// Blank reports whether every value in r is empty after trimming.
func (r Row) Blank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Table is the parsed form of a data upload: an ordered header list and
// the rows that follow it, in input order.
type Table struct {
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// HasHeader reports whether name is one of the table headers.
func (t *Table) HasHeader(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// Summary describes a table without its row contents.
type Summary struct {
	Headers   []string `json:"headers"`
	RowCount  int      `json:"row_count"`
	EmptyRows int      `json:"empty_rows"`
}

// Summary counts rows and blank rows.
func (t *Table) Summary() Summary {
	s := Summary{Headers: t.Headers, RowCount: len(t.Rows)}
	for _, r := range t.Rows {
		if r.Blank() {
			s.EmptyRows++
		}
	}
	return s
}
