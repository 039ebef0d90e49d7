package docmerge

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/docmerge/tabular"
)

var (
	// ErrNoPlaceholders is returned when a template holds no {name} token.
	ErrNoPlaceholders = errors.New("docmerge: no placeholders found")

	// ErrInvalidPackage is matched by every *PackageError.
	ErrInvalidPackage = errors.New("docmerge: invalid package structure")

	// ErrNoOverlap is matched by every *OverlapError.
	ErrNoOverlap = errors.New("docmerge: no placeholder matches a data header")

	// ErrUnsupportedFormat is returned for template files with an unknown extension.
	ErrUnsupportedFormat = errors.New("docmerge: unsupported template format")

	// ErrEmptyTemplate is returned for zero-length template uploads.
	ErrEmptyTemplate = errors.New("docmerge: empty template")

	// ErrTemplateTooLarge is returned when a template exceeds Config.MaxTemplateSize.
	ErrTemplateTooLarge = errors.New("docmerge: template too large")

	// ErrUnknownTemplate is returned by GenerateFromDefault for an unknown template id.
	ErrUnknownTemplate = errors.New("docmerge: unknown default template")

	// ErrMissingFields is matched by every *MissingFieldsError.
	ErrMissingFields = errors.New("docmerge: data is missing required fields")

	// ErrBatchNotFound is returned by stores when no batch has the requested id.
	ErrBatchNotFound = errors.New("docmerge: batch not found")

	// ErrDocumentNotFound is returned when a document id is not part of a batch.
	ErrDocumentNotFound = errors.New("docmerge: document not found")
)

// PackageError reports a corrupt archive or a missing required part.
// Part is empty when the archive itself could not be read.
type PackageError struct {
	Part string
	Err  error
}

func (e *PackageError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("docmerge: invalid package: %v", e.Err)
	}
	return fmt.Sprintf("docmerge: invalid package: %s: %v", e.Part, e.Err)
}

func (e *PackageError) Unwrap() error { return e.Err }

func (e *PackageError) Is(target error) bool { return target == ErrInvalidPackage }

// OverlapError carries both sides of a failed reconciliation.
type OverlapError struct {
	Placeholders []string
	Headers      []string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("docmerge: no placeholder matches a data header (placeholders: [%s], headers: [%s])",
		strings.Join(e.Placeholders, ", "), strings.Join(e.Headers, ", "))
}

func (e *OverlapError) Unwrap() error { return ErrNoOverlap }

// MissingFieldsError reports required fields of a built-in template that
// the data does not provide.
type MissingFieldsError struct {
	Missing  []string
	Required []string
	Headers  []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("docmerge: data is missing required fields [%s]", strings.Join(e.Missing, ", "))
}

func (e *MissingFieldsError) Unwrap() error { return ErrMissingFields }

// RowError is a row substitution failure. It fails the whole batch.
type RowError struct {
	Index int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("docmerge: row %d: %v", e.Index, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Error kinds reported to callers.
const (
	KindMalformedHeaders  = "malformed_headers"
	KindEmptyInput        = "empty_input"
	KindTooManyRows       = "too_many_rows"
	KindNoPlaceholders    = "no_placeholders"
	KindInvalidPackage    = "invalid_package"
	KindNoOverlap         = "no_overlap"
	KindMissingFields     = "missing_fields"
	KindRowFailed         = "row_failed"
	KindUnsupportedFormat = "unsupported_format"
	KindEmptyTemplate     = "empty_template"
	KindTemplateTooLarge  = "template_too_large"
	KindNotFound          = "not_found"
	KindInternal          = "internal"
)

// Kind maps err to its taxonomy kind. Unknown errors map to KindInternal.
func Kind(err error) string {
	var rowErr *RowError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rowErr):
		return KindRowFailed
	case errors.Is(err, tabular.ErrMalformedHeaders):
		return KindMalformedHeaders
	case errors.Is(err, tabular.ErrEmptyInput):
		return KindEmptyInput
	case errors.Is(err, tabular.ErrTooManyRows):
		return KindTooManyRows
	case errors.Is(err, ErrNoPlaceholders):
		return KindNoPlaceholders
	case errors.Is(err, ErrInvalidPackage):
		return KindInvalidPackage
	case errors.Is(err, ErrNoOverlap):
		return KindNoOverlap
	case errors.Is(err, ErrMissingFields):
		return KindMissingFields
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, tabular.ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrEmptyTemplate):
		return KindEmptyTemplate
	case errors.Is(err, ErrTemplateTooLarge):
		return KindTemplateTooLarge
	case errors.Is(err, ErrBatchNotFound), errors.Is(err, ErrDocumentNotFound), errors.Is(err, ErrUnknownTemplate):
		return KindNotFound
	default:
		return KindInternal
	}
}

// Details returns the structured detail of err for error bodies:
// the offending header row, both sides of a failed reconciliation,
// the missing package part, the row index or the row limit.
func Details(err error) map[string]any {
	var (
		he  *tabular.HeaderError
		rl  *tabular.RowLimitError
		oe  *OverlapError
		me  *MissingFieldsError
		pe  *PackageError
		row *RowError
	)
	d := map[string]any{}
	if errors.As(err, &row) {
		d["row"] = row.Index
	}
	switch {
	case errors.As(err, &he):
		d["headers"] = he.Headers
		d["reason"] = he.Reason
	case errors.As(err, &rl):
		d["rows"] = rl.Rows
		d["max_rows"] = rl.Max
	case errors.As(err, &oe):
		d["placeholders"] = oe.Placeholders
		d["headers"] = oe.Headers
	case errors.As(err, &me):
		d["missing"] = me.Missing
		d["required"] = me.Required
		d["headers"] = me.Headers
	case errors.As(err, &pe):
		if pe.Part != "" {
			d["part"] = pe.Part
		}
	}
	if len(d) == 0 {
		return nil
	}
	return d
}
