package docmerge

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/docmerge/tabular"
)

// DetectFormat returns the template format based on file extension.
func DetectFormat(name string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".docx", ".doc":
		return FormatDocx, nil
	case ".odt":
		return FormatODT, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".txt", ".text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// SupportedFormats returns all supported template extensions.
func SupportedFormats() []string {
	return []string{"html", "htm", "txt", "docx", "doc", "odt"}
}

// Adapter turns a template payload into a Prepared template.
type Adapter interface {
	Format() Format
	Prepare(raw []byte) (Prepared, error)
}

// Prepared is a decoded template. Render is safe for concurrent use.
type Prepared interface {
	// Text is the normalized text the placeholder extractor runs on.
	Text() string

	// Placeholders lists the placeholder names Render can substitute, in
	// first-occurrence order.
	Placeholders() []string

	// Render substitutes row into the template and re-serializes it.
	// A nil names slice substitutes every placeholder present.
	Render(row tabular.Row, names []string) ([]byte, error)
}

// AdapterFor returns the adapter of format f. esc applies to HTML only.
func AdapterFor(f Format, esc Escape) (Adapter, error) {
	switch f {
	case FormatHTML:
		return &plainAdapter{format: f, escape: esc}, nil
	case FormatText:
		return &plainAdapter{format: f, escape: EscapeNone}, nil
	case FormatDocx:
		return docxAdapter, nil
	case FormatODT:
		return odtAdapter, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Normalize decodes raw into the text the extractor runs on.
func Normalize(f Format, raw []byte) (string, error) {
	a, err := AdapterFor(f, EscapeNone)
	if err != nil {
		return "", err
	}
	p, err := a.Prepare(raw)
	if err != nil {
		return "", err
	}
	return p.Text(), nil
}

// Reserialize renders raw for one row with verbatim values.
func Reserialize(f Format, raw []byte, row tabular.Row) ([]byte, error) {
	a, err := AdapterFor(f, EscapeNone)
	if err != nil {
		return nil, err
	}
	p, err := a.Prepare(raw)
	if err != nil {
		return nil, err
	}
	return p.Render(row, nil)
}

func nameSet(names []string) map[string]bool {
	if names == nil {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}
