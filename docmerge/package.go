package docmerge

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/hazyhaar/docmerge/tabular"
)

// maxPartSize caps the decompressed size of one templated XML part.
const maxPartSize = 100 << 20

var errPartMissing = errors.New("required part not found in archive")

// packageAdapter handles zip-packaged word-processor documents.
// Substitution happens inside the package: only the character content of
// text nodes is rewritten, every other byte and archive entry is kept.
type packageAdapter struct {
	format   Format
	dialect  *xmlDialect
	required string
	optional func(name string) bool
}

func (a *packageAdapter) Format() Format { return a.format }

func (a *packageAdapter) Prepare(raw []byte) (Prepared, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, &PackageError{Err: fmt.Errorf("open zip: %w", err)}
	}

	t := &packageTemplate{zr: zr, parts: make(map[string]*xmlPart)}
	var optional []string
	for _, f := range zr.File {
		switch {
		case f.Name == a.required:
		case a.optional != nil && a.optional(f.Name):
			optional = append(optional, f.Name)
		default:
			continue
		}
		part, err := readPart(f, a.dialect)
		if err != nil {
			return nil, err
		}
		t.parts[f.Name] = part
	}
	if _, ok := t.parts[a.required]; !ok {
		return nil, &PackageError{Part: a.required, Err: errPartMissing}
	}

	sort.Strings(optional)
	t.order = append([]string{a.required}, optional...)
	return t, nil
}

func readPart(f *zip.File, d *xmlDialect) (*xmlPart, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, &PackageError{Part: f.Name, Err: err}
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, &PackageError{Part: f.Name, Err: err}
	}
	if len(data) > maxPartSize {
		return nil, &PackageError{Part: f.Name, Err: fmt.Errorf("part exceeds %d bytes", maxPartSize)}
	}

	part, err := parseXMLPart(f.Name, data, d)
	if err != nil {
		return nil, &PackageError{Part: f.Name, Err: err}
	}
	return part, nil
}

type packageTemplate struct {
	zr    *zip.Reader
	parts map[string]*xmlPart
	order []string // required part first, then optional parts by name
}

func (t *packageTemplate) Text() string {
	var b bytes.Buffer
	for _, name := range t.order {
		text := t.parts[name].Text()
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(text)
	}
	return b.String()
}

// Placeholders scans each paragraph on its own: a token never spans two.
func (t *packageTemplate) Placeholders() []string {
	var names []string
	seen := make(map[string]bool)
	for _, name := range t.order {
		for _, g := range t.parts[name].groups {
			for _, n := range scanPlaceholders(g.text) {
				if !seen[n] {
					seen[n] = true
					names = append(names, n)
				}
			}
		}
	}
	return names
}

func (t *packageTemplate) Render(row tabular.Row, names []string) ([]byte, error) {
	allowed := nameSet(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range t.zr.File {
		part, ok := t.parts[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("copy %s: %w", f.Name, err)
			}
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   f.Method,
			Modified: f.Modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", f.Name, err)
		}
		if _, err := w.Write(part.render(row, allowed)); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}
