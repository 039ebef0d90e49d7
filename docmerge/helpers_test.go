package docmerge

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"testing"
)

type zipEntry struct {
	name string
	body string
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := io.WriteString(w, e.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readEntry(t *testing.T, pkg []byte, name string) string {
	t.Helper()
	s, err := entryText(pkg, name)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func entryText(pkg []byte, name string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(pkg), int64(len(pkg)))
	if err != nil {
		return "", fmt.Errorf("open output package: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		return string(b), err
	}
	return "", fmt.Errorf("entry %s not found", name)
}

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`

func docxBody(paragraphs string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		paragraphs +
		`</w:body></w:document>`
}

// buildDocx packages a document.xml body, plus optional extra parts.
func buildDocx(t *testing.T, paragraphs string, extra ...zipEntry) []byte {
	t.Helper()
	entries := []zipEntry{
		{"[Content_Types].xml", docxContentTypes},
		{"word/document.xml", docxBody(paragraphs)},
	}
	return buildZip(t, append(entries, extra...)...)
}

func odtContent(paragraphs string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
		`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0"><office:body><office:text>` +
		paragraphs +
		`</office:text></office:body></office:document-content>`
}

func buildODT(t *testing.T, paragraphs string, extra ...zipEntry) []byte {
	t.Helper()
	entries := []zipEntry{
		{"mimetype", "application/vnd.oasis.opendocument.text"},
		{"content.xml", odtContent(paragraphs)},
	}
	return buildZip(t, append(entries, extra...)...)
}
