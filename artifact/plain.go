package artifact

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PlainPDF typesets plain text on A4 pages without a browser. Core fonts
// cover Latin-1; other characters are dropped by the font encoder.
func PlainPDF(text []byte, title string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	if title != "" {
		pdf.SetTitle(title, true)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 11)
	body := strings.ReplaceAll(string(text), "\r\n", "\n")
	pdf.MultiCell(0, 5.5, tr(body), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("artifact: plain pdf: %w", err)
	}
	return buf.Bytes(), nil
}
