package artifact

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// MergePDF concatenates PDFs in order into one document.
func MergePDF(pdfs [][]byte) ([]byte, error) {
	if len(pdfs) == 0 {
		return nil, ErrNothingToMerge
	}
	if len(pdfs) == 1 {
		return pdfs[0], nil
	}
	rs := make([]io.ReadSeeker, len(pdfs))
	for i, p := range pdfs {
		rs[i] = bytes.NewReader(p)
	}
	var out bytes.Buffer
	if err := api.MergeRaw(rs, &out, false, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("artifact: merge pdf: %w", err)
	}
	return out.Bytes(), nil
}

// PageCount returns the number of pages of a PDF.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("artifact: page count: %w", err)
	}
	return n, nil
}
