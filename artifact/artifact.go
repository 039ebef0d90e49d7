// Package artifact turns generated documents into deliverables: PDF pages
// rendered by headless Chrome, a merged PDF, a Markdown preview, a ZIP
// bundle or plain files on disk.
//
// It knows nothing about batches; callers pass names and bytes.
package artifact

import "errors"

var (
	// ErrNothingToMerge is returned by MergePDF for an empty input.
	ErrNothingToMerge = errors.New("artifact: no PDF to merge")

	// ErrNoRenderer is returned when an HTML page must be printed and no
	// PDFRenderer is configured.
	ErrNoRenderer = errors.New("artifact: no HTML renderer configured")
)

// File is one named deliverable.
type File struct {
	Name    string
	Content []byte
}
