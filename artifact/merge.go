package artifact

import (
	"context"
	"fmt"
)

// Page is one document to print.
type Page struct {
	Title string
	Body  []byte
	Text  bool // Body is plain text, typeset without the browser
}

// RenderMerged prints every page in order and merges the results into one
// PDF. HTML pages go through r; text pages use PlainPDF, so r may be nil
// when every page is text.
func RenderMerged(ctx context.Context, r PDFRenderer, pages []Page) ([]byte, error) {
	pdfs := make([][]byte, 0, len(pages))
	for i, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pdf, err := renderPage(ctx, r, p)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pdfs = append(pdfs, pdf)
	}
	return MergePDF(pdfs)
}

func renderPage(ctx context.Context, r PDFRenderer, p Page) ([]byte, error) {
	if p.Text {
		return PlainPDF(p.Body, p.Title)
	}
	if r == nil {
		return nil, ErrNoRenderer
	}
	doc, err := PrepareHTML(p.Body, p.Title)
	if err != nil {
		return nil, err
	}
	return r.PDF(ctx, doc)
}
