package docmerge

import (
	"time"

	"github.com/hazyhaar/docmerge/tabular"
)

// Format identifies a template type.
type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "txt"
	FormatDocx Format = "docx"
	FormatODT  Format = "odt"
)

// Packaged reports whether the format is a zip archive of XML parts.
func (f Format) Packaged() bool { return f == FormatDocx || f == FormatODT }

// FileType is the coarse type reported by template analysis.
func (f Format) FileType() string {
	if f.Packaged() {
		return string(f)
	}
	return "html/text"
}

// ContentType is the MIME type of a generated document in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatODT:
		return "application/vnd.oasis.opendocument.text"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Ext is the file extension used for generated documents, with the dot.
func (f Format) Ext() string { return "." + string(f) }

// Template is an uploaded template payload. Raw is never modified.
type Template struct {
	ID     string `json:"id,omitempty"` // default template id, empty for uploads
	Name   string `json:"name"`
	Format Format `json:"format"`
	Raw    []byte `json:"-"`

	// Fields, when set, is the placeholder set of the template. It replaces
	// extraction, so brace runs outside it (CSS rules) are left alone.
	Fields []string `json:"fields,omitempty"`
}

// Reconciliation is the placeholder/header comparison of a batch.
// Both lists keep the placeholder first-occurrence order.
type Reconciliation struct {
	Matched   []string `json:"matched"`
	Unmatched []string `json:"unmatched"`
}

// State is the lifecycle position of a batch.
type State string

const (
	StateValidating State = "validating"
	StateGenerating State = "generating"
	StateComplete   State = "complete"
	StateFailed     State = "failed"
)

// Document is one generated output, built from one row.
type Document struct {
	ID           string      `json:"id"`
	BatchID      string      `json:"batch_id"`
	Index        int         `json:"index"`
	Title        string      `json:"title"`
	Data         tabular.Row `json:"data"`
	Content      []byte      `json:"-"`
	Format       Format      `json:"format"`
	Placeholders []string    `json:"placeholders"`
	Headers      []string    `json:"headers"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// FileName is the download name of the document.
func (d *Document) FileName() string { return d.ID + d.Format.Ext() }

// Batch is the set of documents generated from one template and one data set.
type Batch struct {
	ID             string         `json:"id"`
	TemplateID     string         `json:"template_id,omitempty"`
	TemplateName   string         `json:"template_name"`
	DataName       string         `json:"data_name"`
	Format         Format         `json:"format"`
	State          State          `json:"state"`
	Error          string         `json:"error,omitempty"`
	Placeholders   []string       `json:"placeholders"`
	Headers        []string       `json:"headers"`
	Reconciliation Reconciliation `json:"reconciliation"`
	DocumentCount  int            `json:"document_count"`
	TemplateDigest string         `json:"template_digest"`
	Template       []byte         `json:"-"`
	Documents      []Document     `json:"documents,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Document returns the document with the given id.
func (b *Batch) Document(id string) (*Document, error) {
	for i := range b.Documents {
		if b.Documents[i].ID == id {
			return &b.Documents[i], nil
		}
	}
	return nil, ErrDocumentNotFound
}

// Summary returns a copy of b without document contents or template bytes.
func (b *Batch) Summary() Batch {
	s := *b
	s.Template = nil
	s.Documents = nil
	return s
}
