// Package docmerge fills document templates with tabular rows.
//
// A template holds {name} placeholders. Each data row produces one
// document in which every placeholder whose name is a data header is
// replaced by the row value. Placeholders without a matching key stay
// as they are.
//
// Supported templates:
//   - .html, .htm, .txt: text, substituted directly
//   - .docx:             Word (archive/zip, word/document.xml plus headers and footers)
//   - .odt:              OpenDocument Text (archive/zip, content.xml and styles.xml)
//
// Packaged templates are filled in place: only the text of the runs that
// hold a placeholder changes, every other byte of the package is kept.
//
// Usage:
//
//	eng := docmerge.New(docmerge.Config{})
//	batch, err := eng.Generate(ctx, docmerge.Request{
//	    TemplateName: "letter.docx", Template: tpl,
//	    DataName: "people.csv", Data: csv,
//	})
//	fmt.Println(batch.DocumentCount, batch.Reconciliation.Unmatched)
package docmerge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/docmerge/observability"
	"github.com/hazyhaar/docmerge/tabular"
)

// Engine is the template merge engine. It holds no batch state and is
// safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// LoadTemplate validates an upload and detects its format from name.
func (e *Engine) LoadTemplate(name string, raw []byte) (*Template, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyTemplate
	}
	if int64(len(raw)) > e.cfg.MaxTemplateSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTemplateTooLarge, len(raw), e.cfg.MaxTemplateSize)
	}
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	return &Template{Name: name, Format: format, Raw: raw}, nil
}

// TemplateAnalysis describes the placeholders of a template.
type TemplateAnalysis struct {
	Name         string   `json:"name"`
	Format       Format   `json:"format"`
	FileType     string   `json:"file_type"`
	Title        string   `json:"title,omitempty"`
	Placeholders []string `json:"placeholders"`
	Count        int      `json:"count"`
}

// AnalyzeTemplate extracts the placeholders of an uploaded template.
func (e *Engine) AnalyzeTemplate(name string, raw []byte) (*TemplateAnalysis, error) {
	tpl, err := e.LoadTemplate(name, raw)
	if err != nil {
		return nil, err
	}
	prepared, err := e.prepare(tpl)
	if err != nil {
		return nil, err
	}
	names, err := placeholdersOf(prepared)
	if err != nil {
		return nil, err
	}
	a := &TemplateAnalysis{
		Name:         name,
		Format:       tpl.Format,
		FileType:     tpl.Format.FileType(),
		Placeholders: names,
		Count:        len(names),
	}
	if tpl.Format == FormatHTML {
		a.Title = htmlTitle(prepared.Text())
	}
	return a, nil
}

// AnalyzeData parses a data upload and summarizes it.
func (e *Engine) AnalyzeData(name string, raw []byte, opts ...tabular.Option) (*tabular.Summary, error) {
	tbl, err := tabular.Parse(name, raw, opts...)
	if err != nil {
		return nil, err
	}
	s := tbl.Summary()
	return &s, nil
}

// CheckRowCount rejects n rows when it exceeds Config.MaxRows.
func (e *Engine) CheckRowCount(n int) error {
	return tabular.CheckRowLimit(n, e.cfg.MaxRows)
}

// Request is one generation request: a template upload and a data upload.
type Request struct {
	TemplateName string
	Template     []byte
	DataName     string
	Data         []byte
	Sheet        string // spreadsheet sheet, first sheet when empty
}

// Generate validates both uploads and fills the template once per row.
//
// On failure the returned batch is in StateFailed and holds no documents;
// it is returned along with the error so callers can report or record it.
func (e *Engine) Generate(ctx context.Context, req Request) (*Batch, error) {
	b := e.newBatch("custom")
	b.TemplateName = req.TemplateName
	b.DataName = req.DataName
	e.transition(ctx, b, StateValidating)

	tpl, err := e.LoadTemplate(req.TemplateName, req.Template)
	if err != nil {
		return e.fail(ctx, b, err)
	}
	tbl, err := tabular.Parse(req.DataName, req.Data, tabular.WithSheet(req.Sheet))
	if err != nil {
		return e.fail(ctx, b, err)
	}
	return e.run(ctx, b, tpl, tbl)
}

// GenerateTable fills tpl once per row of an already parsed table.
func (e *Engine) GenerateTable(ctx context.Context, tpl *Template, tbl *tabular.Table) (*Batch, error) {
	prefix := tpl.ID
	if prefix == "" {
		prefix = "custom"
	}
	b := e.newBatch(prefix)
	b.TemplateID = tpl.ID
	b.TemplateName = tpl.Name
	e.transition(ctx, b, StateValidating)
	if len(tbl.Rows) == 0 {
		return e.fail(ctx, b, tabular.ErrEmptyInput)
	}
	return e.run(ctx, b, tpl, tbl)
}

// GenerateFromDefault fills a built-in template. Unlike uploads, every
// required field of a built-in template must be a data header.
func (e *Engine) GenerateFromDefault(ctx context.Context, templateID, dataName string, data []byte) (*Batch, error) {
	def, err := Default(templateID)
	if err != nil {
		return nil, err
	}

	b := e.newBatch(def.ID)
	b.TemplateID = def.ID
	b.TemplateName = def.Name
	b.DataName = dataName
	e.transition(ctx, b, StateValidating)

	tbl, err := tabular.Parse(dataName, data)
	if err != nil {
		return e.fail(ctx, b, err)
	}
	var missing []string
	for _, p := range def.Fields {
		if !tbl.HasHeader(p) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return e.fail(ctx, b, &MissingFieldsError{
			Missing:  missing,
			Required: def.Fields,
			Headers:  tbl.Headers,
		})
	}
	return e.run(ctx, b, def.Template(), tbl)
}

func (e *Engine) newBatch(prefix string) *Batch {
	return &Batch{
		ID:        prefix + "-" + e.cfg.NewID(),
		CreatedAt: time.Now().UTC(),
	}
}

func (e *Engine) prepare(tpl *Template) (Prepared, error) {
	a, err := AdapterFor(tpl.Format, e.cfg.Escape)
	if err != nil {
		return nil, err
	}
	return a.Prepare(tpl.Raw)
}

// run takes a validating batch through generation.
func (e *Engine) run(ctx context.Context, b *Batch, tpl *Template, tbl *tabular.Table) (*Batch, error) {
	b.Format = tpl.Format
	b.Headers = tbl.Headers

	if err := e.CheckRowCount(tbl.Len()); err != nil {
		return e.fail(ctx, b, err)
	}
	prepared, err := e.prepare(tpl)
	if err != nil {
		return e.fail(ctx, b, err)
	}
	placeholders := tpl.Fields
	if len(placeholders) == 0 {
		placeholders, err = placeholdersOf(prepared)
		if err != nil {
			return e.fail(ctx, b, err)
		}
	}
	b.Placeholders = placeholders

	rec, err := Reconcile(placeholders, tbl.Headers)
	b.Reconciliation = rec
	if err != nil {
		return e.fail(ctx, b, err)
	}
	if len(rec.Unmatched) > 0 {
		e.logger.Warn("placeholders without data",
			"batch_id", b.ID, "unmatched", rec.Unmatched)
	}

	b.Template = tpl.Raw
	b.TemplateDigest = Digest(tpl.Raw)
	e.transition(ctx, b, StateGenerating)

	docs, err := e.render(ctx, b, prepared, tbl.Rows)
	if err != nil {
		return e.fail(ctx, b, err)
	}
	b.Documents = docs
	b.DocumentCount = len(docs)
	e.transition(ctx, b, StateComplete)
	return b, nil
}

// render fills the template for every row on a bounded worker pool.
// Documents keep the row order. The first failure cancels the rest.
func (e *Engine) render(ctx context.Context, b *Batch, prepared Prepared, rows []tabular.Row) ([]Document, error) {
	docs := make([]Document, len(rows))
	now := time.Now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := prepared.Render(row, b.Placeholders)
			if err != nil {
				return &RowError{Index: i, Err: err}
			}
			docs[i] = Document{
				ID:           fmt.Sprintf("%s-%d", b.ID, i),
				BatchID:      b.ID,
				Index:        i,
				Title:        e.title(b.TemplateID, b.Headers, row, i),
				Data:         row,
				Content:      content,
				Format:       b.Format,
				Placeholders: b.Reconciliation.Matched,
				Headers:      b.Headers,
				UpdatedAt:    now,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateDocument re-renders one document of b with edited values.
// Keys of data that are not batch headers are ignored; headers absent
// from data keep their previous value. The batch is not re-validated.
func (e *Engine) UpdateDocument(b *Batch, docID string, data map[string]string) (*Document, error) {
	doc, err := b.Document(docID)
	if err != nil {
		return nil, err
	}
	if len(b.Template) == 0 {
		return nil, fmt.Errorf("docmerge: batch %s has no template payload", b.ID)
	}

	row := doc.Data.Clone()
	for _, h := range b.Headers {
		if v, ok := data[h]; ok {
			row[h] = v
		}
	}

	prepared, err := e.prepare(&Template{Format: b.Format, Raw: b.Template})
	if err != nil {
		return nil, err
	}
	content, err := prepared.Render(row, b.Placeholders)
	if err != nil {
		return nil, &RowError{Index: doc.Index, Err: err}
	}

	doc.Data = row
	doc.Content = content
	doc.Title = e.title(b.TemplateID, b.Headers, row, doc.Index)
	doc.UpdatedAt = time.Now().UTC()
	return doc, nil
}

func (e *Engine) title(templateID string, headers []string, row tabular.Row, i int) string {
	if def, ok := defaults[templateID]; ok {
		return def.title(row, i)
	}
	return documentTitle(e.cfg.TitleFields, headers, row, i)
}

func (e *Engine) transition(ctx context.Context, b *Batch, s State) {
	b.State = s
	e.logger.Debug("batch "+string(s),
		"batch_id", b.ID, "format", b.Format, "placeholders", len(b.Placeholders))
	if s == StateComplete {
		e.logger.Info("batch complete",
			"batch_id", b.ID,
			"format", b.Format,
			"documents", b.DocumentCount,
			"matched", len(b.Reconciliation.Matched),
			"unmatched", len(b.Reconciliation.Unmatched))
	}
	e.event(ctx, b, true)
}

func (e *Engine) fail(ctx context.Context, b *Batch, err error) (*Batch, error) {
	b.State = StateFailed
	b.Error = err.Error()
	b.Documents = nil
	b.DocumentCount = 0
	e.logger.Warn("batch failed", "batch_id", b.ID, "kind", Kind(err), "error", err)
	e.event(ctx, b, false)
	return b, err
}

func (e *Engine) event(ctx context.Context, b *Batch, ok bool) {
	if e.cfg.Events == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"format":    b.Format,
		"documents": b.DocumentCount,
		"matched":   b.Reconciliation.Matched,
		"unmatched": b.Reconciliation.Unmatched,
		"error":     b.Error,
	})
	e.cfg.Events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   "batch_" + string(b.State),
		ServiceName: "docmerge",
		EntityType:  "batch",
		EntityID:    b.ID,
		Action:      string(b.State),
		Details:     string(details),
		Success:     ok,
	})
}

// Digest returns the hex BLAKE2b-256 digest of a template payload.
func Digest(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
