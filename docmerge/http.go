package docmerge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docmerge/artifact"
	"github.com/hazyhaar/docmerge/observability"
	"github.com/hazyhaar/docmerge/shield"
	"github.com/hazyhaar/docmerge/tabular"
)

// EventSource lists the recorded events of a batch.
type EventSource interface {
	Events(ctx context.Context, entityID string) ([]observability.BusinessEvent, error)
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	// Store persists generated batches. Required.
	Store Store

	// Renderer prints HTML documents for the merged PDF. Nil disables
	// PDF output for HTML batches; text batches never need it.
	Renderer artifact.PDFRenderer

	// Events serves GET /api/batches/{id}/events. Optional.
	Events EventSource

	// MaxUpload bounds a multipart upload in memory (default: 32 MB).
	MaxUpload int64
}

// API serves the engine and a Store over HTTP.
type API struct {
	eng *Engine
	cfg HTTPConfig
}

// NewAPI creates the HTTP API of eng.
func NewAPI(eng *Engine, cfg HTTPConfig) *API {
	if cfg.MaxUpload <= 0 {
		cfg.MaxUpload = 32 << 20
	}
	return &API{eng: eng, cfg: cfg}
}

// RegisterHTTP mounts the API routes on r.
func (a *API) RegisterHTTP(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/templates/analyze", a.handleAnalyzeTemplate)
	r.Get("/api/templates/defaults", a.handleListDefaults)
	r.Get("/api/templates/defaults/{templateID}/sample.csv", a.handleDefaultSample)
	r.Post("/api/data/analyze", a.handleAnalyzeData)

	r.Route("/api/batches", func(r chi.Router) {
		r.Get("/", a.handleListBatches)
		r.Post("/", a.handleCreateBatch)
		r.Post("/default/{templateID}", a.handleCreateDefaultBatch)
		r.Get("/{id}", a.handleGetBatch)
		r.Delete("/{id}", a.handleDeleteBatch)
		r.Get("/{id}/events", a.handleBatchEvents)
		r.Get("/{id}/pdf", a.handleBatchPDF)
		r.Get("/{id}/zip", a.handleBatchZip)
		r.Get("/{id}/documents/{docID}", a.handleGetDocument)
		r.Put("/{id}/documents/{docID}", a.handleUpdateDocument)
		r.Get("/{id}/documents/{docID}/preview", a.handlePreviewDocument)
	})
}

// --- analysis ---

func (a *API) handleAnalyzeTemplate(w http.ResponseWriter, r *http.Request) {
	name, raw, err := a.readUpload(r, "template")
	if err != nil {
		badRequest(w, err)
		return
	}
	res, err := a.eng.AnalyzeTemplate(name, raw)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleAnalyzeData(w http.ResponseWriter, r *http.Request) {
	name, raw, err := a.readUpload(r, "data")
	if err != nil {
		badRequest(w, err)
		return
	}
	res, err := a.eng.AnalyzeData(name, raw, tabular.WithSheet(r.FormValue("sheet")))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleListDefaults(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Defaults())
}

func (a *API) handleDefaultSample(w http.ResponseWriter, r *http.Request) {
	def, err := Default(chi.URLParam(r, "templateID"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", attachment(def.ID+"-sample.csv"))
	w.Write(def.SampleCSV())
}

// --- batches ---

func (a *API) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	tplName, tpl, err := a.readUpload(r, "template")
	if err != nil {
		badRequest(w, err)
		return
	}
	dataName, data, err := a.readUpload(r, "data")
	if err != nil {
		badRequest(w, err)
		return
	}
	b, err := a.eng.Generate(r.Context(), Request{
		TemplateName: tplName,
		Template:     tpl,
		DataName:     dataName,
		Data:         data,
		Sheet:        r.FormValue("sheet"),
	})
	a.finishBatch(w, r, b, err)
}

func (a *API) handleCreateDefaultBatch(w http.ResponseWriter, r *http.Request) {
	dataName, data, err := a.readUpload(r, "data")
	if err != nil {
		badRequest(w, err)
		return
	}
	b, err := a.eng.GenerateFromDefault(r.Context(), chi.URLParam(r, "templateID"), dataName, data)
	a.finishBatch(w, r, b, err)
}

// finishBatch persists a completed batch and answers with it.
// Failed batches are reported, not stored.
func (a *API) finishBatch(w http.ResponseWriter, r *http.Request, b *Batch, err error) {
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	if err := a.cfg.Store.Save(r.Context(), b); err != nil {
		a.writeErr(w, r, fmt.Errorf("save batch: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	list, err := a.cfg.Store.List(r.Context(), limit)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, ok := a.loadBatch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (a *API) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := a.cfg.Store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleBatchEvents(w http.ResponseWriter, r *http.Request) {
	if a.cfg.Events == nil {
		writeJSON(w, http.StatusOK, []observability.BusinessEvent{})
		return
	}
	events, err := a.cfg.Events.Events(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	if events == nil {
		events = []observability.BusinessEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- documents ---

func (a *API) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := a.loadDocument(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", doc.Format.ContentType())
	if doc.Format.Packaged() {
		w.Header().Set("Content-Disposition", attachment(doc.FileName()))
	}
	w.Write(doc.Content)
}

type updateDocumentReq struct {
	Data map[string]string `json:"data"`
}

func (a *API) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var req updateDocumentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Data == nil {
		badRequest(w, errors.New("data is required"))
		return
	}
	b, ok := a.loadBatch(w, r)
	if !ok {
		return
	}
	doc, err := a.eng.UpdateDocument(b, chi.URLParam(r, "docID"), req.Data)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	if err := a.cfg.Store.UpdateDocument(r.Context(), doc); err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handlePreviewDocument answers a Markdown rendition of HTML documents and
// the normalized text of the others.
func (a *API) handlePreviewDocument(w http.ResponseWriter, r *http.Request) {
	_, doc, ok := a.loadDocument(w, r)
	if !ok {
		return
	}
	var (
		preview string
		err     error
	)
	switch doc.Format {
	case FormatHTML:
		preview, err = artifact.Markdown(doc.Content)
	default:
		preview, err = Normalize(doc.Format, doc.Content)
	}
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, preview)
}

// --- artifacts ---

func (a *API) handleBatchPDF(w http.ResponseWriter, r *http.Request) {
	b, ok := a.loadBatch(w, r)
	if !ok {
		return
	}
	if b.Format.Packaged() {
		writeJSON(w, http.StatusConflict, errorBody{
			Error:   KindUnsupportedFormat,
			Details: map[string]any{"reason": "packaged batches are downloaded as a zip bundle", "format": b.Format},
		})
		return
	}
	pdf, err := a.mergedPDF(r.Context(), b)
	if errors.Is(err, artifact.ErrNoRenderer) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "renderer_unavailable"})
		return
	}
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", attachment(b.ID+".pdf"))
	w.Write(pdf)
}

// handleBatchZip bundles every document, plus the merged PDF when it can
// be produced.
func (a *API) handleBatchZip(w http.ResponseWriter, r *http.Request) {
	b, ok := a.loadBatch(w, r)
	if !ok {
		return
	}
	files := make([]artifact.File, 0, len(b.Documents)+1)
	for _, d := range b.Documents {
		files = append(files, artifact.File{Name: d.FileName(), Content: d.Content})
	}
	if !b.Format.Packaged() && len(b.Documents) > 0 {
		pdf, err := a.mergedPDF(r.Context(), b)
		switch {
		case err == nil:
			files = append(files, artifact.File{Name: b.ID + ".pdf", Content: pdf})
		case !errors.Is(err, artifact.ErrNoRenderer):
			shield.GetLogger(r.Context()).Warn("zip without merged pdf", "batch_id", b.ID, "error", err)
		}
	}

	var buf bytes.Buffer
	if err := artifact.WriteZip(&buf, files); err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(b.ID+".zip"))
	w.Write(buf.Bytes())
}

func (a *API) mergedPDF(ctx context.Context, b *Batch) ([]byte, error) {
	pages := make([]artifact.Page, len(b.Documents))
	for i, d := range b.Documents {
		pages[i] = artifact.Page{Title: d.Title, Body: d.Content, Text: d.Format == FormatText}
	}
	return artifact.RenderMerged(ctx, a.cfg.Renderer, pages)
}

// --- helpers ---

func (a *API) loadBatch(w http.ResponseWriter, r *http.Request) (*Batch, bool) {
	b, err := a.cfg.Store.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeErr(w, r, err)
		return nil, false
	}
	return b, true
}

func (a *API) loadDocument(w http.ResponseWriter, r *http.Request) (*Batch, *Document, bool) {
	b, ok := a.loadBatch(w, r)
	if !ok {
		return nil, nil, false
	}
	doc, err := b.Document(chi.URLParam(r, "docID"))
	if err != nil {
		a.writeErr(w, r, err)
		return nil, nil, false
	}
	return b, doc, true
}

// readUpload returns the file name and bytes of multipart field.
func (a *API) readUpload(r *http.Request, field string) (string, []byte, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(a.cfg.MaxUpload); err != nil {
			return "", nil, fmt.Errorf("invalid multipart body: %w", err)
		}
	}
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return "", nil, fmt.Errorf("missing file field %q", field)
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", field, err)
	}
	return hdr.Filename, raw, nil
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// statusOf maps an error kind to its HTTP status.
func statusOf(kind string) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindTemplateTooLarge, KindTooManyRows:
		return http.StatusRequestEntityTooLarge
	case KindNoOverlap, KindMissingFields, KindNoPlaceholders:
		return http.StatusUnprocessableEntity
	case KindRowFailed, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (a *API) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	kind := Kind(err)
	status := statusOf(kind)
	body := errorBody{Error: kind, Message: err.Error(), Details: Details(err)}
	if status >= 500 {
		shield.GetLogger(r.Context()).Error("request failed", "kind", kind, "error", err)
		// A row failure is a cause in the caller's own input.
		if kind != KindRowFailed {
			body.Message = ""
		}
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}
