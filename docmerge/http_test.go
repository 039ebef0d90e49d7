package docmerge

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docmerge/idgen"
	"github.com/hazyhaar/docmerge/observability"
)

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	batches map[string]*Batch
	order   []string
}

func newMemStore() *memStore { return &memStore{batches: map[string]*Batch{}} }

func (s *memStore) Save(_ context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; !ok {
		s.order = append(s.order, b.ID)
	}
	c := *b
	c.Documents = append([]Document(nil), b.Documents...)
	s.batches[b.ID] = &c
	return nil
}

func (s *memStore) Load(_ context.Context, id string) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	c := *b
	c.Documents = append([]Document(nil), b.Documents...)
	return &c, nil
}

func (s *memStore) List(_ context.Context, limit int) ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Batch{}
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		if b, ok := s.batches[s.order[i]]; ok {
			out = append(out, b.Summary())
		}
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[id]; !ok {
		return ErrBatchNotFound
	}
	delete(s.batches, id)
	return nil
}

func (s *memStore) UpdateDocument(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[doc.BatchID]
	if !ok {
		return ErrBatchNotFound
	}
	for i := range b.Documents {
		if b.Documents[i].ID == doc.ID {
			b.Documents[i] = *doc
			return nil
		}
	}
	return ErrDocumentNotFound
}

// eventLog serves recorded events back by entity.
type eventLog struct{ eventRecorder }

func (l *eventLog) Events(_ context.Context, id string) ([]observability.BusinessEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []observability.BusinessEvent
	for _, e := range l.events {
		if e.EntityID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type pdfStub struct{}

func (pdfStub) PDF(context.Context, []byte) ([]byte, error) {
	return nil, io.ErrUnexpectedEOF
}

type apiFixture struct {
	srv    *httptest.Server
	store  *memStore
	events *eventLog
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	events := &eventLog{}
	store := newMemStore()
	eng := New(Config{NewID: idgen.Sequence(), Events: events})
	api := NewAPI(eng, HTTPConfig{Store: store, Events: events})

	r := chi.NewRouter()
	api.RegisterHTTP(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, store: store, events: events}
}

type upload struct {
	field, name, content string
}

func multipartBody(t *testing.T, files []upload, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, f.content)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (f *apiFixture) post(t *testing.T, path string, files ...upload) *http.Response {
	t.Helper()
	body, ct := multipartBody(t, files, nil)
	resp, err := http.Post(f.srv.URL+path, ct, body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (f *apiFixture) createBatch(t *testing.T, tplName, tpl, data string) *Batch {
	t.Helper()
	resp := f.post(t, "/api/batches/",
		upload{"template", tplName, tpl},
		upload{"data", "people.csv", data})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create batch: %d %s", resp.StatusCode, readBody(t, resp))
	}
	return decodeBody[*Batch](t, resp)
}

func TestHTTP_Health(t *testing.T) {
	f := newAPIFixture(t)
	if resp := f.get(t, "/healthz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHTTP_AnalyzeTemplate(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.post(t, "/api/templates/analyze", upload{"template", "t.html", "<p>{a} {b}</p>"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	a := decodeBody[TemplateAnalysis](t, resp)
	if a.Count != 2 || a.FileType != "html/text" {
		t.Fatalf("analysis = %+v", a)
	}
}

func TestHTTP_AnalyzeTemplate_NoPlaceholders(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.post(t, "/api/templates/analyze", upload{"template", "t.html", "<p>none</p>"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := decodeBody[errorBody](t, resp); body.Error != KindNoPlaceholders {
		t.Fatalf("error = %+v", body)
	}
}

func TestHTTP_AnalyzeData(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.post(t, "/api/data/analyze", upload{"data", "d.csv", "a,,b\n1,2,3\n"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[errorBody](t, resp)
	if body.Error != KindMalformedHeaders || body.Details["reason"] == nil {
		t.Fatalf("error = %+v", body)
	}
}

func TestHTTP_MissingUpload(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.post(t, "/api/batches/", upload{"template", "t.txt", "{a}"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := decodeBody[errorBody](t, resp); body.Error != "bad_request" {
		t.Fatalf("error = %+v", body)
	}
}

func TestHTTP_BatchLifecycle(t *testing.T) {
	f := newAPIFixture(t)
	b := f.createBatch(t, "letter.txt", "Dear {name}, {amount}", "name,amount\nAlice,10\nBob,20\n")
	if b.ID != "custom-1" || b.DocumentCount != 2 || b.State != StateComplete {
		t.Fatalf("batch = %+v", b)
	}

	got := decodeBody[*Batch](t, f.get(t, "/api/batches/custom-1"))
	if len(got.Documents) != 2 || got.Documents[0].Title != "Document for Alice" {
		t.Fatalf("loaded = %+v", got)
	}

	list := decodeBody[[]Batch](t, f.get(t, "/api/batches/"))
	if len(list) != 1 || list[0].ID != "custom-1" || len(list[0].Documents) != 0 {
		t.Fatalf("list = %+v", list)
	}

	doc := f.get(t, "/api/batches/custom-1/documents/custom-1-1")
	if s := string(readBody(t, doc)); s != "Dear Bob, 20" {
		t.Fatalf("document = %q", s)
	}
	if ct := doc.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}

	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/api/batches/custom-1/documents/custom-1-1",
		strings.NewReader(`{"data":{"amount":"99"}}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}
	updated := decodeBody[Document](t, resp)
	if updated.Data["amount"] != "99" || updated.Data["name"] != "Bob" {
		t.Fatalf("updated data = %v", updated.Data)
	}
	doc = f.get(t, "/api/batches/custom-1/documents/custom-1-1")
	if s := string(readBody(t, doc)); s != "Dear Bob, 99" {
		t.Fatalf("stored document = %q", s)
	}

	req, _ = http.NewRequest(http.MethodDelete, f.srv.URL+"/api/batches/custom-1", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if resp := f.get(t, "/api/batches/custom-1"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("after delete status = %d", resp.StatusCode)
	}
}

func TestHTTP_FailedBatchNotStored(t *testing.T) {
	f := newAPIFixture(t)
	resp := f.post(t, "/api/batches/",
		upload{"template", "t.txt", "{x}"},
		upload{"data", "d.csv", "y\n1\n"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[errorBody](t, resp)
	if body.Error != KindNoOverlap || body.Details["placeholders"] == nil {
		t.Fatalf("error = %+v", body)
	}
	if list := decodeBody[[]Batch](t, f.get(t, "/api/batches/")); len(list) != 0 {
		t.Fatalf("failed batch stored: %+v", list)
	}
}

func TestHTTP_TooManyRows(t *testing.T) {
	f := newAPIFixture(t)
	data := csvRows("n", 101, func(i int) string { return "x" })
	resp := f.post(t, "/api/batches/",
		upload{"template", "t.txt", "{n}"},
		upload{"data", "d.csv", string(data)})
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHTTP_DefaultTemplates(t *testing.T) {
	f := newAPIFixture(t)
	defs := decodeBody[[]DefaultTemplate](t, f.get(t, "/api/templates/defaults"))
	if len(defs) != 3 || defs[1].ID != "invoice" || len(defs[1].Fields) != 5 {
		t.Fatalf("defaults = %+v", defs)
	}

	sample := readBody(t, f.get(t, "/api/templates/defaults/invoice/sample.csv"))
	resp := f.post(t, "/api/batches/default/invoice", upload{"data", "sample.csv", string(sample)})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d %s", resp.StatusCode, readBody(t, resp))
	}
	b := decodeBody[*Batch](t, resp)
	if b.TemplateID != "invoice" || b.DocumentCount != 3 {
		t.Fatalf("batch = %+v", b)
	}

	resp = f.post(t, "/api/batches/default/invoice", upload{"data", "d.csv", "invoice_number\n1\n"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("missing fields status = %d", resp.StatusCode)
	}
	if body := decodeBody[errorBody](t, resp); body.Error != KindMissingFields {
		t.Fatalf("error = %+v", body)
	}

	if resp := f.get(t, "/api/templates/defaults/memo/sample.csv"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown default status = %d", resp.StatusCode)
	}
}

func TestHTTP_Events(t *testing.T) {
	f := newAPIFixture(t)
	f.createBatch(t, "t.txt", "{name}", "name\nA\n")
	events := decodeBody[[]observability.BusinessEvent](t, f.get(t, "/api/batches/custom-1/events"))
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	if strings.Join(actions, ",") != "validating,generating,complete" {
		t.Fatalf("actions = %v", actions)
	}
}

func TestHTTP_Preview(t *testing.T) {
	f := newAPIFixture(t)
	f.createBatch(t, "t.html", "<h1>{name}</h1><p>Hello</p>", "name\nAlice\n")
	resp := f.get(t, "/api/batches/custom-1/documents/custom-1-0/preview")
	if s := string(readBody(t, resp)); !strings.Contains(s, "# Alice") {
		t.Fatalf("preview = %q", s)
	}
}

func TestHTTP_PDF(t *testing.T) {
	f := newAPIFixture(t)
	f.createBatch(t, "t.txt", "Hello {name}", "name\nAlice\nBob\n")
	resp := f.get(t, "/api/batches/custom-1/pdf")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Fatal("not a pdf")
	}

	f.createBatch(t, "t.html", "<p>{name}</p>", "name\nAlice\n")
	if resp := f.get(t, "/api/batches/custom-2/pdf"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("html without renderer status = %d", resp.StatusCode)
	}
}

func TestHTTP_PDF_RendererError(t *testing.T) {
	store := newMemStore()
	api := NewAPI(New(Config{NewID: idgen.Sequence()}), HTTPConfig{Store: store, Renderer: pdfStub{}})
	r := chi.NewRouter()
	api.RegisterHTTP(r)

	b, err := api.eng.Generate(context.Background(), Request{
		TemplateName: "t.html", Template: []byte("<p>{a}</p>"), DataName: "d.csv", Data: []byte("a\n1\n"),
	})
	if err != nil {
		t.Fatal(err)
	}
	store.Save(context.Background(), b)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/"+b.ID+"/pdf", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != KindInternal || body.Message != "" {
		t.Fatalf("body = %+v", body)
	}
}

func TestHTTP_RowFailureKeepsCause(t *testing.T) {
	api := NewAPI(New(Config{}), HTTPConfig{Store: newMemStore()})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/batches", nil)
	api.writeErr(rec, req, &RowError{Index: 3, Err: io.ErrUnexpectedEOF})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != KindRowFailed {
		t.Fatalf("error = %q", body.Error)
	}
	if !strings.Contains(body.Message, "row 3") || !strings.Contains(body.Message, io.ErrUnexpectedEOF.Error()) {
		t.Fatalf("message = %q", body.Message)
	}
}

func TestHTTP_PDF_PackagedConflict(t *testing.T) {
	f := newAPIFixture(t)
	raw := buildDocx(t, `<w:p><w:r><w:t>{name}</w:t></w:r></w:p>`)
	f.createBatch(t, "t.docx", string(raw), "name\nAlice\n")
	if resp := f.get(t, "/api/batches/custom-1/pdf"); resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestHTTP_Zip(t *testing.T) {
	f := newAPIFixture(t)
	f.createBatch(t, "t.txt", "Hello {name}", "name\nAlice\nBob\n")
	resp := f.get(t, "/api/batches/custom-1/zip")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := readBody(t, resp)
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
	}
	sort.Strings(names)
	want := []string{"custom-1-0.txt", "custom-1-1.txt", "custom-1.pdf"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("entries = %v", names)
	}
}

func TestHTTP_NotFound(t *testing.T) {
	f := newAPIFixture(t)
	for _, path := range []string{
		"/api/batches/nope",
		"/api/batches/nope/zip",
		"/api/batches/nope/documents/x",
	} {
		resp := f.get(t, path)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: status = %d", path, resp.StatusCode)
		}
	}
	f.createBatch(t, "t.txt", "{name}", "name\nA\n")
	if resp := f.get(t, "/api/batches/custom-1/documents/x"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown document status = %d", resp.StatusCode)
	}
}

func TestHTTP_ListLimit(t *testing.T) {
	f := newAPIFixture(t)
	if resp := f.get(t, "/api/batches/?limit=abc"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	f.createBatch(t, "t.txt", "{name}", "name\nA\n")
	f.createBatch(t, "t.txt", "{name}", "name\nB\n")
	list := decodeBody[[]Batch](t, f.get(t, "/api/batches/?limit=1"))
	if len(list) != 1 || list[0].ID != "custom-2" {
		t.Fatalf("list = %+v", list)
	}
}
