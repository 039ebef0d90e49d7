package shield

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/docmerge/kit"
)

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/healthz", nil))
	if method != http.MethodGet {
		t.Fatalf("method = %q, want GET", method)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); !strings.Contains(got, "script-src 'none'") {
		t.Errorf("CSP = %q", got)
	}
}

func TestSecurityHeaders_SkipsEmpty(t *testing.T) {
	h := SecurityHeaders(HeaderConfig{XFrameOptions: "DENY"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, ok := rec.Header()["Content-Security-Policy"]; ok {
		t.Error("empty CSP must not be set")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("X-Frame-Options not set")
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("declared length over cap: status %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789"))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	if readErr == nil {
		t.Fatal("expected read error past the cap")
	}

	readErr = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	if readErr != nil {
		t.Fatalf("small body: %v", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var traceID string
	var hasLogger bool
	h := TraceID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		_, hasLogger = r.Context().Value(LoggerKey).(*slog.Logger)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches", nil))

	if len(traceID) != 12 {
		t.Fatalf("trace id = %q", traceID)
	}
	if rec.Header().Get("X-Trace-ID") != traceID {
		t.Fatalf("X-Trace-ID = %q, want %q", rec.Header().Get("X-Trace-ID"), traceID)
	}
	if !hasLogger {
		t.Fatal("no request logger")
	}
}

func TestTraceID_RequestContext(t *testing.T) {
	var requestID, remoteAddr string
	h := TraceID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = kit.GetRequestID(r.Context())
		remoteAddr = kit.GetRemoteAddr(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/batches", nil)
	req.Header.Set("X-Request-ID", "req_42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if requestID != "req_42" {
		t.Errorf("request id = %q", requestID)
	}
	if remoteAddr != req.RemoteAddr {
		t.Errorf("remote addr = %q, want %q", remoteAddr, req.RemoteAddr)
	}

	requestID = "unset"
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if requestID != "" {
		t.Errorf("request id without header = %q", requestID)
	}
}
