package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxHTTPBody caps request and response bodies exchanged over HTTP.
const maxHTTPBody int64 = 64 << 20

// httpConfig is the per-route config JSON.
type httpConfig struct {
	TimeoutMs   int64  `json:"timeout_ms"`
	ContentType string `json:"content_type"`
}

// HTTPFactory creates Handlers that POST the payload to a remote endpoint,
// typically another process serving HTTPHandler.
//
//	router.RegisterTransport("http", connectivity.HTTPFactory())
func HTTPFactory() TransportFactory {
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			return nil, nil, fmt.Errorf("connectivity/http: endpoint must be an http(s) URL: %q", endpoint)
		}

		var cfg httpConfig
		if len(config) > 0 {
			_ = json.Unmarshal(config, &cfg)
		}
		contentType := "application/json"
		if cfg.ContentType != "" {
			contentType = cfg.ContentType
		}
		client := &http.Client{Timeout: callTimeout(config, 60*time.Second)}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				var e struct {
					Error string `json:"error"`
				}
				msg := strings.TrimSpace(string(body))
				if json.Unmarshal(body, &e) == nil && e.Error != "" {
					msg = e.Error
				}
				return nil, &ErrRemote{Endpoint: endpoint, Status: resp.StatusCode, Message: msg}
			}
			return body, nil
		}

		return handler, client.CloseIdleConnections, nil
	}
}

// HTTPHandler serves the router's services as POST /{service}. Mount it
// under a prefix with chi's Mount. Handler errors are answered with 502
// and {"error": "..."}; unknown services with 404.
func HTTPHandler(r *Router) http.Handler {
	mux := chi.NewRouter()
	mux.Post("/{service}", func(w http.ResponseWriter, req *http.Request) {
		service := chi.URLParam(req, "service")
		payload, err := io.ReadAll(io.LimitReader(req.Body, maxHTTPBody))
		if err != nil {
			writeErr(w, http.StatusBadRequest, err)
			return
		}
		resp, err := r.Call(req.Context(), service, payload)
		if err != nil {
			status := http.StatusBadGateway
			var snf *ErrServiceNotFound
			if errors.As(err, &snf) {
				status = http.StatusNotFound
			}
			writeErr(w, status, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp)
	})
	return mux
}

func writeErr(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
