// Package connectivity dispatches service calls either to an in-process
// handler or to a remote endpoint, based on a route table set at startup.
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	engine.RegisterConnectivity(router)
//	router.SetRoutes([]connectivity.Route{
//	    {Service: "docmerge_generate", Strategy: "http", Endpoint: "https://merge.internal/rpc/docmerge_generate"},
//	})
//
//	// Callers don't know or care whether this is local or remote:
//	resp, err := router.Call(ctx, "docmerge_generate", payload)
package connectivity

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Handler is a transport-agnostic service function: bytes in, bytes out.
// Both local Go functions and remote RPC clients implement this signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory creates a Handler for a given remote endpoint.
// The returned close function is called when the route is replaced or
// the router is closed; it may be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// Route maps a service to a strategy: "local", "noop", or the name of a
// registered transport ("http").
type Route struct {
	Service  string          `json:"service" yaml:"service"`
	Strategy string          `json:"strategy" yaml:"strategy"`
	Endpoint string          `json:"endpoint,omitempty" yaml:"endpoint"`
	Config   json.RawMessage `json:"config,omitempty" yaml:"-"`
}

func (rt Route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches service calls. Safe for concurrent use.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	remoteEntries map[string]remoteEntry
	routes        map[string]Route
	factories     map[string]TransportFactory
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates a Router with no routes.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		remoteEntries: make(map[string]remoteEntry),
		routes:        make(map[string]Route),
		factories:     make(map[string]TransportFactory),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-memory handler for a service.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a transport protocol.
func (r *Router) RegisterTransport(protocol string, f TransportFactory) {
	r.mu.Lock()
	r.factories[protocol] = f
	r.mu.Unlock()
}

// Call dispatches a service call. The resolution order is:
//  1. Noop route: silently succeeds.
//  2. Remote route: the handler built by the route's transport.
//  3. Local handler.
//  4. *ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remoteEntries[service]
	localH := r.localHandlers[service]
	rt, hasRoute := r.routes[service]
	r.mu.RUnlock()

	if hasRoute && rt.Strategy == "noop" {
		r.logger.DebugContext(ctx, "routing noop", "service", service)
		return nil, nil
	}

	if hasRemote {
		r.logger.DebugContext(ctx, "routing remote",
			"service", service, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
		return entry.handler(ctx, payload)
	}

	if localH != nil {
		r.logger.DebugContext(ctx, "routing local", "service", service)
		return localH(ctx, payload)
	}

	return nil, &ErrServiceNotFound{Service: service}
}

// SetRoutes replaces the route table. Remote handlers whose route is
// unchanged are kept; the others are closed and rebuilt. A route whose
// transport is unknown or whose factory fails is reported and skipped;
// the remaining routes are still applied.
func (r *Router) SetRoutes(routes []Route) error {
	next := make(map[string]Route, len(routes))
	for _, rt := range routes {
		next[rt.Service] = rt
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	entries := make(map[string]remoteEntry, len(next))
	reused := make(map[string]bool)
	for name, rt := range next {
		if rt.Strategy == "local" || rt.Strategy == "noop" {
			continue
		}
		if old, ok := r.routes[name]; ok && old.fingerprint() == rt.fingerprint() {
			if existing, exists := r.remoteEntries[name]; exists {
				entries[name] = existing
				reused[name] = true
				continue
			}
		}

		factory, ok := r.factories[rt.Strategy]
		if !ok {
			err := &ErrNoFactory{Service: name, Strategy: rt.Strategy}
			r.logger.Warn("route skipped", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		h, closeFn, err := factory(rt.Endpoint, rt.Config)
		if err != nil {
			err = &ErrFactoryFailed{Service: name, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err}
			r.logger.Error("route skipped", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		entries[name] = remoteEntry{handler: h, close: closeFn}
		r.logger.Info("route built", "service", name, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	}

	for name, old := range r.remoteEntries {
		if reused[name] {
			continue
		}
		if old.close != nil {
			old.close()
		}
	}

	r.remoteEntries = entries
	r.routes = next
	return firstErr
}

// Services lists every service with a local handler or a route, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for name := range r.localHandlers {
		seen[name] = true
	}
	for name := range r.routes {
		seen[name] = true
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Close shuts down all remote handlers.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remoteEntries {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remoteEntries = make(map[string]remoteEntry)
	r.routes = make(map[string]Route)
	return nil
}

// callTimeout extracts timeout_ms from route config, with a default.
func callTimeout(cfg json.RawMessage, defaultTimeout time.Duration) time.Duration {
	var parsed struct {
		TimeoutMs int64 `json:"timeout_ms"`
	}
	if json.Unmarshal(cfg, &parsed) == nil && parsed.TimeoutMs > 0 {
		return time.Duration(parsed.TimeoutMs) * time.Millisecond
	}
	return defaultTimeout
}
