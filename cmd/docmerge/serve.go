package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/docmerge/artifact"
	"github.com/hazyhaar/docmerge/batchstore"
	"github.com/hazyhaar/docmerge/connectivity"
	"github.com/hazyhaar/docmerge/dbopen"
	"github.com/hazyhaar/docmerge/docmerge"
	"github.com/hazyhaar/docmerge/observability"
	"github.com/hazyhaar/docmerge/shield"

	_ "modernc.org/sqlite"
)

const version = "1.0.0"

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, connectivity services and MCP over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel, true)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to docmerge.yaml (default: built-in defaults)")
	return cmd
}

func resolveConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// server holds the wired components of a running docmerge.
type server struct {
	handler  http.Handler
	store    *batchstore.Store
	eventsDB *sql.DB
	renderer *artifact.ChromeRenderer
	router   *connectivity.Router
}

func (s *server) Close() {
	s.router.Close()
	if s.renderer != nil {
		s.renderer.Close()
	}
	s.eventsDB.Close()
	s.store.Close()
}

// newServer opens the databases and wires the engine onto chi,
// connectivity and MCP.
func newServer(ctx context.Context, cfg *Config, logger *slog.Logger) (*server, error) {
	store, err := batchstore.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("batch db: %w", err)
	}

	eventsDB, err := dbopen.Open(cfg.EventsDBPath, dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("events db: %w", err)
	}
	if cfg.EventRetentionDays > 0 {
		if err := observability.Cleanup(ctx, eventsDB, observability.RetentionConfig{
			EventLogsDays: cfg.EventRetentionDays,
		}); err != nil {
			logger.Warn("event cleanup", "error", err)
		}
	}
	events := observability.NewEventLogger(eventsDB)

	engCfg := cfg.engineConfig(logger)
	engCfg.Events = events
	eng := docmerge.New(engCfg)

	s := &server{store: store, eventsDB: eventsDB}

	var renderer artifact.PDFRenderer
	if cfg.RenderPDF {
		s.renderer = artifact.NewChromeRenderer(artifact.ChromeConfig{ControlURL: cfg.ChromeURL, Logger: logger})
		renderer = s.renderer
	}

	s.router = connectivity.New(connectivity.WithLogger(logger))
	s.router.RegisterTransport("http", connectivity.HTTPFactory())
	eng.RegisterConnectivity(s.router)
	if len(cfg.Routes) > 0 {
		if err := s.router.SetRoutes(cfg.Routes); err != nil {
			logger.Warn("connectivity routes", "error", err)
		}
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "docmerge", Version: version}, nil)
	eng.RegisterMCP(mcpSrv)

	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(logger, cfg.MaxUploadBytes()) {
		r.Use(mw)
	}
	docmerge.NewAPI(eng, docmerge.HTTPConfig{
		Store:     store,
		Renderer:  renderer,
		Events:    events,
		MaxUpload: cfg.MaxUploadBytes(),
	}).RegisterHTTP(r)
	r.Mount("/rpc", connectivity.HTTPHandler(s.router))
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))

	s.handler = r
	return s, nil
}

func serve(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	s, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("docmerge: listening", "addr", cfg.Listen, "db", cfg.DBPath, "render_pdf", cfg.RenderPDF)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("docmerge: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the docmerge tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger("warn", false)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := mcp.NewServer(&mcp.Implementation{Name: "docmerge", Version: version}, nil)
			docmerge.New(docmerge.Config{Logger: logger}).RegisterMCP(srv)
			return srv.Run(ctx, &mcp.StdioTransport{})
		},
	}
}
