package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/docmerge/artifact"
	"github.com/hazyhaar/docmerge/connectivity"
	"github.com/hazyhaar/docmerge/docmerge"
	"github.com/hazyhaar/docmerge/tabular"
)

func analyzeTemplateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-template <template>",
		Short: "List the {placeholders} of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			eng := docmerge.New(docmerge.Config{Logger: newLogger("warn", false)})
			a, err := eng.AnalyzeTemplate(filepath.Base(args[0]), raw)
			if err != nil {
				return err
			}
			return printJSON(cmd, a)
		},
	}
}

func analyzeDataCmd() *cobra.Command {
	var sheet string
	cmd := &cobra.Command{
		Use:   "analyze-data <data>",
		Short: "Report the headers, row count and empty rows of a csv or xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			eng := docmerge.New(docmerge.Config{Logger: newLogger("warn", false)})
			s, err := eng.AnalyzeData(filepath.Base(args[0]), raw, tabular.WithSheet(sheet))
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}
	cmd.Flags().StringVar(&sheet, "sheet", "", "Spreadsheet sheet (default: first sheet)")
	return cmd
}

type generateOpts struct {
	template  string
	defaultID string
	data      string
	sheet     string
	out       string
	zip       bool
	pdf       bool
	chromeURL string
	remote    string
	maxRows   int
	workers   int
	escape    string
}

func generateCmd() *cobra.Command {
	var o generateOpts
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Fill a template once per data row and write the documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGenerate(ctx, cmd, o, newLogger("info", false))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.template, "template", "t", "", "Template file (.html, .htm, .txt, .docx, .odt)")
	f.StringVar(&o.defaultID, "default", "", "Built-in template id (invoice, receipt, contract)")
	f.StringVarP(&o.data, "data", "d", "", "Data file (.csv, .xlsx)")
	f.StringVar(&o.sheet, "sheet", "", "Spreadsheet sheet (default: first sheet)")
	f.StringVarP(&o.out, "output", "o", ".", "Output directory")
	f.BoolVar(&o.zip, "zip", false, "Write one zip bundle instead of separate files")
	f.BoolVar(&o.pdf, "pdf", false, "Also write the merged PDF of an html or txt batch")
	f.StringVar(&o.chromeURL, "chrome-url", "", "DevTools URL of a running Chrome (default: launch one)")
	f.StringVar(&o.remote, "remote", "", "Base URL of a docmerge server to generate on")
	f.IntVar(&o.maxRows, "max-rows", 100, "Row cap, negative disables it")
	f.IntVar(&o.workers, "workers", 4, "Concurrent row renders")
	f.StringVar(&o.escape, "escape", "none", "HTML value escaping: none, html, sanitize")
	cmd.MarkFlagRequired("data")
	cmd.MarkFlagsMutuallyExclusive("template", "default")
	cmd.MarkFlagsOneRequired("template", "default")
	return cmd
}

func runGenerate(ctx context.Context, cmd *cobra.Command, o generateOpts, logger *slog.Logger) error {
	payload, err := generatePayload(o)
	if err != nil {
		return err
	}

	router := connectivity.New(connectivity.WithLogger(logger))
	defer router.Close()
	if o.remote != "" {
		router.RegisterTransport("http", connectivity.HTTPFactory())
		if err := router.SetRoutes([]connectivity.Route{{
			Service:  "docmerge_generate",
			Strategy: "http",
			Endpoint: strings.TrimRight(o.remote, "/") + "/rpc/docmerge_generate",
		}}); err != nil {
			return err
		}
	} else {
		esc, err := docmerge.ParseEscape(o.escape)
		if err != nil {
			return err
		}
		docmerge.New(docmerge.Config{
			MaxRows: o.maxRows,
			Workers: o.workers,
			Escape:  esc,
			Logger:  logger,
		}).RegisterConnectivity(router)
	}

	resp, err := router.Call(ctx, "docmerge_generate", payload)
	if err != nil {
		return err
	}
	var res docmerge.GenerateResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}

	files, err := resultFiles(&res)
	if err != nil {
		return err
	}
	if o.pdf {
		pdf, err := mergedPDF(ctx, &res, o.chromeURL, logger)
		if err != nil {
			return err
		}
		files = append(files, artifact.File{Name: res.Batch.ID + ".pdf", Content: pdf})
	}

	var paths []string
	if o.zip {
		var buf bytes.Buffer
		if err := artifact.WriteZip(&buf, files); err != nil {
			return err
		}
		paths, err = artifact.DirSink{Dir: o.out}.Write([]artifact.File{{Name: res.Batch.ID + ".zip", Content: buf.Bytes()}})
	} else {
		paths, err = artifact.DirSink{Dir: o.out}.Write(files)
	}
	if err != nil {
		return err
	}

	logger.Info("batch written",
		"batch_id", res.Batch.ID,
		"documents", res.Batch.DocumentCount,
		"unmatched", res.Batch.Reconciliation.Unmatched)
	return printJSON(cmd, map[string]any{"batch": res.Batch, "files": paths})
}

// generatePayload builds the docmerge_generate request from local files.
func generatePayload(o generateOpts) ([]byte, error) {
	data, err := os.ReadFile(o.data)
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"data": map[string]any{
			"name":           filepath.Base(o.data),
			"content_base64": base64.StdEncoding.EncodeToString(data),
		},
	}
	if o.sheet != "" {
		req["sheet"] = o.sheet
	}
	if o.defaultID != "" {
		req["template_id"] = o.defaultID
	} else {
		tpl, err := os.ReadFile(o.template)
		if err != nil {
			return nil, err
		}
		req["template"] = map[string]any{
			"name":           filepath.Base(o.template),
			"content_base64": base64.StdEncoding.EncodeToString(tpl),
		}
	}
	return json.Marshal(req)
}

func resultFiles(res *docmerge.GenerateResult) ([]artifact.File, error) {
	files := make([]artifact.File, 0, len(res.Documents)+1)
	for _, d := range res.Documents {
		content := []byte(d.Content)
		if d.ContentBase64 != "" {
			b, err := base64.StdEncoding.DecodeString(d.ContentBase64)
			if err != nil {
				return nil, fmt.Errorf("document %s: %w", d.ID, err)
			}
			content = b
		}
		files = append(files, artifact.File{Name: d.ID + res.Batch.Format.Ext(), Content: content})
	}
	return files, nil
}

func mergedPDF(ctx context.Context, res *docmerge.GenerateResult, chromeURL string, logger *slog.Logger) ([]byte, error) {
	format := res.Batch.Format
	if format.Packaged() {
		return nil, fmt.Errorf("--pdf: %s batches are not rendered to PDF", format)
	}
	var renderer artifact.PDFRenderer
	if format == docmerge.FormatHTML {
		cr := artifact.NewChromeRenderer(artifact.ChromeConfig{ControlURL: chromeURL, Logger: logger})
		defer cr.Close()
		renderer = cr
	}
	pages := make([]artifact.Page, len(res.Documents))
	for i, d := range res.Documents {
		pages[i] = artifact.Page{Title: d.Title, Body: []byte(d.Content), Text: format == docmerge.FormatText}
	}
	return artifact.RenderMerged(ctx, renderer, pages)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
