// Command docmerge fills document templates with rows of CSV or XLSX data.
//
// Usage:
//
//	docmerge analyze-template letter.docx
//	docmerge analyze-data people.csv
//	docmerge generate -t letter.docx -d people.csv -o out/
//	docmerge generate --default invoice -d invoices.csv --zip
//	docmerge serve --config docmerge.yaml
//	docmerge mcp
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:           "docmerge",
		Short:         "Fill document templates with tabular data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			slog.SetDefault(newLogger("info", false))
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		analyzeTemplateCmd(),
		analyzeDataCmd(),
		generateCmd(),
		serveCmd(),
		mcpCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("docmerge: fatal", "error", err)
		os.Exit(1)
	}
}

// newLogger builds a JSON logger; --log-level overrides level. CLI commands
// log to stderr so stdout stays parseable; the server logs to stdout. The
// process default is set once, by the root command.
func newLogger(level string, server bool) *slog.Logger {
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	out := os.Stderr
	if server {
		out = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl}))
}
