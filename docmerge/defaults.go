package docmerge

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/hazyhaar/docmerge/tabular"
)

//go:embed templates/*.html templates/*.csv
var builtin embed.FS

// DefaultTemplate is a built-in HTML template with sample data.
// Fields are the data headers the template requires: the headers of its
// sample data.
type DefaultTemplate struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Fields []string `json:"fields"`

	html  []byte
	csv   []byte
	title func(row tabular.Row, i int) string
}

// Template returns the template payload.
func (d *DefaultTemplate) Template() *Template {
	return &Template{ID: d.ID, Name: d.Name, Format: FormatHTML, Raw: d.html, Fields: d.Fields}
}

// SampleCSV returns sample data matching the template placeholders.
func (d *DefaultTemplate) SampleCSV() []byte { return d.csv }

var defaults = map[string]*DefaultTemplate{}

func init() {
	titles := map[string]func(tabular.Row, int) string{
		"invoice": func(r tabular.Row, i int) string {
			return "Invoice #" + or(r["invoice_number"], fmt.Sprintf("INV-%d", i+1))
		},
		"receipt": func(r tabular.Row, i int) string {
			return "Receipt #" + or(r["receipt_number"], fmt.Sprintf("REC-%d", i+1))
		},
		"contract": func(r tabular.Row, _ int) string {
			return "Contract between " + or(r["party1_name"], "Party 1") + " and " + or(r["party2_name"], "Party 2")
		},
	}
	for id, title := range titles {
		html, err := builtin.ReadFile("templates/" + id + ".html")
		if err != nil {
			panic(err)
		}
		csv, err := builtin.ReadFile("templates/" + id + ".csv")
		if err != nil {
			panic(err)
		}
		sample, err := tabular.ParseCSV(csv)
		if err != nil {
			panic(fmt.Sprintf("docmerge: builtin template %s: %v", id, err))
		}
		defaults[id] = &DefaultTemplate{
			ID:     id,
			Name:   upperFirst(id) + " Template",
			Fields: sample.Headers,
			html:   html,
			csv:    csv,
			title:  title,
		}
	}
}

// Default returns the built-in template with the given id.
func Default(id string) (*DefaultTemplate, error) {
	d, ok := defaults[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return d, nil
}

// Defaults lists the built-in templates sorted by id.
func Defaults() []*DefaultTemplate {
	out := make([]*DefaultTemplate, 0, len(defaults))
	for _, d := range defaults {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
