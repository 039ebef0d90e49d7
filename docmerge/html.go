package docmerge

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/hazyhaar/docmerge/tabular"
)

// plainAdapter handles HTML and plain-text templates: the payload is
// the text, and rendering is substitution on it.
type plainAdapter struct {
	format Format
	escape Escape
}

func (a *plainAdapter) Format() Format { return a.format }

func (a *plainAdapter) Prepare(raw []byte) (Prepared, error) {
	return &plainTemplate{text: decodeText(raw), escape: a.escape}, nil
}

type plainTemplate struct {
	text   string
	escape Escape
}

func (t *plainTemplate) Text() string { return t.text }

func (t *plainTemplate) Placeholders() []string { return scanPlaceholders(t.text) }

func (t *plainTemplate) Render(row tabular.Row, names []string) ([]byte, error) {
	var esc func(string) string
	if t.escape != "" && t.escape != EscapeNone {
		esc = t.escape.apply
	}
	return []byte(substitute(t.text, names, row, esc)), nil
}

// decodeText decodes UTF-8 (or BOM-marked UTF-16) and drops the BOM.
// Invalid sequences become U+FFFD.
func decodeText(raw []byte) string {
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// htmlTitle returns the trimmed <title> of an HTML document, or "".
func htmlTitle(text string) string {
	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil {
				title = strings.TrimSpace(n.FirstChild.Data)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
