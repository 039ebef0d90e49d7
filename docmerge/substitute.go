package docmerge

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/docmerge/tabular"
)

// Escape selects how row values are written into HTML templates.
// Packaged formats ignore it: their values are always XML-escaped.
type Escape string

const (
	// EscapeNone inserts values verbatim.
	EscapeNone Escape = "none"
	// EscapeHTML escapes <, >, &, ' and ".
	EscapeHTML Escape = "html"
	// EscapeSanitize keeps safe markup and strips scripts and event handlers.
	EscapeSanitize Escape = "sanitize"
)

// ParseEscape validates an escape mode name. The empty string is EscapeNone.
func ParseEscape(s string) (Escape, error) {
	switch Escape(strings.ToLower(strings.TrimSpace(s))) {
	case "", EscapeNone:
		return EscapeNone, nil
	case EscapeHTML:
		return EscapeHTML, nil
	case EscapeSanitize:
		return EscapeSanitize, nil
	default:
		return "", fmt.Errorf("docmerge: unknown escape mode %q", s)
	}
}

var ugcPolicy = bluemonday.UGCPolicy()

func (e Escape) apply(v string) string {
	switch e {
	case EscapeHTML:
		return html.EscapeString(v)
	case EscapeSanitize:
		return ugcPolicy.Sanitize(v)
	default:
		return v
	}
}

// Substitute replaces every {name} in text with row[name], verbatim.
// Placeholders whose key is absent from row are left untouched; a key
// holding the empty string is replaced by the empty string.
func Substitute(text string, row tabular.Row) string {
	return substitute(text, nil, row, nil)
}

// SubstituteNames is Substitute restricted to names. A nil names slice
// means every placeholder found in text. esc, when non-nil, transforms
// each value before insertion.
func SubstituteNames(text string, names []string, row tabular.Row, esc func(string) string) string {
	return substitute(text, names, row, esc)
}

func substitute(text string, names []string, row tabular.Row, esc func(string) string) string {
	var allowed map[string]bool
	if names != nil {
		allowed = make(map[string]bool, len(names))
		for _, n := range names {
			allowed[n] = true
		}
	}
	// One pass over the original text: inserted values are never rescanned.
	return placeholderRe.ReplaceAllStringFunc(text, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if allowed != nil && !allowed[name] {
			return tok
		}
		v, ok := row[name]
		if !ok {
			return tok
		}
		if esc != nil {
			v = esc(v)
		}
		return v
	})
}
