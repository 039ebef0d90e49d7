package docmerge

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/docmerge/tabular"
)

// documentTitle picks a display title for row i. It never affects
// substitution.
func documentTitle(fields, headers []string, row tabular.Row, i int) string {
	for _, f := range fields {
		if v := strings.TrimSpace(row[f]); v != "" {
			return "Document for " + v
		}
	}
	for _, h := range headers {
		if v := strings.TrimSpace(row[h]); v != "" {
			return "Document for " + v
		}
	}
	return fmt.Sprintf("Document #%d", i+1)
}
