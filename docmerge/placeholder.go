package docmerge

import "regexp"

// placeholderRe matches {name}: one or more non-brace characters between
// braces. A nested brace ends the candidate, so "{a{b}" yields "b".
var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Extract returns the placeholder names of text in first-occurrence order,
// without duplicates. It fails with ErrNoPlaceholders when there are none.
func Extract(text string) ([]string, error) {
	names := scanPlaceholders(text)
	if len(names) == 0 {
		return nil, ErrNoPlaceholders
	}
	return names, nil
}

// placeholdersOf is Extract over a prepared template.
func placeholdersOf(p Prepared) ([]string, error) {
	names := p.Placeholders()
	if len(names) == 0 {
		return nil, ErrNoPlaceholders
	}
	return names, nil
}

func scanPlaceholders(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// Token returns the literal placeholder for name.
func Token(name string) string { return "{" + name + "}" }
