package docmerge

// Reconcile splits placeholders into those present in headers and those
// absent, by exact string equality. Zero matches is an *OverlapError; the
// returned Reconciliation is filled in either case.
func Reconcile(placeholders, headers []string) (Reconciliation, error) {
	have := make(map[string]bool, len(headers))
	for _, h := range headers {
		have[h] = true
	}

	r := Reconciliation{Matched: []string{}, Unmatched: []string{}}
	for _, p := range placeholders {
		if have[p] {
			r.Matched = append(r.Matched, p)
		} else {
			r.Unmatched = append(r.Unmatched, p)
		}
	}

	if len(r.Matched) == 0 {
		return r, &OverlapError{Placeholders: placeholders, Headers: headers}
	}
	return r, nil
}
