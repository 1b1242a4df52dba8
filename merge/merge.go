// Package merge implements reassembly: writing translated text back into a
// copy of the original document at the locators it was extracted from.
//
// The merge is strict. Every extracted unit must have exactly one entry in
// the result set — a missing entry means the backend dropped a unit, an
// extra entry means it invented one. Neither is ever silently patched; the
// file is failed instead.
package merge

import (
	"fmt"

	"github.com/subtrans/subtrans/document"
)

// Apply clones doc and substitutes every unit's text from result. The
// original document is left untouched.
func Apply(doc document.Document, result document.Result) (document.Document, error) {
	units := doc.Units()

	for _, u := range units {
		if _, ok := result[u.Loc]; !ok {
			return nil, fmt.Errorf("%w: %s", document.ErrIncompleteResult, u.Loc)
		}
	}
	if len(result) != len(units) {
		known := make(map[document.Locator]bool, len(units))
		for _, u := range units {
			known[u.Loc] = true
		}
		for loc := range result {
			if !known[loc] {
				return nil, fmt.Errorf("%w: %s", document.ErrOrphanResult, loc)
			}
		}
	}

	out := doc.Clone()
	for _, u := range units {
		if err := out.Apply(u.Loc, result[u.Loc]); err != nil {
			return nil, fmt.Errorf("applying %s: %w", u.Loc, err)
		}
	}
	return out, nil
}
