// Package extract walks a parsed document and yields its translation units
// in document order.
//
// Extraction is deterministic and stable: repeated calls on the same
// document produce the same sequence. The only failure mode is a locator
// collision, which indicates a broken format adapter rather than bad input.
package extract

import (
	"fmt"

	"github.com/subtrans/subtrans/document"
)

// Units returns the document's translation units in traversal order. It
// fails with document.ErrLocatorCollision if two units resolve to the same
// locator.
func Units(doc document.Document) ([]document.Unit, error) {
	units := doc.Units()
	seen := make(map[document.Locator]bool, len(units))
	for _, u := range units {
		if seen[u.Loc] {
			return nil, fmt.Errorf("%w: %s", document.ErrLocatorCollision, u.Loc)
		}
		seen[u.Loc] = true
	}
	return units, nil
}

// TotalChars returns the aggregate source text length, used for batch
// planning diagnostics.
func TotalChars(units []document.Unit) int {
	total := 0
	for _, u := range units {
		total += len(u.Text)
	}
	return total
}
