// Package chunk groups translation units into batches bounded by a
// character budget and a unit-count budget.
//
// Packing is greedy and order-preserving: a unit goes into the current
// batch while both budgets hold, otherwise the batch is closed. A single
// unit longer than the character budget becomes its own batch, flagged
// Oversized — splitting it would cut mid-sentence translation context, so
// it is passed through whole and never dropped or truncated.
package chunk

import "github.com/subtrans/subtrans/document"

// Batch is an ordered group of units dispatched to the backend in one call.
type Batch struct {
	Units []document.Unit
	// Chars is the aggregate source text length.
	Chars int
	// Oversized marks a single-unit batch whose unit alone exceeds the
	// character budget.
	Oversized bool
}

// Texts returns the batch's source strings in order.
func (b Batch) Texts() []string {
	texts := make([]string, len(b.Units))
	for i, u := range b.Units {
		texts[i] = u.Text
	}
	return texts
}

// Plan packs units into batches. maxChars and maxUnits must be positive.
// Concatenating the returned batches reproduces the input order exactly.
func Plan(units []document.Unit, maxChars, maxUnits int) []Batch {
	var batches []Batch
	var cur Batch

	flush := func() {
		if len(cur.Units) > 0 {
			batches = append(batches, cur)
			cur = Batch{}
		}
	}

	for _, u := range units {
		if len(u.Text) > maxChars {
			flush()
			batches = append(batches, Batch{
				Units:     []document.Unit{u},
				Chars:     len(u.Text),
				Oversized: true,
			})
			continue
		}
		if len(cur.Units) >= maxUnits || cur.Chars+len(u.Text) > maxChars {
			flush()
		}
		cur.Units = append(cur.Units, u)
		cur.Chars += len(u.Text)
	}
	flush()
	return batches
}
