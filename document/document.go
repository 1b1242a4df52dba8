// Package document defines the shared types that flow between the format
// adapters, the extractor, the chunker and the reassembler: parsed documents,
// translation units, locators, results, and the error taxonomy.
//
// A Document is the in-memory representation of one input file. It is owned
// by a single pipeline run: parsed once, walked once by the extractor, and
// discarded after reassembly. Substitution of translated text happens on a
// clone, never on the parsed original.
package document

import (
	"errors"
	"fmt"
	"io"
)

// Locator addresses one translatable atom inside a document. The encoding is
// format-specific (cue index for subtitles, key path for JSON, line number
// for plain text) and opaque to everything except the adapter that minted it.
type Locator string

// Unit is one atom of translatable text together with its position.
type Unit struct {
	Loc  Locator
	Text string
}

// Result maps every extracted locator to its translated text. Reassembly
// requires exactly one entry per extracted unit.
type Result map[Locator]string

// Document is the closed set of parsed file representations. Each format
// package provides one implementation.
type Document interface {
	// Units returns the translatable units in document order. Repeated
	// calls on the same document return the same sequence.
	Units() []Unit
	// Clone returns a deep copy suitable for substitution.
	Clone() Document
	// Apply writes translated text at the given locator. It fails if the
	// locator was not produced by Units().
	Apply(loc Locator, text string) error
	// Serialize writes the document back out, reproducing every byte of
	// the original input that is not a translated text span.
	Serialize(w io.Writer) error
}

// Sentinel errors for internal invariant violations. These are never
// silently patched: a file that trips one is marked failed.
var (
	// ErrLocatorCollision: two units resolved to the same locator.
	ErrLocatorCollision = errors.New("duplicate unit locator")
	// ErrIncompleteResult: an extracted locator is missing from the result.
	ErrIncompleteResult = errors.New("translation result missing unit")
	// ErrOrphanResult: the result contains a locator never extracted.
	ErrOrphanResult = errors.New("translation result has unknown unit")
)

// FormatError reports malformed input. Line is 1-based where known, 0 when
// the position is not line-addressable (e.g. a JSON offset).
type FormatError struct {
	Format string // "srt", "vtt", "json", "txt"
	Line   int
	Msg    string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s format error at line %d: %s", e.Format, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s format error: %s", e.Format, e.Msg)
}

// Formatf constructs a FormatError.
func Formatf(format string, line int, msg string, args ...any) *FormatError {
	return &FormatError{Format: format, Line: line, Msg: fmt.Sprintf(msg, args...)}
}
