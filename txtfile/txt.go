// Package txtfile implements parsing and serialization of plain text files.
//
// Each non-empty line is one translation unit; blank lines, the line-ending
// style and a missing final newline are preserved positionally.
package txtfile

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"github.com/subtrans/subtrans/document"
)

// Document is a parsed plain text file.
type Document struct {
	bom      bool
	eol      string
	lines    []string
	finalEOL bool
}

// Parse parses plain text bytes into a Document. Plain text has no grammar
// to violate, so Parse only fails on invalid UTF-8 handled upstream.
// The line-ending style is detected per file, not per line: a file with
// mixed endings serializes as all-CRLF when any CRLF is present.
func Parse(data []byte) (*Document, error) {
	d := &Document{eol: "\n"}
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		d.bom = true
		data = data[3:]
	}
	if bytes.Contains(data, []byte("\r\n")) {
		d.eol = "\r\n"
	}

	s := string(data)
	d.finalEOL = strings.HasSuffix(s, "\n")
	d.lines = strings.Split(s, "\n")
	if d.finalEOL {
		d.lines = d.lines[:len(d.lines)-1]
	}
	for i, ln := range d.lines {
		d.lines[i] = strings.TrimSuffix(ln, "\r")
	}
	return d, nil
}

// Units returns one translation unit per non-empty line, keyed by its
// 1-based line number.
func (d *Document) Units() []document.Unit {
	var units []document.Unit
	for i, ln := range d.lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		units = append(units, document.Unit{
			Loc:  document.Locator("line:" + strconv.Itoa(i+1)),
			Text: ln,
		})
	}
	return units
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() document.Document {
	return &Document{
		bom:      d.bom,
		eol:      d.eol,
		finalEOL: d.finalEOL,
		lines:    append([]string(nil), d.lines...),
	}
}

// Apply substitutes the line addressed by loc. Only lines that Units would
// emit are addressable; blank lines are structure, not text.
func (d *Document) Apply(loc document.Locator, text string) error {
	s := string(loc)
	if !strings.HasPrefix(s, "line:") {
		return document.ErrOrphanResult
	}
	n, err := strconv.Atoi(s[len("line:"):])
	if err != nil || n < 1 || n > len(d.lines) {
		return document.ErrOrphanResult
	}
	if strings.TrimSpace(d.lines[n-1]) == "" {
		return document.ErrOrphanResult
	}
	d.lines[n-1] = text
	return nil
}

// Serialize writes the document. With untouched text the output is
// byte-identical to the parsed input.
func (d *Document) Serialize(w io.Writer) error {
	var b strings.Builder
	if d.bom {
		b.WriteString("\xEF\xBB\xBF")
	}
	b.WriteString(strings.Join(d.lines, d.eol))
	if d.finalEOL {
		b.WriteString(d.eol)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
