// Package vttfile implements parsing and serialization of WebVTT (.vtt)
// subtitle files.
//
// The file is modeled as a sequence of blocks separated by blank-line runs.
// The WEBVTT header block and any NOTE/STYLE/REGION blocks pass through
// verbatim. Cue blocks keep their optional identifier line, the raw timing
// line (including cue settings such as "align:start"), and their text lines;
// only the text is ever substituted.
package vttfile

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/subtrans/subtrans/document"
)

var timingRe = regexp.MustCompile(`^((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})\s*-->\s*((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})(.*)$`)

// block is either an opaque passthrough block (header, NOTE, STYLE, REGION)
// or a cue.
type block struct {
	// blanksBefore is the number of blank lines preceding the block.
	blanksBefore int
	// raw holds the verbatim lines of a passthrough block; nil for cues.
	raw []string
	cue *Cue
}

// Cue is one WebVTT cue block.
type Cue struct {
	// ID is the optional cue identifier line, verbatim. HasID
	// distinguishes an empty identifier from an absent one.
	ID    string
	HasID bool
	// RawTiming is the timing line verbatim, cue settings included.
	RawTiming string
	// Start and End are milliseconds.
	Start int
	End   int
	Lines []string

	// seq is the 1-based position among cues, used for locators since
	// WebVTT identifiers are optional.
	seq int
}

// Document is a parsed WebVTT file.
type Document struct {
	bom      bool
	eol      string
	blocks   []*block
	cues     []*Cue
	finalEOL bool

	byLoc map[document.Locator]*Cue
}

// Parse parses WebVTT bytes into a Document. The line-ending style is
// detected per file, not per line: a file with mixed endings serializes as
// all-CRLF when any CRLF is present.
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
	lines := strings.Split(s, "\n")
	if d.finalEOL {
		lines = lines[:len(lines)-1]
	}
	for i, ln := range lines {
		lines[i] = strings.TrimSuffix(ln, "\r")
	}

	if len(lines) == 0 || !strings.HasPrefix(lines[0], "WEBVTT") {
		return nil, document.Formatf("vtt", 1, "missing WEBVTT header")
	}

	i := 0
	first := true
	for i < len(lines) {
		blanks := 0
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			blanks++
			i++
		}
		if i >= len(lines) {
			// Trailing blank run: keep it as an empty passthrough block.
			if blanks > 0 {
				d.blocks = append(d.blocks, &block{blanksBefore: blanks})
			}
			break
		}

		start := i
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			i++
		}
		group := lines[start:i]

		b := &block{blanksBefore: blanks}
		if first || !isCueBlock(group) {
			b.raw = group
		} else {
			cue, err := parseCue(group, start)
			if err != nil {
				return nil, err
			}
			cue.seq = len(d.cues) + 1
			b.cue = cue
			d.cues = append(d.cues, cue)
		}
		d.blocks = append(d.blocks, b)
		first = false
	}

	return d, nil
}

// isCueBlock reports whether a block is a cue rather than a NOTE/STYLE/
// REGION/comment block. A cue has a timing line on its first or second line.
func isCueBlock(group []string) bool {
	switch word := firstWord(group[0]); word {
	case "NOTE", "STYLE", "REGION":
		return false
	}
	if timingRe.MatchString(group[0]) {
		return true
	}
	return len(group) > 1 && timingRe.MatchString(group[1])
}

func firstWord(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// parseCue parses one cue block. lineOffset is the 0-based index of the
// block's first line in the file, used for error positions.
func parseCue(group []string, lineOffset int) (*Cue, error) {
	cue := &Cue{}
	timingAt := 0
	if !timingRe.MatchString(group[0]) {
		cue.ID = group[0]
		cue.HasID = true
		timingAt = 1
	}

	m := timingRe.FindStringSubmatch(group[timingAt])
	if m == nil {
		return nil, document.Formatf("vtt", lineOffset+timingAt+1, "invalid timing line %q", group[timingAt])
	}
	cue.RawTiming = group[timingAt]
	cue.Start = parseTimecode(m[1])
	cue.End = parseTimecode(m[2])
	if cue.Start > cue.End {
		return nil, document.Formatf("vtt", lineOffset+timingAt+1, "cue start %s after end %s", m[1], m[2])
	}
	cue.Lines = append([]string(nil), group[timingAt+1:]...)
	return cue, nil
}

// parseTimecode converts "HH:MM:SS.mmm" or "MM:SS.mmm" to milliseconds.
func parseTimecode(tc string) int {
	parts := strings.Split(tc, ":")
	secMs := parts[len(parts)-1]
	sec, _ := strconv.Atoi(secMs[:2])
	ms, _ := strconv.Atoi(secMs[3:6])
	total := sec*1000 + ms
	if len(parts) >= 2 {
		m, _ := strconv.Atoi(parts[len(parts)-2])
		total += m * 60 * 1000
	}
	if len(parts) == 3 {
		h, _ := strconv.Atoi(parts[0])
		total += h * 3600 * 1000
	}
	return total
}

// Cues returns the parsed cues in file order.
func (d *Document) Cues() []*Cue {
	return d.cues
}

func locator(c *Cue) document.Locator {
	return document.Locator("cue:" + strconv.Itoa(c.seq))
}

// Units returns one translation unit per cue, in file order.
func (d *Document) Units() []document.Unit {
	units := make([]document.Unit, 0, len(d.cues))
	for _, c := range d.cues {
		units = append(units, document.Unit{
			Loc:  locator(c),
			Text: strings.Join(c.Lines, "\n"),
		})
	}
	return units
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() document.Document {
	cp := &Document{
		bom:      d.bom,
		eol:      d.eol,
		finalEOL: d.finalEOL,
		blocks:   make([]*block, len(d.blocks)),
	}
	for i, b := range d.blocks {
		nb := &block{blanksBefore: b.blanksBefore}
		if b.cue != nil {
			cc := *b.cue
			cc.Lines = append([]string(nil), b.cue.Lines...)
			nb.cue = &cc
			cp.cues = append(cp.cues, &cc)
		} else {
			nb.raw = append([]string(nil), b.raw...)
		}
		cp.blocks[i] = nb
	}
	return cp
}

// Apply substitutes the text of the cue addressed by loc.
func (d *Document) Apply(loc document.Locator, text string) error {
	if d.byLoc == nil {
		d.byLoc = make(map[document.Locator]*Cue, len(d.cues))
		for _, c := range d.cues {
			d.byLoc[locator(c)] = c
		}
	}
	c, ok := d.byLoc[loc]
	if !ok {
		return document.ErrOrphanResult
	}
	if text == "" {
		c.Lines = nil
	} else {
		c.Lines = strings.Split(text, "\n")
	}
	return nil
}

// Serialize writes the document. With untouched text the output is
// byte-identical to the parsed input.
func (d *Document) Serialize(w io.Writer) error {
	var b strings.Builder
	if d.bom {
		b.WriteString("\xEF\xBB\xBF")
	}
	var out []string
	for _, blk := range d.blocks {
		for i := 0; i < blk.blanksBefore; i++ {
			out = append(out, "")
		}
		if blk.cue != nil {
			c := blk.cue
			if c.HasID {
				out = append(out, c.ID)
			}
			out = append(out, c.RawTiming)
			out = append(out, c.Lines...)
		} else {
			out = append(out, blk.raw...)
		}
	}
	b.WriteString(strings.Join(out, d.eol))
	if d.finalEOL {
		b.WriteString(d.eol)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
