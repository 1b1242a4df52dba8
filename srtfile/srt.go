// Package srtfile implements parsing and serialization of SubRip (.srt)
// subtitle files.
//
// The parser keeps every structural byte of the input — index lines,
// timecode lines, blank-line runs, line-ending style, BOM — verbatim, so
// that serializing with untouched text reproduces the original file exactly.
// Only cue text is ever substituted. Indices pass through unchanged even
// when the original numbering has gaps; renumbering is forbidden because
// downstream consumers key on the original indices.
package srtfile

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/subtrans/subtrans/document"
)

var timingRe = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2},\d{3}) --> (\d{2}:\d{2}:\d{2},\d{3})\s*(.*)$`)

// Cue is one subtitle block. RawIndex and RawTiming hold the original lines
// verbatim; Index, Start and End are the parsed values used for validation
// and locators.
type Cue struct {
	RawIndex  string
	Index     int
	RawTiming string
	// Start and End are milliseconds from the beginning of the media.
	Start int
	End   int
	// Lines are the text lines of the cue. Internal line breaks are part
	// of the translation unit and restored verbatim.
	Lines []string
	// SepBlanks is the number of blank lines that followed this cue.
	SepBlanks int
}

// Document is a parsed SRT file.
type Document struct {
	bom           bool
	eol           string
	leadingBlanks int
	cues          []*Cue
	finalEOL      bool

	byLoc map[document.Locator]*Cue
}

// Parse parses SRT bytes into a Document. The line-ending style is detected
// per file, not per line: a file with mixed endings serializes as all-CRLF
// when any CRLF is present.
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

	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		d.leadingBlanks++
		i++
	}

	for i < len(lines) {
		cue, next, err := parseCue(lines, i)
		if err != nil {
			return nil, err
		}
		d.cues = append(d.cues, cue)
		i = next
	}

	return d, nil
}

// parseCue reads one cue block starting at lines[i] and the blank run that
// follows it. Returns the cue and the index of the next block.
func parseCue(lines []string, i int) (*Cue, int, error) {
	cue := &Cue{RawIndex: lines[i]}

	idx, err := strconv.Atoi(strings.TrimSpace(lines[i]))
	if err != nil {
		return nil, 0, document.Formatf("srt", i+1, "invalid cue index line %q", lines[i])
	}
	cue.Index = idx
	i++

	if i >= len(lines) {
		return nil, 0, document.Formatf("srt", i, "cue %d truncated: missing timecode line", idx)
	}
	m := timingRe.FindStringSubmatch(lines[i])
	if m == nil {
		return nil, 0, document.Formatf("srt", i+1, "invalid timecode line %q", lines[i])
	}
	cue.RawTiming = lines[i]
	cue.Start = parseTimecode(m[1])
	cue.End = parseTimecode(m[2])
	if cue.Start > cue.End {
		return nil, 0, document.Formatf("srt", i+1, "cue %d: start %s after end %s", idx, m[1], m[2])
	}
	i++

	for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
		cue.Lines = append(cue.Lines, lines[i])
		i++
	}
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		cue.SepBlanks++
		i++
	}
	return cue, i, nil
}

// parseTimecode converts "HH:MM:SS,mmm" to milliseconds. The caller has
// already matched the shape via timingRe.
func parseTimecode(tc string) int {
	h, _ := strconv.Atoi(tc[0:2])
	m, _ := strconv.Atoi(tc[3:5])
	s, _ := strconv.Atoi(tc[6:8])
	ms, _ := strconv.Atoi(tc[9:12])
	return ((h*60+m)*60+s)*1000 + ms
}

// Cues returns the parsed cues in file order.
func (d *Document) Cues() []*Cue {
	return d.cues
}

func locator(c *Cue) document.Locator {
	return document.Locator("cue:" + strconv.Itoa(c.Index))
}

// Units returns one translation unit per cue, in file order. A cue's lines
// are joined with "\n" into a single unit.
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
		bom:           d.bom,
		eol:           d.eol,
		leadingBlanks: d.leadingBlanks,
		finalEOL:      d.finalEOL,
		cues:          make([]*Cue, len(d.cues)),
	}
	for i, c := range d.cues {
		cc := *c
		cc.Lines = append([]string(nil), c.Lines...)
		cp.cues[i] = &cc
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
	for i := 0; i < d.leadingBlanks; i++ {
		out = append(out, "")
	}
	for _, c := range d.cues {
		out = append(out, c.RawIndex, c.RawTiming)
		out = append(out, c.Lines...)
		for i := 0; i < c.SepBlanks; i++ {
			out = append(out, "")
		}
	}
	b.WriteString(strings.Join(out, d.eol))
	if d.finalEOL {
		b.WriteString(d.eol)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
