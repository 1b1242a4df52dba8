// Package jsonfile implements parsing and serialization of JSON transcript
// files: either an array of segment objects or an arbitrarily nested
// dictionary.
//
// Decoding preserves object key order and raw number formatting via a
// token-level walk (the same technique the stdlib decoder exposes through
// json.Decoder). Only string values stored under a configured set of
// translatable keys become translation units; every other leaf, every key,
// and the original ordering pass through untouched. Output is two-space
// indented UTF-8 without HTML escaping, matching the transcript producer's
// formatting.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/subtrans/subtrans/document"
)

// DefaultTextKeys is the default allow-list of translatable object keys.
var DefaultTextKeys = []string{"text"}

// Options configures which object keys hold translatable text.
type Options struct {
	// TextKeys is the allow-list of keys whose string values are
	// translated. Empty means DefaultTextKeys.
	TextKeys []string
}

type kind int

const (
	kindObject kind = iota
	kindArray
	kindString
	kindNumber
	kindBool
	kindNull
)

// node is one value in the parsed tree. Objects keep parallel key/value
// slices to preserve order.
type node struct {
	kind kind
	keys []string
	vals []*node
	arr  []*node
	str  string
	num  json.Number
	b    bool
}

// Document is a parsed JSON file.
type Document struct {
	root     *node
	textKeys map[string]bool
	finalEOL bool

	units []document.Unit
	byLoc map[document.Locator]*node
}

// Parse parses JSON bytes with the default translatable-key set.
func Parse(data []byte) (*Document, error) {
	return ParseWith(data, Options{})
}

// ParseWith parses JSON bytes using the given options.
func ParseWith(data []byte, opts Options) (*Document, error) {
	keys := opts.TextKeys
	if len(keys) == 0 {
		keys = DefaultTextKeys
	}
	d := &Document{textKeys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		d.textKeys[k] = true
	}
	d.finalEOL = bytes.HasSuffix(data, []byte("\n"))

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		return nil, document.Formatf("json", 0, "%v", err)
	}
	if root.kind != kindObject && root.kind != kindArray {
		return nil, document.Formatf("json", 0, "top-level value must be an object or array")
	}
	// Anything after the first value is garbage.
	if _, err := dec.Token(); err != io.EOF {
		return nil, document.Formatf("json", 0, "trailing data after JSON value")
	}
	d.root = root
	return d, nil
}

// decodeValue reads one complete JSON value from the token stream.
func decodeValue(dec *json.Decoder) (*node, error) {
	t, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, t)
}

func decodeFromToken(dec *json.Decoder, t json.Token) (*node, error) {
	switch v := t.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &node{kind: kindObject}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", kt)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.keys = append(n.keys, key)
				n.vals = append(n.vals, val)
			}
			if _, err := dec.Token(); err != nil { // closing }
				return nil, err
			}
			return n, nil
		case '[':
			n := &node{kind: kindArray}
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				n.arr = append(n.arr, val)
			}
			if _, err := dec.Token(); err != nil { // closing ]
				return nil, err
			}
			return n, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", v)
	case string:
		return &node{kind: kindString, str: v}, nil
	case json.Number:
		return &node{kind: kindNumber, num: v}, nil
	case bool:
		return &node{kind: kindBool, b: v}, nil
	case nil:
		return &node{kind: kindNull}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", t)
}

// walk visits the tree in document order, calling fn for every string value
// stored under a translatable key.
func (d *Document) walk(n *node, path string, key string, underTextKey bool, fn func(loc document.Locator, n *node)) {
	switch n.kind {
	case kindObject:
		for i, k := range n.keys {
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			d.walk(n.vals[i], childPath, k, d.textKeys[k], fn)
		}
	case kindArray:
		for i, el := range n.arr {
			idx := strconv.Itoa(i)
			childPath := idx
			if path != "" {
				childPath = path + "." + idx
			}
			// Array elements inherit no key: only objects inside can
			// carry translatable fields.
			d.walk(el, childPath, key, false, fn)
		}
	case kindString:
		if underTextKey {
			fn(document.Locator(path), n)
		}
	}
}

func (d *Document) index() {
	if d.byLoc != nil {
		return
	}
	d.byLoc = make(map[document.Locator]*node)
	d.walk(d.root, "", "", false, func(loc document.Locator, n *node) {
		d.units = append(d.units, document.Unit{Loc: loc, Text: n.str})
		d.byLoc[loc] = n
	})
}

// Units returns one translation unit per translatable string leaf, in
// document order.
func (d *Document) Units() []document.Unit {
	d.index()
	return d.units
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() document.Document {
	cp := &Document{
		textKeys: d.textKeys,
		finalEOL: d.finalEOL,
		root:     cloneNode(d.root),
	}
	return cp
}

func cloneNode(n *node) *node {
	c := &node{kind: n.kind, str: n.str, num: n.num, b: n.b}
	if n.keys != nil {
		c.keys = append([]string(nil), n.keys...)
		c.vals = make([]*node, len(n.vals))
		for i, v := range n.vals {
			c.vals[i] = cloneNode(v)
		}
	}
	if n.arr != nil {
		c.arr = make([]*node, len(n.arr))
		for i, v := range n.arr {
			c.arr[i] = cloneNode(v)
		}
	}
	return c
}

// Apply substitutes the string value addressed by loc.
func (d *Document) Apply(loc document.Locator, text string) error {
	d.index()
	n, ok := d.byLoc[loc]
	if !ok {
		return document.ErrOrphanResult
	}
	n.str = text
	return nil
}

// Serialize writes the document with two-space indentation.
func (d *Document) Serialize(w io.Writer) error {
	var b strings.Builder
	encodeNode(&b, d.root, 0)
	if d.finalEOL {
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func encodeNode(b *strings.Builder, n *node, depth int) {
	switch n.kind {
	case kindObject:
		if len(n.keys) == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{\n")
		for i, k := range n.keys {
			writeIndent(b, depth+1)
			writeString(b, k)
			b.WriteString(": ")
			encodeNode(b, n.vals[i], depth+1)
			if i < len(n.keys)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		writeIndent(b, depth)
		b.WriteString("}")
	case kindArray:
		if len(n.arr) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, el := range n.arr {
			writeIndent(b, depth+1)
			encodeNode(b, el, depth+1)
			if i < len(n.arr)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		writeIndent(b, depth)
		b.WriteString("]")
	case kindString:
		writeString(b, n.str)
	case kindNumber:
		b.WriteString(n.num.String())
	case kindBool:
		if n.b {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case kindNull:
		b.WriteString("null")
	}
}

func writeIndent(b *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

// writeString encodes a JSON string without HTML escaping, keeping non-ASCII
// characters literal.
func writeString(b *strings.Builder, s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.Encode(s) // cannot fail for a string
	b.WriteString(strings.TrimSuffix(buf.String(), "\n"))
}
