// Package langcode provides the registry of supported target languages:
// display names, the model-side language tags, and validation of
// caller-supplied codes.
//
// The target language is always caller-supplied; there is no auto-detection.
// An unknown code is a configuration error and aborts the run before any
// file is touched.
package langcode

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupported is returned for a target language code outside the registry.
var ErrUnsupported = errors.New("unsupported target language")

// Meta describes one supported target language.
type Meta struct {
	// Name is the English display name.
	Name string
	// Tag is the language tag the translation model expects
	// (NLLB-style script-qualified tags).
	Tag string
}

// Registry contains the canonical set of supported target languages.
// The source language is always English.
var Registry = map[string]Meta{
	"de": {Name: "German", Tag: "deu_Latn"},
	"es": {Name: "Spanish", Tag: "spa_Latn"},
	"fr": {Name: "French", Tag: "fra_Latn"},
	"it": {Name: "Italian", Tag: "ita_Latn"},
	"nl": {Name: "Dutch", Tag: "nld_Latn"},
	"pl": {Name: "Polish", Tag: "pol_Latn"},
	"pt": {Name: "Portuguese", Tag: "por_Latn"},
	"ru": {Name: "Russian", Tag: "rus_Cyrl"},
}

// Validate normalizes and checks a target language code. It returns the
// normalized (lowercase) code or ErrUnsupported.
func Validate(code string) (string, error) {
	c := strings.ToLower(strings.TrimSpace(code))
	if _, ok := Registry[c]; !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupported, code, strings.Join(Codes(), ", "))
	}
	return c, nil
}

// Name returns the English display name for a supported code, or the code
// itself if unknown.
func Name(code string) string {
	if m, ok := Registry[strings.ToLower(code)]; ok {
		return m.Name
	}
	return code
}

// Tag returns the model-side language tag for a supported code.
func Tag(code string) string {
	if m, ok := Registry[strings.ToLower(code)]; ok {
		return m.Tag
	}
	return code
}

// Codes returns the sorted list of supported language codes.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for c := range Registry {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// HasSuffix reports whether a file stem already carries a supported language
// suffix ("movie_fr", "talk_es"). Such files are outputs of a previous run
// and are skipped when scanning an input directory.
func HasSuffix(stem string) bool {
	lower := strings.ToLower(stem)
	for code := range Registry {
		if strings.HasSuffix(lower, "_"+code) {
			return true
		}
	}
	return false
}
