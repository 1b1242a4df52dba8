package langcode

import (
	"errors"
	"sort"
	"testing"
)

func TestValidate(t *testing.T) {
	for _, in := range []string{"fr", "FR", " fr "} {
		got, err := Validate(in)
		if err != nil || got != "fr" {
			t.Fatalf("Validate(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"", "xx", "french"} {
		if _, err := Validate(in); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("Validate(%q) err = %v, want ErrUnsupported", in, err)
		}
	}
}

func TestTagAndName(t *testing.T) {
	if Tag("fr") != "fra_Latn" || Tag("ru") != "rus_Cyrl" {
		t.Fatalf("Tag(fr) = %q, Tag(ru) = %q", Tag("fr"), Tag("ru"))
	}
	if Name("de") != "German" {
		t.Fatalf("Name(de) = %q", Name("de"))
	}
	// Unknown codes pass through rather than panicking.
	if Tag("zz") != "zz" || Name("zz") != "zz" {
		t.Fatalf("unknown code handling: Tag = %q, Name = %q", Tag("zz"), Name("zz"))
	}
}

func TestCodesSorted(t *testing.T) {
	codes := Codes()
	if len(codes) != len(Registry) {
		t.Fatalf("Codes() has %d entries, want %d", len(codes), len(Registry))
	}
	if !sort.StringsAreSorted(codes) {
		t.Fatalf("Codes() not sorted: %v", codes)
	}
}

func TestHasSuffix(t *testing.T) {
	cases := map[string]bool{
		"movie_fr":    true,
		"talk_ES":     true,
		"movie":       false,
		"fr":          false,
		"drive_first": false,
	}
	for stem, want := range cases {
		if got := HasSuffix(stem); got != want {
			t.Fatalf("HasSuffix(%q) = %v, want %v", stem, got, want)
		}
	}
}
