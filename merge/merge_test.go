package merge

import (
	"bytes"
	"errors"
	"testing"

	"github.com/subtrans/subtrans/document"
	"github.com/subtrans/subtrans/txtfile"
)

func parseTxt(t *testing.T, input string) document.Document {
	t.Helper()
	d, err := txtfile.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return d
}

func TestApplySubstitutesEveryUnit(t *testing.T) {
	d := parseTxt(t, "one\ntwo\n")
	out, err := Apply(d, document.Result{
		"line:1": "un",
		"line:2": "deux",
	})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	var buf bytes.Buffer
	out.Serialize(&buf)
	if buf.String() != "un\ndeux\n" {
		t.Fatalf("merged output = %q", buf.String())
	}
	// The source document stays untouched.
	buf.Reset()
	d.Serialize(&buf)
	if buf.String() != "one\ntwo\n" {
		t.Fatalf("source document mutated: %q", buf.String())
	}
}

func TestIncompleteResult(t *testing.T) {
	d := parseTxt(t, "one\ntwo\n")
	_, err := Apply(d, document.Result{"line:1": "un"})
	if !errors.Is(err, document.ErrIncompleteResult) {
		t.Fatalf("err = %v, want ErrIncompleteResult", err)
	}
}

func TestOrphanResult(t *testing.T) {
	d := parseTxt(t, "one\n")
	_, err := Apply(d, document.Result{
		"line:1": "un",
		"line:9": "neuf",
	})
	if !errors.Is(err, document.ErrOrphanResult) {
		t.Fatalf("err = %v, want ErrOrphanResult", err)
	}
}
