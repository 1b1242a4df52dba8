package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/subtrans/subtrans/backend"
	"github.com/subtrans/subtrans/document"
)

const srtSample = "1\n00:00:01,000 --> 00:00:04,000\nHello world\n\n2\n00:00:05,000 --> 00:00:08,000\nSee you tomorrow\n"

// prefixEngine is a deterministic stand-in for the model server.
type prefixEngine struct {
	mu    sync.Mutex
	calls int
}

func (e *prefixEngine) TranslateBatch(_ context.Context, texts []string, targetLang string) ([]string, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	out := make([]string, len(texts))
	for i, s := range texts {
		out[i] = "[" + targetLang + "] " + s
	}
	return out, nil
}

func newTestPipeline(t *testing.T, engine backend.Translator, opts Options) *Pipeline {
	t.Helper()
	a, err := backend.New(context.Background(), engine, backend.Options{})
	if err != nil {
		t.Fatalf("backend.New error: %v", err)
	}
	return New(a, opts)
}

func TestTranslateFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "movie.srt")
	if err := os.WriteFile(in, []byte(srtSample), 0644); err != nil {
		t.Fatal(err)
	}

	p := newTestPipeline(t, &prefixEngine{}, Options{TargetLang: "fr"})
	if err := p.TranslateFile(context.Background(), in); err != nil {
		t.Fatalf("TranslateFile error: %v", err)
	}

	out, err := os.ReadFile(filepath.Join(dir, "movie_fr.srt"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	want := "1\n00:00:01,000 --> 00:00:04,000\n[fra_Latn] Hello world\n\n2\n00:00:05,000 --> 00:00:08,000\n[fra_Latn] See you tomorrow\n"
	if string(out) != want {
		t.Fatalf("output mismatch:\ngot:  %q\nwant: %q", out, want)
	}

	// The input stays byte-identical.
	orig, _ := os.ReadFile(in)
	if string(orig) != srtSample {
		t.Fatal("input file was modified")
	}
}

func TestRerunProducesIdenticalOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "talk.txt")
	os.WriteFile(in, []byte("one\ntwo\n"), 0644)

	p := newTestPipeline(t, &prefixEngine{}, Options{TargetLang: "de", Overwrite: true})
	if err := p.TranslateFile(context.Background(), in); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := os.ReadFile(filepath.Join(dir, "talk_de.txt"))
	if err := p.TranslateFile(context.Background(), in); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := os.ReadFile(filepath.Join(dir, "talk_de.txt"))
	if string(first) != string(second) {
		t.Fatalf("reruns differ:\nfirst:  %q\nsecond: %q", first, second)
	}
}

func TestRunSkipsExistingOutputs(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.txt")
	os.WriteFile(in, []byte("hello\n"), 0644)
	os.WriteFile(filepath.Join(dir, "a_es.txt"), []byte("stale\n"), 0644)

	eng := &prefixEngine{}
	p := newTestPipeline(t, eng, Options{TargetLang: "es"})
	sum := p.Run(context.Background(), []string{in})
	if sum.Done != 0 || len(sum.Skipped) != 1 {
		t.Fatalf("summary = %+v, want 1 skipped", sum)
	}
	if eng.calls != 0 {
		t.Fatalf("backend called %d times for a skipped file", eng.calls)
	}

	p = newTestPipeline(t, eng, Options{TargetLang: "es", Overwrite: true})
	sum = p.Run(context.Background(), []string{in})
	if sum.Done != 1 || len(sum.Skipped) != 0 {
		t.Fatalf("summary with overwrite = %+v, want 1 done", sum)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.srt")
	bad := filepath.Join(dir, "bad.srt")
	os.WriteFile(good, []byte(srtSample), 0644)
	os.WriteFile(bad, []byte("1\nnot a timing line\nText\n"), 0644)

	p := newTestPipeline(t, &prefixEngine{}, Options{TargetLang: "fr"})
	sum := p.Run(context.Background(), []string{bad, good})
	if sum.Done != 1 || len(sum.Failed) != 1 {
		t.Fatalf("summary = %+v, want 1 done and 1 failed", sum)
	}
	if filepath.Base(sum.Failed[0].Path) != "bad.srt" || sum.Failed[0].State != StateParsing {
		t.Fatalf("failure = %+v", sum.Failed[0])
	}
	if _, err := os.Stat(filepath.Join(dir, "good_fr.srt")); err != nil {
		t.Fatal("good file did not complete")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad_fr.srt")); !os.IsNotExist(err) {
		t.Fatal("failed file left partial output")
	}
}

type exhaustedEngine struct{}

func (exhaustedEngine) TranslateBatch(context.Context, []string, string) ([]string, error) {
	return nil, backend.ErrResourceExhausted
}

func TestBackendFailureMarksTranslatingState(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "x.txt")
	os.WriteFile(in, []byte("hello\n"), 0644)

	p := newTestPipeline(t, exhaustedEngine{}, Options{TargetLang: "fr"})
	err := p.TranslateFile(context.Background(), in)
	var ferr *FileError
	if !errors.As(err, &ferr) || ferr.State != StateTranslating {
		t.Fatalf("err = %v, want FileError in translating state", err)
	}
	if !errors.Is(err, backend.ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted underneath", err)
	}
}

func TestCancellationWritesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "x.txt")
	os.WriteFile(in, []byte("hello\n"), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, &prefixEngine{}, Options{TargetLang: "fr"})
	err := p.TranslateFile(ctx, in)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "x_fr.txt")); !os.IsNotExist(err) {
		t.Fatal("cancelled run left output behind")
	}
}

// gatedEngine blocks inside TranslateBatch until released, and tracks how
// many calls are still running.
type gatedEngine struct {
	started chan struct{}
	release chan struct{}

	mu       sync.Mutex
	inFlight int
}

func (e *gatedEngine) TranslateBatch(_ context.Context, texts []string, targetLang string) ([]string, error) {
	e.mu.Lock()
	e.inFlight++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inFlight--
		e.mu.Unlock()
	}()

	select {
	case e.started <- struct{}{}:
	default:
	}
	<-e.release

	out := make([]string, len(texts))
	for i, s := range texts {
		out[i] = "[" + targetLang + "] " + s
	}
	return out, nil
}

func TestRunWaitsForInFlightFilesOnCancel(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		path := filepath.Join(dir, name)
		os.WriteFile(path, []byte("hello\n"), 0644)
		files = append(files, path)
	}

	eng := &gatedEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := newTestPipeline(t, eng, Options{TargetLang: "fr", MaxWorkers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Cancel while the first file is mid-translation, then let it finish.
		<-eng.started
		cancel()
		close(eng.release)
	}()

	sum := p.Run(ctx, files)

	eng.mu.Lock()
	inFlight := eng.inFlight
	eng.mu.Unlock()
	if inFlight != 0 {
		t.Fatalf("Run returned with %d translation(s) still in flight", inFlight)
	}
	// The in-flight file completes; the unstarted files are simply dropped.
	if sum.Done != 1 || len(sum.Failed) != 0 || len(sum.Skipped) != 0 {
		t.Fatalf("summary = %+v, want exactly the in-flight file done", sum)
	}
}

func TestObserverSeesProgress(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "x.srt")
	os.WriteFile(in, []byte(srtSample), 0644)

	obs := &recordingObserver{}
	p := newTestPipeline(t, &prefixEngine{}, Options{TargetLang: "fr", Observer: obs})
	if err := p.TranslateFile(context.Background(), in); err != nil {
		t.Fatalf("TranslateFile error: %v", err)
	}
	if obs.started != 1 || obs.completed != 1 || obs.batches == 0 {
		t.Fatalf("observer = %+v", obs)
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	started   int
	batches   int
	completed int
	failed    int
}

func (r *recordingObserver) FileStarted(string) { r.mu.Lock(); r.started++; r.mu.Unlock() }
func (r *recordingObserver) BatchProgress(string, int, int, time.Duration) {
	r.mu.Lock()
	r.batches++
	r.mu.Unlock()
}
func (r *recordingObserver) FileCompleted(string, time.Duration) {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
}
func (r *recordingObserver) FileFailed(string, error) { r.mu.Lock(); r.failed++; r.mu.Unlock() }

func TestOutputPath(t *testing.T) {
	cases := []struct {
		outputDir, input, lang, want string
	}{
		{"", "films/movie.srt", "fr", filepath.Join("films", "movie_fr.srt")},
		{"out", "films/movie.srt", "es", filepath.Join("out", "movie_es.srt")},
		{"", "notes.txt", "de", "notes_de.txt"},
	}
	for _, tc := range cases {
		if got := OutputPath(tc.outputDir, tc.input, tc.lang); got != tc.want {
			t.Fatalf("OutputPath(%q, %q, %q) = %q, want %q", tc.outputDir, tc.input, tc.lang, got, tc.want)
		}
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.srt", "b.vtt", "c.json", "d.txt", "e.mkv", "a_fr.srt", "readme.md"} {
		os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644)
	}
	os.Mkdir(filepath.Join(dir, "sub.srt"), 0755)

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir error: %v", err)
	}
	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	want := []string{"a.srt", "b.vtt", "c.json", "d.txt"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("ScanDir = %v, want %v", names, want)
	}
}

func TestGuidance(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&document.FormatError{Format: "srt", Line: 3, Msg: "bad timing"}, "malformed"},
		{backend.ErrExhausted, "memory-efficient"},
		{document.ErrIncompleteResult, "invariant"},
		{context.Canceled, "cancelled"},
		{errors.New("disk on fire"), "rerun"},
	}
	for _, tc := range cases {
		if got := Guidance(tc.err); !strings.Contains(got, tc.want) {
			t.Fatalf("Guidance(%v) = %q, want mention of %q", tc.err, got, tc.want)
		}
	}
}
