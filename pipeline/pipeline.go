// Package pipeline sequences the per-file translation run:
// parse -> extract -> chunk -> translate -> reassemble -> serialize.
//
// Failures are isolated per file: a malformed input or an exhausted backend
// marks that file failed and the run moves on. Only configuration errors
// (unknown target language, bad profile) abort a run, and those are caught
// before the pipeline ever starts. Multiple files are processed by a bounded
// worker pool; parsing, chunking and reassembly run fully parallel while the
// backend adapter serializes the actual translation calls.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/subtrans/subtrans/backend"
	"github.com/subtrans/subtrans/chunk"
	"github.com/subtrans/subtrans/document"
	"github.com/subtrans/subtrans/extract"
	"github.com/subtrans/subtrans/jsonfile"
	"github.com/subtrans/subtrans/langcode"
	"github.com/subtrans/subtrans/merge"
	"github.com/subtrans/subtrans/srtfile"
	"github.com/subtrans/subtrans/txtfile"
	"github.com/subtrans/subtrans/vttfile"
)

// State names the step a file is in. A file ends in StateDone or
// StateFailed; failure in any step skips the remaining steps.
type State string

const (
	StateParsing      State = "parsing"
	StateExtracting   State = "extracting"
	StateChunking     State = "chunking"
	StateTranslating  State = "translating"
	StateReassembling State = "reassembling"
	StateSerializing  State = "serializing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// SupportedExtensions lists the file extensions the pipeline handles.
var SupportedExtensions = []string{".srt", ".vtt", ".json", ".txt"}

// Observer receives structured progress events. Implementations must be
// safe for concurrent use when files are processed in parallel.
type Observer interface {
	FileStarted(name string)
	BatchProgress(name string, done, total int, elapsed time.Duration)
	FileCompleted(name string, duration time.Duration)
	FileFailed(name string, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) FileStarted(string)                            {}
func (NopObserver) BatchProgress(string, int, int, time.Duration) {}
func (NopObserver) FileCompleted(string, time.Duration)           {}
func (NopObserver) FileFailed(string, error)                      {}

// FileError wraps a per-file failure with the step it happened in.
type FileError struct {
	Path  string
	State State
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %s: %v", filepath.Base(e.Path), e.State, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Options configures a Pipeline.
type Options struct {
	// TargetLang is the validated target language code.
	TargetLang string
	// OutputDir receives translated files. Empty means alongside the input.
	OutputDir string
	// Overwrite re-translates files whose output already exists.
	Overwrite bool
	// TextKeys is the JSON translatable-key allow-list.
	TextKeys []string
	// MaxWorkers bounds concurrent file processing. Default 2.
	MaxWorkers int
	// Observer receives progress events. Default NopObserver.
	Observer Observer
}

func (o *Options) effectiveWorkers() int {
	if o.MaxWorkers > 0 {
		return o.MaxWorkers
	}
	return 2
}

func (o *Options) observer() Observer {
	if o.Observer != nil {
		return o.Observer
	}
	return NopObserver{}
}

// Pipeline runs files through the translation steps against one backend
// adapter.
type Pipeline struct {
	adapter *backend.Adapter
	opts    Options
}

// New builds a Pipeline. The target language must already be validated.
func New(adapter *backend.Adapter, opts Options) *Pipeline {
	return &Pipeline{adapter: adapter, opts: opts}
}

// parseDocument dispatches on the file extension. The format set is closed;
// dispatch happens exactly once per file, here.
func parseDocument(path string, data []byte, textKeys []string) (document.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return srtfile.Parse(data)
	case ".vtt":
		return vttfile.Parse(data)
	case ".json":
		return jsonfile.ParseWith(data, jsonfile.Options{TextKeys: textKeys})
	case ".txt":
		return txtfile.Parse(data)
	}
	return nil, fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
}

// OutputPath returns "{stem}_{lang}{ext}" inside outputDir (or the input's
// directory when outputDir is empty). Inputs are never modified in place.
func OutputPath(outputDir, inputPath, lang string) string {
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	ext := filepath.Ext(inputPath)
	stem := strings.TrimSuffix(filepath.Base(inputPath), ext)
	return filepath.Join(dir, stem+"_"+lang+ext)
}

// TranslateFile runs the full state machine for one file. Cancellation is
// checked between batches only; a cancelled file fails without writing any
// partial output.
func (p *Pipeline) TranslateFile(ctx context.Context, path string) error {
	obs := p.opts.observer()
	name := filepath.Base(path)
	obs.FileStarted(name)
	started := time.Now()

	fail := func(state State, err error) error {
		ferr := &FileError{Path: path, State: state, Err: err}
		obs.FileFailed(name, ferr)
		return ferr
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fail(StateParsing, err)
	}
	doc, err := parseDocument(path, data, p.opts.TextKeys)
	if err != nil {
		return fail(StateParsing, err)
	}

	units, err := extract.Units(doc)
	if err != nil {
		return fail(StateExtracting, err)
	}

	profile := p.adapter.Profile()
	batches := chunk.Plan(units, profile.BatchChars, profile.BatchUnits)

	result := make(document.Result, len(units))
	for i, b := range batches {
		select {
		case <-ctx.Done():
			return fail(StateTranslating, ctx.Err())
		default:
		}

		translated, err := p.adapter.TranslateBatch(ctx, b.Texts(), langcode.Tag(p.opts.TargetLang))
		if err != nil {
			return fail(StateTranslating, err)
		}
		for j, u := range b.Units {
			result[u.Loc] = translated[j]
		}
		obs.BatchProgress(name, i+1, len(batches), time.Since(started))
	}

	out, err := merge.Apply(doc, result)
	if err != nil {
		return fail(StateReassembling, err)
	}

	outPath := OutputPath(p.opts.OutputDir, path, p.opts.TargetLang)
	var buf strings.Builder
	if err := out.Serialize(&buf); err != nil {
		return fail(StateSerializing, err)
	}
	if err := os.WriteFile(outPath, []byte(buf.String()), 0644); err != nil {
		return fail(StateSerializing, err)
	}

	obs.FileCompleted(name, time.Since(started))
	return nil
}

// Summary reports the outcome of a multi-file run.
type Summary struct {
	Done    int
	Skipped []string
	Failed  []*FileError
}

// Run processes files with a bounded worker pool. Each file is independent:
// failures are collected, not propagated. Files whose output already exists
// are skipped unless Overwrite is set.
func (p *Pipeline) Run(ctx context.Context, files []string) *Summary {
	sum := &Summary{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.opts.effectiveWorkers())

	for _, path := range files {
		outPath := OutputPath(p.opts.OutputDir, path, p.opts.TargetLang)
		if !p.opts.Overwrite {
			if _, err := os.Stat(outPath); err == nil {
				sum.Skipped = append(sum.Skipped, path)
				continue
			}
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			// Stop launching new files, but let the in-flight ones finish
			// before the summary is handed back.
			wg.Wait()
			return sum
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			err := p.TranslateFile(ctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var ferr *FileError
				if errors.As(err, &ferr) {
					sum.Failed = append(sum.Failed, ferr)
				} else {
					sum.Failed = append(sum.Failed, &FileError{Path: path, State: StateFailed, Err: err})
				}
				return
			}
			sum.Done++
		}(path)
	}

	wg.Wait()
	return sum
}

// ScanDir lists translatable files in a directory: supported extensions
// only, skipping names that already carry a language suffix (outputs of a
// previous run).
func ScanDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	supported := make(map[string]bool, len(SupportedExtensions))
	for _, ext := range SupportedExtensions {
		supported[ext] = true
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !supported[ext] {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if langcode.HasSuffix(stem) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// Guidance returns one actionable line for a per-file failure, shown next
// to the filename and error kind.
func Guidance(err error) string {
	var ferr *document.FormatError
	switch {
	case errors.As(err, &ferr):
		return "fix the malformed input or remove the file; the original was left untouched"
	case errors.Is(err, backend.ErrExhausted):
		return "free device memory or rerun with --memory-efficient"
	case errors.Is(err, document.ErrLocatorCollision),
		errors.Is(err, document.ErrIncompleteResult),
		errors.Is(err, document.ErrOrphanResult):
		return "internal invariant violation; rerun the file and report a bug if it persists"
	case errors.Is(err, context.Canceled):
		return "run was cancelled; rerun to translate this file"
	}
	return "rerun the file; the whole pipeline restarts from the original input"
}
