// Package watcher implements watch mode: monitoring an input directory and
// translating supported files as they appear.
package watcher

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/subtrans/subtrans/langcode"
	"github.com/subtrans/subtrans/pipeline"
)

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Watcher monitors a directory for new translatable files.
type Watcher struct {
	inputDir string
	handler  Handler
	fsw      *fsnotify.Watcher
	// settle is how long a file must stay quiet after the last write
	// before it is handed to the pipeline.
	settle time.Duration
	wg     sync.WaitGroup
}

// New creates a Watcher on inputDir.
func New(inputDir string, handler Handler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(inputDir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", inputDir, err)
	}
	return &Watcher{
		inputDir: inputDir,
		handler:  handler,
		fsw:      fsw,
		settle:   500 * time.Millisecond,
	}, nil
}

// Start blocks, dispatching settled files to the handler until the context
// is cancelled. In-flight files are allowed to finish before return.
func (w *Watcher) Start(ctx context.Context) error {
	log.Printf("[watch] monitoring %s for %s files", w.inputDir, strings.Join(pipeline.SupportedExtensions, " "))

	// pending tracks the last write time per path so a file is handled
	// once it stops growing.
	pending := make(map[string]time.Time)
	tick := time.NewTicker(w.settle)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if w.wants(event.Name) {
				pending[event.Name] = time.Now()
			}

		case now := <-tick.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.wg.Add(1)
				go func(path string) {
					defer w.wg.Done()
					if err := w.handler(ctx, path); err != nil {
						log.Printf("[watch] %s: %v", filepath.Base(path), err)
					}
				}(path)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			log.Printf("[watch] error: %v", err)
		}
	}
}

// Stop closes the underlying filesystem watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

// wants reports whether a path is a translatable input: supported extension
// and no language suffix already on the stem.
func (w *Watcher) wants(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	ok := false
	for _, s := range pipeline.SupportedExtensions {
		if ext == s {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return !langcode.HasSuffix(stem)
}
