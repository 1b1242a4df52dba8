// subtrans — structure-preserving translation of subtitle files, transcript
// JSON and plain text through a local neural translation server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/subtrans/subtrans/backend"
	"github.com/subtrans/subtrans/config"
	"github.com/subtrans/subtrans/i18n"
	"github.com/subtrans/subtrans/langcode"
	"github.com/subtrans/subtrans/lockfile"
	"github.com/subtrans/subtrans/pipeline"
	"github.com/subtrans/subtrans/watcher"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "subtrans",
		Short: "Structure-preserving file translation (SRT, VTT, JSON, TXT)",
		Long: `subtrans — translate subtitle files, transcript JSON and plain text
while preserving every structural byte: indices, timecodes, cue settings,
JSON key order, line breaks.

Translation runs against a local model server (NLLB-200); the device is
probed once at startup and the CPU path is used when no accelerator is
available.

Commands:
  translate   Translate a directory or a single file
  watch       Watch a directory and translate files as they appear
  langs       List supported target languages`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newLangsCmd())
	root.AddCommand(newTranslateCmd())
	root.AddCommand(newWatchCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("subtrans %s (commit %s, built %s)\n", version, commit, date)
		},
	}
	return cmd
}

func newLangsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "langs",
		Short: "List supported target languages",
		Run: func(cmd *cobra.Command, args []string) {
			for _, code := range langcode.Codes() {
				fmt.Printf("  %-4s %s\n", code, langcode.Name(code))
			}
		},
	}
	return cmd
}

// ---------------------------------------------------------------------------
// Flag handling shared by translate and watch
// ---------------------------------------------------------------------------

// addRunFlags registers the configuration flags on a command and returns a
// resolver that layers changed flags over the .subtrans.yaml defaults.
func addRunFlags(cmd *cobra.Command) func() (config.Config, error) {
	var (
		lang      string
		dir       string
		file      string
		output    string
		model     string
		memEff    bool
		overwrite bool
		server    string
		timeout   time.Duration
		retries   int
		workers   int
		textKeys  []string
	)

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Target language code (required unless set in .subtrans.yaml)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory containing files to translate")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Translate a single file instead of a directory")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default: same as input)")
	cmd.Flags().StringVar(&model, "model", "", "Model profile: standard or large")
	cmd.Flags().BoolVar(&memEff, "memory-efficient", false, "Small sequential batches with memory release")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Re-translate files whose output already exists")
	cmd.Flags().StringVar(&server, "server", "", "Model server URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Per-request timeout")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retry ceiling on resource exhaustion")
	cmd.Flags().IntVar(&workers, "workers", 0, "Maximum concurrent files")
	cmd.Flags().StringSliceVar(&textKeys, "text-keys", nil, "Translatable JSON object keys (default: text)")

	_ = cmd.RegisterFlagCompletionFunc("lang", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return langcode.Codes(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("model", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"standard", "large"}, cobra.ShellCompDirectiveNoFileComp
	})

	return func() (config.Config, error) {
		cfgDir := "."
		if dir != "" {
			cfgDir = dir
		}
		cfg, err := config.Load(cfgDir)
		if err != nil {
			return cfg, err
		}
		if lang != "" {
			cfg.TargetLanguage = lang
		}
		if dir != "" {
			cfg.InputDir = dir
		}
		if file != "" {
			cfg.SpecificInputFile = file
		}
		if output != "" {
			cfg.OutputDir = output
		}
		if model != "" {
			cfg.ModelProfile = model
		}
		if cmd.Flags().Changed("memory-efficient") {
			cfg.MemoryEfficient = memEff
		}
		if cmd.Flags().Changed("overwrite") {
			cfg.Overwrite = overwrite
		}
		if server != "" {
			cfg.ServerURL = server
		}
		if timeout > 0 {
			cfg.RequestTimeout = timeout
		}
		if retries > 0 {
			cfg.MaxRetries = retries
		}
		if workers > 0 {
			cfg.MaxWorkers = workers
		}
		if len(textKeys) > 0 {
			cfg.TextKeys = textKeys
		}
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
}

// buildPipeline assembles the backend adapter and pipeline from a validated
// configuration. The device probe happens here, once per run.
func buildPipeline(ctx context.Context, cfg config.Config, obs pipeline.Observer) (*pipeline.Pipeline, error) {
	modelProfile, err := backend.ModelProfileByName(cfg.ModelProfile)
	if err != nil {
		return nil, err
	}

	engine, err := backend.NewHTTPEngine(backend.HTTPOptions{
		BaseURL: cfg.ServerURL,
		Model:   modelProfile.Model,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}

	profile := backend.StandardProfile()
	if cfg.MemoryEfficient {
		profile = backend.MemoryEfficientProfile()
	}

	adapter, err := backend.New(ctx, engine, backend.Options{
		Profile:    profile,
		Model:      modelProfile,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, err
	}

	dev := adapter.Device()
	if dev.Device == backend.DeviceAccelerated {
		logInfo("Using accelerated device: %s (%.1f GiB)", dev.Name, dev.MemoryGiB)
	} else {
		logWarning("No accelerated device available; using CPU (translations will be slower)")
	}

	return pipeline.New(adapter, pipeline.Options{
		TargetLang: cfg.TargetLanguage,
		OutputDir:  cfg.EffectiveOutputDir(),
		Overwrite:  cfg.Overwrite,
		TextKeys:   cfg.TextKeys,
		MaxWorkers: cfg.MaxWorkers,
		Observer:   obs,
	}), nil
}

// ---------------------------------------------------------------------------
// Progress reporting
// ---------------------------------------------------------------------------

// consoleObserver renders pipeline events as log lines. Events may arrive
// from several worker goroutines at once.
type consoleObserver struct {
	mu sync.Mutex
}

func (c *consoleObserver) FileStarted(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logInfo("Processing: %s", name)
}

func (c *consoleObserver) BatchProgress(name string, done, total int, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logInfo("  %s: batch %d/%d (%.0f%%, %s elapsed)", name, done, total,
		float64(done)/float64(total)*100, elapsed.Round(time.Second))
}

func (c *consoleObserver) FileCompleted(name string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logSuccess("%s translated in %s", name, duration.Round(time.Millisecond))
}

func (c *consoleObserver) FileFailed(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	logError("%s: %v", name, err)
	logError("  %s", pipeline.Guidance(err))
}

// ---------------------------------------------------------------------------
// translate command
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a directory or a single file",
		Long: `Translate all supported files (.srt .vtt .json .txt) in a directory,
or one file with --file. Output is written as {stem}_{lang}{ext}; inputs are
never modified and existing outputs are skipped unless --overwrite is given.`,
	}
	resolve := addRunFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := resolve()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		var files []string
		if cfg.SpecificInputFile != "" {
			files = []string{cfg.SpecificInputFile}
		} else {
			files, err = pipeline.ScanDir(cfg.InputDir)
			if err != nil {
				return err
			}
		}
		if len(files) == 0 {
			logWarning(i18n.T("No files to translate found in %s"), cfg.InputDir)
			logWarning("Supported formats: .srt, .vtt, .json, .txt (files ending in _fr, _es, ... are skipped)")
			return nil
		}

		logInfo(i18n.N("Found %d file to translate:", "Found %d files to translate:", len(files)), len(files))
		for _, f := range files {
			logInfo("  - %s", filepath.Base(f))
		}
		logInfo("Target language: %s (%s)", langcode.Name(cfg.TargetLanguage), cfg.TargetLanguage)

		lock, err := lockfile.Acquire(cfg.EffectiveOutputDir())
		if err != nil {
			return err
		}
		defer lock.Release()

		p, err := buildPipeline(ctx, cfg, &consoleObserver{})
		if err != nil {
			return err
		}

		sum := p.Run(ctx, files)
		for _, skipped := range sum.Skipped {
			logWarning(i18n.T("Skipping %s: output already exists"), filepath.Base(skipped))
		}
		if len(sum.Failed) > 0 {
			return fmt.Errorf("%d of %d file(s) failed", len(sum.Failed), len(files))
		}
		logSuccess(i18n.T("Translation completed! Check %s for translated files"), cfg.EffectiveOutputDir())
		return nil
	}
	return cmd
}

// ---------------------------------------------------------------------------
// watch command
// ---------------------------------------------------------------------------

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and translate files as they appear",
	}
	resolve := addRunFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := resolve()
		if err != nil {
			return err
		}
		if cfg.SpecificInputFile != "" {
			return fmt.Errorf("watch mode takes a directory, not --file")
		}
		ctx := cmd.Context()

		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		lock, err := lockfile.Acquire(cfg.EffectiveOutputDir())
		if err != nil {
			return err
		}
		defer lock.Release()

		p, err := buildPipeline(ctx, cfg, &consoleObserver{})
		if err != nil {
			return err
		}

		w, err := watcher.New(cfg.InputDir, func(ctx context.Context, path string) error {
			out := pipeline.OutputPath(cfg.EffectiveOutputDir(), path, cfg.TargetLanguage)
			if !cfg.Overwrite {
				if _, err := os.Stat(out); err == nil {
					return nil
				}
			}
			return p.TranslateFile(ctx, path)
		})
		if err != nil {
			return err
		}
		defer w.Stop()

		if err := w.Start(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
	return cmd
}

func main() {
	i18n.Init("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}
