// Package config — .subtrans.yaml configuration file support.
//
// Flags always win over the file; the file only supplies defaults so a
// project can pin its target language, model profile and server address
// without repeating them on every invocation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/subtrans/subtrans/langcode"
)

// FileName is the per-directory configuration file name.
const FileName = ".subtrans.yaml"

// Config holds the full run configuration. Zero values mean "use default".
type Config struct {
	// TargetLanguage is the required target language code ("fr", "es", ...).
	TargetLanguage string `yaml:"target_language"`
	// ModelProfile selects the model size: "standard" (default) or "large".
	ModelProfile string `yaml:"model_profile,omitempty"`
	// MemoryEfficient switches to small sequential batches with explicit
	// memory release between them.
	MemoryEfficient bool `yaml:"memory_efficient,omitempty"`

	// InputDir is the directory scanned for translatable files.
	InputDir string `yaml:"input_dir,omitempty"`
	// OutputDir receives translated files (default: InputDir).
	OutputDir string `yaml:"output_dir,omitempty"`
	// SpecificInputFile translates a single file instead of a directory.
	SpecificInputFile string `yaml:"specific_input_file,omitempty"`
	// Overwrite re-translates files whose output already exists.
	Overwrite bool `yaml:"overwrite,omitempty"`

	// ServerURL is the model server address.
	ServerURL string `yaml:"server_url,omitempty"`
	// RequestTimeout is the per-request timeout.
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`
	// MaxRetries is the retry ceiling on resource exhaustion.
	MaxRetries int `yaml:"max_retries,omitempty"`

	// MaxWorkers bounds concurrent file processing.
	MaxWorkers int `yaml:"max_workers,omitempty"`
	// TextKeys is the allow-list of translatable JSON object keys
	// (default ["text"]).
	TextKeys []string `yaml:"text_keys,omitempty"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		InputDir:     "files_to_translate",
		ModelProfile: "standard",
		ServerURL:    "http://127.0.0.1:8090",
	}
}

// Load reads .subtrans.yaml from dir, layered over the defaults. A missing
// file is not an error.
func Load(dir string) (Config, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration surface. Configuration errors abort the
// whole run before any file is processed.
func (c *Config) Validate() error {
	lang, err := langcode.Validate(c.TargetLanguage)
	if err != nil {
		return err
	}
	c.TargetLanguage = lang

	switch c.ModelProfile {
	case "", "standard", "large":
	default:
		return fmt.Errorf("unknown model profile %q (standard, large)", c.ModelProfile)
	}
	if c.ServerURL == "" {
		return fmt.Errorf("model server URL is required")
	}
	if c.SpecificInputFile == "" && c.InputDir == "" {
		return fmt.Errorf("either input_dir or specific_input_file is required")
	}
	return nil
}

// EnsureDirs creates the input and output directories when missing, so a
// fresh project bootstraps itself instead of failing on the first run.
func (c *Config) EnsureDirs() error {
	if c.SpecificInputFile == "" && c.InputDir != "" {
		if err := os.MkdirAll(c.InputDir, 0755); err != nil {
			return fmt.Errorf("creating input directory: %w", err)
		}
	}
	if out := c.EffectiveOutputDir(); out != "" {
		if err := os.MkdirAll(out, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	return nil
}

// EffectiveOutputDir resolves the output directory: OutputDir if set,
// otherwise the input location. Inputs are never modified in place — the
// output name always carries the language suffix.
func (c *Config) EffectiveOutputDir() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	if c.SpecificInputFile != "" {
		return filepath.Dir(c.SpecificInputFile)
	}
	return c.InputDir
}
