// Package backend wraps the black-box translation capability behind a
// uniform batch contract: strings in, translated strings out, order and
// length preserved.
//
// The adapter owns three policies the engines do not: exclusive access to
// the underlying device (one in-flight call per process), batch budgets per
// execution profile, and retry-on-resource-exhaustion with a halved dispatch
// size. Deterministic engine failures are surfaced immediately — retrying
// them wastes compute without changing the outcome.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrResourceExhausted is returned by engines when the device ran out of
// memory for the requested batch. It is the only retryable error.
var ErrResourceExhausted = errors.New("backend resource exhausted")

// ErrExhausted is returned after the retry budget is spent on a batch.
var ErrExhausted = errors.New("backend exhausted after retries")

// Device identifies the compute path chosen at startup.
type Device string

const (
	// DeviceAccelerated is a GPU or similar accelerator.
	DeviceAccelerated Device = "accelerated"
	// DeviceCPU is the general-purpose fallback path.
	DeviceCPU Device = "cpu"
)

// DeviceInfo describes the probed compute device.
type DeviceInfo struct {
	Device Device
	// Name is the device's human-readable name ("NVIDIA RTX 4090", "cpu").
	Name string
	// MemoryGiB is the device memory, 0 when unknown.
	MemoryGiB float64
}

// Translator is the black-box translation capability. Implementations must
// return exactly one output string per input string, in input order.
type Translator interface {
	TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error)
}

// Prober is implemented by engines that can report their compute device.
// Probing happens once per adapter, never per batch.
type Prober interface {
	Probe(ctx context.Context) (DeviceInfo, error)
}

// Releaser is implemented by engines that can release device memory between
// batches. The adapter calls it only in the memory-efficient profile.
type Releaser interface {
	Release(ctx context.Context) error
}

// Profile is an execution profile controlling batch budgets.
type Profile struct {
	Name string
	// BatchUnits is the maximum number of units per batch.
	BatchUnits int
	// BatchChars is the maximum aggregate source length per batch.
	BatchChars int
	// MemoryEfficient enables sequential dispatch with explicit memory
	// release between batches.
	MemoryEfficient bool
}

// StandardProfile favors throughput: larger batches, no release calls.
func StandardProfile() Profile {
	return Profile{Name: "standard", BatchUnits: 32, BatchChars: 4000}
}

// MemoryEfficientProfile favors a small device-memory footprint.
func MemoryEfficientProfile() Profile {
	return Profile{Name: "memory-efficient", BatchUnits: 8, BatchChars: 1000, MemoryEfficient: true}
}

// ModelProfile selects which model variant the engine serves.
type ModelProfile struct {
	Name string
	// Model is the model identifier sent to the engine.
	Model string
	// MinMemoryGiB is the device memory floor for this model.
	MinMemoryGiB float64
}

// Model profiles mirror the two supported model sizes.
var (
	ModelStandard = ModelProfile{Name: "standard", Model: "nllb-200-distilled-1.3B", MinMemoryGiB: 6}
	ModelLarge    = ModelProfile{Name: "large", Model: "nllb-200-3.3B", MinMemoryGiB: 12}
)

// ModelProfileByName resolves "standard" or "large".
func ModelProfileByName(name string) (ModelProfile, error) {
	switch name {
	case "", ModelStandard.Name:
		return ModelStandard, nil
	case ModelLarge.Name:
		return ModelLarge, nil
	}
	return ModelProfile{}, fmt.Errorf("unknown model profile %q (standard, large)", name)
}

// Adapter serializes and supervises calls to a Translator.
type Adapter struct {
	mu         sync.Mutex
	engine     Translator
	profile    Profile
	maxRetries int
	device     DeviceInfo
}

// Options configures an Adapter.
type Options struct {
	Profile Profile
	Model   ModelProfile
	// MaxRetries is the retry ceiling for resource exhaustion. Default 3.
	MaxRetries int
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

// New builds an Adapter around an engine, probing the compute device once.
// A failed probe falls back to the CPU path rather than failing the run.
func New(ctx context.Context, engine Translator, opts Options) (*Adapter, error) {
	a := &Adapter{
		engine:     engine,
		profile:    opts.Profile,
		maxRetries: opts.effectiveMaxRetries(),
		device:     DeviceInfo{Device: DeviceCPU, Name: "cpu"},
	}
	if a.profile.BatchUnits == 0 {
		a.profile = StandardProfile()
	}

	if p, ok := engine.(Prober); ok {
		info, err := p.Probe(ctx)
		if err != nil {
			log.Printf("[backend] device probe failed, using CPU path: %v", err)
		} else {
			a.device = info
		}
	}
	if a.device.Device == DeviceAccelerated && a.device.MemoryGiB > 0 &&
		opts.Model.MinMemoryGiB > 0 && a.device.MemoryGiB < opts.Model.MinMemoryGiB {
		log.Printf("[backend] device memory %.1f GiB below the %.1f GiB floor for model %s; expect reduced batch sizes",
			a.device.MemoryGiB, opts.Model.MinMemoryGiB, opts.Model.Model)
	}
	return a, nil
}

// Device reports the compute device chosen at construction.
func (a *Adapter) Device() DeviceInfo {
	return a.device
}

// Profile reports the active execution profile.
func (a *Adapter) Profile() Profile {
	return a.profile
}

// TranslateBatch translates one batch, holding the device lock for the
// duration. On resource exhaustion the dispatch size is halved and the same
// batch retried, up to the retry ceiling.
func (a *Adapter) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := len(texts)
	if size == 0 {
		return nil, nil
	}

	for retries := 0; ; retries++ {
		out, err := a.dispatch(ctx, texts, targetLang, size)
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, ErrResourceExhausted) {
			return nil, err
		}
		if retries >= a.maxRetries || size == 1 {
			return nil, fmt.Errorf("%w: batch of %d after %d retries: %v", ErrExhausted, len(texts), retries, err)
		}
		size /= 2
		log.Printf("[backend] resource exhausted, retrying batch of %d at dispatch size %d (attempt %d/%d)",
			len(texts), size, retries+1, a.maxRetries)
	}
}

// dispatch sends texts to the engine in sub-slices of at most size strings
// and concatenates the results.
func (a *Adapter) dispatch(ctx context.Context, texts []string, targetLang string, size int) ([]string, error) {
	out := make([]string, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		part, err := a.engine.TranslateBatch(ctx, texts[start:end], targetLang)
		if err != nil {
			return nil, err
		}
		if len(part) != end-start {
			return nil, fmt.Errorf("engine returned %d translations for %d inputs", len(part), end-start)
		}
		out = append(out, part...)

		if a.profile.MemoryEfficient {
			if r, ok := a.engine.(Releaser); ok {
				if err := r.Release(ctx); err != nil {
					log.Printf("[backend] memory release failed: %v", err)
				}
			}
		}
	}
	return out, nil
}
