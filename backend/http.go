package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPEngine talks to a local model server over HTTP. The server is the
// black box: it loads the model once per process lifetime, reports its
// compute device on /health, translates batches on /translate, and may
// release cached device memory on /release.
type HTTPEngine struct {
	baseURL string
	model   string
	client  *http.Client
}

// HTTPOptions configures an HTTPEngine.
type HTTPOptions struct {
	// BaseURL is the model server address, e.g. "http://127.0.0.1:8090".
	BaseURL string
	// Model is the model identifier requested from the server.
	Model string
	// Timeout is the per-request timeout. Default 120s — large batches
	// on the CPU path are slow.
	Timeout time.Duration
	// Proxy overrides the proxy URL; empty uses the environment.
	Proxy string
}

// NewHTTPEngine builds an engine for a model server.
func NewHTTPEngine(opts HTTPOptions) (*HTTPEngine, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("backend: model server URL is required")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &HTTPEngine{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		client:  makeHTTPClient(opts.Proxy, timeout),
	}, nil
}

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		if parsed, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// Probe queries /health for the server's compute device.
func (e *HTTPEngine) Probe(ctx context.Context) (DeviceInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", e.baseURL+"/health", nil)
	if err != nil {
		return DeviceInfo{}, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("probing model server: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DeviceInfo{}, fmt.Errorf("model server health returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var health struct {
		Device    string  `json:"device"`
		Name      string  `json:"device_name"`
		MemoryGiB float64 `json:"memory_gib"`
	}
	if err := json.Unmarshal(body, &health); err != nil {
		return DeviceInfo{}, fmt.Errorf("parsing health response: %w", err)
	}

	info := DeviceInfo{Device: DeviceCPU, Name: health.Name, MemoryGiB: health.MemoryGiB}
	switch health.Device {
	case "cuda", "mps", "accelerated":
		info.Device = DeviceAccelerated
	}
	if info.Name == "" {
		info.Name = health.Device
	}
	return info, nil
}

// TranslateBatch posts one batch to /translate. An insufficient-storage
// response or an out-of-memory error body maps to ErrResourceExhausted so
// the adapter can halve and retry; every other failure surfaces as-is.
func (e *HTTPEngine) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	payload := struct {
		Texts      []string `json:"texts"`
		TargetLang string   `json:"target_lang"`
		Model      string   `json:"model,omitempty"`
	}{Texts: texts, TargetLang: targetLang, Model: e.model}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model server request failed: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusInsufficientStorage || isOOMBody(respBody) {
		return nil, fmt.Errorf("%w: %s", ErrResourceExhausted, truncate(string(respBody), 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var out struct {
		Translations []string `json:"translations"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parsing translate response: %w", err)
	}
	return out.Translations, nil
}

// Release asks the server to drop cached device memory. Servers without the
// endpoint are tolerated.
func (e *HTTPEngine) Release(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/release", nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusOK {
		return nil
	}
	return fmt.Errorf("release returned status %d", resp.StatusCode)
}

// isOOMBody recognizes out-of-memory errors reported with a 500 status.
func isOOMBody(body []byte) bool {
	s := strings.ToLower(string(body))
	return strings.Contains(s, "out of memory") || strings.Contains(s, "oom")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
