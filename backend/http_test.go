package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTranslateBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Texts      []string `json:"texts"`
			TargetLang string   `json:"target_lang"`
			Model      string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.TargetLang != "fra_Latn" || req.Model != "nllb-200-distilled-1.3B" {
			t.Errorf("request = %+v", req)
		}
		out := make([]string, len(req.Texts))
		for i, s := range req.Texts {
			out[i] = "[fr] " + s
		}
		json.NewEncoder(w).Encode(map[string][]string{"translations": out})
	}))
	defer srv.Close()

	eng, err := NewHTTPEngine(HTTPOptions{BaseURL: srv.URL, Model: "nllb-200-distilled-1.3B"})
	if err != nil {
		t.Fatalf("NewHTTPEngine error: %v", err)
	}
	got, err := eng.TranslateBatch(context.Background(), []string{"a", "b"}, "fra_Latn")
	if err != nil {
		t.Fatalf("TranslateBatch error: %v", err)
	}
	if len(got) != 2 || got[0] != "[fr] a" || got[1] != "[fr] b" {
		t.Fatalf("translations = %v", got)
	}
}

func TestHTTPResourceExhaustion(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"insufficient storage", http.StatusInsufficientStorage, "no memory left"},
		{"oom in body", http.StatusInternalServerError, "CUDA out of memory. Tried to allocate 2.00 GiB"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tc.body, tc.status)
			}))
			defer srv.Close()

			eng, _ := NewHTTPEngine(HTTPOptions{BaseURL: srv.URL})
			_, err := eng.TranslateBatch(context.Background(), []string{"x"}, "deu_Latn")
			if !errors.Is(err, ErrResourceExhausted) {
				t.Fatalf("err = %v, want ErrResourceExhausted", err)
			}
		})
	}
}

func TestHTTPServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	eng, _ := NewHTTPEngine(HTTPOptions{BaseURL: srv.URL})
	_, err := eng.TranslateBatch(context.Background(), []string{"x"}, "deu_Latn")
	if err == nil || errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("err = %v, want a non-retryable server error", err)
	}
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"device":      "cuda",
			"device_name": "NVIDIA RTX 4090",
			"memory_gib":  24.0,
		})
	}))
	defer srv.Close()

	eng, _ := NewHTTPEngine(HTTPOptions{BaseURL: srv.URL})
	info, err := eng.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe error: %v", err)
	}
	if info.Device != DeviceAccelerated || info.Name != "NVIDIA RTX 4090" || info.MemoryGiB != 24 {
		t.Fatalf("info = %+v", info)
	}
}

func TestHTTPReleaseToleratesMissingEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	eng, _ := NewHTTPEngine(HTTPOptions{BaseURL: srv.URL})
	if err := eng.Release(context.Background()); err != nil {
		t.Fatalf("Release error: %v", err)
	}
}

func TestNewHTTPEngineRequiresURL(t *testing.T) {
	if _, err := NewHTTPEngine(HTTPOptions{}); err == nil {
		t.Fatal("empty base URL accepted")
	}
}
