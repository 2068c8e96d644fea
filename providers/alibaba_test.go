package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAlibaba_Generate(t *testing.T) {
	var (
		path string
		auth string
		got  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		got = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"output":{"text":"  qwen says hi  "},"request_id":"r1"}`))
	}))
	defer srv.Close()

	p, err := NewAlibaba(Config{APIKey: "ds-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAlibaba() error: %v", err)
	}
	text, err := p.Generate(context.Background(), "hello", Options{
		TopK:  Int(20),
		Extra: map[string]any{"seed": 7, "max_tokens": 1},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "qwen says hi" {
		t.Errorf("text = %q", text)
	}
	if path != "/services/aigc/text-generation/generation" {
		t.Errorf("path = %q", path)
	}
	if auth != "Bearer ds-key" {
		t.Errorf("Authorization = %q", auth)
	}
	if got["model"] != "qwen-max" {
		t.Errorf("model = %v", got["model"])
	}
	input, _ := got["input"].(map[string]any)
	if input["prompt"] != "hello" {
		t.Errorf("input = %v", got["input"])
	}
	params, _ := got["parameters"].(map[string]any)
	want := map[string]any{
		"max_tokens":  float64(1000),
		"temperature": 0.7,
		"top_p":       1.0,
		"top_k":       float64(20),
		"seed":        float64(7),
	}
	for k, v := range want {
		if params[k] != v {
			t.Errorf("parameters[%s] = %v, want %v", k, params[k], v)
		}
	}
}

func TestAlibaba_MissingOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"request_id":"r1"}`))
	}))
	defer srv.Close()

	p, _ := NewAlibaba(Config{APIKey: "k", BaseURL: srv.URL})
	text, err := p.Generate(context.Background(), "x", Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestAlibaba_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"code":"Throttling","message":"Requests throttled"}`))
	}))
	defer srv.Close()

	p, _ := NewAlibaba(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), "x", Options{})

	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.StatusCode != http.StatusTooManyRequests || ue.APICode != "Throttling" || ue.Message != "Requests throttled" {
		t.Errorf("upstream error = %+v", ue)
	}
	if !IsRetryable(err) {
		t.Error("429 should be retryable")
	}
}

func TestAlibaba_CheckHealth(t *testing.T) {
	var path, method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := NewAlibaba(Config{APIKey: "k", BaseURL: srv.URL})
	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
	if path != "/status" || method != http.MethodGet {
		t.Errorf("probe = %s %s", method, path)
	}
}

func TestNewAlibaba_RequiresKey(t *testing.T) {
	if _, err := NewAlibaba(Config{}); err == nil {
		t.Error("expected error without api key")
	}
}
