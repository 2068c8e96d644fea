package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHuggingFace_Generate(t *testing.T) {
	var (
		path string
		got  map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		got = decodeBody(t, r)
		_, _ = w.Write([]byte(`[{"generated_text":"Test response"}]`))
	}))
	defer srv.Close()

	p, err := NewHuggingFace(Config{APIKey: "hf-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHuggingFace() error: %v", err)
	}
	text, err := p.Generate(context.Background(), "Test prompt", Options{MaxTokens: Int(50)})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "Test response" {
		t.Errorf("text = %q", text)
	}
	if path != "/mistralai/Mistral-7B-Instruct-v0.1" {
		t.Errorf("path = %q", path)
	}
	if got["inputs"] != "Test prompt" {
		t.Errorf("inputs = %v", got["inputs"])
	}
	params, _ := got["parameters"].(map[string]any)
	want := map[string]any{
		"max_new_tokens":   float64(50),
		"temperature":      0.7,
		"top_p":            0.9,
		"return_full_text": false,
	}
	for k, v := range want {
		if params[k] != v {
			t.Errorf("parameters[%s] = %v, want %v", k, params[k], v)
		}
	}
}

func TestHuggingFace_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"array", `[{"generated_text":"a"},{"generated_text":"b"}]`, "a"},
		{"object", `{"generated_text":"single"}`, "single"},
		{"empty array", `[]`, ""},
		{"missing field", `{"other":"x"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := NewHuggingFace(Config{APIKey: "k", BaseURL: srv.URL})
			text, err := p.Generate(context.Background(), "x", Options{})
			if err != nil {
				t.Fatalf("Generate() error: %v", err)
			}
			if text != tt.want {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestHuggingFace_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading","estimated_time":20}`))
	}))
	defer srv.Close()

	p, _ := NewHuggingFace(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Generate(context.Background(), "x", Options{})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.Message != "Model is currently loading" {
		t.Errorf("Message = %q", ue.Message)
	}
	if !IsRetryable(err) {
		t.Error("503 should be retryable")
	}
	if err := p.CheckHealth(context.Background()); err == nil {
		t.Error("CheckHealth() should fail on 503")
	}
}
