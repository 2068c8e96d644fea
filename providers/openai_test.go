package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewOpenAI(t *testing.T) {
	if _, err := NewOpenAI(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	p, err := NewOpenAI(Config{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewOpenAI() error: %v", err)
	}
	if p.Name() != "openai" || p.Model() != "gpt-4o-mini" {
		t.Errorf("Name/Model = %q/%q", p.Name(), p.Model())
	}
}

func TestOpenAI_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Hi!"}}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	text, err := p.Generate(context.Background(), "Hello", Options{
		Stop:  []string{"END"},
		Extra: map[string]any{"seed": 42},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "Hi!" {
		t.Errorf("text = %q", text)
	}
	if got["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	if got["seed"] != float64(42) {
		t.Errorf("seed = %v, want 42", got["seed"])
	}
}

func TestOpenAI_ExtraDoesNotOverrideOwnedFields(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	_, err := p.Generate(context.Background(), "Hello", Options{
		MaxTokens: Int(64),
		Extra: map[string]any{
			"model":       "other-model",
			"max_tokens":  5,
			"temperature": 2.0,
			"messages":    []any{},
			"seed":        7,
		},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", got["model"])
	}
	if got["max_tokens"] != float64(64) {
		t.Errorf("max_tokens = %v, want 64", got["max_tokens"])
	}
	if got["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7", got["temperature"])
	}
	if msgs, _ := got["messages"].([]any); len(msgs) == 0 {
		t.Errorf("messages = %v, want the prompt", got["messages"])
	}
	if got["seed"] != float64(7) {
		t.Errorf("seed = %v, want 7", got["seed"])
	}
}

func TestOpenAI_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	_, err := p.Generate(context.Background(), "Hello", Options{})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d", ue.StatusCode)
	}
	if !IsRetryable(err) {
		t.Error("429 should be retryable")
	}
}

func TestOpenAI_CheckHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model","created":1,"owned_by":"openai"}]}`))
	}))
	defer srv.Close()

	p, _ := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
	if err := p.CheckHealth(context.Background()); err != nil {
		t.Fatalf("CheckHealth() error: %v", err)
	}
}
