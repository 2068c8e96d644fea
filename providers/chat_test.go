package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return body
}

func TestChatPresets(t *testing.T) {
	tests := []struct {
		build     func(Config) (*ChatProvider, error)
		name      string
		model     string
		baseURL   string
		maxTokens int
	}{
		{NewMistral, "mistral", "mistral-small-latest", "https://api.mistral.ai/v1", 1024},
		{NewCodestral, "codestral", "codestral-latest", "https://api.mistral.ai/v1", 2048},
		{NewDeepSeek, "deepseek", "deepseek-coder", "https://api.deepseek.com/v1", 2048},
		{NewOpenRouter, "openrouter", "mistralai/mistral-7b-instruct", "https://openrouter.ai/api/v1", 1024},
		{NewKimi, "kimi", "kimi-2", "https://api.moonshot.cn/v1", 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.build(Config{APIKey: "test-key"})
			if err != nil {
				t.Fatalf("constructor error: %v", err)
			}
			if p.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.name)
			}
			if p.Model() != tt.model {
				t.Errorf("Model() = %q, want %q", p.Model(), tt.model)
			}
			if p.BaseURL() != tt.baseURL {
				t.Errorf("BaseURL() = %q, want %q", p.BaseURL(), tt.baseURL)
			}
			if p.maxTokens != tt.maxTokens {
				t.Errorf("maxTokens = %d, want %d", p.maxTokens, tt.maxTokens)
			}
		})
	}
}

func TestNewChat_RequiresAPIKey(t *testing.T) {
	if _, err := NewMistral(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestChatProvider_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Hello there  "}}]}`))
	}))
	defer srv.Close()

	p, _ := NewMistral(Config{APIKey: "test-key", BaseURL: srv.URL})
	text, err := p.Generate(context.Background(), "Hi", Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q, want %q", text, "Hello there")
	}
	if got["model"] != "mistral-small-latest" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v, want 1024", got["max_tokens"])
	}
	if got["temperature"] != 0.7 {
		t.Errorf("temperature = %v, want 0.7", got["temperature"])
	}
	if got["top_p"] != 1.0 {
		t.Errorf("top_p = %v, want 1", got["top_p"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", got["messages"])
	}
	if m := msgs[0].(map[string]any); m["role"] != "user" || m["content"] != "Hi" {
		t.Errorf("message = %v", m)
	}
}

func TestChatProvider_GenerateOverrides(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, _ := NewDeepSeek(Config{APIKey: "k", BaseURL: srv.URL, Model: "deepseek-chat"})
	_, err := p.Generate(context.Background(), "Test", Options{
		MaxTokens:   Int(500),
		Temperature: Float(0.2),
		Stop:        []string{"\n\n"},
		Extra:       map[string]any{"seed": 7},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got["model"] != "deepseek-chat" {
		t.Errorf("model = %v", got["model"])
	}
	if got["max_tokens"] != float64(500) {
		t.Errorf("max_tokens = %v, want 500", got["max_tokens"])
	}
	if got["temperature"] != 0.2 {
		t.Errorf("temperature = %v", got["temperature"])
	}
	if _, ok := got["stop"]; !ok {
		t.Error("stop not forwarded")
	}
	if _, ok := got["seed"]; ok {
		t.Error("deepseek should not forward extra parameters")
	}
}

func TestOpenRouter_HeadersAndExtra(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("HTTP-Referer") != "https://example.test" {
			t.Errorf("HTTP-Referer = %q", r.Header.Get("HTTP-Referer"))
		}
		if r.Header.Get("X-Title") != "llm-fallback" {
			t.Errorf("X-Title = %q", r.Header.Get("X-Title"))
		}
		got = decodeBody(t, r)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p, _ := NewOpenRouter(Config{
		APIKey:  "k",
		BaseURL: srv.URL,
		Headers: map[string]string{"HTTP-Referer": "https://example.test"},
	})
	_, err := p.Generate(context.Background(), "Test", Options{
		MaxTokens: Int(100),
		Extra:     map[string]any{"transforms": []string{"middle-out"}, "max_tokens": 5},
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if _, ok := got["transforms"]; !ok {
		t.Error("extra key transforms not merged")
	}
	if got["max_tokens"] != float64(100) {
		t.Errorf("extra must not override max_tokens, got %v", got["max_tokens"])
	}
}

func TestChatProvider_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p, _ := NewKimi(Config{APIKey: "k", BaseURL: srv.URL})
	text, err := p.Generate(context.Background(), "Hi", Options{})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestChatProvider_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantMsg   string
		wantCode  string
		retryable bool
	}{
		{"nested error", 429, `{"error":{"message":"Rate limit exceeded","type":"rate_limit","code":"rate_limited"}}`, "Rate limit exceeded", "rate_limited", true},
		{"string error", 400, `{"error":"Invalid request"}`, "Invalid request", "", false},
		{"flat message", 503, `{"message":"overloaded","code":"svc"}`, "overloaded", "svc", true},
		{"plain text", 401, `unauthorized`, "unauthorized", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := NewMistral(Config{APIKey: "k", BaseURL: srv.URL})
			_, err := p.Generate(context.Background(), "Hi", Options{})
			var ue *UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("error = %v, want *UpstreamError", err)
			}
			if ue.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", ue.StatusCode, tt.status)
			}
			if ue.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", ue.Message, tt.wantMsg)
			}
			if ue.APICode != tt.wantCode {
				t.Errorf("APICode = %q, want %q", ue.APICode, tt.wantCode)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestChatProvider_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	p, _ := NewMistral(Config{APIKey: "k", BaseURL: url})
	_, err := p.Generate(context.Background(), "Hi", Options{})
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UpstreamError", err)
	}
	if ue.NetCode != CodeConnRefused {
		t.Errorf("NetCode = %q, want %q", ue.NetCode, CodeConnRefused)
	}
	if !IsRetryable(err) {
		t.Error("connection refused should be retryable")
	}
}

func TestChatProvider_Stream(t *testing.T) {
	sseData := "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" there\"}}]}\n\n" +
		"data: [DONE]\n\n"

	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sseData))
	}))
	defer srv.Close()

	p, _ := NewMistral(Config{APIKey: "k", BaseURL: srv.URL})
	text, err := p.Generate(context.Background(), "Hi", Options{Stream: true})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q, want %q", text, "Hello there")
	}
	if got["stream"] != true {
		t.Errorf("stream = %v, want true", got["stream"])
	}
}

func TestChatProvider_CheckHealth(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/models":
			_, _ = w.Write([]byte(`{"data":[]}`))
		default:
			body := decodeBody(t, r)
			if body["max_tokens"] != float64(10) {
				t.Errorf("probe max_tokens = %v, want 10", body["max_tokens"])
			}
			_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
		}
	}))
	defer srv.Close()

	mistral, _ := NewMistral(Config{APIKey: "k", BaseURL: srv.URL})
	if err := mistral.CheckHealth(context.Background()); err != nil {
		t.Fatalf("mistral CheckHealth() error: %v", err)
	}
	deepseek, _ := NewDeepSeek(Config{APIKey: "k", BaseURL: srv.URL})
	if err := deepseek.CheckHealth(context.Background()); err != nil {
		t.Fatalf("deepseek CheckHealth() error: %v", err)
	}

	want := []string{"GET /models", "POST /chat/completions"}
	if len(paths) != len(want) {
		t.Fatalf("requests = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestChatProvider_CheckHealthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := NewKimi(Config{APIKey: "bad", BaseURL: srv.URL})
	if err := p.CheckHealth(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
}
