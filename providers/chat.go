package providers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// sseDone is the terminal data line of an OpenAI-style event stream.
const sseDone = "[DONE]"

// chatPreset holds the upstream defaults for one OpenAI-compatible service.
type chatPreset struct {
	name      string
	baseURL   string
	model     string
	maxTokens int
	headers   map[string]string
	// passExtra forwards Options.Extra into the request body.
	passExtra bool
	// probeTokens switches the health check from GET /models to a small
	// generate call with this token budget.
	probeTokens int
}

var (
	mistralPreset = chatPreset{
		name:      "mistral",
		baseURL:   "https://api.mistral.ai/v1",
		model:     "mistral-small-latest",
		maxTokens: 1024,
	}
	codestralPreset = chatPreset{
		name:        "codestral",
		baseURL:     "https://api.mistral.ai/v1",
		model:       "codestral-latest",
		maxTokens:   2048,
		probeTokens: 10,
	}
	deepseekPreset = chatPreset{
		name:        "deepseek",
		baseURL:     "https://api.deepseek.com/v1",
		model:       "deepseek-coder",
		maxTokens:   2048,
		probeTokens: 10,
	}
	openrouterPreset = chatPreset{
		name:      "openrouter",
		baseURL:   "https://openrouter.ai/api/v1",
		model:     "mistralai/mistral-7b-instruct",
		maxTokens: 1024,
		headers: map[string]string{
			"HTTP-Referer": "https://github.com/ferro-labs/llm-fallback",
			"X-Title":      "llm-fallback",
		},
		passExtra: true,
	}
	kimiPreset = chatPreset{
		name:      "kimi",
		baseURL:   "https://api.moonshot.cn/v1",
		model:     "kimi-2",
		maxTokens: 1000,
		passExtra: true,
	}
)

// ChatProvider speaks the OpenAI-compatible /chat/completions protocol used
// by Mistral, Codestral, DeepSeek, OpenRouter and Moonshot Kimi.
type ChatProvider struct {
	Base
	maxTokens   int
	passExtra   bool
	probeTokens int
}

// NewMistral creates a Mistral AI provider.
func NewMistral(cfg Config) (*ChatProvider, error) { return newChat(mistralPreset, cfg) }

// NewCodestral creates a Codestral provider.
func NewCodestral(cfg Config) (*ChatProvider, error) { return newChat(codestralPreset, cfg) }

// NewDeepSeek creates a DeepSeek provider.
func NewDeepSeek(cfg Config) (*ChatProvider, error) { return newChat(deepseekPreset, cfg) }

// NewOpenRouter creates an OpenRouter provider. The attribution headers
// default to this project and can be replaced through cfg.Headers.
func NewOpenRouter(cfg Config) (*ChatProvider, error) { return newChat(openrouterPreset, cfg) }

// NewKimi creates a Moonshot Kimi provider.
func NewKimi(cfg Config) (*ChatProvider, error) { return newChat(kimiPreset, cfg) }

func newChat(preset chatPreset, cfg Config) (*ChatProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.nameOr(preset.name))
	}
	headers := make(map[string]string, len(preset.headers)+len(cfg.Headers))
	for k, v := range preset.headers {
		headers[k] = v
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers

	return &ChatProvider{
		Base:        newBase(cfg, preset.name, preset.baseURL, preset.model),
		maxTokens:   preset.maxTokens,
		passExtra:   preset.passExtra,
		probeTokens: preset.probeTokens,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *ChatProvider) buildBody(prompt string, opts Options) map[string]any {
	body := map[string]any{
		"model":       p.model,
		"messages":    []chatMessage{{Role: "user", Content: prompt}},
		"max_tokens":  opts.maxTokens(p.maxTokens),
		"temperature": opts.temperature(),
		"top_p":       opts.topP(),
	}
	if len(opts.Stop) > 0 {
		body["stop"] = opts.Stop
	}
	if opts.PresencePenalty != nil {
		body["presence_penalty"] = *opts.PresencePenalty
	}
	if opts.FrequencyPenalty != nil {
		body["frequency_penalty"] = *opts.FrequencyPenalty
	}
	if opts.User != "" {
		body["user"] = opts.User
	}
	if opts.Stream {
		body["stream"] = true
	}
	if p.passExtra {
		if opts.TopK != nil {
			body["top_k"] = *opts.TopK
		}
		mergeExtra(body, opts.Extra)
	}
	return body
}

// Generate sends a single-turn chat completion. Streamed responses are
// collected and returned as one string.
func (p *ChatProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	body := p.buildBody(prompt, opts)
	url := p.baseURL + "/chat/completions"

	if opts.Stream {
		return p.generateStream(ctx, url, body)
	}

	var resp chatResponse
	if err := p.postJSON(ctx, url, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (p *ChatProvider) generateStream(ctx context.Context, url string, body map[string]any) (string, error) {
	req, err := p.newRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", transportError(p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		msg, code := parseErrorBody(raw)
		return "", &UpstreamError{Provider: p.name, StatusCode: resp.StatusCode, APICode: code, Message: msg}
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == sseDone {
			break
		}
		var chunk chatStreamChunk
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		for _, c := range chunk.Choices {
			out.WriteString(c.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", transportError(p.name, err)
	}
	return strings.TrimSpace(out.String()), nil
}

// CheckHealth lists models, or for presets without a cheap endpoint, runs a
// small generate call.
func (p *ChatProvider) CheckHealth(ctx context.Context) error {
	if p.probeTokens > 0 {
		return CheckByGenerate(ctx, p, p.probeTokens)
	}
	return p.probe(ctx, p.baseURL+"/models")
}
