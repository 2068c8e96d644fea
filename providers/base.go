package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// healthPrompt is sent by the default health probe.
const healthPrompt = "Test connection"

// Base provides common fields and the HTTP plumbing shared by REST-based
// adapters. Embed it to get Name, Model and status mapping for free.
type Base struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	headers    map[string]string
	httpClient *http.Client
}

func newBase(cfg Config, name, baseURL, model string) Base {
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	return Base{
		name:       cfg.nameOr(name),
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      cfg.modelOr(model),
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout()},
	}
}

// Name returns the provider name.
func (b *Base) Name() string { return b.name }

// Model returns the upstream model identifier.
func (b *Base) Model() string { return b.model }

// BaseURL returns the upstream base URL.
func (b *Base) BaseURL() string { return b.baseURL }

func (b *Base) newRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// do executes req and returns the body of a 2xx response. Anything else is
// mapped to *UpstreamError.
func (b *Base) do(req *http.Request) ([]byte, error) {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, transportError(b.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(b.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, code := parseErrorBody(body)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &UpstreamError{
			Provider:   b.name,
			StatusCode: resp.StatusCode,
			APICode:    code,
			Message:    msg,
		}
	}
	return body, nil
}

// postJSON sends payload to url and decodes a successful response into out.
func (b *Base) postJSON(ctx context.Context, url string, payload, out any) error {
	req, err := b.newRequest(ctx, http.MethodPost, url, payload)
	if err != nil {
		return err
	}
	body, err := b.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{Provider: b.name, Message: "failed to unmarshal response", Err: err}
	}
	return nil
}

// probe issues a GET against url and reports any non-2xx status.
func (b *Base) probe(ctx context.Context, url string) error {
	req, err := b.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	_, err = b.do(req)
	return err
}

// parseErrorBody extracts a message and machine-readable code from the
// common upstream error shapes:
//
//	{"error": {"message": "...", "type": "...", "code": "..."}}
//	{"error": "..."}
//	{"message": "...", "code": "..."}
func parseErrorBody(body []byte) (msg, code string) {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    any             `json:"code"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return strings.TrimSpace(string(body)), ""
	}

	if len(envelope.Error) > 0 {
		var detail struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		}
		if json.Unmarshal(envelope.Error, &detail) == nil && detail.Message != "" {
			code = codeString(detail.Code)
			if code == "" {
				code = detail.Type
			}
			return detail.Message, code
		}
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
			return s, codeString(envelope.Code)
		}
	}
	if envelope.Message != "" {
		return envelope.Message, codeString(envelope.Code)
	}
	return strings.TrimSpace(string(body)), ""
}

func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return fmt.Sprintf("%d", int(c))
	default:
		return ""
	}
}

// mergeExtra copies keys from extra into body without overwriting keys the
// adapter already set.
func mergeExtra(body map[string]any, extra map[string]any) {
	for k, v := range extra {
		if _, exists := body[k]; !exists {
			body[k] = v
		}
	}
}

// CheckByGenerate is the default health probe: a minimal real generate call.
func CheckByGenerate(ctx context.Context, p Provider, maxTokens int) error {
	_, err := p.Generate(ctx, healthPrompt, Options{MaxTokens: Int(maxTokens)})
	return err
}
