package providers

import (
	"context"
	"fmt"
	"strings"
)

const (
	alibabaBaseURL   = "https://dashscope.aliyuncs.com/api/v1"
	alibabaModel     = "qwen-max"
	alibabaMaxTokens = 1000
)

// AlibabaProvider calls the native DashScope text-generation API for Qwen
// models.
type AlibabaProvider struct {
	Base
}

// NewAlibaba creates an Alibaba DashScope provider.
func NewAlibaba(cfg Config) (*AlibabaProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.nameOr("alibaba"))
	}
	return &AlibabaProvider{Base: newBase(cfg, "alibaba", alibabaBaseURL, alibabaModel)}, nil
}

type dashScopeRequest struct {
	Model      string         `json:"model"`
	Input      dashScopeInput `json:"input"`
	Parameters map[string]any `json:"parameters"`
}

type dashScopeInput struct {
	Prompt string `json:"prompt"`
}

type dashScopeResponse struct {
	Output struct {
		Text string `json:"text"`
	} `json:"output"`
}

// Generate sends a text-generation request and returns output.text.
func (p *AlibabaProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	params := map[string]any{
		"max_tokens":  opts.maxTokens(alibabaMaxTokens),
		"temperature": opts.temperature(),
		"top_p":       opts.topP(),
	}
	if opts.TopK != nil {
		params["top_k"] = *opts.TopK
	}
	if len(opts.Stop) > 0 {
		params["stop"] = opts.Stop
	}
	mergeExtra(params, opts.Extra)

	var resp dashScopeResponse
	err := p.postJSON(ctx, p.baseURL+"/services/aigc/text-generation/generation", dashScopeRequest{
		Model:      p.model,
		Input:      dashScopeInput{Prompt: prompt},
		Parameters: params,
	}, &resp)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Output.Text), nil
}

// CheckHealth queries the DashScope status endpoint.
func (p *AlibabaProvider) CheckHealth(ctx context.Context) error {
	return p.probe(ctx, p.baseURL+"/status")
}
