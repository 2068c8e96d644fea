package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	openAIBaseURL   = "https://api.openai.com/v1/"
	openAIModel     = "gpt-4o-mini"
	openAIMaxTokens = 1024
)

// OpenAIProvider calls OpenAI through the official SDK. SDK-level retries are
// disabled; the gateway owns the retry policy.
type OpenAIProvider struct {
	Base
	client openai.Client
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.nameOr("openai"))
	}
	base := newBase(cfg, "openai", openAIBaseURL, openAIModel)

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.HTTPTimeout()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	for k, v := range cfg.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &OpenAIProvider{
		Base:   base,
		client: openai.NewClient(opts...),
	}, nil
}

// Generate sends a single-turn chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       p.model,
		MaxTokens:   openai.Int(int64(opts.maxTokens(openAIMaxTokens))),
		Temperature: openai.Float(opts.temperature()),
		TopP:        openai.Float(opts.topP()),
	}
	if opts.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*opts.PresencePenalty)
	}
	if opts.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*opts.FrequencyPenalty)
	}
	if opts.User != "" {
		params.User = openai.String(opts.User)
	}
	if len(opts.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{
			OfStringArray: opts.Stop,
		}
	}

	reqOpts := make([]option.RequestOption, 0, len(opts.Extra))
	for k, v := range opts.Extra {
		if openAIOwnedFields[k] {
			continue
		}
		reqOpts = append(reqOpts, option.WithJSONSet(k, v))
	}

	completion, err := p.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return "", p.mapError(err)
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

// openAIOwnedFields are request keys set from Options; Extra cannot replace
// them.
var openAIOwnedFields = map[string]bool{
	"model":             true,
	"messages":          true,
	"max_tokens":        true,
	"temperature":       true,
	"top_p":             true,
	"stop":              true,
	"user":              true,
	"presence_penalty":  true,
	"frequency_penalty": true,
}

// CheckHealth lists models, which is free and authenticated.
func (p *OpenAIProvider) CheckHealth(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return p.mapError(err)
	}
	return nil
}

func (p *OpenAIProvider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = err.Error()
		}
		code := apiErr.Code
		if code == "" {
			code = apiErr.Type
		}
		return &UpstreamError{
			Provider:   p.name,
			StatusCode: apiErr.StatusCode,
			APICode:    code,
			Message:    msg,
			Err:        err,
		}
	}
	return transportError(p.name, err)
}
