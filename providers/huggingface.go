package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	huggingFaceBaseURL   = "https://api-inference.huggingface.co/models"
	huggingFaceModel     = "mistralai/Mistral-7B-Instruct-v0.1"
	huggingFaceMaxTokens = 500
	huggingFaceTopP      = 0.9
)

// HuggingFaceProvider calls the Hugging Face Inference API text-generation
// task for a single hosted model.
type HuggingFaceProvider struct {
	Base
}

// NewHuggingFace creates a Hugging Face Inference API provider.
func NewHuggingFace(cfg Config) (*HuggingFaceProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key is required", cfg.nameOr("huggingface"))
	}
	return &HuggingFaceProvider{
		Base: newBase(cfg, "huggingface", huggingFaceBaseURL, huggingFaceModel),
	}, nil
}

func (p *HuggingFaceProvider) endpoint() string {
	return p.baseURL + "/" + p.model
}

type huggingFaceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters"`
}

type huggingFaceGeneration struct {
	GeneratedText string `json:"generated_text"`
}

// Generate runs text generation. The upstream answers with either a single
// object or an array of candidates; the first candidate wins.
func (p *HuggingFaceProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	topP := huggingFaceTopP
	if opts.TopP != nil {
		topP = *opts.TopP
	}
	params := map[string]any{
		"max_new_tokens":   opts.maxTokens(huggingFaceMaxTokens),
		"temperature":      opts.temperature(),
		"top_p":            topP,
		"return_full_text": false,
	}
	if opts.TopK != nil {
		params["top_k"] = *opts.TopK
	}
	if len(opts.Stop) > 0 {
		params["stop"] = opts.Stop
	}
	mergeExtra(params, opts.Extra)

	var raw json.RawMessage
	if err := p.postJSON(ctx, p.endpoint(), huggingFaceRequest{Inputs: prompt, Parameters: params}, &raw); err != nil {
		return "", err
	}
	return parseHuggingFaceText(raw), nil
}

func parseHuggingFaceText(raw json.RawMessage) string {
	var list []huggingFaceGeneration
	if json.Unmarshal(raw, &list) == nil {
		if len(list) == 0 {
			return ""
		}
		return list[0].GeneratedText
	}
	var single huggingFaceGeneration
	if json.Unmarshal(raw, &single) == nil {
		return single.GeneratedText
	}
	return ""
}

// CheckHealth posts an empty payload to the model endpoint, which succeeds
// once the model is loaded.
func (p *HuggingFaceProvider) CheckHealth(ctx context.Context) error {
	req, err := p.newRequest(ctx, http.MethodPost, p.endpoint(), struct{}{})
	if err != nil {
		return err
	}
	_, err = p.do(req)
	return err
}
