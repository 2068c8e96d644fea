package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

const (
	bedrockRegion    = "us-east-1"
	bedrockModel     = "anthropic.claude-3-haiku-20240307-v1:0"
	bedrockMaxTokens = 1024
)

// bedrockInvoker is the subset of *bedrockruntime.Client used here.
type bedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider calls AWS Bedrock's InvokeModel API. Anthropic Claude,
// Amazon Titan and Meta Llama model families are supported; the family is
// picked from the model ID prefix.
type BedrockProvider struct {
	name   string
	model  string
	region string
	client bedrockInvoker
}

// NewBedrock creates a Bedrock provider. When cfg.APIKey and cfg.SecretKey
// are set they are used as static AWS credentials, otherwise the default
// credential chain applies. cfg.BaseURL overrides the runtime endpoint.
func NewBedrock(cfg Config) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = bedrockRegion
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithRetryMaxAttempts(1),
	}
	if cfg.APIKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.APIKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	timeout := cfg.HTTPTimeout()
	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.BaseURL != "" {
			o.BaseEndpoint = aws.String(cfg.BaseURL)
		}
		o.HTTPClient = awshttp.NewBuildableClient().WithTimeout(timeout)
	})
	return newBedrockWithClient(cfg, region, client), nil
}

func newBedrockWithClient(cfg Config, region string, client bedrockInvoker) *BedrockProvider {
	return &BedrockProvider{
		name:   cfg.nameOr("bedrock"),
		model:  cfg.modelOr(bedrockModel),
		region: region,
		client: client,
	}
}

// Name returns the provider name.
func (p *BedrockProvider) Name() string { return p.name }

// Model returns the Bedrock model ID.
func (p *BedrockProvider) Model() string { return p.model }

type bedrockAnthropicRequest struct {
	AnthropicVersion string        `json:"anthropic_version"`
	MaxTokens        int           `json:"max_tokens"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p"`
	TopK             *int          `json:"top_k,omitempty"`
	StopSequences    []string      `json:"stop_sequences,omitempty"`
}

type bedrockAnthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type bedrockTitanConfig struct {
	MaxTokenCount int      `json:"maxTokenCount"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"topP"`
	StopSequences []string `json:"stopSequences,omitempty"`
}

type bedrockTitanRequest struct {
	InputText            string             `json:"inputText"`
	TextGenerationConfig bedrockTitanConfig `json:"textGenerationConfig"`
}

type bedrockTitanResponse struct {
	Results []struct {
		OutputText string `json:"outputText"`
	} `json:"results"`
}

type bedrockLlamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type bedrockLlamaResponse struct {
	Generation string `json:"generation"`
}

// Generate invokes the configured model.
func (p *BedrockProvider) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	var (
		payload any
		extract func([]byte) (string, error)
	)
	maxTokens := opts.maxTokens(bedrockMaxTokens)

	switch {
	case strings.HasPrefix(p.model, "anthropic."):
		payload = bedrockAnthropicRequest{
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        maxTokens,
			Messages:         []chatMessage{{Role: "user", Content: prompt}},
			Temperature:      opts.temperature(),
			TopP:             opts.topP(),
			TopK:             opts.TopK,
			StopSequences:    opts.Stop,
		}
		extract = func(body []byte) (string, error) {
			var resp bedrockAnthropicResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", err
			}
			var sb strings.Builder
			for _, block := range resp.Content {
				if block.Type == "" || block.Type == "text" {
					sb.WriteString(block.Text)
				}
			}
			return sb.String(), nil
		}
	case strings.HasPrefix(p.model, "amazon.titan"):
		payload = bedrockTitanRequest{
			InputText: prompt,
			TextGenerationConfig: bedrockTitanConfig{
				MaxTokenCount: maxTokens,
				Temperature:   opts.temperature(),
				TopP:          opts.topP(),
				StopSequences: opts.Stop,
			},
		}
		extract = func(body []byte) (string, error) {
			var resp bedrockTitanResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", err
			}
			if len(resp.Results) == 0 {
				return "", nil
			}
			return resp.Results[0].OutputText, nil
		}
	case strings.HasPrefix(p.model, "meta.llama"):
		payload = bedrockLlamaRequest{
			Prompt:      prompt,
			MaxGenLen:   maxTokens,
			Temperature: opts.temperature(),
			TopP:        opts.topP(),
		}
		extract = func(body []byte) (string, error) {
			var resp bedrockLlamaResponse
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", err
			}
			return resp.Generation, nil
		}
	default:
		return "", &UpstreamError{
			Provider: p.name,
			Message:  fmt.Sprintf("unsupported Bedrock model prefix for model: %s", p.model),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", p.mapError(err)
	}

	text, err := extract(out.Body)
	if err != nil {
		return "", &UpstreamError{Provider: p.name, Message: "failed to unmarshal response", Err: err}
	}
	return strings.TrimSpace(text), nil
}

// CheckHealth runs a one-token generate call.
func (p *BedrockProvider) CheckHealth(ctx context.Context) error {
	return CheckByGenerate(ctx, p, 1)
}

func (p *BedrockProvider) mapError(err error) error {
	ue := &UpstreamError{Provider: p.name, Message: err.Error(), Err: err}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		ue.StatusCode = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ue.APICode = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			ue.Message = msg
		}
	}
	if ue.StatusCode == 0 {
		ue.NetCode = NetworkCode(err)
	}
	return ue
}
