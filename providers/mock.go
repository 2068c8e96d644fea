package providers

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyPrompt is returned by the mock provider for a blank prompt.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// MockProvider answers locally without any network call. It is the default
// when no upstream is configured.
type MockProvider struct {
	name string
}

// NewMock creates a mock provider.
func NewMock(cfg Config) (*MockProvider, error) {
	return &MockProvider{name: cfg.nameOr("mock")}, nil
}

// Name returns the provider name.
func (p *MockProvider) Name() string { return p.name }

// Generate echoes the first 50 characters of prompt.
func (p *MockProvider) Generate(_ context.Context, prompt string, _ Options) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	runes := []rune(prompt)
	if len(runes) > 50 {
		runes = runes[:50]
	}
	return "This is a mock response to: " + string(runes), nil
}

// CheckHealth always succeeds.
func (p *MockProvider) CheckHealth(context.Context) error { return nil }
