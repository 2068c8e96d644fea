package providers

import (
	"fmt"
	"sort"
	"strings"
)

// Factory constructs a provider from its config.
type Factory func(cfg Config) (Provider, error)

func wrap[P Provider](fn func(Config) (P, error)) Factory {
	return func(cfg Config) (Provider, error) {
		p, err := fn(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var factories = map[string]Factory{
	"alibaba":     wrap(NewAlibaba),
	"bedrock":     wrap(NewBedrock),
	"codestral":   wrap(NewCodestral),
	"deepseek":    wrap(NewDeepSeek),
	"huggingface": wrap(NewHuggingFace),
	"kimi":        wrap(NewKimi),
	"mistral":     wrap(NewMistral),
	"mock":        wrap(NewMock),
	"openai":      wrap(NewOpenAI),
	"openrouter":  wrap(NewOpenRouter),
}

// Build constructs the provider selected by cfg.Type. When Type is empty the
// name is used as the type.
func Build(cfg Config) (Provider, error) {
	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		typ = strings.ToLower(strings.TrimSpace(cfg.Name))
	}
	factory, ok := factories[typ]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %q", cfg.Type)
	}
	return factory(cfg)
}

// Types returns the supported provider types in sorted order.
func Types() []string {
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsKnownType reports whether typ names a supported adapter.
func IsKnownType(typ string) bool {
	_, ok := factories[strings.ToLower(typ)]
	return ok
}
