package providers

import (
	"strings"
	"testing"
)

func TestBuild(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  bool
	}{
		{"mock by name", Config{Name: "mock"}, "mock", false},
		{"type with custom name", Config{Name: "primary", Type: "mistral", APIKey: "k"}, "primary", false},
		{"case insensitive", Config{Type: "DeepSeek", APIKey: "k"}, "deepseek", false},
		{"unknown type", Config{Type: "nope"}, "", true},
		{"missing key", Config{Type: "openrouter"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", p.Name(), tt.wantName)
			}
		})
	}
}

func TestTypes(t *testing.T) {
	types := Types()
	if len(types) != len(factories) {
		t.Fatalf("Types() returned %d entries, want %d", len(types), len(factories))
	}
	joined := strings.Join(types, ",")
	for _, want := range []string{"mistral", "huggingface", "bedrock", "openai", "mock"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Types() missing %q", want)
		}
	}
	for i := 1; i < len(types); i++ {
		if types[i-1] > types[i] {
			t.Errorf("Types() not sorted: %v", types)
		}
	}
	if !IsKnownType("Mistral") || IsKnownType("nope") {
		t.Error("IsKnownType mismatch")
	}
}

func TestConfig_HTTPTimeout(t *testing.T) {
	if got := (Config{}).HTTPTimeout(); got != DefaultTimeout {
		t.Errorf("empty timeout = %v", got)
	}
	if got := (Config{Timeout: "bogus"}).HTTPTimeout(); got != DefaultTimeout {
		t.Errorf("invalid timeout = %v", got)
	}
	if got := (Config{Timeout: "5s"}).HTTPTimeout().String(); got != "5s" {
		t.Errorf("5s timeout = %v", got)
	}
}
