package llmfallback

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/ferro-labs/llm-fallback/providers"
)

//go:embed config.schema.json
var configSchemaJSON []byte

const configSchemaURL = "https://github.com/ferro-labs/llm-fallback/config.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(configSchemaURL, bytes.NewReader(configSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("loading config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(configSchemaURL)
	})
	return compiledSchema, schemaErr
}

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). ${VAR} references are
// expanded from the environment before parsing, so credentials can stay out
// of the file. The document is checked against the embedded JSON schema and
// then by ValidateConfig.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var doc any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
		// Re-encode as JSON so the schema validator and decoder see the
		// same shapes for both formats.
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("converting YAML config: %w", err)
		}
		doc = nil
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("converting YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	schema, err := configSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("config does not match schema: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ValidateConfig validates a Config for correctness. An empty provider list
// is accepted here; the gateway reports it when initialised.
func ValidateConfig(cfg Config) error {
	seen := make(map[string]bool, len(cfg.Providers))
	for i, p := range cfg.Providers {
		name := providerName(p)
		if name == "" {
			return fmt.Errorf("providers[%d]: name or type is required", i)
		}
		if seen[name] {
			return fmt.Errorf("providers[%d]: duplicate provider name %q", i, name)
		}
		seen[name] = true

		typ := p.Type
		if typ == "" {
			typ = p.Name
		}
		if !providers.IsKnownType(typ) {
			return fmt.Errorf("providers[%d]: unknown provider type %q (supported: %s)",
				i, typ, strings.Join(providers.Types(), ", "))
		}
	}

	if cfg.Resilience.MaxAttempts < 0 {
		return fmt.Errorf("resilience.max_attempts must not be negative")
	}
	if cfg.Resilience.BreakerThreshold < 0 {
		return fmt.Errorf("resilience.breaker_threshold must not be negative")
	}
	if cfg.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative")
	}
	if _, err := cfg.settings(); err != nil {
		return err
	}
	return nil
}

func providerName(p providers.Config) string {
	if p.Name != "" {
		return p.Name
	}
	return strings.ToLower(p.Type)
}

// ConfigFromEnv builds a Config from environment variables:
//
//	FALLBACK_ORDER          comma-separated provider types, default "mock"
//	<TYPE>_API_KEY          credential per provider, e.g. MISTRAL_API_KEY
//	<TYPE>_MODEL            model override
//	<TYPE>_BASE_URL         endpoint override
//	AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY   for bedrock
//	OPENROUTER_SITE_URL, OPENROUTER_APP_NAME               attribution headers
//	REQUEST_TIMEOUT         per-attempt timeout in milliseconds
//	HEALTH_CHECK_INTERVAL   health sweep period in milliseconds
//	MAX_ATTEMPTS            attempts per provider
//	CACHE_TTL               Go duration, e.g. "30m"
//	CACHE_MAX_ENTRIES       cache capacity
//	CACHE_DISABLED          "true" disables the response cache
//
// getenv is usually os.Getenv.
func ConfigFromEnv(getenv func(string) string) Config {
	order := getenv("FALLBACK_ORDER")
	if strings.TrimSpace(order) == "" {
		order = "mock"
	}

	var cfg Config
	for _, raw := range strings.Split(order, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		prefix := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		pc := providers.Config{
			Name:    name,
			Type:    name,
			APIKey:  getenv(prefix + "_API_KEY"),
			Model:   getenv(prefix + "_MODEL"),
			BaseURL: getenv(prefix + "_BASE_URL"),
		}
		switch name {
		case "bedrock":
			pc.Region = getenv("AWS_REGION")
			pc.APIKey = getenv("AWS_ACCESS_KEY_ID")
			pc.SecretKey = getenv("AWS_SECRET_ACCESS_KEY")
		case "openrouter":
			headers := map[string]string{}
			if v := getenv("OPENROUTER_SITE_URL"); v != "" {
				headers["HTTP-Referer"] = v
			}
			if v := getenv("OPENROUTER_APP_NAME"); v != "" {
				headers["X-Title"] = v
			}
			if len(headers) > 0 {
				pc.Headers = headers
			}
		}
		cfg.Providers = append(cfg.Providers, pc)
	}

	if ms, err := strconv.Atoi(getenv("REQUEST_TIMEOUT")); err == nil && ms > 0 {
		cfg.Resilience.AttemptTimeout = strconv.Itoa(ms) + "ms"
	}
	if ms, err := strconv.Atoi(getenv("HEALTH_CHECK_INTERVAL")); err == nil && ms > 0 {
		cfg.Resilience.HealthInterval = strconv.Itoa(ms) + "ms"
	}
	if n, err := strconv.Atoi(getenv("MAX_ATTEMPTS")); err == nil && n > 0 {
		cfg.Resilience.MaxAttempts = n
	}
	cfg.Cache.TTL = getenv("CACHE_TTL")
	if n, err := strconv.Atoi(getenv("CACHE_MAX_ENTRIES")); err == nil && n > 0 {
		cfg.Cache.MaxEntries = n
	}
	if b, err := strconv.ParseBool(getenv("CACHE_DISABLED")); err == nil {
		cfg.Cache.Disabled = b
	}
	return cfg
}
