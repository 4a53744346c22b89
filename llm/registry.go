package llm

import (
	"fmt"
	"os"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// KnownProviders lists every supported provider name.
var KnownProviders = []string{ProviderOpenAI, ProviderAnthropic, ProviderOllama}

// ClientKey uniquely identifies an LLM client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider registry.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// ProviderRegistry manages LLM provider selection and configuration resolution.
// Client creation is handled by the caller to avoid import cycles.
type ProviderRegistry struct {
	enabled []string // Enabled providers in preference order
	mu      sync.RWMutex
	config  *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config and enabled providers.
// The order of enabledProviders is the preference order used by Resolve.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string) *ProviderRegistry {
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}
	seen := make(map[string]bool)
	enabled := make([]string, 0, len(enabledProviders))
	for _, p := range enabledProviders {
		if seen[p] {
			continue
		}
		seen[p] = true
		enabled = append(enabled, p)
	}

	return &ProviderRegistry{
		enabled: enabled,
		config:  providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.enabled {
		if p == provider {
			return true
		}
	}
	return false
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first enabled provider that is configured.
func (r *ProviderRegistry) Resolve() (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.enabled) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	var lastErr error
	for _, provider := range r.enabled {
		if !r.isProviderConfiguredUnlocked(provider) {
			continue
		}
		key, err := r.resolveProviderConfig(provider)
		if err != nil {
			lastErr = err
			continue
		}
		return key, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("no usable provider from %v: %w", r.enabled, lastErr)
	}
	return nil, fmt.Errorf("no configured provider from %v", r.enabled)
}

// isProviderConfiguredUnlocked is the unlocked version of IsProviderConfigured.
// Must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return apiKey != ""
	case ProviderOllama:
		// Ollama doesn't require API key, just needs host (which has a default)
		return true
	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return apiKey != ""
	default:
		return false
	}
}

// resolveProviderConfig resolves provider-specific configuration and returns a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider string) (*ClientKey, error) {
	key := &ClientKey{Provider: provider}

	switch provider {
	case ProviderAnthropic:
		key.APIKey = r.config.AnthropicAPIKey
		if key.APIKey == "" {
			key.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.Model = r.config.AnthropicModel
		if key.Model == "" {
			key.Model = "claude-haiku-4-5"
		}

	case ProviderOllama:
		host := r.config.OllamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		key.Host = host

		key.Model = r.config.OllamaModel
		if key.Model == "" {
			key.Model = os.Getenv("OLLAMA_MODEL")
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = apiKey

		key.BaseURL = r.config.OpenAIBaseURL
		if key.BaseURL == "" {
			key.BaseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.Organization = r.config.OpenAIOrg
		if key.Organization == "" {
			key.Organization = os.Getenv("OPENAI_ORG_ID")
		}
		key.Model = r.config.OpenAIModel
		if key.Model == "" {
			key.Model = os.Getenv("OPENAI_MODEL")
		}
		if key.Model == "" {
			key.Model = "gpt-4o-mini"
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}
