package llm

import (
	"testing"
)

func TestProviderRegistry_IsProviderEnabled(t *testing.T) {
	registry := NewProviderRegistry(&ProviderConfig{}, []string{"anthropic", "ollama"})

	if !registry.IsProviderEnabled("anthropic") {
		t.Error("anthropic should be enabled")
	}
	if !registry.IsProviderEnabled("ollama") {
		t.Error("ollama should be enabled")
	}
	if registry.IsProviderEnabled("openai") {
		t.Error("openai should not be enabled")
	}
}

func TestProviderRegistry_IsProviderConfigured(t *testing.T) {
	clearProviderEnv(t)
	// Test Anthropic - should require API key
	registry := NewProviderRegistry(&ProviderConfig{}, []string{"anthropic"})
	if registry.IsProviderConfigured("anthropic") {
		t.Error("anthropic should not be configured without API key")
	}

	registry2 := NewProviderRegistry(&ProviderConfig{AnthropicAPIKey: "test-key"}, []string{"anthropic"})
	if !registry2.IsProviderConfigured("anthropic") {
		t.Error("anthropic should be configured with API key")
	}

	// Test Ollama - should always be configured (no API key required)
	registry3 := NewProviderRegistry(&ProviderConfig{}, []string{"ollama"})
	if !registry3.IsProviderConfigured("ollama") {
		t.Error("ollama should always be configured")
	}

	// Test OpenAI - should require API key
	registry4 := NewProviderRegistry(&ProviderConfig{}, []string{"openai"})
	if registry4.IsProviderConfigured("openai") {
		t.Error("openai should not be configured without API key")
	}

	registry5 := NewProviderRegistry(&ProviderConfig{OpenAIAPIKey: "test-key"}, []string{"openai"})
	if !registry5.IsProviderConfigured("openai") {
		t.Error("openai should be configured with API key")
	}
}

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_ORG_ID", "OPENAI_MODEL", "OLLAMA_HOST", "OLLAMA_MODEL"} {
		t.Setenv(k, "")
	}
}

func TestProviderRegistry_ResolveFollowsPreferenceOrder(t *testing.T) {
	clearProviderEnv(t)
	cfg := &ProviderConfig{AnthropicAPIKey: "test-key", OllamaHost: "http://localhost:11434", OllamaModel: "mistral"}

	key, err := NewProviderRegistry(cfg, []string{ProviderOllama, ProviderAnthropic}).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if key.Provider != ProviderOllama || key.Model != "mistral" {
		t.Errorf("Resolve() = %+v, want ollama/mistral", key)
	}

	key, err = NewProviderRegistry(cfg, []string{ProviderAnthropic, ProviderOllama}).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if key.Provider != ProviderAnthropic {
		t.Errorf("Expected provider 'anthropic', got '%s'", key.Provider)
	}
	if key.Model != "claude-haiku-4-5" {
		t.Errorf("Expected default model 'claude-haiku-4-5', got '%s'", key.Model)
	}
}

func TestProviderRegistry_ResolveSkipsUnconfigured(t *testing.T) {
	clearProviderEnv(t)
	cfg := &ProviderConfig{OpenAIAPIKey: "sk-test"}

	key, err := NewProviderRegistry(cfg, []string{ProviderAnthropic, ProviderOpenAI}).Resolve()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if key.Provider != ProviderOpenAI {
		t.Errorf("Expected provider 'openai', got '%s'", key.Provider)
	}
	if key.Model != "gpt-4o-mini" {
		t.Errorf("Expected default model 'gpt-4o-mini', got '%s'", key.Model)
	}
}

func TestProviderRegistry_ResolveErrors(t *testing.T) {
	clearProviderEnv(t)
	tests := []struct {
		name    string
		enabled []string
		cfg     *ProviderConfig
	}{
		{name: "nothing enabled", enabled: nil, cfg: &ProviderConfig{}},
		{name: "no credentials", enabled: []string{ProviderAnthropic, ProviderOpenAI}, cfg: &ProviderConfig{}},
		{name: "ollama without model", enabled: []string{ProviderOllama}, cfg: &ProviderConfig{}},
		{name: "unknown provider", enabled: []string{"gemini"}, cfg: &ProviderConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProviderRegistry(tt.cfg, tt.enabled).Resolve(); err == nil {
				t.Error("Resolve() expected error")
			}
		})
	}
}
