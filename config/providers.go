package config

import (
	"fmt"

	"github.com/aschepis/backscratcher/niblit/llm"
	"github.com/rs/zerolog"
)

// ProviderConfig converts the provider sections for llm.NewProviderRegistry.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	anthropicKey, anthropicModel := LoadAnthropicConfig(c)
	ollamaHost, ollamaModel := LoadOllamaConfig(c)
	openaiKey, openaiURL, openaiModel, openaiOrg := LoadOpenAIConfig(c)
	return &llm.ProviderConfig{
		AnthropicAPIKey: anthropicKey,
		AnthropicModel:  anthropicModel,
		OllamaHost:      ollamaHost,
		OllamaModel:     ollamaModel,
		OpenAIAPIKey:    openaiKey,
		OpenAIBaseURL:   openaiURL,
		OpenAIModel:     openaiModel,
		OpenAIOrg:       openaiOrg,
	}
}

// NewLLMClient resolves the preferred configured provider and builds its
// client. The returned client also implements llm.Pinger.
func NewLLMClient(cfg *Config, logger zerolog.Logger) (llm.Client, *llm.ClientKey, error) {
	key, err := llm.NewProviderRegistry(cfg.ProviderConfig(), cfg.LLM.Providers).Resolve()
	if err != nil {
		return nil, nil, err
	}

	var client llm.Client
	switch key.Provider {
	case llm.ProviderAnthropic:
		client, err = NewAnthropicClient(cfg, key.Model, logger)
	case llm.ProviderOllama:
		client, err = NewOllamaClient(cfg, key.Model)
	case llm.ProviderOpenAI:
		client, err = NewOpenAIClient(cfg, key.Model)
	default:
		err = fmt.Errorf("unknown provider: %s", key.Provider)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s client: %w", key.Provider, err)
	}
	return client, key, nil
}
