package config

import (
	"os"

	llmanthropic "github.com/aschepis/backscratcher/niblit/llm/anthropic"
	"github.com/rs/zerolog"
)

// LoadAnthropicConfig returns the API key and model for an Anthropic client.
// ANTHROPIC_API_KEY is used when the config has no key.
func LoadAnthropicConfig(cfg *Config) (apiKey, model string) {
	if cfg != nil {
		apiKey = cfg.Anthropic.APIKey
		model = cfg.Anthropic.Model
	}
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return apiKey, model
}

// NewAnthropicClient creates a new Anthropic LLM client from the configuration.
func NewAnthropicClient(cfg *Config, model string, logger zerolog.Logger) (*llmanthropic.AnthropicClient, error) {
	apiKey, configured := LoadAnthropicConfig(cfg)
	if model == "" {
		model = configured
	}
	return llmanthropic.NewAnthropicClient(apiKey, model, logger)
}
