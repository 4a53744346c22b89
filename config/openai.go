package config

import (
	"os"

	llmopenai "github.com/aschepis/backscratcher/niblit/llm/openai"
)

// LoadOpenAIConfig loads OpenAI configuration, applying OPENAI_* environment
// overrides.
func LoadOpenAIConfig(cfg *Config) (apiKey, baseURL, model, organization string) {
	if cfg != nil {
		apiKey = cfg.OpenAI.APIKey
		baseURL = cfg.OpenAI.BaseURL
		model = cfg.OpenAI.Model
		organization = cfg.OpenAI.Organization
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		apiKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		baseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		model = v
	}
	if v := os.Getenv("OPENAI_ORG_ID"); v != "" {
		organization = v
	}
	return apiKey, baseURL, model, organization
}

// NewOpenAIClient creates a new OpenAI LLM client from the configuration.
func NewOpenAIClient(cfg *Config, model string) (*llmopenai.OpenAIClient, error) {
	apiKey, baseURL, configured, organization := LoadOpenAIConfig(cfg)
	if model == "" {
		model = configured
	}
	return llmopenai.NewOpenAIClient(apiKey, baseURL, model, organization)
}
