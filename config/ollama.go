package config

import (
	"os"

	llmollama "github.com/aschepis/backscratcher/niblit/llm/ollama"
)

// LoadOllamaConfig loads Ollama configuration, applying OLLAMA_HOST and
// OLLAMA_MODEL overrides.
func LoadOllamaConfig(cfg *Config) (host, model string) {
	if cfg != nil {
		host = cfg.Ollama.Host
		model = cfg.Ollama.Model
	}

	if envHost := os.Getenv("OLLAMA_HOST"); envHost != "" {
		host = envHost
	}
	if envModel := os.Getenv("OLLAMA_MODEL"); envModel != "" {
		model = envModel
	}

	if host == "" {
		host = "http://localhost:11434"
	}
	return host, model
}

// NewOllamaClient creates a new Ollama LLM client from the configuration.
func NewOllamaClient(cfg *Config, model string) (*llmollama.OllamaClient, error) {
	host, configured := LoadOllamaConfig(cfg)
	if model == "" {
		model = configured
	}
	return llmollama.NewOllamaClient(host, model)
}
