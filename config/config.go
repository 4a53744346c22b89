package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StoreConfig configures the knowledge document.
type StoreConfig struct {
	Path            string `yaml:"path,omitempty"`             // JSON document path (default: ~/.niblit/niblit_memory.json)
	MaxInteractions int    `yaml:"max_interactions,omitempty"` // Interaction log bound (default: 500)
	WriteRetries    int    `yaml:"write_retries,omitempty"`    // Retries for a failed flush (default: 3)
}

// MaintenanceConfig configures the retention sweep.
type MaintenanceConfig struct {
	RetentionDays    int    `yaml:"retention_days,omitempty"`    // Interactions older than this are pruned (default: 30)
	KeepTop          int    `yaml:"keep_top,omitempty"`          // Condensed token count (default: 50)
	Schedule         string `yaml:"schedule,omitempty"`          // Cron expression or duration (default: 24h)
	ReplaceCondensed bool   `yaml:"replace_condensed,omitempty"` // Clear previous condensed facts before condensing
	ArchivePath      string `yaml:"archive_path,omitempty"`      // SQLite archive of pruned interactions; empty disables
}

// LLMConfig configures the language model collaborator.
type LLMConfig struct {
	Disabled        bool     `yaml:"disabled,omitempty"`         // Start with the LLM toggled off
	Providers       []string `yaml:"providers,omitempty"`        // Preference order
	AvailabilityTTL int      `yaml:"availability_ttl,omitempty"` // Seconds between reachability checks (default: 10)
	Timeout         int      `yaml:"timeout,omitempty"`          // Seconds per request (default: 30)
	ContextWindow   int      `yaml:"context_window,omitempty"`   // Interactions sent as context (default: 10)
	MaxTokens       int      `yaml:"max_tokens,omitempty"`       // Response token cap (default: 300)
	ProbeSchedule   string   `yaml:"probe_schedule,omitempty"`   // Background availability probe (default: 1m)
	SystemPrompt    string   `yaml:"system_prompt,omitempty"`
}

// ResearchConfig configures web lookups.
type ResearchConfig struct {
	Timeout   int    `yaml:"timeout,omitempty"`    // Seconds per lookup (default: 10)
	UserAgent string `yaml:"user_agent,omitempty"` // HTTP User-Agent header
}

// NotificationsConfig configures desktop notifications.
type NotificationsConfig struct {
	Disabled bool `yaml:"disabled,omitempty"`
}

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"` // Custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`
	Organization string `yaml:"organization,omitempty"`
}

// Config is the full niblit configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store,omitempty"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance,omitempty"`
	LLM           LLMConfig           `yaml:"llm,omitempty"`
	Research      ResearchConfig      `yaml:"research,omitempty"`
	Notifications NotificationsConfig `yaml:"notifications,omitempty"`

	// Seconds allowed for a single capability invocation (default: 30)
	CapabilityTimeout int `yaml:"capability_timeout,omitempty"`

	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Store: StoreConfig{
			Path:            filepath.Join(baseDir(), "niblit_memory.json"),
			MaxInteractions: 500,
			WriteRetries:    3,
		},
		Maintenance: MaintenanceConfig{
			RetentionDays: 30,
			KeepTop:       50,
			Schedule:      "24h",
		},
		LLM: LLMConfig{
			Providers:       []string{"ollama", "anthropic", "openai"},
			AvailabilityTTL: 10,
			Timeout:         30,
			ContextWindow:   10,
			MaxTokens:       300,
			ProbeSchedule:   "1m",
		},
		Research: ResearchConfig{
			Timeout:   10,
			UserAgent: "niblit/1.0",
		},
		CapabilityTimeout: 30,
		Ollama: OllamaConfig{
			Host: "http://localhost:11434",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
	}
}

// AvailabilityTTLDuration returns the availability cache TTL.
func (c *LLMConfig) AvailabilityTTLDuration() time.Duration {
	return time.Duration(c.AvailabilityTTL) * time.Second
}

// TimeoutDuration returns the per-request LLM timeout.
func (c *LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// TimeoutDuration returns the per-lookup research timeout.
func (c *ResearchConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CapabilityTimeoutDuration returns the per-invocation capability timeout.
func (c *Config) CapabilityTimeoutDuration() time.Duration {
	return time.Duration(c.CapabilityTimeout) * time.Second
}

// Validate checks values mergo cannot fix by defaulting.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Store.MaxInteractions < 0 {
		errs = append(errs, fmt.Errorf("store.max_interactions must be positive, got %d", c.Store.MaxInteractions))
	}
	if c.Store.WriteRetries < 0 {
		errs = append(errs, fmt.Errorf("store.write_retries must not be negative, got %d", c.Store.WriteRetries))
	}
	if c.Maintenance.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("maintenance.retention_days must be positive, got %d", c.Maintenance.RetentionDays))
	}
	if c.Maintenance.KeepTop < 0 {
		errs = append(errs, fmt.Errorf("maintenance.keep_top must be positive, got %d", c.Maintenance.KeepTop))
	}
	for _, p := range c.LLM.Providers {
		if !slices.Contains(knownProviders, p) {
			errs = append(errs, fmt.Errorf("llm.providers: unknown provider %q", p))
		}
	}
	return errors.Join(errs...)
}

var knownProviders = []string{"anthropic", "ollama", "openai"}

// GetConfigPath returns the default config file path.
// Can be overridden via NIBLIT_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("NIBLIT_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.niblit"
	}
	return filepath.Join(homeDir, ".niblit")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the environment.
// Missing files are skipped; variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		p = expandPath(p)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", p, err)
		}
	}
	return nil
}

// Load loads the configuration at path merged onto Defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	defaults := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err == nil {
		data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
		}

		var userConfig Config
		if err := yaml.Unmarshal(data, &userConfig); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}

		if err := mergo.Merge(&defaults, userConfig, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge config: %w", err)
		}
	}

	defaults.Store.Path = expandPath(defaults.Store.Path)
	defaults.Maintenance.ArchivePath = expandPath(defaults.Maintenance.ArchivePath)

	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &defaults, nil
}

// Save saves the configuration to the specified path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
