package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := Defaults()
	if cfg.Store.MaxInteractions != want.Store.MaxInteractions {
		t.Errorf("MaxInteractions = %d, want %d", cfg.Store.MaxInteractions, want.Store.MaxInteractions)
	}
	if cfg.Maintenance.KeepTop != 50 || cfg.Maintenance.RetentionDays != 30 {
		t.Errorf("maintenance defaults = %+v", cfg.Maintenance)
	}
	if cfg.LLM.AvailabilityTTLDuration() != 10*time.Second {
		t.Errorf("AvailabilityTTLDuration() = %v, want 10s", cfg.LLM.AvailabilityTTLDuration())
	}
	if cfg.LLM.Disabled {
		t.Error("LLM should be enabled by default")
	}
}

func TestLoadMergesUserValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, `
store:
  path: `+filepath.Join(dir, "mem.json")+`
maintenance:
  keep_top: 20
  replace_condensed: true
llm:
  disabled: true
  providers: [anthropic]
capability_timeout: 5
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"store path", cfg.Store.Path, filepath.Join(dir, "mem.json")},
		{"max interactions kept default", cfg.Store.MaxInteractions, 500},
		{"keep top overridden", cfg.Maintenance.KeepTop, 20},
		{"retention kept default", cfg.Maintenance.RetentionDays, 30},
		{"replace condensed", cfg.Maintenance.ReplaceCondensed, true},
		{"llm disabled", cfg.LLM.Disabled, true},
		{"providers", strings.Join(cfg.LLM.Providers, ","), "anthropic"},
		{"capability timeout", cfg.CapabilityTimeoutDuration(), 5 * time.Second},
		{"max tokens kept default", cfg.LLM.MaxTokens, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed yaml", content: "store: [unclosed"},
		{name: "unknown provider", content: "llm:\n  providers: [gemini]\n"},
		{name: "negative keep_top", content: "maintenance:\n  keep_top: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tt.content)
			if _, err := Load(path); err == nil {
				t.Error("Load() expected error")
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := Defaults()
	cfg.Store.Path = filepath.Join(dir, "mem.json")
	cfg.Maintenance.ArchivePath = filepath.Join(dir, "archive.db")
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Maintenance.ArchivePath != cfg.Maintenance.ArchivePath {
		t.Errorf("ArchivePath = %q, want %q", loaded.Maintenance.ArchivePath, cfg.Maintenance.ArchivePath)
	}
}

func TestGetConfigPathFromEnv(t *testing.T) {
	t.Setenv("NIBLIT_CONFIG_PATH", "/tmp/niblit-test.yaml")
	if got := GetConfigPath(); got != "/tmp/niblit-test.yaml" {
		t.Errorf("GetConfigPath() = %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	writeFile(t, envPath, "NIBLIT_TEST_DOTENV=from-file\n")
	t.Setenv("NIBLIT_TEST_DOTENV", "")
	os.Unsetenv("NIBLIT_TEST_DOTENV")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envPath); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("NIBLIT_TEST_DOTENV"); got != "from-file" {
		t.Errorf("NIBLIT_TEST_DOTENV = %q, want from-file", got)
	}
}

func TestProviderEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_ORG_ID", "")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Defaults()
	cfg.OpenAI.APIKey = "sk-file"
	cfg.Ollama.Model = "llama3.2"

	pc := cfg.ProviderConfig()
	if pc.OpenAIAPIKey != "sk-env" {
		t.Errorf("OpenAIAPIKey = %q, want env override", pc.OpenAIAPIKey)
	}
	if pc.OllamaHost != "http://gpu-box:11434" || pc.OllamaModel != "llama3.2" {
		t.Errorf("ollama = %q/%q", pc.OllamaHost, pc.OllamaModel)
	}
	if pc.AnthropicAPIKey != "" {
		t.Errorf("AnthropicAPIKey = %q, want empty", pc.AnthropicAPIKey)
	}
}
