package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const minimalConfig = `
platform:
  base_url: "http://localhost:3000/api/v1"
  api_key: "bridge-key"
model:
  base_url: "https://api.example.com/v1"
  api_key: "model-key"
`

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Agent.MessageDebounce != 5*time.Second {
		t.Errorf("unexpected debounce default: %v", cfg.Agent.MessageDebounce)
	}
	if cfg.Agent.MaxQueueSize != 10 {
		t.Errorf("unexpected queue size default: %d", cfg.Agent.MaxQueueSize)
	}
	if cfg.Agent.SendPacing != 1600*time.Millisecond {
		t.Errorf("unexpected send pacing default: %v", cfg.Agent.SendPacing)
	}
	if cfg.Style.MinMessages != 50 {
		t.Errorf("unexpected min messages default: %d", cfg.Style.MinMessages)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("unexpected logging default: %q", cfg.Logging.Level)
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	viper.Reset()
	cfg, err := LoadConfig(writeConfig(t, minimalConfig+`
agent:
  message_debounce: 2s
  max_history: 50
style:
  corpus_path: "/data/corpus.json"
  owner_name: "sam"
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Agent.MessageDebounce != 2*time.Second {
		t.Errorf("unexpected debounce: %v", cfg.Agent.MessageDebounce)
	}
	if cfg.Agent.MaxHistory != 50 {
		t.Errorf("unexpected max history: %d", cfg.Agent.MaxHistory)
	}
	if cfg.Style.OwnerName != "sam" {
		t.Errorf("unexpected owner name: %q", cfg.Style.OwnerName)
	}
}

func TestLoadConfig_SecretsFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Setenv("PLATFORM_API_URL", "http://bridge.local/api/v1")
	t.Setenv("PLATFORM_API_KEY", "env-bridge-key")
	t.Setenv("LLM_BASE_URL", "https://llm.local/v1")
	t.Setenv("LLM_API_KEY", "env-model-key")

	cfg, err := LoadConfig(writeConfig(t, "agent:\n  max_queue_size: 4\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Platform.APIKey != "env-bridge-key" {
		t.Errorf("unexpected platform key: %q", cfg.Platform.APIKey)
	}
	if cfg.Model.BaseURL != "https://llm.local/v1" {
		t.Errorf("unexpected model URL: %q", cfg.Model.BaseURL)
	}
}

func TestLoadConfig_MissingCredentials(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"no platform url", `
platform:
  api_key: "k"
model:
  base_url: "u"
  api_key: "k"
`, "PLATFORM_API_URL"},
		{"no model key", `
platform:
  base_url: "u"
  api_key: "k"
model:
  base_url: "u"
`, "LLM_API_KEY"},
		{"memory enabled without command", minimalConfig + `
memory:
  enabled: true
`, "no command"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			viper.Reset()
			_, err := LoadConfig(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	viper.Reset()
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}
