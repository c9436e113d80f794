package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Platform   PlatformConfig   `mapstructure:"platform"`
	Model      ModelConfig      `mapstructure:"model"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Style      StyleConfig      `mapstructure:"style"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

// PlatformConfig describes the messaging bridge the agent polls.
type PlatformConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	MessageLimit   int           `mapstructure:"message_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SendsPerMinute int           `mapstructure:"sends_per_minute"`
	SendBurst      int           `mapstructure:"send_burst"`
}

// ModelConfig describes the OpenAI-compatible completion endpoint.
type ModelConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Name        string  `mapstructure:"name"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// AgentConfig holds the orchestration constants.
type AgentConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PollBackoff     time.Duration `mapstructure:"poll_backoff"`
	MessageDebounce time.Duration `mapstructure:"message_debounce"`
	MaxQueueSize    int           `mapstructure:"max_queue_size"`
	MaxHistory      int           `mapstructure:"max_history"`
	SendPacing      time.Duration `mapstructure:"send_pacing"`
	Persona         string        `mapstructure:"persona"`
}

// StyleConfig controls style-profile derivation from the historical corpus.
type StyleConfig struct {
	CorpusPath  string `mapstructure:"corpus_path"`
	OwnerName   string `mapstructure:"owner_name"`
	MinMessages int    `mapstructure:"min_messages"`
	MaxExamples int    `mapstructure:"max_examples"`
}

// MemoryConfig controls the external semantic-memory retrieval tool.
type MemoryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Command string        `mapstructure:"command"`
	Args    []string      `mapstructure:"args"`
	Limit   int           `mapstructure:"limit"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// NotifyConfig configures the optional Telegram operator channel.
type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Secrets come from the environment, never from the config file.
	viper.BindEnv("platform.base_url", "PLATFORM_API_URL")
	viper.BindEnv("platform.api_key", "PLATFORM_API_KEY")
	viper.BindEnv("model.base_url", "LLM_BASE_URL")
	viper.BindEnv("model.api_key", "LLM_API_KEY")
	viper.BindEnv("notify.bot_token", "TELEGRAM_BOT_TOKEN")
	viper.BindEnv("notify.chat_id", "TELEGRAM_CHAT_ID")

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("platform.message_limit", 25)
	viper.SetDefault("platform.request_timeout", 30*time.Second)
	viper.SetDefault("platform.sends_per_minute", 30)
	viper.SetDefault("platform.send_burst", 5)

	viper.SetDefault("model.name", "gpt-4o")
	viper.SetDefault("model.max_tokens", 1024)
	viper.SetDefault("model.temperature", 0.9)

	viper.SetDefault("agent.poll_interval", 5*time.Second)
	viper.SetDefault("agent.poll_backoff", 15*time.Second)
	viper.SetDefault("agent.message_debounce", 5*time.Second)
	viper.SetDefault("agent.max_queue_size", 10)
	viper.SetDefault("agent.max_history", 30)
	viper.SetDefault("agent.send_pacing", 1600*time.Millisecond)

	viper.SetDefault("style.owner_name", "me")
	viper.SetDefault("style.min_messages", 50)
	viper.SetDefault("style.max_examples", 8)

	viper.SetDefault("memory.limit", 3)
	viper.SetDefault("memory.timeout", 30*time.Second)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("monitoring.metrics.port", 9090)
	viper.SetDefault("monitoring.metrics.path", "/metrics")
}

func validateConfig(cfg *Config) error {
	if cfg.Platform.BaseURL == "" {
		return fmt.Errorf("platform base URL is required (PLATFORM_API_URL)")
	}
	if cfg.Platform.APIKey == "" {
		return fmt.Errorf("platform API key is required (PLATFORM_API_KEY)")
	}
	if cfg.Model.APIKey == "" {
		return fmt.Errorf("model API key is required (LLM_API_KEY)")
	}
	if cfg.Model.BaseURL == "" {
		return fmt.Errorf("model base URL is required (LLM_BASE_URL)")
	}
	if cfg.Memory.Enabled && cfg.Memory.Command == "" {
		return fmt.Errorf("memory retrieval is enabled but no command is configured")
	}
	if cfg.Notify.Enabled && cfg.Notify.BotToken == "" {
		return fmt.Errorf("operator notifications are enabled but no bot token is configured")
	}
	return nil
}
