// Package config provides configuration management for the advisor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"markyt-agent/internal/errors"
	"markyt-agent/internal/marketdata"
)

// Config holds all application configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Market  MarketConfig  `mapstructure:"market"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`

	// File is the config file that was read, empty when defaults were used.
	File string `mapstructure:"-"`
}

// LLMConfig holds the chat-completion endpoint settings.
type LLMConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`

	// BreakerThreshold is the number of consecutive endpoint outages that
	// pause chat for BreakerCooldown. 0 disables the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// AgentConfig holds advisor loop settings.
type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	ParallelTools bool   `mapstructure:"parallel_tools"`
	SystemPrompt  string `mapstructure:"system_prompt"` // empty uses the built-in prompt
}

// MarketConfig holds market data settings.
type MarketConfig struct {
	DefaultPeriod     string        `mapstructure:"default_period"`
	DefaultInterval   string        `mapstructure:"default_interval"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	ParallelFetch     int           `mapstructure:"parallel_fetch"`
}

// CacheConfig holds price cache settings.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Path    string        `mapstructure:"path"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/markyt"
	}
	return filepath.Join(home, ".config", "markyt")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.model", "llama-3.3-70b-versatile")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.breaker_threshold", 5)
	v.SetDefault("llm.breaker_cooldown", "30s")

	v.SetDefault("agent.max_iterations", 5)
	v.SetDefault("agent.parallel_tools", false)
	v.SetDefault("agent.system_prompt", "")

	v.SetDefault("market.default_period", marketdata.DefaultPeriod)
	v.SetDefault("market.default_interval", marketdata.DefaultInterval)
	v.SetDefault("market.retry_attempts", 1)
	v.SetDefault("market.retry_initial_delay", "500ms")
	v.SetDefault("market.parallel_fetch", 4)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", filepath.Join(configDir, "prices.db"))
	v.SetDefault("cache.ttl", "15m")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "markyt.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a template and defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	file := ""
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		// Best effort: a read-only home still runs on defaults.
		_ = createTemplateConfig(configDir)
	} else {
		file = v.ConfigFileUsed()
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.File = file

	// The template leaves paths empty so they follow the config directory.
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(configDir, "prices.db")
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(configDir, "logs", "markyt.log")
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads .env from the working directory and the config directory.
// Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	// LLM credentials; GROQ_API_KEY takes precedence
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	// Server
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitOrigins(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func splitOrigins(v string) []string {
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations < 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "agent.max_iterations must be at least 1")
	}
	if c.LLM.MaxTokens < 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "llm.max_tokens must be positive")
	}
	if c.LLM.BreakerThreshold < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "llm.breaker_threshold must be non-negative")
	}
	if c.LLM.BreakerThreshold > 0 && c.LLM.BreakerCooldown <= 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "llm.breaker_cooldown must be positive when the breaker is enabled")
	}
	if err := marketdata.ValidatePeriod(c.Market.DefaultPeriod); err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, "market.default_period: "+err.Error())
	}
	if err := marketdata.ValidateInterval(c.Market.DefaultInterval); err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, "market.default_interval: "+err.Error())
	}
	if c.Market.RetryAttempts < 1 {
		return errors.Wrap(errors.ErrConfigInvalid, "market.retry_attempts must be at least 1")
	}
	if c.Market.ParallelFetch < 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "market.parallel_fetch must be non-negative")
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.Wrap(errors.ErrConfigInvalid, "cache.ttl must be positive when the cache is enabled")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Wrapf(errors.ErrConfigInvalid, "server.port %d out of range", c.Server.Port)
	}
	return nil
}

// HasAPIKey reports whether an LLM API key is configured.
func (c *Config) HasAPIKey() bool {
	return c.LLM.APIKey != ""
}
