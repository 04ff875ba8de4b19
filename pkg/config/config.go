package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envConfigPath       = "MOSAIC_CONFIG"
	envOpenAIAPIKey     = "OPENAI_API_KEY"
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Store     StoreConfig     `json:"store"`
	Mail      MailConfig      `json:"mail"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ProviderConfig selects and configures the LLM completion capability.
type ProviderConfig struct {
	Name   string       `json:"name"`
	OpenAI OpenAIConfig `json:"openai"`
}

// OpenAIConfig configures the OpenAI completion client.
type OpenAIConfig struct {
	APIKey                string     `json:"api_key,omitempty"`
	BaseURL               string     `json:"base_url,omitempty"`
	Organization          string     `json:"organization,omitempty"`
	Project               string     `json:"project,omitempty"`
	RequestTimeoutSeconds int        `json:"request_timeout_seconds,omitempty"`
	Models                ModelTiers `json:"models"`
}

// ModelTiers maps analysis complexity tiers to model ids. Batch extraction
// uses simple, clustering and priority analysis medium, final narrative
// generation complex.
type ModelTiers struct {
	Simple  string `json:"simple"`
	Medium  string `json:"medium"`
	Complex string `json:"complex"`
}

// StoreConfig selects the document store backend.
type StoreConfig struct {
	Driver string `json:"driver"` // sqlite or memory
	Path   string `json:"path,omitempty"`
}

// MailConfig selects the mail provider backend.
type MailConfig struct {
	Provider    string `json:"provider"` // none or fixture
	FixturePath string `json:"fixture_path,omitempty"`
}

// SchedulerConfig controls the periodic synthesis trigger.
type SchedulerConfig struct {
	Enabled         bool     `json:"enabled"`
	IntervalMinutes int      `json:"interval_minutes,omitempty"`
	Users           []string `json:"users,omitempty"`
}

// NotifyConfig groups optional insight delivery channels.
type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

// TelegramConfig configures insight delivery to Telegram chats, keyed by
// user id.
type TelegramConfig struct {
	Enabled bool             `json:"enabled"`
	Token   string           `json:"token,omitempty"`
	ChatIDs map[string]int64 `json:"chat_ids,omitempty"`
}

// LoadConfig resolves config.json, unmarshals it, applies environment
// overrides and defaults, and validates the result.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(configPath)
}

// LoadConfigFrom loads configuration from an explicit path.
func LoadConfigFrom(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with workable defaults.
func (c *Config) ApplyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = "openai"
	}
	if c.Provider.OpenAI.Models.Simple == "" {
		c.Provider.OpenAI.Models.Simple = "gpt-5-mini"
	}
	if c.Provider.OpenAI.Models.Medium == "" {
		c.Provider.OpenAI.Models.Medium = "gpt-5"
	}
	if c.Provider.OpenAI.Models.Complex == "" {
		c.Provider.OpenAI.Models.Complex = "gpt-5"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		c.Store.Path = "mosaic.db"
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = "none"
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		c.Scheduler.IntervalMinutes = 15
	}
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}

	switch c.Mail.Provider {
	case "none", "fixture":
	default:
		return fmt.Errorf("unsupported mail provider %q", c.Mail.Provider)
	}
	if c.Mail.Provider == "fixture" && strings.TrimSpace(c.Mail.FixturePath) == "" {
		return fmt.Errorf("mail.fixture_path is required for the fixture provider")
	}

	if c.Scheduler.Enabled && len(c.Scheduler.Users) == 0 {
		return fmt.Errorf("scheduler.users must list at least one user when enabled")
	}

	if c.Notify.Telegram.Enabled && strings.TrimSpace(c.Notify.Telegram.Token) == "" {
		return fmt.Errorf("notify.telegram.token is required (or set %s)", envTelegramBotToken)
	}

	return nil
}

// applyEnvOverrides injects secret-bearing settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if key := strings.TrimSpace(os.Getenv(envOpenAIAPIKey)); key != "" {
		cfg.Provider.OpenAI.APIKey = key
	}
	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Notify.Telegram.Token = token
	}
}

// findConfigPath resolves the active config file location.
//
// Precedence is MOSAIC_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}

// ActiveUsers returns the scheduler's user list with blanks removed.
func (c *Config) ActiveUsers() []string {
	users := make([]string, 0, len(c.Scheduler.Users))
	for _, user := range c.Scheduler.Users {
		if trimmed := strings.TrimSpace(user); trimmed != "" {
			users = append(users, trimmed)
		}
	}
	return slices.Clip(users)
}
