// Package config loads bcast configuration from a JSON file or from the
// environment (with .env autoload).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the top-level bcast configuration.
type Config struct {
	Bot        BotConfig       `json:"bot"`
	Connectors ConnectorConfig `json:"connectors"`
	API        APIConfig       `json:"api"`
}

// BotConfig holds engine-level settings.
type BotConfig struct {
	// DataDir is where the SQLite databases live.
	DataDir string `json:"data_dir"`
	// OperatorID is the platform user ID of the single privileged operator.
	OperatorID int64 `json:"operator_id"`
	// ReminderSchedule is an optional cron expression for open-ticket
	// reminders (empty = disabled).
	ReminderSchedule string `json:"reminder_schedule,omitempty"`
}

// ConnectorConfig holds settings for external platform connectors.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token string `json:"token"`
}

// SlackConfig holds the optional Slack operator-notice mirror.
type SlackConfig struct {
	Token   string `json:"token"`
	Channel string `json:"channel"`
}

// APIConfig holds admin API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds the config from BCAST_-prefixed environment variables.
// A .env file in the working directory is loaded first if present.
func LoadFromEnv() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Bot: BotConfig{
			DataDir:          getenv("BCAST_DATA_DIR", "/data"),
			ReminderSchedule: os.Getenv("BCAST_REMINDER_SCHEDULE"),
		},
		API: APIConfig{
			Host: getenv("BCAST_API_HOST", "0.0.0.0"),
			Port: getenvInt("BCAST_API_PORT", 8080),
			Key:  os.Getenv("BCAST_API_KEY"),
		},
	}

	if v := os.Getenv("BCAST_OPERATOR_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: BCAST_OPERATOR_ID: %w", err)
		}
		cfg.Bot.OperatorID = id
	}

	if token := os.Getenv("BCAST_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
	}
	if token := os.Getenv("BCAST_SLACK_TOKEN"); token != "" {
		cfg.Connectors.Slack = &SlackConfig{
			Token:   token,
			Channel: os.Getenv("BCAST_SLACK_CHANNEL"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for required fields, collecting every problem.
func (c *Config) Validate() error {
	var errs []string

	if c.Bot.DataDir == "" {
		errs = append(errs, "bot.data_dir is required")
	}
	if c.Bot.OperatorID == 0 {
		errs = append(errs, "bot.operator_id is required")
	}
	if c.Connectors.Telegram == nil || c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if c.Connectors.Slack != nil && c.Connectors.Slack.Channel == "" {
		errs = append(errs, "connectors.slack.channel is required when slack is configured")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
