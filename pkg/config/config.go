package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/openbotkit/botflow/pkg/store"
)

// Config is the process configuration, read from the environment (an
// optional .env file is honored for local development). The conversation
// model itself lives in the bot model file, not here.
type Config struct {
	BotModelPath string `env:"BOTFLOW_BOT_MODEL" envDefault:"bot.json"`
	LogLevel     string `env:"BOTFLOW_LOG_LEVEL" envDefault:"info"`
	LogJSON      bool   `env:"BOTFLOW_LOG_JSON" envDefault:"false"`

	// NLU model id -> Rasa-compatible server base URL, e.g.
	// "0=http://localhost:5005,assessment=http://localhost:5006".
	NLUServers map[string]string `env:"BOTFLOW_NLU_SERVERS" envKeyValSeparator:"="`

	// Webhook receiving triggered bot functions; empty disables dispatch.
	ActionWebhookURL string `env:"BOTFLOW_ACTION_WEBHOOK"`

	RedisEnabled bool `env:"BOTFLOW_REDIS_ENABLED" envDefault:"false"`
	Redis        store.RedisConfig

	Channels ChannelsConfig
}

type ChannelsConfig struct {
	Telegram TelegramConfig `envPrefix:"BOTFLOW_TELEGRAM_"`
	Slack    SlackConfig    `envPrefix:"BOTFLOW_SLACK_"`
	Discord  DiscordConfig  `envPrefix:"BOTFLOW_DISCORD_"`
}

type TelegramConfig struct {
	Enabled   bool     `env:"ENABLED" envDefault:"false"`
	Token     string   `env:"TOKEN"`
	AllowFrom []string `env:"ALLOW_FROM" envSeparator:","`
}

type SlackConfig struct {
	Enabled   bool     `env:"ENABLED" envDefault:"false"`
	BotToken  string   `env:"BOT_TOKEN"`
	AppToken  string   `env:"APP_TOKEN"`
	AllowFrom []string `env:"ALLOW_FROM" envSeparator:","`
}

type DiscordConfig struct {
	Enabled   bool     `env:"ENABLED" envDefault:"false"`
	Token     string   `env:"TOKEN"`
	AllowFrom []string `env:"ALLOW_FROM" envSeparator:","`
}

// Load reads the environment into a Config. A missing .env file is fine.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return fmt.Errorf("telegram enabled but BOTFLOW_TELEGRAM_TOKEN is empty")
	}
	if c.Channels.Slack.Enabled && (c.Channels.Slack.BotToken == "" || c.Channels.Slack.AppToken == "") {
		return fmt.Errorf("slack enabled but bot/app tokens are incomplete")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return fmt.Errorf("discord enabled but BOTFLOW_DISCORD_TOKEN is empty")
	}
	return nil
}
