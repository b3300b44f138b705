// Package config contains the configuration of the huduma service.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the service. It is constructed
// once in main and passed by reference to the components that need it.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	RedisAddr   string `env:"REDIS_ADDR"`

	AuthSecret  string   `env:"AUTH_JWT_SECRET"`
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`

	MpesaBaseURL     string `env:"MPESA_BASE_URL"`
	MpesaConsumerKey string `env:"MPESA_CONSUMER_KEY"`
	MpesaSecret      string `env:"MPESA_CONSUMER_SECRET"`
	MpesaPasskey     string `env:"MPESA_PASSKEY"`
	MpesaShortcode   string `env:"MPESA_SHORTCODE"`
	MpesaCallbackURL string `env:"MPESA_CALLBACK_URL"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_ADMIN_CHAT_ID"`
}

// Parse reads configuration from command-line flags and environment
// variables. Environment values take precedence over flags. A .env file
// in the working directory is loaded first when present.
func Parse() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envMpesaBaseURL := cfg.MpesaBaseURL

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MpesaBaseURL, "m", "", "M-Pesa gateway base URL")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envMpesaBaseURL != "" {
		cfg.MpesaBaseURL = envMpesaBaseURL
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}

// PaymentsConfigured reports whether gateway credentials are present.
// Without them application submission still succeeds and the payment
// step is skipped, matching the record-first failure semantics.
func (c *Config) PaymentsConfigured() bool {
	return c.MpesaConsumerKey != "" && c.MpesaSecret != ""
}
