// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the covault service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int `env:"PORT" envDefault:"8080"`
	// Env selects the logger mode ("development" or "production").
	Env string `env:"ENV" envDefault:"development"`
	// DataPath is the bbolt database file. When empty the service runs on
	// the in-memory store and loses state on restart.
	DataPath string `env:"DATA_PATH"`
	// WebhookURL receives event notifications. Empty disables the notifier.
	WebhookURL string `env:"WEBHOOK_URL"`
	// WebhookSecret signs webhook payloads.
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

// Load reads an optional .env file and parses configuration from
// environment variables. A missing .env file is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
