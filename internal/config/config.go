// Package config centralizes process configuration. Values come from the
// environment, optionally seeded from a .env file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	PostgresDSN  string
	KafkaBrokers []string
	KafkaTopic   string
	JWTSecret    string
	TokenTTL     time.Duration
}

// Load reads configuration from the environment. A missing .env file is not
// an error. PostgresDSN and KafkaBrokers are optional: without them the
// server runs on the in-memory store and without event publishing.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:    os.Getenv("HTTP_ADDR"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		KafkaTopic:  os.Getenv("KAFKA_TOPIC"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenTTL:    time.Hour,
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "fundpool_events"
	}
	if raw := os.Getenv("TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.TokenTTL = ttl
	}
	for _, broker := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, broker)
		}
	}
	return cfg, nil
}
