package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	ClassifierURL   string
	EmbedderURL     string
	LexiconPath     string
	TargetSpeaker   string
	APIToken        string
}

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:            envInt("PARLANCE_PORT", 8460),
		NatsURL:         envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("PARLANCE_MODEL", "claude-sonnet-4-20250514"),
		ClassifierURL:   envStr("CLASSIFIER_URL", "http://localhost:8461"),
		EmbedderURL:     envStr("EMBEDDER_URL", "http://localhost:8462"),
		LexiconPath:     envStr("LEXICON_PATH", ""),
		TargetSpeaker:   envStr("TARGET_SPEAKER", "1"),
		APIToken:        envStr("PARLANCE_API_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
