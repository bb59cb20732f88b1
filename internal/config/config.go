package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config reads all settings from the environment. The defaults are the
// production values; tests build their own structs instead.
type Config struct {
	Port   string `env:"SUGAR_PORT" envDefault:"8080"`
	APIKey string `env:"SUGAR_API_KEY"`

	// Storage: "memory" or "firestore".
	StorageBackend     string `env:"SUGAR_STORAGE_BACKEND" envDefault:"memory"`
	GCPProjectID       string `env:"SUGAR_GCP_PROJECT"`
	GCPLocation        string `env:"SUGAR_GCP_LOCATION" envDefault:"us-central1"`
	GCPCredentialsFile string `env:"SUGAR_GCP_CREDENTIALS_FILE"`

	// Inference: "gateway" (queued LLM service), "vertex" or "mock".
	LLMBackend string `env:"SUGAR_LLM_BACKEND" envDefault:"mock"`
	LLMBaseURL string `env:"SUGAR_LLM_BASE_URL"`
	LLMAPIKey  string `env:"SUGAR_LLM_API_KEY"`
	ModelName  string `env:"SUGAR_MODEL_NAME" envDefault:"gemini-2.5-flash"`

	// Chat transport: "rest" or "memory".
	ChatBackend string `env:"SUGAR_CHAT_BACKEND" envDefault:"memory"`
	ChatBaseURL string `env:"SUGAR_CHAT_BASE_URL"`
	ChatAPIKey  string `env:"SUGAR_CHAT_API_KEY"`

	// Sender ids carrying this prefix are treated as the AI participant.
	BotPrefix string `env:"SUGAR_BOT_PREFIX" envDefault:"ai-"`

	HistoryLimit int `env:"SUGAR_HISTORY_LIMIT" envDefault:"30"`

	SessionCacheSize   int           `env:"SUGAR_SESSION_CACHE_SIZE" envDefault:"1000"`
	SessionCacheTTL    time.Duration `env:"SUGAR_SESSION_CACHE_TTL" envDefault:"6h"`
	CharacterCacheSize int           `env:"SUGAR_CHARACTER_CACHE_SIZE" envDefault:"50"`
	CharacterCacheTTL  time.Duration `env:"SUGAR_CHARACTER_CACHE_TTL" envDefault:"24h"`
	DedupCacheSize     int           `env:"SUGAR_DEDUP_CACHE_SIZE" envDefault:"5000"`
	DedupTTL           time.Duration `env:"SUGAR_DEDUP_TTL" envDefault:"5m"`

	PollInterval    time.Duration `env:"SUGAR_POLL_INTERVAL" envDefault:"1s"`
	PollCeiling     time.Duration `env:"SUGAR_POLL_CEILING" envDefault:"3m"`
	TypingInterval  time.Duration `env:"SUGAR_TYPING_INTERVAL" envDefault:"5s"`
	CacheReportEach time.Duration `env:"SUGAR_CACHE_REPORT_EACH" envDefault:"10m"`
}

// Load parses the environment into a Config and validates the combinations
// that cannot work.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if cfg.StorageBackend == "firestore" && cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("SUGAR_GCP_PROJECT must be set for the firestore backend")
	}
	if cfg.LLMBackend == "gateway" && cfg.LLMBaseURL == "" {
		return nil, fmt.Errorf("SUGAR_LLM_BASE_URL must be set for the gateway backend")
	}
	if cfg.ChatBackend == "rest" && cfg.ChatBaseURL == "" {
		return nil, fmt.Errorf("SUGAR_CHAT_BASE_URL must be set for the rest chat backend")
	}

	return cfg, nil
}
