// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// Collaborator credentials.
	DeepgramAPIKey   string
	GeminiAPIKey     string
	PerplexityAPIKey string
	PavlokAPIToken   string

	// FactCheckProvider selects the verification backend: "gemini" or
	// "perplexity".
	FactCheckProvider string
	FactCheckModel    string
	FactCheckTimeout  time.Duration
	FactCheckCacheTTL time.Duration
	FactCheckQPS      float64

	// Stimulus tuning. BaseIntensity is the server default; client
	// overrides are clamped to [MinClientIntensity, MaxClientIntensity].
	BaseIntensity      int
	MinClientIntensity int
	MaxClientIntensity int
	ActuationTimeout   time.Duration

	// Safety limits.
	MaxActuationsPerHour int
	ActuationCooldown    time.Duration

	SpeakVerdicts bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/verax.db"),

		DeepgramAPIKey:   getEnv("DEEPGRAM_API_KEY", ""),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		PerplexityAPIKey: getEnv("PERPLEXITY_API_KEY", ""),
		PavlokAPIToken:   getEnv("PAVLOK_API_TOKEN", ""),

		FactCheckProvider: getEnv("FACT_CHECK_PROVIDER", "gemini"),
		FactCheckModel:    getEnv("FACT_CHECK_MODEL", ""),
		FactCheckTimeout:  getEnvDuration("FACT_CHECK_TIMEOUT", 30*time.Second),
		FactCheckCacheTTL: getEnvDuration("FACT_CHECK_CACHE_TTL", 5*time.Minute),
		FactCheckQPS:      getEnvFloat("FACT_CHECK_QPS", 2),

		BaseIntensity:      getEnvInt("BASE_INTENSITY", 30),
		MinClientIntensity: getEnvInt("MIN_CLIENT_INTENSITY", 10),
		MaxClientIntensity: getEnvInt("MAX_CLIENT_INTENSITY", 80),
		ActuationTimeout:   getEnvDuration("ACTUATION_TIMEOUT", 10*time.Second),

		MaxActuationsPerHour: getEnvInt("MAX_ACTUATIONS_PER_HOUR", 10),
		ActuationCooldown:    getEnvDuration("ACTUATION_COOLDOWN", 5*time.Second),

		SpeakVerdicts: getEnvBool("SPEAK_VERDICTS", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set and sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.FactCheckProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when FACT_CHECK_PROVIDER=gemini")
		}
	case "perplexity":
		if c.PerplexityAPIKey == "" {
			return fmt.Errorf("PERPLEXITY_API_KEY is required when FACT_CHECK_PROVIDER=perplexity")
		}
	default:
		return fmt.Errorf("unknown FACT_CHECK_PROVIDER: %s", c.FactCheckProvider)
	}
	if c.DeepgramAPIKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY cannot be empty")
	}
	if c.PavlokAPIToken == "" {
		return fmt.Errorf("PAVLOK_API_TOKEN cannot be empty")
	}
	if c.BaseIntensity < 1 || c.BaseIntensity > 100 {
		return fmt.Errorf("BASE_INTENSITY must be in [1,100], got %d", c.BaseIntensity)
	}
	if c.MinClientIntensity < 1 || c.MaxClientIntensity > 100 ||
		c.MinClientIntensity > c.MaxClientIntensity {
		return fmt.Errorf("client intensity bounds [%d,%d] are invalid",
			c.MinClientIntensity, c.MaxClientIntensity)
	}
	if c.MaxActuationsPerHour <= 0 {
		return fmt.Errorf("MAX_ACTUATIONS_PER_HOUR must be > 0")
	}
	if c.ActuationCooldown <= 0 {
		return fmt.Errorf("ACTUATION_COOLDOWN must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
