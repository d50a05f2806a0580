package config

import (
	"errors"
	"os"
	"strings"
)

type LLMConfig struct {
	Provider         string // anthropic, gemini
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	GeminiAPIKey     string
	GeminiModel      string
}

type Config struct {
	Port           string
	Environment    string
	DatabaseURL    string
	RedisURL       string
	JWTSecret      string
	EncryptionKey  string // base64, 32 bytes
	BlindIndexKey  string // base64, 32 bytes; required with EncryptionKey
	AllowedOrigins []string
	LLM            LLMConfig
}

// Load reads the configuration from the environment. Call godotenv.Load first
// to pick up a local .env file.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    strings.ToLower(strings.TrimSpace(getEnv("ENV", "production"))),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		EncryptionKey:  os.Getenv("ENCRYPTION_KEY"),
		BlindIndexKey:  os.Getenv("BLIND_INDEX_KEY"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "*")),
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("LLM_PROVIDER", "anthropic")),
			AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-haiku-20240307"),
			GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
			GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if (cfg.EncryptionKey == "") != (cfg.BlindIndexKey == "") {
		return nil, errors.New("ENCRYPTION_KEY and BLIND_INDEX_KEY must be set together")
	}
	switch cfg.LLM.Provider {
	case "anthropic", "gemini":
	default:
		return nil, errors.New("LLM_PROVIDER must be anthropic or gemini")
	}
	return cfg, nil
}

// IsDevelopment returns true when ENV is set to "development".
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func parseOrigins(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
