// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/domuslabs/domus/internal/bank"
)

// Config holds everything the server needs to start.
type Config struct {
	Port           string
	DBPath         string
	APIKey         string
	AllowedOrigins []string

	GeminiAPIKey string
	GeminiModel  string

	BankClientID string
	BankSecret   string
	BankEnv      string

	// SimulationMode is set when aggregator credentials are missing. The
	// server then serves generated transactions instead of calling out.
	SimulationMode bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		DBPath:       getenv("DB_PATH", "domus.db"),
		APIKey:       os.Getenv("API_SECRET_KEY"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenv("GEMINI_MODEL", ""),
		BankClientID: os.Getenv("PLAID_CLIENT_ID"),
		BankSecret:   os.Getenv("PLAID_SECRET"),
		BankEnv:      getenv("PLAID_ENV", "sandbox"),
	}

	if _, ok := bank.Hosts[cfg.BankEnv]; !ok {
		return nil, fmt.Errorf("config: unknown PLAID_ENV %q", cfg.BankEnv)
	}

	cfg.SimulationMode = cfg.BankClientID == "" || cfg.BankSecret == ""

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}

	return cfg, nil
}

// BankHost returns the aggregator base URL for the configured environment.
func (c *Config) BankHost() string {
	return bank.Hosts[c.BankEnv]
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
