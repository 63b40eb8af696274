package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config with values from environment variables. A .env
// file in the working directory is loaded first if present; already-set
// variables keep their values.
//
// Recognized variables:
//
//	PASSKEEPER_SERVER_URL       base URL of the synchronization server
//	PASSKEEPER_DB_PATH          path to the sqlite store
//	PASSKEEPER_REQUEST_TIMEOUT  request timeout, e.g. "10s"
//	PASSKEEPER_DEBUG            "true" or "1" to enable debug logging
func parseEnv(cfg *Config) {
	_ = godotenv.Load()

	if v := os.Getenv("PASSKEEPER_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("PASSKEEPER_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("PASSKEEPER_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		}
	}
	if v := os.Getenv("PASSKEEPER_DEBUG"); v != "" {
		cfg.Debug = strings.EqualFold(v, "true") || v == "1"
	}
}
