// Package config assembles the CLI runtime configuration from layered
// sources: built-in defaults, environment variables (optionally loaded from a
// .env file), a JSON config file and command-line flags. Later sources take
// precedence over earlier ones.
package config

import "time"

// Config holds runtime settings for the passkeeper CLI.
type Config struct {
	// ServerURL is the https base URL of the synchronization server. Empty
	// means local-only operation.
	ServerURL string

	// DatabasePath is the sqlite file holding the local store.
	DatabasePath string

	// RequestTimeout bounds every webservice request.
	RequestTimeout time.Duration

	// Debug enables debug-level logging.
	Debug bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = ""
	c.DatabasePath = "passkeeper.db"
	c.RequestTimeout = 10 * time.Second
	c.Debug = false
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, a JSON file (if present) and command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
