// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreDiskv  = "diskv"
)

// Config holds all application configuration.
type Config struct {
	APIURL              string
	Env                 string
	PollInterval        time.Duration
	ContactPollInterval time.Duration
	BuzzCooldown        time.Duration
	NearBottom          int
	SessionParam        string
	StateDir            string
	Store               string
	HTTPTimeout         time.Duration
	LogLevel            slog.Level
	Server              ServerConfig
}

// ServerConfig controls the development remote store started by `twin serve`.
type ServerConfig struct {
	Port        string
	DBPath      string
	PresenceTTL time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	env := getEnv("TWIN_ENV", "production")

	// Local development polls faster.
	pollDefault, contactDefault := 5*time.Second, 12*time.Second
	if env == "local" {
		pollDefault, contactDefault = 2*time.Second, 6*time.Second
	}

	stateDir, err := homedir.Expand(getEnv("TWIN_STATE_DIR", "~/.twinsync"))
	if err != nil {
		return nil, fmt.Errorf("expand state dir: %w", err)
	}

	cfg := &Config{
		APIURL:              strings.TrimRight(getEnv("TWIN_API_URL", "http://localhost:8080/api"), "/"),
		Env:                 env,
		PollInterval:        getEnvDuration("TWIN_POLL_INTERVAL", pollDefault),
		ContactPollInterval: getEnvDuration("TWIN_CONTACT_POLL_INTERVAL", contactDefault),
		BuzzCooldown:        getEnvDuration("TWIN_BUZZ_COOLDOWN", 5*time.Second),
		NearBottom:          getEnvInt("TWIN_NEAR_BOTTOM", 150),
		SessionParam:        getEnv("TWIN_SESSION_PARAM", "PHPSESSID"),
		StateDir:            stateDir,
		Store:               strings.ToLower(getEnv("TWIN_STORE", StoreSQLite)),
		HTTPTimeout:         getEnvDuration("TWIN_HTTP_TIMEOUT", 15*time.Second),
		LogLevel:            getEnvLevel("TWIN_LOG_LEVEL", slog.LevelInfo),
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			DBPath:      getEnv("DB_PATH", "./data/remote.db"),
			PresenceTTL: getEnvDuration("PRESENCE_TTL", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("TWIN_API_URL must be an absolute URL, got %q", c.APIURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("TWIN_POLL_INTERVAL must be > 0")
	}
	if c.ContactPollInterval <= 0 {
		return fmt.Errorf("TWIN_CONTACT_POLL_INTERVAL must be > 0")
	}
	if c.BuzzCooldown < 0 {
		return fmt.Errorf("TWIN_BUZZ_COOLDOWN cannot be negative")
	}
	if c.NearBottom <= 0 {
		return fmt.Errorf("TWIN_NEAR_BOTTOM must be positive, got %d", c.NearBottom)
	}
	if c.SessionParam == "" {
		return fmt.Errorf("TWIN_SESSION_PARAM cannot be empty")
	}
	if c.StateDir == "" {
		return fmt.Errorf("TWIN_STATE_DIR cannot be empty")
	}
	if c.Store != StoreSQLite && c.Store != StoreDiskv {
		return fmt.Errorf("TWIN_STORE must be %q or %q, got %q", StoreSQLite, StoreDiskv, c.Store)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Server.PresenceTTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL must be > 0")
	}
	return nil
}

// IsLocal returns true when running against a local remote store.
func (c *Config) IsLocal() bool {
	return c.Env == "local" ||
		strings.Contains(c.APIURL, "localhost") ||
		strings.Contains(c.APIURL, "127.0.0.1")
}

// StatePath returns the path of the session store for the configured backend.
func (c *Config) StatePath() string {
	if c.Store == StoreDiskv {
		return filepath.Join(c.StateDir, "session")
	}
	return filepath.Join(c.StateDir, "session.db")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
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

// getEnvDuration accepts Go durations ("5s") or a bare number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return lvl
}
