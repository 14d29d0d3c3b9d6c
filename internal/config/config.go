// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Persistence settings.
	Persistence  string // "sqlite" or "postgres"
	SQLitePath   string
	PostgresURL  string
	SnapshotFlushDelay time.Duration

	// Python parser settings.
	ParserBin    string // path to an external libcst/ast parser binary; empty uses the regex fallback
	ParserMode   string // "auto", "libcst", "ast"
	ParserStrict bool   // fail the verification rule on parser errors instead of degrading to the regex fallback

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// CORS settings.
	CORSAllowedOrigins []string

	// Operational settings.
	LogLevel          string
	LogStateUpdates   bool // log every state_update event at debug level; noisy, off by default
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value.
// Missing variables use sensible defaults; only malformed values are rejected.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		Persistence:        envStr("FORGE_PERSISTENCE", "sqlite"),
		SQLitePath:         envStr("FORGE_SQLITE_PATH", "forge.db"),
		PostgresURL:        envStr("FORGE_POSTGRES_URL", ""),
		ParserBin:          envStr("FORGE_PARSER_BIN", ""),
		ParserMode:         envStr("FORGE_PARSER_MODE", "auto"),
		OTELEndpoint:       envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:        envStr("OTEL_SERVICE_NAME", "forge"),
		LogLevel:           envStr("FORGE_LOG_LEVEL", "info"),
		CORSAllowedOrigins: envStrSlice("FORGE_CORS_ALLOWED_ORIGINS", nil),
	}

	cfg.Port, errs = collectInt(errs, "FORGE_PORT", 8080)

	var maxReqBody int
	maxReqBody, errs = collectInt(errs, "FORGE_MAX_REQUEST_BODY_BYTES", 1*1024*1024)
	cfg.MaxRequestBodyBytes = int64(maxReqBody)

	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)
	cfg.ParserStrict, errs = collectBool(errs, "FORGE_PARSER_STRICT", false)
	cfg.LogStateUpdates, errs = collectBool(errs, "FORGE_LOG_STATE_UPDATES", false)

	cfg.ReadTimeout, errs = collectDuration(errs, "FORGE_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "FORGE_WRITE_TIMEOUT", 30*time.Second)
	cfg.SnapshotFlushDelay, errs = collectDuration(errs, "FORGE_SNAPSHOT_FLUSH_DELAY", 100*time.Millisecond)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane.
func (c Config) Validate() error {
	var errs []error

	switch c.Persistence {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("config: FORGE_PERSISTENCE must be \"sqlite\" or \"postgres\", got %q", c.Persistence))
	}
	if c.Persistence == "postgres" && c.PostgresURL == "" {
		errs = append(errs, errors.New("config: FORGE_POSTGRES_URL is required when FORGE_PERSISTENCE=postgres"))
	}
	switch c.ParserMode {
	case "auto", "libcst", "ast":
	default:
		errs = append(errs, fmt.Errorf("config: FORGE_PARSER_MODE must be \"auto\", \"libcst\", or \"ast\", got %q", c.ParserMode))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: FORGE_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: FORGE_PORT must be between 1 and 65535"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: FORGE_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: FORGE_WRITE_TIMEOUT must be positive"))
	}
	if c.SnapshotFlushDelay <= 0 {
		errs = append(errs, errors.New("config: FORGE_SNAPSHOT_FLUSH_DELAY must be positive"))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
// Returns fallback if the env var is empty or unset.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
