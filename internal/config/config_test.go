package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidPort(t *testing.T) {
	t.Setenv("FORGE_PORT", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid FORGE_PORT")
	}
	if got := err.Error(); !contains(got, "FORGE_PORT") || !contains(got, "abc") {
		t.Fatalf("error should mention FORGE_PORT and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("FORGE_PORT", "abc")
	t.Setenv("FORGE_MAX_REQUEST_BODY_BYTES", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "FORGE_PORT") {
		t.Fatalf("error should mention FORGE_PORT, got: %s", got)
	}
	if !contains(got, "FORGE_MAX_REQUEST_BODY_BYTES") {
		t.Fatalf("error should mention FORGE_MAX_REQUEST_BODY_BYTES, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.Persistence != "sqlite" {
		t.Fatalf("expected default persistence sqlite, got %q", cfg.Persistence)
	}
	if cfg.ParserMode != "auto" {
		t.Fatalf("expected default parser mode auto, got %q", cfg.ParserMode)
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestLoadFailsOnUnknownPersistence(t *testing.T) {
	t.Setenv("FORGE_PERSISTENCE", "mongo")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail on unknown persistence backend")
	}
	if !contains(err.Error(), "FORGE_PERSISTENCE") {
		t.Fatalf("error should mention FORGE_PERSISTENCE, got: %s", err.Error())
	}
}

func TestLoadFailsOnPostgresWithoutURL(t *testing.T) {
	t.Setenv("FORGE_PERSISTENCE", "postgres")
	t.Setenv("FORGE_POSTGRES_URL", "")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when postgres persistence has no URL")
	}
	if !contains(err.Error(), "FORGE_POSTGRES_URL") {
		t.Fatalf("error should mention FORGE_POSTGRES_URL, got: %s", err.Error())
	}
}

func TestLoadFailsOnUnknownParserMode(t *testing.T) {
	t.Setenv("FORGE_PARSER_MODE", "bogus")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail on unknown parser mode")
	}
	if !contains(err.Error(), "FORGE_PARSER_MODE") {
		t.Fatalf("error should mention FORGE_PARSER_MODE, got: %s", err.Error())
	}
}

func TestLoad_OTELEndpointParsing(t *testing.T) {
	endpoint := "https://otel.example.com:4317"
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", endpoint)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}
	if cfg.OTELEndpoint != endpoint {
		t.Fatalf("expected OTELEndpoint %q, got %q", endpoint, cfg.OTELEndpoint)
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("FORGE_PORT", "9090")
	t.Setenv("FORGE_PERSISTENCE", "postgres")
	t.Setenv("FORGE_POSTGRES_URL", "postgres://test:test@db:5432/forge")
	t.Setenv("FORGE_SQLITE_PATH", "/tmp/forge-test.db")
	t.Setenv("FORGE_PARSER_BIN", "/usr/local/bin/forge-pyparse")
	t.Setenv("FORGE_PARSER_MODE", "libcst")
	t.Setenv("FORGE_PARSER_STRICT", "true")
	t.Setenv("OTEL_SERVICE_NAME", "forge-test")
	t.Setenv("FORGE_LOG_LEVEL", "debug")
	t.Setenv("FORGE_LOG_STATE_UPDATES", "true")
	t.Setenv("FORGE_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("FORGE_SNAPSHOT_FLUSH_DELAY", "250ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.Port != 9090 {
		t.Fatalf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.Persistence != "postgres" {
		t.Fatalf("expected Persistence postgres, got %q", cfg.Persistence)
	}
	if cfg.PostgresURL != "postgres://test:test@db:5432/forge" {
		t.Fatalf("expected PostgresURL to be honored, got %q", cfg.PostgresURL)
	}
	if cfg.ParserMode != "libcst" {
		t.Fatalf("expected ParserMode libcst, got %q", cfg.ParserMode)
	}
	if !cfg.ParserStrict {
		t.Fatal("expected ParserStrict true")
	}
	if cfg.ServiceName != "forge-test" {
		t.Fatalf("expected ServiceName %q, got %q", "forge-test", cfg.ServiceName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if !cfg.LogStateUpdates {
		t.Fatal("expected LogStateUpdates true")
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 CORS origins, got %d", len(cfg.CORSAllowedOrigins))
	}
	if cfg.CORSAllowedOrigins[0] != "https://a.example.com" {
		t.Fatalf("expected first CORS origin %q, got %q", "https://a.example.com", cfg.CORSAllowedOrigins[0])
	}
	if cfg.SnapshotFlushDelay != 250*time.Millisecond {
		t.Fatalf("expected SnapshotFlushDelay 250ms, got %s", cfg.SnapshotFlushDelay)
	}
}
