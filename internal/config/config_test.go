package config

import (
	"testing"
	"time"
)

func TestLoadIncludesTrafficControlDefaults(t *testing.T) {
	t.Setenv("API_RATE_LIMIT_RPS", "")
	t.Setenv("API_RATE_LIMIT_BURST", "")
	t.Setenv("API_MAX_IN_FLIGHT", "")
	t.Setenv("API_BACKPRESSURE_TIMEOUT", "")
	t.Setenv("STORAGE_BACKEND", "")

	cfg := Load()
	if cfg.APIRateLimitRPS != 50 {
		t.Fatalf("expected default rps 50, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.APIRateLimitBurst != 100 {
		t.Fatalf("expected default burst 100, got %d", cfg.APIRateLimitBurst)
	}
	if cfg.APIMaxInFlight != 64 {
		t.Fatalf("expected default max in flight 64, got %d", cfg.APIMaxInFlight)
	}
	if cfg.APIBackpressureTimeout != 250*time.Millisecond {
		t.Fatalf("expected default backpressure timeout 250ms, got %v", cfg.APIBackpressureTimeout)
	}
	if cfg.StorageBackend != "local" {
		t.Fatalf("expected local storage backend, got %q", cfg.StorageBackend)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("JWT_LEEWAY", "1m")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("SMTP_PORT", "2525")

	cfg := Load()
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps override, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.JWTLeeway != time.Minute {
		t.Fatalf("expected leeway 1m, got %v", cfg.JWTLeeway)
	}
	if !cfg.S3UsePathStyle {
		t.Fatalf("expected path style override")
	}
	if cfg.SMTPPort != 2525 {
		t.Fatalf("expected smtp port 2525, got %d", cfg.SMTPPort)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("API_BACKPRESSURE_TIMEOUT", "soon")
	t.Setenv("API_MAX_IN_FLIGHT", "many")

	cfg := Load()
	if cfg.APIBackpressureTimeout != 250*time.Millisecond {
		t.Fatalf("expected fallback timeout, got %v", cfg.APIBackpressureTimeout)
	}
	if cfg.APIMaxInFlight != 64 {
		t.Fatalf("expected fallback max in flight, got %d", cfg.APIMaxInFlight)
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	if loc := (Config{Timezone: "Mars/Olympus_Mons"}).Location(); loc != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", loc)
	}
}
