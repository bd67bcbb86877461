package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.BookingFeePesewas != 10000 {
		t.Errorf("expected default booking fee 10000 pesewas, got %d", cfg.BookingFeePesewas)
	}
	if cfg.BookingCurrency != "GHS" {
		t.Errorf("expected default currency GHS, got %s", cfg.BookingCurrency)
	}
	if cfg.ConflictWindow != time.Hour {
		t.Errorf("expected default conflict window 1h, got %s", cfg.ConflictWindow)
	}
	if cfg.SettlementPollInterval != 10*time.Second {
		t.Errorf("expected default poll interval 10s, got %s", cfg.SettlementPollInterval)
	}
	if cfg.SettlementPollAttempts != 30 {
		t.Errorf("expected default poll attempts 30, got %d", cfg.SettlementPollAttempts)
	}
}

func TestGetEnvOverrides(t *testing.T) {
	t.Setenv("BOOKING_FEE_PESEWAS", "25000")
	t.Setenv("BOOKING_CONFLICT_WINDOW", "30m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := Load()
	if cfg.BookingFeePesewas != 25000 {
		t.Errorf("expected overridden fee 25000, got %d", cfg.BookingFeePesewas)
	}
	if cfg.ConflictWindow != 30*time.Minute {
		t.Errorf("expected overridden window 30m, got %s", cfg.ConflictWindow)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("expected trimmed origin, got %q", cfg.CORSAllowedOrigins[1])
	}
}

func TestGetEnvAsIntFallbackOnGarbage(t *testing.T) {
	t.Setenv("SETTLEMENT_POLL_ATTEMPTS", "not-a-number")
	cfg := Load()
	if cfg.SettlementPollAttempts != 30 {
		t.Errorf("expected fallback 30, got %d", cfg.SettlementPollAttempts)
	}
}
