package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SIMCORE_ADDR", "")
	t.Setenv("SIMCORE_ALLOWED_ORIGINS", "")
	t.Setenv("SIMCORE_MAX_PAYLOAD_BYTES", "")
	t.Setenv("SIMCORE_PING_INTERVAL", "")
	t.Setenv("SIMCORE_MAX_SESSIONS", "")
	t.Setenv("SIMCORE_TICK_HZ", "")
	t.Setenv("SIMCORE_FRAME_HZ", "")
	t.Setenv("SIMCORE_TLS_CERT", "")
	t.Setenv("SIMCORE_TLS_KEY", "")
	t.Setenv("SIMCORE_CAPTURE_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != DefaultAddr {
		t.Fatalf("expected default addr %q, got %q", DefaultAddr, cfg.Address)
	}
	if cfg.AllowedOrigins != nil {
		t.Fatalf("expected no allowed origins, got %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != DefaultMaxPayloadBytes {
		t.Fatalf("expected default max payload %d, got %d", DefaultMaxPayloadBytes, cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval != DefaultPingInterval {
		t.Fatalf("expected default ping interval %v, got %v", DefaultPingInterval, cfg.PingInterval)
	}
	if cfg.MaxSessions != DefaultMaxSessions {
		t.Fatalf("expected default max sessions %d, got %d", DefaultMaxSessions, cfg.MaxSessions)
	}
	if cfg.TickHz != DefaultTickHz || cfg.FrameHz != DefaultFrameHz {
		t.Fatalf("expected default rates %d/%d, got %d/%d", DefaultTickHz, DefaultFrameHz, cfg.TickHz, cfg.FrameHz)
	}
	if cfg.FrameBudgetBps != DefaultFrameBudgetBps {
		t.Fatalf("expected default frame budget %d, got %d", DefaultFrameBudgetBps, cfg.FrameBudgetBps)
	}
	if cfg.CaptureEnabled() {
		t.Fatal("expected capture to be disabled without a directory")
	}
	if cfg.TLSCertPath != "" || cfg.TLSKeyPath != "" {
		t.Fatalf("expected TLS paths to be empty, got cert=%q key=%q", cfg.TLSCertPath, cfg.TLSKeyPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SIMCORE_ADDR", "127.0.0.1:9000")
	t.Setenv("SIMCORE_ALLOWED_ORIGINS", "https://example.com, https://demo.local")
	t.Setenv("SIMCORE_MAX_PAYLOAD_BYTES", "2048")
	t.Setenv("SIMCORE_PING_INTERVAL", "45s")
	t.Setenv("SIMCORE_MAX_SESSIONS", "12")
	t.Setenv("SIMCORE_TICK_HZ", "120")
	t.Setenv("SIMCORE_FRAME_HZ", "24")
	t.Setenv("SIMCORE_FRAME_BUDGET_BPS", "32000")
	t.Setenv("SIMCORE_WORLD_PATH", "/tmp/world.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Address != "127.0.0.1:9000" {
		t.Fatalf("unexpected address: %q", cfg.Address)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://example.com" || cfg.AllowedOrigins[1] != "https://demo.local" {
		t.Fatalf("unexpected allowed origins: %#v", cfg.AllowedOrigins)
	}
	if cfg.MaxPayloadBytes != 2048 {
		t.Fatalf("expected overridden max payload, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.PingInterval.String() != "45s" {
		t.Fatalf("expected ping interval 45s, got %v", cfg.PingInterval)
	}
	if cfg.MaxSessions != 12 {
		t.Fatalf("expected max sessions 12, got %d", cfg.MaxSessions)
	}
	if cfg.TickHz != 120 || cfg.FrameHz != 24 {
		t.Fatalf("expected overridden rates 120/24, got %d/%d", cfg.TickHz, cfg.FrameHz)
	}
	if cfg.FrameBudgetBps != 32000 {
		t.Fatalf("expected frame budget 32000, got %d", cfg.FrameBudgetBps)
	}
	if cfg.WorldPath != "/tmp/world.yaml" {
		t.Fatalf("unexpected world path: %q", cfg.WorldPath)
	}
}

func TestLoadReturnsValidationErrors(t *testing.T) {
	t.Setenv("SIMCORE_MAX_PAYLOAD_BYTES", "-5")
	t.Setenv("SIMCORE_PING_INTERVAL", "abc")
	t.Setenv("SIMCORE_MAX_SESSIONS", "-1")
	t.Setenv("SIMCORE_TICK_HZ", "0")
	t.Setenv("SIMCORE_TLS_CERT", "/tmp/cert.pem")
	t.Setenv("SIMCORE_TLS_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error from invalid configuration, got nil")
	}

	for _, want := range []string{
		"SIMCORE_MAX_PAYLOAD_BYTES",
		"SIMCORE_PING_INTERVAL",
		"SIMCORE_MAX_SESSIONS",
		"SIMCORE_TICK_HZ",
		"SIMCORE_TLS_CERT",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %s, got %q", want, err.Error())
		}
	}
}

func TestLoadRejectsFrameRateAboveTickRate(t *testing.T) {
	t.Setenv("SIMCORE_TICK_HZ", "30")
	t.Setenv("SIMCORE_FRAME_HZ", "60")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when frame rate exceeds tick rate")
	}
	if !strings.Contains(err.Error(), "SIMCORE_FRAME_HZ") {
		t.Fatalf("expected error to mention SIMCORE_FRAME_HZ, got %q", err.Error())
	}
}

func TestLoadIgnoresEmptyAllowedOrigins(t *testing.T) {
	t.Setenv("SIMCORE_ALLOWED_ORIGINS", " , ,https://ok.example, ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://ok.example" {
		t.Fatalf("expected single cleaned origin, got %#v", cfg.AllowedOrigins)
	}
}

func TestLoadAllowsUnlimitedSessions(t *testing.T) {
	t.Setenv("SIMCORE_MAX_SESSIONS", "0")
	t.Setenv("SIMCORE_FRAME_BUDGET_BPS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.MaxSessions != 0 {
		t.Fatalf("expected zero to disable limit, got %d", cfg.MaxSessions)
	}
	if cfg.FrameBudgetBps != 0 {
		t.Fatalf("expected zero to disable the frame budget, got %d", cfg.FrameBudgetBps)
	}
}

func TestLoadCaptureSettings(t *testing.T) {
	t.Setenv("SIMCORE_CAPTURE_DIR", "/tmp/captures")
	t.Setenv("SIMCORE_CAPTURE_MAX_SESSIONS", "4")
	t.Setenv("SIMCORE_CAPTURE_MAX_AGE", "24h")
	t.Setenv("SIMCORE_CAPTURE_WINDOW", "30s")
	t.Setenv("SIMCORE_CAPTURE_BURST", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if !cfg.CaptureEnabled() {
		t.Fatal("expected capture to be enabled")
	}
	if cfg.CaptureDir != "/tmp/captures" {
		t.Fatalf("unexpected capture dir: %q", cfg.CaptureDir)
	}
	if cfg.CaptureMaxSessions != 4 {
		t.Fatalf("expected capture max sessions 4, got %d", cfg.CaptureMaxSessions)
	}
	if cfg.CaptureMaxAge != 24*time.Hour {
		t.Fatalf("expected capture max age 24h, got %v", cfg.CaptureMaxAge)
	}
	if cfg.CaptureWindow != 30*time.Second || cfg.CaptureBurst != 2 {
		t.Fatalf("unexpected capture limiter settings %v/%d", cfg.CaptureWindow, cfg.CaptureBurst)
	}
}
