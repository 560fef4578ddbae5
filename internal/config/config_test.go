package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.BusinessTimezone != "America/New_York" {
		t.Errorf("BusinessTimezone = %q", cfg.BusinessTimezone)
	}
	if cfg.DispatchInterval != 2*time.Second {
		t.Errorf("DispatchInterval = %v", cfg.DispatchInterval)
	}
	if cfg.EmailProvider != "stub" {
		t.Errorf("EmailProvider = %q", cfg.EmailProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DISPATCH_DEDUP_TTL", "1h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EMAIL_PROVIDER", " SendGrid ")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.DedupTTL != time.Hour {
		t.Errorf("DedupTTL = %v", cfg.DedupTTL)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "sendgrid" {
		t.Errorf("EmailProvider = %q", cfg.EmailProvider)
	}
}
