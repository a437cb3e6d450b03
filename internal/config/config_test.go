package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MAX_IDENTIFICATION_RETRIES", "")
	t.Setenv("NAME_MATCH_THRESHOLD", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.MaxIdentificationRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.MaxIdentificationRetries)
	}
	if cfg.NameMatchThreshold != 0.75 {
		t.Fatalf("expected default name match threshold 0.75, got %f", cfg.NameMatchThreshold)
	}
	if cfg.RegistrationTTLDays != 180 {
		t.Fatalf("expected default registration TTL 180 days, got %d", cfg.RegistrationTTLDays)
	}
	if cfg.PlexTimeout != 10*time.Second {
		t.Fatalf("expected default plex timeout, got %s", cfg.PlexTimeout)
	}
	if cfg.NameNoiseWords != nil {
		t.Fatalf("expected no noise word override by default, got %v", cfg.NameNoiseWords)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("MAX_IDENTIFICATION_RETRIES", "5")
	t.Setenv("NAME_MATCH_THRESHOLD", "0.8")
	t.Setenv("NAME_NOISE_WORDS", "cta, cte ,sr")
	t.Setenv("PLEX_TIMEOUT", "3s")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected database url override, got %s", cfg.DatabaseURL)
	}
	if cfg.MaxIdentificationRetries != 5 {
		t.Fatalf("expected max retries override, got %d", cfg.MaxIdentificationRetries)
	}
	if cfg.NameMatchThreshold != 0.8 {
		t.Fatalf("expected threshold override, got %f", cfg.NameMatchThreshold)
	}
	if len(cfg.NameNoiseWords) != 3 || cfg.NameNoiseWords[1] != "cte" {
		t.Fatalf("expected trimmed noise word list, got %v", cfg.NameNoiseWords)
	}
	if cfg.PlexTimeout != 3*time.Second {
		t.Fatalf("expected plex timeout override, got %s", cfg.PlexTimeout)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue enabled")
	}
}

func TestLoadPharmacyMapping(t *testing.T) {
	t.Setenv("WHATSAPP_PHARMACIES", "111222333=farmacia-1, 444555666=farmacia-2,bad-pair")
	cfg := Load()
	if len(cfg.WhatsAppPharmacies) != 2 {
		t.Fatalf("expected 2 mappings, got %v", cfg.WhatsAppPharmacies)
	}
	if cfg.WhatsAppPharmacies["444555666"] != "farmacia-2" {
		t.Fatalf("expected trimmed pair parsing, got %v", cfg.WhatsAppPharmacies)
	}
}
