package config

import (
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TWIN_STATE_DIR", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("expected 5s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.ContactPollInterval != 12*time.Second {
		t.Errorf("expected 12s contact poll interval, got %v", cfg.ContactPollInterval)
	}
	if cfg.BuzzCooldown != 5*time.Second {
		t.Errorf("expected 5s buzz cooldown, got %v", cfg.BuzzCooldown)
	}
	if cfg.SessionParam != "PHPSESSID" {
		t.Errorf("expected PHPSESSID, got %q", cfg.SessionParam)
	}
	if cfg.Store != StoreSQLite {
		t.Errorf("expected sqlite store, got %q", cfg.Store)
	}
}

func TestLoadLocalIntervals(t *testing.T) {
	t.Setenv("TWIN_STATE_DIR", t.TempDir())
	t.Setenv("TWIN_ENV", "local")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PollInterval != 2*time.Second || cfg.ContactPollInterval != 6*time.Second {
		t.Fatalf("expected 2s/6s, got %v/%v", cfg.PollInterval, cfg.ContactPollInterval)
	}
	if !cfg.IsLocal() {
		t.Fatal("expected local config")
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TWIN_STATE_DIR", dir)
	t.Setenv("TWIN_POLL_INTERVAL", "750")
	t.Setenv("TWIN_CONTACT_POLL_INTERVAL", "3s")
	t.Setenv("TWIN_STORE", "DISKV")
	t.Setenv("TWIN_LOG_LEVEL", "debug")
	t.Setenv("TWIN_API_URL", "https://example.test/api/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PollInterval != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %v", cfg.PollInterval)
	}
	if cfg.ContactPollInterval != 3*time.Second {
		t.Errorf("expected 3s, got %v", cfg.ContactPollInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.LogLevel)
	}
	if strings.HasSuffix(cfg.APIURL, "/") {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.APIURL)
	}
	if cfg.StatePath() != filepath.Join(dir, "session") {
		t.Errorf("unexpected diskv state path %q", cfg.StatePath())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"relative api url", map[string]string{"TWIN_API_URL": "api/"}},
		{"unknown store", map[string]string{"TWIN_STORE": "redis"}},
		{"empty session param", map[string]string{"TWIN_SESSION_PARAM": ""}},
		{"zero poll interval", map[string]string{"TWIN_POLL_INTERVAL": "0"}},
		{"zero near bottom", map[string]string{"TWIN_NEAR_BOTTOM": "0"}},
		{"negative near bottom", map[string]string{"TWIN_NEAR_BOTTOM": "-5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TWIN_STATE_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
