package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultInstance = "work"
	cfg.Listener.ChannelID = -1001234
	cfg.Audit.StalledAfter = 2 * time.Minute
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultInstance != "work" {
		t.Errorf("DefaultInstance = %q, want %q", loaded.DefaultInstance, "work")
	}
	if loaded.Listener.ChannelID != -1001234 {
		t.Errorf("Listener.ChannelID = %d, want -1001234", loaded.Listener.ChannelID)
	}
	if loaded.Audit.StalledAfter != 2*time.Minute {
		t.Errorf("Audit.StalledAfter = %v, want 2m", loaded.Audit.StalledAfter)
	}
	if loaded.Queue.InboundSize != 1024 {
		t.Errorf("Queue.InboundSize = %d, want 1024", loaded.Queue.InboundSize)
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Queue.OutboundSize != 1024 {
		t.Errorf("Queue.OutboundSize = %d, want 1024", cfg.Queue.OutboundSize)
	}
	if cfg.Pipeline.RestartMinBackoff != 250*time.Millisecond {
		t.Errorf("Pipeline.RestartMinBackoff = %v, want 250ms", cfg.Pipeline.RestartMinBackoff)
	}
	if cfg.Audit.Schedule != "@every 10m" {
		t.Errorf("Audit.Schedule = %q, want @every 10m", cfg.Audit.Schedule)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[queue]\ninbound_size = 16\n\n[bot]\ntoken = \"abc\"\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Queue.InboundSize != 16 {
		t.Errorf("Queue.InboundSize = %d, want 16", cfg.Queue.InboundSize)
	}
	if cfg.Queue.OutboundSize != 1024 {
		t.Errorf("Queue.OutboundSize = %d, want default 1024", cfg.Queue.OutboundSize)
	}
	if cfg.Bot.Token != "abc" || cfg.Bot.RatePerSecond != 25 {
		t.Errorf("Bot = %+v", cfg.Bot)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, &Config{DefaultInstance: "main"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TGF_DEFAULT_INSTANCE", "staging")
	t.Setenv("TGF_BOT__TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultInstance != "staging" {
		t.Errorf("DefaultInstance = %q, want staging", cfg.DefaultInstance)
	}
	if cfg.Bot.Token != "from-env" {
		t.Errorf("Bot.Token = %q, want from-env", cfg.Bot.Token)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("queue = [unterminated"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for malformed TOML")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
