package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livecapture.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("expected default sample rate 48000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Encoder.Format != "wav" {
		t.Errorf("expected default format wav, got %q", cfg.Encoder.Format)
	}
	if cfg.Uploader.Transport != "http" {
		t.Errorf("expected default transport http, got %q", cfg.Uploader.Transport)
	}
}

func TestLoadWithProfileMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
active_profile: studio
defaults:
  audio:
    sample_rate: 44100
profiles:
  studio:
    audio:
      buffer_size: 256
    uploader:
      transport: nats
      nats_url: nats://studio:4222
      subject: studio.segments
`)

	cfg, err := LoadWithProfile(path, "studio")
	if err != nil {
		t.Fatalf("LoadWithProfile failed: %v", err)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("expected file default sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BufferSize != 256 {
		t.Errorf("expected profile buffer size 256, got %d", cfg.Audio.BufferSize)
	}
	if cfg.Uploader.Transport != "nats" {
		t.Errorf("expected profile transport nats, got %q", cfg.Uploader.Transport)
	}
	if cfg.Uploader.RetryInterval != time.Second {
		t.Errorf("expected built-in retry interval, got %s", cfg.Uploader.RetryInterval)
	}
}

func TestLoadFallsBackToActiveProfile(t *testing.T) {
	path := writeConfig(t, `
active_profile: live
profiles:
  live:
    audio:
      sample_rate: 96000
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 96000 {
		t.Errorf("expected active profile sample rate 96000, got %d", cfg.Audio.SampleRate)
	}
}

func TestLoadUnknownProfileFails(t *testing.T) {
	path := writeConfig(t, `
profiles:
  live:
    audio:
      sample_rate: 96000
`)

	if _, err := LoadWithProfile(path, "missing"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestLoadNoProfileUsesDefaults(t *testing.T) {
	path := writeConfig(t, `
defaults:
  server:
    port: "9090"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Audio.BufferSize != 1024 {
		t.Errorf("expected default buffer size 1024, got %d", cfg.Audio.BufferSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"zero sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, true},
		{"negative buffer size", func(c *Config) { c.Audio.BufferSize = -1 }, true},
		{"zero segment seconds", func(c *Config) { c.Encoder.SegmentSeconds = 0 }, true},
		{"unsupported format", func(c *Config) { c.Encoder.Format = "flac" }, true},
		{"unknown transport", func(c *Config) { c.Uploader.Transport = "ftp" }, true},
		{"http without endpoint", func(c *Config) { c.Uploader.Endpoint = "" }, true},
		{"nats without subject", func(c *Config) {
			c.Uploader.Transport = "nats"
			c.Uploader.Subject = ""
		}, true},
		{"zero retry interval", func(c *Config) { c.Uploader.RetryInterval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestProfileSelectionRoundTrip(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "livecapture.yaml")

	got, err := LoadProfileSelection(configFile)
	if err != nil {
		t.Fatalf("LoadProfileSelection failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty selection before save, got %q", got)
	}

	if err := SaveProfileSelection(configFile, "studio"); err != nil {
		t.Fatalf("SaveProfileSelection failed: %v", err)
	}
	got, err = LoadProfileSelection(configFile)
	if err != nil {
		t.Fatalf("LoadProfileSelection failed: %v", err)
	}
	if got != "studio" {
		t.Errorf("expected selection studio, got %q", got)
	}
}

func TestUpdateActiveProfile(t *testing.T) {
	path := writeConfig(t, `
active_profile: live
profiles:
  live:
    audio:
      sample_rate: 96000
  studio:
    audio:
      sample_rate: 44100
`)

	if err := UpdateActiveProfile(path, "studio"); err != nil {
		t.Fatalf("UpdateActiveProfile failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("expected studio profile after update, got sample rate %d", cfg.Audio.SampleRate)
	}
}
