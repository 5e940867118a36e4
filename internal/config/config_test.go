package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	os.Unsetenv(EnvPort)
	os.Unsetenv(EnvConfigFile)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.DefaultWindow() != 24*time.Hour {
		t.Errorf("DefaultWindow() = %v, want 24h", cfg.DefaultWindow())
	}
	if cfg.MaxMovieFrames() != DefaultMaxMovieFrames {
		t.Errorf("MaxMovieFrames() = %d, want %d", cfg.MaxMovieFrames(), DefaultMaxMovieFrames)
	}
	if cfg.PlaybackSeconds() != DefaultPlaybackSeconds {
		t.Errorf("PlaybackSeconds() = %d, want %d", cfg.PlaybackSeconds(), DefaultPlaybackSeconds)
	}
}

func TestNew_PortFromEnv(t *testing.T) {
	os.Setenv(EnvPort, "9000")
	defer os.Unsetenv(EnvPort)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 9000 {
		t.Errorf("Port() = %d, want 9000", cfg.Port())
	}
}

func TestNew_InvalidPort(t *testing.T) {
	os.Setenv(EnvPort, "not-a-port")
	defer os.Unsetenv(EnvPort)

	if _, err := New(); err == nil {
		t.Error("New() should fail for non-numeric port")
	}

	os.Setenv(EnvPort, "70000")
	if _, err := New(); err == nil {
		t.Error("New() should fail for out-of-range port")
	}
}

func TestNew_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: 8800
log_level: debug
movies:
  default_window_hours: 12
  max_frames: 300
  playback_seconds: 10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv(EnvConfigFile, path)
	defer os.Unsetenv(EnvConfigFile)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8800 {
		t.Errorf("Port() = %d, want 8800", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %q, want debug", cfg.LogLevel())
	}
	if cfg.DefaultWindow() != 12*time.Hour {
		t.Errorf("DefaultWindow() = %v, want 12h", cfg.DefaultWindow())
	}
	if cfg.MaxMovieFrames() != 300 {
		t.Errorf("MaxMovieFrames() = %d, want 300", cfg.MaxMovieFrames())
	}
}

func TestNew_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("port: 8800\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	os.Setenv(EnvConfigFile, path)
	os.Setenv(EnvPort, "8900")
	defer os.Unsetenv(EnvConfigFile)
	defer os.Unsetenv(EnvPort)

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port() != 8900 {
		t.Errorf("Port() = %d, want 8900 (env should win over file)", cfg.Port())
	}
}

func TestNew_MissingYAMLFile(t *testing.T) {
	os.Setenv(EnvConfigFile, "/nonexistent/config.yaml")
	defer os.Unsetenv(EnvConfigFile)

	if _, err := New(); err == nil {
		t.Error("New() should fail when the configured file is missing")
	}
}
