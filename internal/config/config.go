// Package config provides configuration management for the Suncast Agent.
// Defaults may be overridden by an optional YAML file and then by
// environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// Default values
	DefaultPort     = 8781
	DefaultLogLevel = "info"
	DefaultDataDir  = ".suncast"

	// Environment variable names
	EnvPort       = "SUNCAST_PORT"
	EnvLogLevel   = "SUNCAST_LOG_LEVEL"
	EnvDataDir    = "SUNCAST_DATA_DIR"
	EnvConfigFile = "SUNCAST_CONFIG"
	EnvFFmpeg     = "SUNCAST_FFMPEG"

	// Database filename
	DBFilename = "suncast.db"

	// Movie generation defaults
	DefaultWindowHours     = 24
	DefaultMaxMovieFrames  = 1800
	DefaultPlaybackSeconds = 20
	DefaultEncodeTimeout   = 600 // seconds
	DefaultMinDiskFreeMB   = 512
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MoviesDir() string
	FFmpegPath() string
	DefaultWindow() time.Duration
	MaxMovieFrames() int
	PlaybackSeconds() int
	EncodeTimeout() time.Duration
	MinDiskFreeBytes() uint64
}

// fileConfig mirrors the optional YAML configuration file.
type fileConfig struct {
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	DataDir  string `yaml:"data_dir"`
	FFmpeg   string `yaml:"ffmpeg_path"`

	Movies struct {
		DefaultWindowHours int `yaml:"default_window_hours"`
		MaxFrames          int `yaml:"max_frames"`
		PlaybackSeconds    int `yaml:"playback_seconds"`
		EncodeTimeoutS     int `yaml:"encode_timeout_s"`
		MinDiskFreeMB      int `yaml:"min_disk_free_mb"`
	} `yaml:"movies"`
}

// EnvConfig reads configuration from an optional YAML file plus
// environment variable overrides.
type EnvConfig struct {
	port     int
	logLevel string
	dataDir  string
	ffmpeg   string

	defaultWindowHours int
	maxMovieFrames     int
	playbackSeconds    int
	encodeTimeoutS     int
	minDiskFreeMB      int
}

// New creates a new EnvConfig with defaults, YAML file values, and
// environment variable overrides applied in that order.
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:               DefaultPort,
		logLevel:           DefaultLogLevel,
		dataDir:            defaultDataDir(),
		defaultWindowHours: DefaultWindowHours,
		maxMovieFrames:     DefaultMaxMovieFrames,
		playbackSeconds:    DefaultPlaybackSeconds,
		encodeTimeoutS:     DefaultEncodeTimeout,
		minDiskFreeMB:      DefaultMinDiskFreeMB,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	// Override log level from environment
	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	// Override data directory from environment
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if ff := os.Getenv(EnvFFmpeg); ff != "" {
		cfg.ffmpeg = ff
	}

	if cfg.maxMovieFrames < 1 {
		return nil, fmt.Errorf("max movie frames must be positive, got %d", cfg.maxMovieFrames)
	}
	if cfg.playbackSeconds < 1 {
		return nil, fmt.Errorf("playback seconds must be positive, got %d", cfg.playbackSeconds)
	}

	return cfg, nil
}

func (c *EnvConfig) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.DataDir != "" {
		c.dataDir = fc.DataDir
	}
	if fc.FFmpeg != "" {
		c.ffmpeg = fc.FFmpeg
	}
	if fc.Movies.DefaultWindowHours != 0 {
		c.defaultWindowHours = fc.Movies.DefaultWindowHours
	}
	if fc.Movies.MaxFrames != 0 {
		c.maxMovieFrames = fc.Movies.MaxFrames
	}
	if fc.Movies.PlaybackSeconds != 0 {
		c.playbackSeconds = fc.Movies.PlaybackSeconds
	}
	if fc.Movies.EncodeTimeoutS != 0 {
		c.encodeTimeoutS = fc.Movies.EncodeTimeoutS
	}
	if fc.Movies.MinDiskFreeMB != 0 {
		c.minDiskFreeMB = fc.Movies.MinDiskFreeMB
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// MoviesDir returns the directory holding per-movie output directories
func (c *EnvConfig) MoviesDir() string {
	return filepath.Join(c.dataDir, "movies")
}

// FFmpegPath returns the configured ffmpeg binary path; empty = auto-detect
func (c *EnvConfig) FFmpegPath() string {
	return c.ffmpeg
}

// DefaultWindow returns the default movie time window duration
func (c *EnvConfig) DefaultWindow() time.Duration {
	return time.Duration(c.defaultWindowHours) * time.Hour
}

// MaxMovieFrames returns the global per-request frame cap
func (c *EnvConfig) MaxMovieFrames() int {
	return c.maxMovieFrames
}

// PlaybackSeconds returns the target playback duration used to derive
// the encoder frame rate
func (c *EnvConfig) PlaybackSeconds() int {
	return c.playbackSeconds
}

// EncodeTimeout returns the per-invocation ffmpeg timeout
func (c *EnvConfig) EncodeTimeout() time.Duration {
	return time.Duration(c.encodeTimeoutS) * time.Second
}

// MinDiskFreeBytes returns the minimum free space required in the data
// directory before a build is allowed to start
func (c *EnvConfig) MinDiskFreeBytes() uint64 {
	return uint64(c.minDiskFreeMB) * 1024 * 1024
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
