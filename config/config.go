package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bosley/voiceguard/predict"
)

// Config holds the client configuration
type Config struct {
	// Prediction endpoint
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`

	// Microphone
	DeviceID      int    `yaml:"device"`
	RecordingsDir string `yaml:"recordings_dir"`

	// Console
	HTTPAddr    string `yaml:"http_addr"`
	WatchDir    string `yaml:"watch_dir"`
	AutoAnalyze bool   `yaml:"auto_analyze"`

	LogLevel string `yaml:"log_level"`

	// One-shot actions, flags only
	File        string `yaml:"-"`
	Record      bool   `yaml:"-"`
	Play        string `yaml:"-"`
	ListDevices bool   `yaml:"-"`
}

func Default() *Config {
	return &Config{
		Endpoint:      predict.DefaultBaseURL,
		RecordingsDir: "recordings",
		LogLevel:      "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file, the
// environment (including .env) and finally command line flags.
func Load(args []string) (*Config, error) {
	cfg := Default()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	fs := flag.NewFlagSet("voiceguard", flag.ContinueOnError)
	configPath := fs.String("config", getEnv("VOICEGUARD_CONFIG", ""), "Path to YAML configuration file")

	// The config path must be known before the other flags are bound so that
	// file values can serve as their defaults.
	if path := findConfigFlag(args); path != "" {
		*configPath = path
	}
	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Base URL of the prediction service")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Prediction request timeout (0 = none)")
	fs.IntVar(&cfg.DeviceID, "device", cfg.DeviceID, "Audio input device ID to use")
	fs.StringVar(&cfg.RecordingsDir, "recordings", cfg.RecordingsDir, "Directory for saved recordings")
	fs.StringVar(&cfg.HTTPAddr, "serve", cfg.HTTPAddr, "Run the HTTP console on this address (host:port)")
	fs.StringVar(&cfg.WatchDir, "watch", cfg.WatchDir, "Select new .wav files dropped into this directory (console mode)")
	fs.BoolVar(&cfg.AutoAnalyze, "auto-analyze", cfg.AutoAnalyze, "Analyze watched files as soon as they appear")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.File, "file", "", "Analyze this audio file and exit")
	fs.BoolVar(&cfg.Record, "record", false, "Record from the microphone, then analyze")
	fs.StringVar(&cfg.Play, "play", "", "Play audio file")
	fs.BoolVar(&cfg.ListDevices, "list-devices", false, "List available audio input devices")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Endpoint = getEnv("VOICEGUARD_ENDPOINT", c.Endpoint)
	c.RecordingsDir = getEnv("VOICEGUARD_RECORDINGS_DIR", c.RecordingsDir)
	c.HTTPAddr = getEnv("VOICEGUARD_HTTP_ADDR", c.HTTPAddr)
	c.WatchDir = getEnv("VOICEGUARD_WATCH_DIR", c.WatchDir)
	c.LogLevel = getEnv("VOICEGUARD_LOG_LEVEL", c.LogLevel)

	if timeoutStr := getEnv("VOICEGUARD_TIMEOUT", ""); timeoutStr != "" {
		d, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return fmt.Errorf("invalid VOICEGUARD_TIMEOUT %q: %w", timeoutStr, err)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if _, err := predict.EndpointURL(c.Endpoint); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("device ID must not be negative, got %d", c.DeviceID)
	}
	if c.RecordingsDir == "" {
		return fmt.Errorf("recordings directory is required")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.WatchDir != "" && c.HTTPAddr == "" {
		return fmt.Errorf("-watch requires -serve")
	}
	if c.File != "" && c.Record {
		return fmt.Errorf("-file and -record cannot be combined")
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
}

func findConfigFlag(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
