// Package config provides environment-based configuration for the scanner service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the scanner service.
type Config struct {
	// Server configuration
	Host string
	Port int

	// Logging
	LogLevel  string
	LogFormat string // "json" or "text"

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration

	Capture CaptureConfig
	Scanner ScannerConfig
}

// CaptureConfig describes where capture devices come from and how the
// device class is resolved.
type CaptureConfig struct {
	// Root is the directory whose subdirectories are video inputs.
	Root string
	// UserAgent is the environment signal used to classify the device.
	UserAgent string
	// DeviceClass overrides the user agent classification when set
	// ("phone", "tablet" or "unspecified").
	DeviceClass string
	// ProfilesFile is an optional YAML file overriding the profile table.
	ProfilesFile string
	// PollInterval is how often the device watcher re-enumerates cameras.
	PollInterval time.Duration
}

// ScannerConfig holds scan lifecycle policy.
type ScannerConfig struct {
	MountID           string
	DuplicateWindow   time.Duration
	SuppressionWindow time.Duration
	EventLogCapacity  int
	HistoryCapacity   int
	// CachePermission skips the permission request after the first grant.
	CachePermission bool
}

const (
	defaultPort              = 8090
	defaultMountID           = "qr-reader"
	defaultDuplicateWindow   = 60 * time.Second
	defaultSuppressionWindow = 300 * time.Second
	defaultEventLogCapacity  = 100
	defaultHistoryCapacity   = 50
)

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := LoadWithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithDefaults loads configuration from the environment without
// validating it, useful for testing and for flag overrides applied later.
func LoadWithDefaults() *Config {
	return &Config{
		Host:            getEnv("QRSCAN_HOST", "0.0.0.0"),
		Port:            getIntEnv("QRSCAN_PORT", defaultPort),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second),
		Capture: CaptureConfig{
			Root:         getEnv("CAPTURE_ROOT", "./cameras"),
			UserAgent:    getEnv("USER_AGENT", ""),
			DeviceClass:  getEnv("DEVICE_CLASS", ""),
			ProfilesFile: getEnv("PROFILES_FILE", ""),
			PollInterval: getDurationEnv("DEVICE_POLL_INTERVAL", 5*time.Second),
		},
		Scanner: ScannerConfig{
			MountID:           getEnv("MOUNT_ID", defaultMountID),
			DuplicateWindow:   getDurationEnv("DUPLICATE_WINDOW", defaultDuplicateWindow),
			SuppressionWindow: getDurationEnv("SUPPRESSION_WINDOW", defaultSuppressionWindow),
			EventLogCapacity:  getIntEnv("EVENT_LOG_CAPACITY", defaultEventLogCapacity),
			HistoryCapacity:   getIntEnv("HISTORY_CAPACITY", defaultHistoryCapacity),
			CachePermission:   getBoolEnv("PERMISSION_CACHE", false),
		},
	}
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("QRSCAN_PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.Capture.Root == "" {
		return fmt.Errorf("CAPTURE_ROOT is required")
	}
	switch c.Capture.DeviceClass {
	case "", "phone", "tablet", "unspecified":
	default:
		return fmt.Errorf("DEVICE_CLASS must be phone, tablet or unspecified, got %q", c.Capture.DeviceClass)
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("DEVICE_POLL_INTERVAL must be positive")
	}
	if c.Scanner.MountID == "" {
		return fmt.Errorf("MOUNT_ID is required")
	}
	if c.Scanner.DuplicateWindow <= 0 || c.Scanner.SuppressionWindow <= 0 {
		return fmt.Errorf("DUPLICATE_WINDOW and SUPPRESSION_WINDOW must be positive")
	}
	if c.Scanner.EventLogCapacity <= 0 || c.Scanner.HistoryCapacity <= 0 {
		return fmt.Errorf("EVENT_LOG_CAPACITY and HISTORY_CAPACITY must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
