// Package config provides centralized configuration management for linknotes.
// It loads configuration from CLI flags and environment variables, validates required fields,
// and provides sensible defaults.
//
// CLI flags choose the database file, listen address, and whether exports go to
// a real S3 bucket or an in-memory one (--no-s3).
// Environment variables provide secrets and service configuration.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/linknotes/internal/crypto"
	"github.com/kuitang/linknotes/internal/logutil"
	"github.com/kuitang/linknotes/internal/ratelimit"
)

const (
	defaultS3Region     = "auto"
	defaultExportPrefix = "exports"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ListenAddr      string
	ShutdownTimeout time.Duration
	LogLevel        string

	// Database and encryption
	DatabasePath string // SQLite file holding every note
	DatabaseKey  string // Optional 64 hex master key; empty disables SQLCipher and export sealing

	// Rate limiting
	RateLimitConfig ratelimit.Config

	// Mock service flags (controlled by CLI flags, not env vars)
	NoS3 bool // If true, use in-memory S3 (--no-s3)

	// S3 export storage
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
	AWSBucketName      string // BUCKET_NAME
	ExportPrefix       string // EXPORT_PREFIX
}

// Flags carries the values settable on the command line.
// Empty strings mean "use the environment or default".
type Flags struct {
	NoS3   bool
	Addr   string
	DBPath string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses CLI flags and returns them. Call before LoadConfig.
// This registers and parses --no-s3, --addr and --db.
func ParseFlags() Flags {
	var f Flags
	flag.BoolVar(&f.NoS3, "no-s3", false, "Use mock S3 storage (in-memory) for exports")
	flag.StringVar(&f.Addr, "addr", "", "Listen address (default :8080, overrides LISTEN_ADDR env var)")
	flag.StringVar(&f.DBPath, "db", "", "Database file (overrides DATABASE_PATH env var)")
	flag.Parse()
	return f
}

// LoadConfig loads configuration from environment variables and CLI flag values.
// Non-empty flag values override the matching env vars.
func LoadConfig(f Flags) (*Config, error) {
	cfg := &Config{}

	cfg.NoS3 = f.NoS3

	// Server settings
	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", ":8080")
	if f.Addr != "" {
		cfg.ListenAddr = f.Addr
	}
	cfg.ShutdownTimeout = parseDurationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database and encryption
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "./data/linknotes.db")
	if f.DBPath != "" {
		cfg.DatabasePath = f.DBPath
	}
	cfg.DatabaseKey = strings.TrimSpace(os.Getenv("DATABASE_KEY"))

	// Rate limiting
	cfg.RateLimitConfig = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_RPS", ratelimit.DefaultConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_BURST", ratelimit.DefaultConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultConfig.CleanupInterval),
	}

	// S3 export storage
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultS3Region)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = strings.TrimSpace(os.Getenv("BUCKET_NAME"))
	cfg.ExportPrefix = strings.Trim(getEnvOrDefault("EXPORT_PREFIX", defaultExportPrefix), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and valid.
// When the S3 mock is NOT active, the S3 credentials are required.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, "DATABASE_PATH must not be empty")
	}

	// DatabaseKey: optional, but must be a full 32-byte key when present
	if c.DatabaseKey != "" {
		if _, err := crypto.ParseMasterKey(c.DatabaseKey); err != nil {
			errs = append(errs, "DATABASE_KEY must be 64 hex characters (generate with: openssl rand -hex 32)")
		}
	}

	// S3: require AWS credentials unless --no-s3
	if !c.NoS3 {
		if c.AWSEndpointS3 == "" {
			errs = append(errs, "AWS_ENDPOINT_URL_S3 is required (set env var or use --no-s3)")
		}
		if c.AWSBucketName == "" {
			errs = append(errs, "BUCKET_NAME is required (set env var or use --no-s3)")
		}
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required (set env var or use --no-s3)")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required (set env var or use --no-s3)")
		}
	}

	// Validate rate limit config
	if c.RateLimitConfig.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitConfig.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimitConfig.CleanupInterval <= 0 {
		errs = append(errs, "RATE_LIMIT_CLEANUP_INTERVAL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, "SHUTDOWN_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}

	return nil
}

// Encrypted reports whether the database is opened with SQLCipher.
func (c *Config) Encrypted() bool {
	return c.DatabaseKey != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to w.
func (c *Config) PrintStartupSummary(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "linknotes server starting...")

	if c.Encrypted() {
		fmt.Fprintf(w, "  Database: %s (SQLCipher, key %s)\n", c.DatabasePath, logutil.RedactValue("DATABASE_KEY", c.DatabaseKey))
	} else {
		fmt.Fprintf(w, "  Database: %s (unencrypted)\n", c.DatabasePath)
	}

	if c.NoS3 {
		fmt.Fprintln(w, "  Exports:  Mock S3 (--no-s3)")
	} else {
		fmt.Fprintf(w, "  Exports:  s3://%s/%s (endpoint: %s)\n", c.AWSBucketName, c.ExportPrefix, c.AWSEndpointS3)
	}

	fmt.Fprintf(w, "  Limits:   %.0f req/s, burst %d per client\n", c.RateLimitConfig.RPS, c.RateLimitConfig.Burst)
	fmt.Fprintf(w, "  Listen:   %s\n", c.ListenAddr)
	fmt.Fprintln(w, "")
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// MustLoadConfig loads configuration and panics if validation fails.
// Use this in main() when you want the application to fail fast on bad config.
func MustLoadConfig(f Flags) *Config {
	cfg, err := LoadConfig(f)
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}
