package config

import (
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/linknotes/internal/ratelimit"
)

func validTestConfig() *Config {
	return &Config{
		ListenAddr:         ":8080",
		ShutdownTimeout:    10 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "./data/linknotes.db",
		DatabaseKey:        strings.Repeat("ab", 32),
		RateLimitConfig:    ratelimit.DefaultConfig,
		AWSEndpointS3:      "http://localhost:9000",
		AWSRegion:          "auto",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test-secret",
		AWSBucketName:      "linknotes",
		ExportPrefix:       "exports",
	}
}

func TestValidate_AcceptsCompleteConfig(t *testing.T) {
	if err := validTestConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_NoS3SkipsCredentials(t *testing.T) {
	cfg := validTestConfig()
	cfg.NoS3 = true
	cfg.AWSEndpointS3 = ""
	cfg.AWSBucketName = ""
	cfg.AWSAccessKeyID = ""
	cfg.AWSSecretAccessKey = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected --no-s3 to skip S3 requirements, got: %v", err)
	}
}

func TestValidate_RealS3RequiresCredentials(t *testing.T) {
	cfg := validTestConfig()
	cfg.AWSEndpointS3 = ""
	cfg.AWSBucketName = ""
	cfg.AWSAccessKeyID = ""
	cfg.AWSSecretAccessKey = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when real S3 is enabled without credentials")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(validationErr.Errors) != 4 {
		t.Fatalf("expected 4 issues, got %d: %v", len(validationErr.Errors), validationErr.Errors)
	}
	msg := err.Error()
	for _, expected := range []string{
		"AWS_ENDPOINT_URL_S3",
		"BUCKET_NAME",
		"AWS_ACCESS_KEY_ID",
		"AWS_SECRET_ACCESS_KEY",
	} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func TestValidate_EmptyDatabaseKeyMeansPlaintext(t *testing.T) {
	cfg := validTestConfig()
	cfg.DatabaseKey = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty key should be allowed: %v", err)
	}
	if cfg.Encrypted() {
		t.Fatal("empty key should not report encryption")
	}
}

func testValidate_RejectsInvalidDatabaseKey(t *rapid.T) {
	cfg := validTestConfig()

	// Either the wrong length of valid hex, or the right length with a non-hex byte
	if rapid.Bool().Draw(t, "wrong_length") {
		n := rapid.IntRange(1, 100).Filter(func(n int) bool { return n != 64 }).Draw(t, "key_len")
		cfg.DatabaseKey = strings.Repeat("a", n)
	} else {
		pos := rapid.IntRange(0, 63).Draw(t, "bad_pos")
		key := []byte(strings.Repeat("0", 64))
		key[pos] = rapid.SampledFrom([]byte("ghxyzGHXYZ!-")).Draw(t, "bad_char")
		cfg.DatabaseKey = string(key)
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error for key %q", cfg.DatabaseKey)
	}
	if !strings.Contains(err.Error(), "DATABASE_KEY") {
		t.Fatalf("expected error mentioning DATABASE_KEY, got: %v", err)
	}
}

func TestValidate_RejectsInvalidDatabaseKey(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsInvalidDatabaseKey)
}

func FuzzValidate_RejectsInvalidDatabaseKey(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testValidate_RejectsInvalidDatabaseKey))
}

func TestValidate_RejectsNonPositiveLimits(t *testing.T) {
	cfg := validTestConfig()
	cfg.RateLimitConfig = ratelimit.Config{}
	cfg.ShutdownTimeout = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for zero limits")
	}
	msg := err.Error()
	for _, token := range []string{"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP_INTERVAL", "SHUTDOWN_TIMEOUT"} {
		if !strings.Contains(msg, token) {
			t.Fatalf("expected error mentioning %q, got: %v", token, err)
		}
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("DATABASE_KEY", "")
	t.Setenv("EXPORT_PREFIX", "/backups/nightly/")

	cfg, err := LoadConfig(Flags{NoS3: true, Addr: "127.0.0.1:7000", DBPath: "/tmp/from-flag.db"})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:7000" {
		t.Errorf("ListenAddr = %q, want flag value", cfg.ListenAddr)
	}
	if cfg.DatabasePath != "/tmp/from-flag.db" {
		t.Errorf("DatabasePath = %q, want flag value", cfg.DatabasePath)
	}
	if cfg.ExportPrefix != "backups/nightly" {
		t.Errorf("ExportPrefix = %q, want slashes trimmed", cfg.ExportPrefix)
	}
	if !cfg.NoS3 {
		t.Error("NoS3 flag not carried into config")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"LISTEN_ADDR", "DATABASE_PATH", "DATABASE_KEY", "LOG_LEVEL", "SHUTDOWN_TIMEOUT",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP_INTERVAL",
		"AWS_REGION", "EXPORT_PREFIX",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig(Flags{NoS3: true})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.DatabasePath != "./data/linknotes.db" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RateLimitConfig != ratelimit.DefaultConfig {
		t.Fatalf("rate limit defaults = %+v, want %+v", cfg.RateLimitConfig, ratelimit.DefaultConfig)
	}
	if cfg.AWSRegion != "auto" || cfg.ExportPrefix != "exports" {
		t.Fatalf("unexpected S3 defaults: region=%q prefix=%q", cfg.AWSRegion, cfg.ExportPrefix)
	}
}

func TestLoadConfig_ReadsRateLimitEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("RATE_LIMIT_CLEANUP_INTERVAL", "5m")

	cfg, err := LoadConfig(Flags{NoS3: true})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := ratelimit.Config{RPS: 2.5, Burst: 7, CleanupInterval: 5 * time.Minute}
	if cfg.RateLimitConfig != want {
		t.Fatalf("RateLimitConfig = %+v, want %+v", cfg.RateLimitConfig, want)
	}
}

func TestPrintStartupSummary_RedactsKey(t *testing.T) {
	cfg := validTestConfig()
	var buf bytes.Buffer
	cfg.PrintStartupSummary(&buf)

	out := buf.String()
	if strings.Contains(out, cfg.DatabaseKey) {
		t.Fatalf("summary leaked the database key:\n%s", out)
	}
	if !strings.Contains(out, "[REDACTED]") || !strings.Contains(out, "s3://linknotes/exports") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
}

func TestMustLoadConfig_PanicsOnInvalid(t *testing.T) {
	t.Setenv("DATABASE_KEY", "short")
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if !strings.Contains(r.(string), "DATABASE_KEY") {
			t.Fatalf("panic message does not name the bad field: %v", r)
		}
	}()
	MustLoadConfig(Flags{NoS3: true})
}

func TestHelperParsers_DefaultOnBadInput(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "not-an-int")
	t.Setenv("CFG_TEST_FLOAT", "not-a-float")
	t.Setenv("CFG_TEST_DUR", "not-a-duration")
	if got := parseIntOrDefault("CFG_TEST_INT", 7); got != 7 {
		t.Fatalf("parseIntOrDefault fallback mismatch: got=%d want=7", got)
	}
	if got := parseFloat64OrDefault("CFG_TEST_FLOAT", 3.5); got != 3.5 {
		t.Fatalf("parseFloat64OrDefault fallback mismatch: got=%v want=3.5", got)
	}
	if got := parseDurationOrDefault("CFG_TEST_DUR", 2*time.Minute); got != 2*time.Minute {
		t.Fatalf("parseDurationOrDefault fallback mismatch: got=%v want=%v", got, 2*time.Minute)
	}
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	key := "CFG_TEST_STR_" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Setenv(key, "   value   "); err != nil {
		t.Fatalf("Setenv failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	if got := getEnvOrDefault(key, "fallback"); got != "value" {
		t.Fatalf("getEnvOrDefault trim mismatch: got=%q want=%q", got, "value")
	}
}
