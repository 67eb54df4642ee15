// Package config loads process-wide settings from the environment.
//
// Settings are read exactly once at startup. Nothing downstream calls
// os.Getenv: values are threaded into constructors (server.Config,
// service.OTPOptions) so tests can build any combination side by side.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               int
	Env                string
	DBPath             string
	JWTSecret          string
	JWTExpiry          time.Duration
	BypassOTP          bool
	ResendAPIKey       string
	ResendBaseURL      string
	OTPFromEmail       string
	AllowOrigins       []string
	RequestTimeout     time.Duration
	OTPCleanupInterval time.Duration
	LogLevel           string
	LogFormat          string
}

// IsDevelopment reports whether the app runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Load reads an optional .env file and then the environment.
//
// A missing .env is not an error; a malformed value is. BYPASS_OTP defaults to
// on in development and off everywhere else, but an explicit value always wins.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv.Load never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	cfg := &Config{
		Env:           getenv("APP_ENV", "development"),
		DBPath:        getenv("DB_PATH", "data/convoy.db"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ResendAPIKey:  os.Getenv("RESEND_API_KEY"),
		ResendBaseURL: getenv("RESEND_BASE_URL", "https://api.resend.com"),
		OTPFromEmail:  getenv("OTP_FROM_EMAIL", "Convoy <noreply@convoy.app>"),
		AllowOrigins:  splitList(getenv("ALLOW_ORIGINS", "*")),
		LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "text")),
	}

	var err error
	if cfg.Port, err = atoi("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.JWTExpiry, err = duration("JWT_EXPIRY", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = duration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.OTPCleanupInterval, err = duration("OTP_CLEANUP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.BypassOTP, err = boolean("BYPASS_OTP", cfg.IsDevelopment()); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be set and at least 16 characters")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("config: JWT_EXPIRY must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: REQUEST_TIMEOUT must be positive")
	}
	if c.OTPCleanupInterval <= 0 {
		return errors.New("config: OTP_CLEANUP_INTERVAL must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoi(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q: %w", key, v, err)
	}
	return i, nil
}

func boolean(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: invalid %s value %q: %w", key, v, err)
	}
	return b, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s value %q: %w", key, v, err)
	}
	return d, nil
}

// ParseDuration accepts Go durations ("15s", "720h") plus a day suffix
// ("30d"), which is how token lifetimes are usually written.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", days)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
