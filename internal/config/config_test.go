package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFile points Load at a path that does not exist so a developer's local
// .env never leaks into test results.
func noEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"15s", 15 * time.Second, false},
		{"2h30m", 2*time.Hour + 30*time.Minute, false},
		{"xd", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("APP_ENV", "")
	t.Setenv("BYPASS_OTP", "")
	t.Setenv("JWT_EXPIRY", "")
	t.Setenv("PORT", "")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 30*24*time.Hour, cfg.JWTExpiry)
	assert.True(t, cfg.BypassOTP, "development defaults to bypass mode")
	assert.Equal(t, []string{"*"}, cfg.AllowOrigins)
}

func TestLoad_ProductionDisablesBypass(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("APP_ENV", "production")
	t.Setenv("BYPASS_OTP", "")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.False(t, cfg.BypassOTP)
}

func TestLoad_ExplicitBypassWins(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("APP_ENV", "development")
	t.Setenv("BYPASS_OTP", "false")

	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.False(t, cfg.BypassOTP)
}

func TestLoad_RejectsShortSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")

	_, err := Load(noEnvFile(t))
	assert.Error(t, err)
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	t.Setenv("PORT", "eighty")

	_, err := Load(noEnvFile(t))
	assert.Error(t, err)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ALLOW_ORIGINS=https://a.app, https://b.app\n"), 0o600))

	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")
	// t.Setenv registers a restore, then we clear it so godotenv may fill it in.
	t.Setenv("ALLOW_ORIGINS", "")
	os.Unsetenv("ALLOW_ORIGINS")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.app", "https://b.app"}, cfg.AllowOrigins)
}
