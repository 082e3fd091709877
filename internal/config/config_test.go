package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pstu-cpl/cpl/internal/config"
)

const (
	testSupabaseURL = "https://cpl.supabase.co"
	testAnonKey     = "anon-key"
	testSecret      = "0123456789abcdef0123456789abcdef"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "VERSION", "REMOTE_BACKEND", "SUPABASE_URL", "SUPABASE_ANON_KEY",
		"AVATAR_BUCKET", "AVATAR_BUCKET_PUBLIC", "DATABASE_URL", "SESSION_BACKEND",
		"SESSION_SQLITE_PATH", "REDIS_ADDR", "SESSION_IDLE_TTL", "SESSION_COOKIE_SECURE", "SESSION_SECRET", "CORS_ALLOWED_ORIGINS",
	} {
		os.Unsetenv(key)
	}
}

func setRemote(t *testing.T) {
	t.Helper()
	t.Setenv("SUPABASE_URL", testSupabaseURL)
	t.Setenv("SUPABASE_ANON_KEY", testAnonKey)
	t.Setenv("SESSION_SECRET", testSecret)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)
	setRemote(t)

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "dev", cfg.Version)
	assert.Equal(t, config.BackendSupabase, cfg.RemoteBackend)
	assert.Equal(t, testSupabaseURL, cfg.SupabaseURL)
	assert.Equal(t, "avatars", cfg.AvatarBucket)
	assert.True(t, cfg.AvatarBucketPublic)
	assert.Equal(t, config.SessionSQLite, cfg.SessionBackend)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionRetention)
	assert.False(t, cfg.SessionCookieSecure)
	assert.Equal(t, []string{"http://localhost:*"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, testSecret, cfg.SessionSecret)
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		assertFn func(t *testing.T, cfg *config.Config)
	}{
		{
			name:    "custom port",
			envVars: map[string]string{"PORT": "3000"},
			assertFn: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 3000, cfg.Port)
			},
		},
		{
			name:    "private avatar bucket",
			envVars: map[string]string{"AVATAR_BUCKET": "player-photos", "AVATAR_BUCKET_PUBLIC": "false"},
			assertFn: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, "player-photos", cfg.AvatarBucket)
				assert.False(t, cfg.AvatarBucketPublic)
			},
		},
		{
			name:    "redis sessions",
			envVars: map[string]string{"SESSION_BACKEND": "redis", "REDIS_ADDR": "cache:6380"},
			assertFn: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, config.SessionRedis, cfg.SessionBackend)
				assert.Equal(t, "cache:6380", cfg.RedisAddr)
			},
		},
		{
			name:    "idle ttl",
			envVars: map[string]string{"SESSION_IDLE_TTL": "5m"},
			assertFn: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 5*time.Minute, cfg.SessionIdleTTL)
			},
		},
		{
			name:    "cors origins",
			envVars: map[string]string{"CORS_ALLOWED_ORIGINS": "https://cpl.pstu.ac.bd,https://admin.cpl.pstu.ac.bd"},
			assertFn: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, []string{"https://cpl.pstu.ac.bd", "https://admin.cpl.pstu.ac.bd"}, cfg.CORSAllowedOrigins)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			setRemote(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := config.Load()

			require.NoError(t, err)
			tt.assertFn(t, cfg)
		})
	}
}

func TestLoad_SupabaseWithoutURL(t *testing.T) {
	clearEnvVars(t)

	cfg, err := config.Load()

	assert.ErrorIs(t, err, config.ErrRemoteNotConfigured)
	assert.Nil(t, cfg)
}

func TestLoad_MemoryBackendNeedsNoRemote(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("REMOTE_BACKEND", "memory")
	t.Setenv("SESSION_SECRET", testSecret)

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, config.BackendMemory, cfg.RemoteBackend)
}

func TestLoad_InvalidSessionBackend(t *testing.T) {
	clearEnvVars(t)
	setRemote(t)
	t.Setenv("SESSION_BACKEND", "etcd")

	cfg, err := config.Load()

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnvVars(t)
	setRemote(t)
	t.Setenv("PORT", "not-a-number")

	cfg, err := config.Load()

	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_RequiresSessionSecret(t *testing.T) {
	clearEnvVars(t)
	setRemote(t)
	t.Setenv("SESSION_SECRET", "  ")

	cfg, err := config.Load()

	assert.ErrorIs(t, err, config.ErrSessionSecretRequired)
	assert.Nil(t, cfg)
}

func TestLoadClient_IgnoresServerSettings(t *testing.T) {
	clearEnvVars(t)
	setRemote(t)
	os.Unsetenv("SESSION_SECRET")
	t.Setenv("SESSION_BACKEND", "etcd")

	cfg, err := config.LoadClient()

	require.NoError(t, err)
	assert.Equal(t, testSupabaseURL, cfg.SupabaseURL)
}

func TestLoadClient_SupabaseWithoutURL(t *testing.T) {
	clearEnvVars(t)

	cfg, err := config.LoadClient()

	assert.ErrorIs(t, err, config.ErrRemoteNotConfigured)
	assert.Nil(t, cfg)
}
