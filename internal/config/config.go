package config

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Remote backends.
const (
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

// Session store backends.
const (
	SessionSQLite = "sqlite"
	SessionRedis  = "redis"
	SessionMemory = "memory"
)

// ErrRemoteNotConfigured is returned when the supabase backend is selected
// without a URL or anon key.
var ErrRemoteNotConfigured = errors.New("SUPABASE_URL and SUPABASE_ANON_KEY are required for the supabase backend")

// ErrSessionSecretRequired is returned by Load when SESSION_SECRET is empty.
var ErrSessionSecretRequired = errors.New("SESSION_SECRET is required")

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	RemoteBackend      string `envconfig:"REMOTE_BACKEND" default:"supabase"`
	SupabaseURL        string `envconfig:"SUPABASE_URL" default:""`
	SupabaseAnonKey    string `envconfig:"SUPABASE_ANON_KEY" default:""`
	AvatarBucket       string `envconfig:"AVATAR_BUCKET" default:"avatars"`
	AvatarBucketPublic bool   `envconfig:"AVATAR_BUCKET_PUBLIC" default:"true"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:""`

	SessionBackend       string        `envconfig:"SESSION_BACKEND" default:"sqlite"`
	SessionSQLitePath    string        `envconfig:"SESSION_SQLITE_PATH" default:"cpl-sessions.db"`
	RedisAddr            string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword        string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB              int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret        string        `envconfig:"SESSION_SECRET" default:""`
	SessionCookieSecure  bool          `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
	SessionIdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
	SessionRetention     time.Duration `envconfig:"SESSION_RETENTION" default:"720h"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:*"`

	StatePath string `envconfig:"CPL_STATE_PATH" default:""`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads the configuration used by the command-line client. Only
// the remote service settings are validated.
func LoadClient() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validateRemote(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements envconfig cannot express.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}

	switch c.SessionBackend {
	case SessionSQLite, SessionRedis, SessionMemory:
	default:
		return errors.New("SESSION_BACKEND must be \"sqlite\", \"redis\" or \"memory\"")
	}

	if strings.TrimSpace(c.SessionSecret) == "" {
		return ErrSessionSecretRequired
	}

	return nil
}

func (c *Config) validateRemote() error {
	switch c.RemoteBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseAnonKey == "" {
			return ErrRemoteNotConfigured
		}
	case BackendMemory:
	default:
		return errors.New("REMOTE_BACKEND must be \"supabase\" or \"memory\"")
	}
	return nil
}
