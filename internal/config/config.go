package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"60s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"300s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`

	// OpenID Connect / Azure AD
	OIDCConfigURL string `env:"OIDC_CONFIG_URL,required"`
	OIDCAudience  string `env:"OIDC_AUDIENCE,required"`
	OIDCIssuer    string `env:"OIDC_ISSUER,required"`
	OIDCClientID  string `env:"OIDC_CLIENT_ID"`
	OIDCTenantID  string `env:"OIDC_TENANT_ID"`

	// ElevenLabs speech-to-text. The timeout covers uploading the whole
	// recording, so it is much longer than a typical API call.
	ElevenLabsAPIKey  string        `env:"ELEVENLABS_API_KEY,required"`
	ElevenLabsModelID string        `env:"ELEVENLABS_MODEL_ID" envDefault:"scribe_v1"`
	TranscribeTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"120s"`

	// Anthropic report generation. GenerateTimeout bounds each individual
	// model call; the ladder makes at most three.
	AnthropicAPIKey    string        `env:"ANTHROPIC_API_KEY,required"`
	AnthropicModel     string        `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-20250514"`
	AnthropicMaxTokens int64         `env:"ANTHROPIC_MAX_TOKENS" envDefault:"4096"`
	GenerateTimeout    time.Duration `env:"GENERATE_TIMEOUT" envDefault:"60s"`

	MaxUploadMB int64 `env:"MAX_UPLOAD_MB" envDefault:"25"`

	// Recording archive. Disabled unless a local directory or S3 bucket is
	// configured.
	Archive ArchiveConfig `envPrefix:"ARCHIVE_"`
}

// ArchiveConfig controls retention of uploaded recordings. Local-only,
// S3-only, and tiered (local primary + S3 backup) modes are supported.
type ArchiveConfig struct {
	Dir       string        `env:"DIR"`
	Retention time.Duration `env:"RETENTION" envDefault:"720h"`
	MaxGB     int           `env:"MAX_GB"`

	S3Bucket        string        `env:"S3_BUCKET"`
	S3Region        string        `env:"S3_REGION" envDefault:"us-east-1"`
	S3AccessKey     string        `env:"S3_ACCESS_KEY"`
	S3SecretKey     string        `env:"S3_SECRET_KEY"`
	S3Endpoint      string        `env:"S3_ENDPOINT"`
	S3Prefix        string        `env:"S3_PREFIX"`
	S3PresignExpiry time.Duration `env:"S3_PRESIGN_EXPIRY" envDefault:"1h"`
}

// Enabled reports whether any archive backend is configured.
func (c ArchiveConfig) Enabled() bool {
	return c.Dir != "" || c.S3Bucket != ""
}

// S3Enabled reports whether the S3 backend is configured.
func (c ArchiveConfig) S3Enabled() bool {
	return c.S3Bucket != ""
}

// MaxUploadBytes is the upload size ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}

	return cfg, nil
}
