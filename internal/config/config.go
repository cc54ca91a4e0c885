// Package config loads runtime settings from the environment and an optional
// plans file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/aisaas/backend/internal/backoff"
)

// Config is the full runtime configuration of the server.
type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Database    DatabaseConfig
	Gemini      GeminiConfig
	HuggingFace HuggingFaceConfig
	Media       MediaConfig
	Clerk       ClerkConfig
	Cache       CacheConfig
	PlansFile   string `env:"PLANS_FILE,default=config/plans.yaml"`
	Plans       Plans
}

type ServerConfig struct {
	Host               string        `env:"HOST,default=0.0.0.0"`
	Port               int           `env:"PORT,default=8000"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	RateLimitRPS       int           `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST,default=10"`
	ReadTimeout        time.Duration `env:"HTTP_READ_TIMEOUT,default=30s"`
	WriteTimeout       time.Duration `env:"HTTP_WRITE_TIMEOUT,default=240s"`
	MaintenanceSpec    string        `env:"MAINTENANCE_SCHEDULE,default=@every 10m"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AllowedOrigins splits the comma separated origin list.
func (s ServerConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(s.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info"`
	Format string `env:"LOG_FORMAT,default=json"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DATABASE_DRIVER,default=postgres"`
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE,default=true"`
}

type GeminiConfig struct {
	APIKey      string        `env:"GEMINI_API_KEY"`
	BaseURL     string        `env:"GEMINI_BASE_URL,default=https://generativelanguage.googleapis.com/v1beta"`
	Model       string        `env:"GEMINI_MODEL,default=gemini-1.5-flash-latest"`
	ReviewModel string        `env:"GEMINI_REVIEW_MODEL,default=gemini-2.0-flash"`
	Timeout     time.Duration `env:"GEMINI_TIMEOUT,default=60s"`
}

// RetryBudget is the longest a generation may take: every attempt timing
// out plus the linear waits between them.
func (g GeminiConfig) RetryBudget() time.Duration {
	budget := time.Duration(backoff.DefaultMaxAttempts) * g.Timeout
	for n := 1; n < backoff.DefaultMaxAttempts; n++ {
		budget += time.Duration(n) * backoff.DefaultStep
	}
	return budget
}

type HuggingFaceConfig struct {
	APIURL  string        `env:"HUGGINGFACE_API_URL"`
	APIKey  string        `env:"HUGGINGFACE_API_KEY"`
	Timeout time.Duration `env:"HUGGINGFACE_TIMEOUT,default=90s"`
}

type MediaConfig struct {
	Backend string `env:"MEDIA_BACKEND,default=cloudinary"`

	CloudinaryCloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `env:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `env:"CLOUDINARY_API_SECRET"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET,default=creations"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL,default=true"`
	MinioPublicURL string `env:"MINIO_PUBLIC_URL"`
}

type ClerkConfig struct {
	SecretKey         string `env:"CLERK_SECRET_KEY"`
	APIURL            string `env:"CLERK_API_URL,default=https://api.clerk.com/v1"`
	JWTKey            string `env:"CLERK_JWT_KEY"`
	AuthorizedParties string `env:"CLERK_AUTHORIZED_PARTIES"`
}

// Parties splits the comma separated authorized party list.
func (c ClerkConfig) Parties() []string {
	var out []string
	for _, p := range strings.Split(c.AuthorizedParties, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type CacheConfig struct {
	RedisURL     string        `env:"REDIS_URL"`
	PublishedTTL time.Duration `env:"PUBLISHED_CACHE_TTL,default=30s"`
}

// Load reads an optional .env file, decodes the environment and applies the
// plans file if one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv decodes the current environment without touching .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	plans, err := LoadPlansFromPath(cfg.PlansFile)
	if err != nil {
		return nil, err
	}
	cfg.Plans = plans

	return &cfg, nil
}

// Validate reports every missing setting the server needs to run.
func (c *Config) Validate() error {
	var problems []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" is required")
		}
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER %q is not supported", c.Database.Driver))
	}
	require(c.Database.URL, "DATABASE_URL")
	require(c.Gemini.APIKey, "GEMINI_API_KEY")
	require(c.HuggingFace.APIURL, "HUGGINGFACE_API_URL")
	require(c.HuggingFace.APIKey, "HUGGINGFACE_API_KEY")
	require(c.Clerk.SecretKey, "CLERK_SECRET_KEY")
	require(c.Clerk.JWTKey, "CLERK_JWT_KEY")
	if wt := c.Server.WriteTimeout; wt > 0 && wt <= c.Gemini.RetryBudget() {
		problems = append(problems, fmt.Sprintf("HTTP_WRITE_TIMEOUT %s must exceed the Gemini retry budget %s", wt, c.Gemini.RetryBudget()))
	}

	switch c.Media.Backend {
	case "cloudinary":
		require(c.Media.CloudinaryCloudName, "CLOUDINARY_CLOUD_NAME")
		require(c.Media.CloudinaryAPIKey, "CLOUDINARY_API_KEY")
		require(c.Media.CloudinaryAPISecret, "CLOUDINARY_API_SECRET")
	case "minio":
		require(c.Media.MinioEndpoint, "MINIO_ENDPOINT")
		require(c.Media.MinioAccessKey, "MINIO_ACCESS_KEY")
		require(c.Media.MinioSecretKey, "MINIO_SECRET_KEY")
	default:
		problems = append(problems, fmt.Sprintf("MEDIA_BACKEND %q is not supported", c.Media.Backend))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
