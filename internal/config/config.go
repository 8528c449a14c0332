// Package config loads CodeCanvas settings from the environment.
//
// Values come from environment variables, optionally seeded from a .env file
// in the working directory. Real environment variables always win over the
// file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Backend names accepted by BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendRemote = "remote"
)

// MinJWTSecretLength matches what auth.NewTokenService accepts.
const MinJWTSecretLength = 16

// Config is the complete server configuration.
type Config struct {
	Port      int    `env:"PORT" envDefault:"8080"`
	DBPath    string `env:"DB_PATH" envDefault:"data/codecanvas.db"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// AppID is the application id embedded in the prompt-password and
	// reset-password links.
	AppID string `env:"APP_ID" envDefault:"codecanvas"`

	Auth    AuthConfig
	GitHub  GitHubConfig `envPrefix:"GITHUB_"`
	Backend BackendConfig
	Runner  RunnerConfig `envPrefix:"RUNNER_"`
	Thumbs  ThumbnailConfig

	OTELEndpoint string `env:"OTEL_ENDPOINT"`

	// TrustProxy makes the server take the client address from
	// X-Forwarded-For / X-Real-IP. Only set it behind a reverse proxy that
	// overwrites those headers.
	TrustProxy bool `env:"TRUST_PROXY"`
}

// AuthConfig configures sessions.
type AuthConfig struct {
	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"24h"`
	CookieSecure bool          `env:"COOKIE_SECURE"`
}

// GitHubConfig configures GitHub sign-in. It is enabled when both the client
// id and secret are set.
type GitHubConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	CallbackURL  string `env:"CALLBACK_URL"`
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

// BackendConfig selects where pen records live.
type BackendConfig struct {
	Kind      string        `env:"BACKEND" envDefault:"sqlite"`
	BaseURL   string        `env:"APPER_BASE_URL"`
	ProjectID string        `env:"APPER_PROJECT_ID"`
	PublicKey string        `env:"APPER_PUBLIC_KEY"`
	Timeout   time.Duration `env:"APPER_TIMEOUT" envDefault:"15s"`
}

// RunnerConfig configures the JavaScript sandbox behind /api/run.
type RunnerConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Image    string        `env:"IMAGE" envDefault:"node:22-alpine"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"5s"`
	PoolSize int           `env:"POOL_SIZE" envDefault:"3"`
	// Rate is the sustained number of runs per second per client.
	Rate  float64 `env:"RATE" envDefault:"0.5"`
	Burst int     `env:"BURST" envDefault:"5"`
}

// ThumbnailConfig configures headless-browser thumbnails.
type ThumbnailConfig struct {
	Enabled   bool   `env:"THUMBNAILS_ENABLED"`
	Dir       string `env:"THUMBNAIL_DIR" envDefault:"data/thumbnails"`
	ChromeBin string `env:"CHROME_BIN"`
}

// Load reads the optional .env file at path (empty means ".env") and then
// parses the environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	}
	return Parse()
}

// Parse builds a Config from the current environment and validates it.
func Parse() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Backend.Kind = strings.ToLower(strings.TrimSpace(c.Backend.Kind))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.GitHub.CallbackURL == "" {
		c.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/callback", c.Port)
	}
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.AppID == "" {
		errs = append(errs, errors.New("APP_ID must not be empty"))
	}
	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if (c.GitHub.ClientID == "") != (c.GitHub.ClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}

	switch c.Backend.Kind {
	case BackendSQLite:
	case BackendRemote:
		if c.Backend.BaseURL == "" || c.Backend.ProjectID == "" {
			errs = append(errs, errors.New("BACKEND=remote requires APPER_BASE_URL and APPER_PROJECT_ID"))
		}
	default:
		errs = append(errs, fmt.Errorf("BACKEND must be %s or %s, got %q", BackendSQLite, BackendRemote, c.Backend.Kind))
	}

	if c.Runner.Enabled {
		if c.Runner.Timeout <= 0 || c.Runner.PoolSize <= 0 {
			errs = append(errs, errors.New("RUNNER_TIMEOUT and RUNNER_POOL_SIZE must be positive"))
		}
		if c.Runner.Rate <= 0 || c.Runner.Burst <= 0 {
			errs = append(errs, errors.New("RUNNER_RATE and RUNNER_BURST must be positive"))
		}
	}
	if c.Thumbs.Enabled && c.Thumbs.Dir == "" {
		errs = append(errs, errors.New("THUMBNAILS_ENABLED requires THUMBNAIL_DIR"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Level parses LOG_LEVEL.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// NewLogger builds the process logger described by LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := c.Level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
