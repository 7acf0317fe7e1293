package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/time/rate"

	"github.com/starford/notegraph/internal/layout"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Graph  GraphConfig       `yaml:"graph"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Graph.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level      `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	return c.RateLimit.Validate()
}

// RateLimitConfig throttles graph mutations. RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RPS, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.When(c.RPS > 0, validation.Required, validation.Min(1))),
	)
}

// Limiter returns the configured limiter, or nil when limiting is off.
func (c *RateLimitConfig) Limiter() *rate.Limiter {
	if c.RPS <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RPS), c.Burst)
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// GraphConfig holds defaults for the reference graph view.
type GraphConfig struct {
	Width         float64       `yaml:"width"`
	Height        float64       `yaml:"height"`
	DefaultLayout string        `yaml:"default_layout"`
	LiveTitles    bool          `yaml:"live_titles"`
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the graph configuration.
func (c *GraphConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Width, validation.Required, validation.Min(1.0)),
		validation.Field(&c.Height, validation.Required, validation.Min(1.0)),
		validation.Field(&c.DefaultLayout, validation.By(func(any) error {
			_, err := layout.ParseType(c.DefaultLayout)
			return err
		})),
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	)
}

// Viewport returns the configured canvas size.
func (c *GraphConfig) Viewport() layout.Viewport {
	return layout.Viewport{Width: c.Width, Height: c.Height}
}

// Layout returns the configured default layout.
func (c *GraphConfig) Layout() layout.Type {
	t, err := layout.ParseType(c.DefaultLayout)
	if err != nil {
		return layout.Default
	}
	return t
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			RateLimit: RateLimitConfig{
				RPS:   20,
				Burst: 40,
			},
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./notegraph.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Graph: GraphConfig{
			Width:         layout.DefaultViewport.Width,
			Height:        layout.DefaultViewport.Height,
			DefaultLayout: string(layout.Default),
			EventThrottle: 2 * time.Second,
		},
	}
}
