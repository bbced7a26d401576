package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Duration is a time.Duration that reads "30m" style strings from JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		d.Duration = parsed
	case float64:
		d.Duration = time.Duration(v) * time.Second
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type PasswordPolicy struct {
	MinLength      int  `json:"min_length"`
	RequireUpper   bool `json:"require_upper"`
	RequireDigit   bool `json:"require_digit"`
	RequireSpecial bool `json:"require_special"`
}

type Config struct {
	Env    string `json:"env"`
	Server struct {
		Host          string `json:"host"`
		Port          int    `json:"port"`
		Subpath       string `json:"subpath"`
		SessionSecret string `json:"session_secret"`
	} `json:"server"`
	Database struct {
		Driver       string   `json:"driver"`
		DSN          string   `json:"dsn"`
		MaxOpenConns int      `json:"max_open_conns"`
		MaxIdleConns int      `json:"max_idle_conns"`
		ConnMaxIdle  Duration `json:"conn_max_idle"`
		LogQueries   bool     `json:"log_queries"`
	} `json:"database"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	Session struct {
		CookieName   string   `json:"cookie_name"`
		SecureCookie bool     `json:"secure_cookie"`
		TTL          Duration `json:"ttl"`
		IdleTimeout  Duration `json:"idle_timeout"`
	} `json:"session"`
	Auth struct {
		HashIterations        int            `json:"hash_iterations"`
		UsernameCaseSensitive *bool          `json:"username_case_sensitive"`
		LoginMaxAttempts      int            `json:"login_max_attempts"`
		LoginWindow           Duration       `json:"login_window"`
		PasswordPolicy        PasswordPolicy `json:"password_policy"`
	} `json:"auth"`
	Log struct {
		Level  string `json:"level"`
		Format string `json:"format"`
	} `json:"log"`
	Metrics struct {
		Enabled bool `json:"enabled"`
	} `json:"metrics"`
}

// CaseSensitiveUsernames reports the configured username matching rule.
// Unset means case-sensitive.
func (c *Config) CaseSensitiveUsernames() bool {
	return c.Auth.UsernameCaseSensitive == nil || *c.Auth.UsernameCaseSensitive
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Load reads the JSON config at path, applies defaults and environment
// overrides, and validates the result. A missing .env file is not an error.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}
	_ = godotenv.Load()
	c.ApplyDefaults()
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns a config with every default applied and no secret set.
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	c.Server.Subpath = strings.TrimRight(c.Server.Subpath, "/")
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "assets.db"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.ConnMaxIdle.Duration == 0 {
		c.Database.ConnMaxIdle.Duration = 5 * time.Minute
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "asset_session"
	}
	if c.Session.TTL.Duration == 0 {
		c.Session.TTL.Duration = 24 * time.Hour
	}
	if c.Auth.HashIterations == 0 {
		c.Auth.HashIterations = 600000
	}
	if c.Auth.LoginMaxAttempts == 0 {
		c.Auth.LoginMaxAttempts = 5
	}
	if c.Auth.LoginWindow.Duration == 0 {
		c.Auth.LoginWindow.Duration = 15 * time.Minute
	}
	if c.Auth.PasswordPolicy == (PasswordPolicy{}) {
		c.Auth.PasswordPolicy = PasswordPolicy{
			MinLength:      8,
			RequireUpper:   true,
			RequireDigit:   true,
			RequireSpecial: true,
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// applyEnv lets deployments keep secrets and connection strings out of the
// JSON file.
func (c *Config) applyEnv() error {
	if v := envValue("ASSET_SESSION_SECRET"); v != "" {
		c.Server.SessionSecret = v
	}
	if v := envValue("ASSET_DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := envValue("ASSET_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := envValue("ASSET_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := envValue("ASSET_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ASSET_HTTP_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func (c *Config) Validate() error {
	if c.Server.SessionSecret == "" {
		return errors.New("session_secret must be set in config")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn must be set")
	}
	if c.Session.TTL.Duration <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.Session.IdleTimeout.Duration < 0 {
		return errors.New("session idle_timeout cannot be negative")
	}
	if c.Auth.HashIterations < 1000 {
		return fmt.Errorf("hash_iterations %d is too low", c.Auth.HashIterations)
	}
	if c.Auth.PasswordPolicy.MinLength < 1 {
		return errors.New("password_policy.min_length must be at least 1")
	}
	return nil
}
