// Package config loads and validates the start-page YAML configuration.
// It applies defaults so the server can rely on fully populated values.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DBConfig holds the auth event database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Bind string    `yaml:"bind"`
	Port int       `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// AuthConfig holds password gate settings.
type AuthConfig struct {
	MaxAttempts       int `yaml:"max_attempts"`
	LockoutSeconds    int `yaml:"lockout_seconds"`
	MinPasswordLength int `yaml:"min_password_length"`
	// RememberDays is the lifetime of the client remember token.
	// Deployments have shipped with both 7 and 30 days, so this is a
	// named knob rather than a constant.
	RememberDays int `yaml:"remember_days"`
}

// SessionConfig holds session cookie settings.
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	MaxAgeDays int    `yaml:"max_age_days"`
	// SecretEnv names an environment variable that supplies the cookie
	// signing secret. When the variable is unset the secret is read from
	// data_dir/.session_secret, generated on first run.
	SecretEnv string `yaml:"secret_env"`
}

// Config mirrors the startpage.yaml schema.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	DataDir string        `yaml:"data_dir"`
	DB      DBConfig      `yaml:"db"`
	HTTP    HTTPConfig    `yaml:"http"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
}

// Load reads a YAML config file, applies defaults, and validates it.
// It returns a fully populated Config or a descriptive error.
func Load(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, errors.New("config path is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	ApplyDefaults(&c)
	if err := validate(&c); err != nil {
		return Config{}, err
	}
	// Make paths stable for the server.
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.DB.Path = strings.TrimSpace(c.DB.Path)
	c.HTTP.TLS.CertPath = strings.TrimSpace(c.HTTP.TLS.CertPath)
	c.HTTP.TLS.KeyPath = strings.TrimSpace(c.HTTP.TLS.KeyPath)
	return c, nil
}

// Default returns a fully populated Config without reading any file.
func Default() Config {
	var c Config
	ApplyDefaults(&c)
	return c
}

// ApplyDefaults populates zero-values with sane defaults.
func ApplyDefaults(c *Config) {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.DB.Path == "" {
		c.DB.Path = "./data/startpage.db"
	}
	if c.HTTP.Bind == "" {
		c.HTTP.Bind = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 4416
	}
	if c.Auth.MaxAttempts == 0 {
		c.Auth.MaxAttempts = 5
	}
	if c.Auth.LockoutSeconds == 0 {
		c.Auth.LockoutSeconds = 300
	}
	if c.Auth.MinPasswordLength == 0 {
		c.Auth.MinPasswordLength = 4
	}
	if c.Auth.RememberDays == 0 {
		c.Auth.RememberDays = 7
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "startpage_session"
	}
	if c.Session.MaxAgeDays == 0 {
		c.Session.MaxAgeDays = 7
	}
	if c.Session.SecretEnv == "" {
		c.Session.SecretEnv = "STARTPAGE_SESSION_SECRET"
	}
}

// validate performs basic sanity checks for required fields and ranges.
// It does not mutate the config.
func validate(c *Config) error {
	if strings.TrimSpace(c.Log.Level) == "" {
		return errors.New("log.level is required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.DB.Path == "" {
		return errors.New("db.path is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port is invalid")
	}
	if c.Auth.MaxAttempts < 1 || c.Auth.MaxAttempts > 100 {
		return errors.New("auth.max_attempts is invalid")
	}
	if c.Auth.LockoutSeconds < 1 {
		return errors.New("auth.lockout_seconds is invalid")
	}
	if c.Auth.MinPasswordLength < 1 {
		return errors.New("auth.min_password_length is invalid")
	}
	if c.Auth.RememberDays < 1 || c.Auth.RememberDays > 365 {
		return errors.New("auth.remember_days is invalid")
	}
	if c.Session.MaxAgeDays < 1 || c.Session.MaxAgeDays > 365 {
		return errors.New("session.max_age_days is invalid")
	}
	// If either TLS path is set, require both.
	cp := strings.TrimSpace(c.HTTP.TLS.CertPath)
	kp := strings.TrimSpace(c.HTTP.TLS.KeyPath)
	if (cp == "") != (kp == "") {
		return errors.New("http.tls.cert_path and http.tls.key_path must be set together")
	}
	// Basic sanity for paths.
	_ = filepath.Clean(c.DataDir)
	_ = filepath.Clean(c.DB.Path)
	return nil
}
