// Package config loads server settings: built-in defaults, then an optional
// YAML file, then environment variables. Later sources win.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	GitHub   GitHubConfig   `yaml:"github"`
	Email    EmailConfig    `yaml:"email"`
	Family   FamilyConfig   `yaml:"family"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path (sqlite) or connection URL (postgres).
	DSN string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// GitHubConfig enables "Sign in with GitHub" when ClientID is set.
type GitHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CallbackURL  string `yaml:"callback_url"`
}

// EmailConfig switches invite e-mails to Amazon SES when FromEmail is set.
type EmailConfig struct {
	SESRegion string `yaml:"ses_region"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	AppURL    string `yaml:"app_url"`
}

type FamilyConfig struct {
	// CodeMaxAttempts bounds each round of join-code generation.
	CodeMaxAttempts int `yaml:"code_max_attempts"`
}

// Default returns a config that runs locally with no file and no env.
// JWTSecret is deliberately empty: Validate forces the operator to set one.
func Default() Config {
	return Config{
		Port:     8080,
		LogLevel: "info",
		Database: DatabaseConfig{Driver: "sqlite", DSN: "data/chores.db"},
		Auth:     AuthConfig{TokenTTL: 7 * 24 * time.Hour, BcryptCost: 12},
		Email:    EmailConfig{SESRegion: "us-east-1", FromName: "Chore Tracker", AppURL: "http://localhost:8080"},
		Family:   FamilyConfig{CodeMaxAttempts: 1000},
	}
}

// Load builds the config. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile decodes strictly: a misspelled key is an error, not a silently
// ignored setting.
func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: opening %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	if err := num("PORT", &c.Port); err != nil {
		return err
	}
	if err := num("CODE_MAX_ATTEMPTS", &c.Family.CodeMaxAttempts); err != nil {
		return err
	}
	if err := num("BCRYPT_COST", &c.Auth.BcryptCost); err != nil {
		return err
	}
	str("LOG_LEVEL", &c.LogLevel)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("GITHUB_CLIENT_ID", &c.GitHub.ClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHub.ClientSecret)
	str("GITHUB_CALLBACK_URL", &c.GitHub.CallbackURL)
	str("SES_REGION", &c.Email.SESRegion)
	str("SES_FROM_EMAIL", &c.Email.FromEmail)
	str("SES_FROM_NAME", &c.Email.FromName)
	str("APP_URL", &c.Email.AppURL)

	if v, ok := lookup("TOKEN_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid TOKEN_TTL %q: %w", v, err)
		}
		c.Auth.TokenTTL = d
	}
	return nil
}

// Validate reports every problem at once so a misconfigured deploy fails
// with the full list.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.Family.CodeMaxAttempts <= 0 {
		errs = append(errs, errors.New("code max attempts must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SQLite reports whether the configured store is a local SQLite file.
func (c *Config) SQLite() bool {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "":
		return true
	}
	return false
}

// ParseLevel maps the log_level setting to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
