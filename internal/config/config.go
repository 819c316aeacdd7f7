// Package config defines the service configuration and how it is loaded.
//
// Sources, lowest precedence first:
//  1. defaults (New)
//  2. a YAML file named by ECO_CONFIG
//  3. a .env file in the working directory, if present
//  4. ECO_* environment variables (ECO_DB_PATH -> db_path)
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)

type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// DBPath is the SQLite file holding profiles, entries and votes.
	DBPath string `koanf:"db_path"`

	// UploadDir is where the disk object store writes entry images.
	UploadDir string `koanf:"upload_dir"`
	// PublicBaseURL prefixes every object URL handed to clients.
	PublicBaseURL string `koanf:"public_base_url"`
	// MaxUploadBytes caps an entry image.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// JWTSecret signs and verifies session tokens. Empty disables auth.
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	GitHubClientID     string `koanf:"github_client_id"`
	GitHubClientSecret string `koanf:"github_client_secret"`
	GitHubCallbackURL  string `koanf:"github_callback_url"`

	// LeaderboardDSN points at the external points database. Empty serves an
	// empty leaderboard.
	LeaderboardDSN      string   `koanf:"leaderboard_dsn"`
	LeaderboardLimit    int      `koanf:"leaderboard_limit"`
	LeaderboardDenylist []string `koanf:"leaderboard_denylist"`

	// FeedPageSize and EcosystemPageSize are the default page sizes of the
	// community and ecosystem feeds.
	FeedPageSize      int `koanf:"feed_page_size"`
	EcosystemPageSize int `koanf:"ecosystem_page_size"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		Addr:                ":8080",
		LogLevel:            "info",
		LogFormat:           "text",
		DBPath:              "data/ecochallenge.db",
		UploadDir:           "data/uploads",
		PublicBaseURL:       "http://localhost:8080",
		MaxUploadBytes:      5 << 20,
		JWTIssuer:           "ecochallenge",
		LeaderboardLimit:    15,
		LeaderboardDenylist: []string{"Admin", "Test", "b"},
		FeedPageSize:        10,
		EcosystemPageSize:   6,
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log_level %q is not one of debug, info, warn, error", ErrInvalidConfig, c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q is not text or json", ErrInvalidConfig, c.LogFormat)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	if c.UploadDir == "" {
		return fmt.Errorf("%w: upload_dir must not be empty", ErrInvalidConfig)
	}
	if u, err := url.Parse(c.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: public_base_url %q must be an absolute URL", ErrInvalidConfig, c.PublicBaseURL)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: max_upload_bytes must be positive", ErrInvalidConfig)
	}
	if c.LeaderboardLimit < 1 || c.LeaderboardLimit > 100 {
		return fmt.Errorf("%w: leaderboard_limit must be between 1 and 100", ErrInvalidConfig)
	}
	if c.FeedPageSize < 1 || c.FeedPageSize > 50 || c.EcosystemPageSize < 1 || c.EcosystemPageSize > 50 {
		return fmt.Errorf("%w: page sizes must be between 1 and 50", ErrInvalidConfig)
	}
	if c.GitHubClientID != "" && c.JWTSecret == "" {
		return fmt.Errorf("%w: github login needs jwt_secret to issue sessions", ErrInvalidConfig)
	}
	return nil
}

// AuthEnabled reports whether tokens can be verified.
func (c *Config) AuthEnabled() bool { return c.JWTSecret != "" }

// GitHubEnabled reports whether the GitHub login routes should be mounted.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
