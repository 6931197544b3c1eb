package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Defaults for settings not given in the environment or config file.
const (
	DefaultAPIURL           = "https://oauth.reddit.com"
	DefaultTokenURL         = "https://www.reddit.com/api/v1/access_token"
	DefaultTimeout          = 30 * time.Second
	DefaultRPM              = 60
	DefaultFetchConcurrency = 4
	DefaultLogLevel         = "warn"
	DefaultLogFormat        = "text"
)

// ErrMissingCredentials is returned by Validate when a reddit credential is unset.
var ErrMissingCredentials = errors.New("missing reddit credentials")

// RedditConfig holds the script-app credentials and endpoints.
type RedditConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	APIURL       string `json:"api_url,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
}

// fileConfig is the on-disk shape of config.json.
type fileConfig struct {
	Reddit            RedditConfig `json:"reddit"`
	Timeout           string       `json:"timeout,omitempty"` // duration string
	RequestsPerMinute *int         `json:"requests_per_minute,omitempty"`
	FetchConcurrency  *int         `json:"fetch_concurrency,omitempty"`
	Document          string       `json:"document,omitempty"`
	LogLevel          string       `json:"log_level,omitempty"`
	LogFormat         string       `json:"log_format,omitempty"`
}

// Config is the resolved configuration.
// Priority for every field: REORG_* env > config.json > default.
type Config struct {
	Reddit            RedditConfig
	Timeout           time.Duration
	RequestsPerMinute int
	FetchConcurrency  int
	Document          string
	LogLevel          string
	LogFormat         string

	// Path is the config file that was read, empty if none existed.
	Path string
}

// Dir returns the reorg config directory ($XDG_CONFIG_HOME or its platform
// equivalent). It is not created.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(base, "reorg"), nil
}

// FilePath returns the config file location.
// Priority: REORG_CONFIG env > <config dir>/reorg/config.json.
func FilePath() (string, error) {
	if v := os.Getenv("REORG_CONFIG"); v != "" {
		return v, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultDocumentPath returns <config dir>/reorg.yaml, falling back to
// ./reorg.yaml when no config dir can be determined.
func DefaultDocumentPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return "reorg.yaml"
	}
	return filepath.Join(base, "reorg.yaml")
}

// Load resolves the configuration from the environment and the config file.
// A missing config file is not an error.
func Load() (*Config, error) {
	path, err := FilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path string) (*Config, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		path = ""
	default:
		return nil, err
	}

	cfg := &Config{
		Reddit: RedditConfig{
			ClientID:     str("REORG_CLIENT_ID", fc.Reddit.ClientID, ""),
			ClientSecret: str("REORG_CLIENT_SECRET", fc.Reddit.ClientSecret, ""),
			Username:     str("REORG_USERNAME", fc.Reddit.Username, ""),
			Password:     str("REORG_PASSWORD", fc.Reddit.Password, ""),
			UserAgent:    str("REORG_USER_AGENT", fc.Reddit.UserAgent, ""),
			APIURL:       strings.TrimRight(str("REORG_API_URL", fc.Reddit.APIURL, DefaultAPIURL), "/"),
			TokenURL:     str("REORG_TOKEN_URL", fc.Reddit.TokenURL, DefaultTokenURL),
		},
		Timeout:           duration("REORG_TIMEOUT", fc.Timeout, DefaultTimeout),
		RequestsPerMinute: positiveInt("REORG_RPM", fc.RequestsPerMinute, DefaultRPM),
		FetchConcurrency:  positiveInt("REORG_FETCH_CONCURRENCY", fc.FetchConcurrency, DefaultFetchConcurrency),
		Document:          str("REORG_DOCUMENT", fc.Document, ""),
		LogLevel:          strings.ToLower(str("REORG_LOG_LEVEL", fc.LogLevel, DefaultLogLevel)),
		LogFormat:         strings.ToLower(str("REORG_LOG_FORMAT", fc.LogFormat, DefaultLogFormat)),
		Path:              path,
	}
	if cfg.Document == "" {
		cfg.Document = DefaultDocumentPath()
	}
	return cfg, nil
}

// Validate reports which required credentials are missing.
func (c *Config) Validate() error {
	var missing []string
	for _, f := range []struct{ env, val string }{
		{"REORG_CLIENT_ID", c.Reddit.ClientID},
		{"REORG_CLIENT_SECRET", c.Reddit.ClientSecret},
		{"REORG_USERNAME", c.Reddit.Username},
		{"REORG_PASSWORD", c.Reddit.Password},
	} {
		if f.val == "" {
			missing = append(missing, f.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: set %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// UserAgent returns the configured user agent, or reddit's recommended
// "<app>/<version> by <username>" form.
func (c *Config) UserAgent(version string) string {
	if c.Reddit.UserAgent != "" {
		return c.Reddit.UserAgent
	}
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("reorg/%s by %s", version, c.Reddit.Username)
}

func str(envKey, fileVal, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fileVal != "" {
		return fileVal
	}
	return def
}

// duration parses env then file values; invalid or non-positive values fall
// through to the next source.
func duration(envKey, fileVal string, def time.Duration) time.Duration {
	for _, v := range []string{os.Getenv(envKey), fileVal} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// positiveInt parses env then file values; invalid or non-positive values fall
// through to the next source.
func positiveInt(envKey string, fileVal *int, def int) int {
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	if fileVal != nil && *fileVal > 0 {
		return *fileVal
	}
	return def
}
