// Package config provides runtime configuration for webexsync.
// It uses Viper to load settings from an optional file and environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Metric selection strategies.
const (
	StrategyFixed        = "fixed"
	StrategyCapabilities = "capabilities"
)

// ErrMissingRequired is returned by Load when mandatory settings are absent.
var ErrMissingRequired = errors.New("missing required configuration")

// Config holds all runtime configuration for webexsync.
type Config struct {
	// ── Sync ─────────────────────────────────────────────────────────────────
	// NetworkName is the name of the graph context devices are synced into.
	NetworkName string `mapstructure:"network_name"`
	// PullIntervalMS is the cycle cadence in milliseconds.
	PullIntervalMS int `mapstructure:"pull_interval"`
	// PenaltyDelayMS is the extra wait after a failed cycle.
	PenaltyDelayMS int    `mapstructure:"penalty_delay"`
	MetricStrategy string `mapstructure:"metric_strategy"` // fixed | capabilities

	// ── Webex API ────────────────────────────────────────────────────────────
	APIURL       string `mapstructure:"webex_api_url"`
	ClientID     string `mapstructure:"webex_client_id"`
	ClientSecret string `mapstructure:"webex_client_secret"`
	RefreshToken string `mapstructure:"webex_refresh_token"`
	TokenFile    string `mapstructure:"token_file"`

	HTTPTimeoutSeconds int     `mapstructure:"http_timeout_seconds"`
	APIRateLimit       float64 `mapstructure:"api_rate_limit"` // requests per second
	APIRateBurst       int     `mapstructure:"api_rate_burst"`

	// ── Storage ──────────────────────────────────────────────────────────────
	DBPath string `mapstructure:"db_path"`

	// ── Status API ───────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	AdminUser  string `mapstructure:"admin_user"`
	AdminPass  string `mapstructure:"admin_pass"`

	// ── Logging ──────────────────────────────────────────────────────────────
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json | console
}

// keys lists every setting so AutomaticEnv picks them up during Unmarshal.
var keys = []string{
	"network_name", "pull_interval", "penalty_delay", "metric_strategy",
	"webex_api_url", "webex_client_id", "webex_client_secret", "webex_refresh_token",
	"token_file", "http_timeout_seconds", "api_rate_limit", "api_rate_burst",
	"db_path", "server_host", "server_port", "jwt_secret", "admin_user", "admin_pass",
	"log_level", "log_format",
}

// Load reads config from file (./config.yaml or ~/.webexsync/config.yaml),
// then environment variables. Environment names are the upper-cased keys
// (NETWORK_NAME, PULL_INTERVAL, WEBEX_API_URL, ...).
func Load() (*Config, error) {
	v := viper.New()

	// --- Defaults ---
	v.SetDefault("penalty_delay", 60*1000)
	v.SetDefault("metric_strategy", StrategyFixed)
	v.SetDefault("token_file", "webex_token.json")
	v.SetDefault("http_timeout_seconds", 30)
	v.SetDefault("api_rate_limit", 5.0)
	v.SetDefault("api_rate_burst", 5)
	v.SetDefault("db_path", "webexsync.db")
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 6677)
	v.SetDefault("jwt_secret", "change-me-webexsync")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.webexsync")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment ---
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing or malformed required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.NetworkName) == "" {
		missing = append(missing, "NETWORK_NAME")
	}
	if c.PullIntervalMS <= 0 {
		missing = append(missing, "PULL_INTERVAL")
	}
	if strings.TrimSpace(c.APIURL) == "" {
		missing = append(missing, "WEBEX_API_URL")
	}
	if c.ClientID == "" {
		missing = append(missing, "WEBEX_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "WEBEX_CLIENT_SECRET")
	}
	if c.RefreshToken == "" {
		missing = append(missing, "WEBEX_REFRESH_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(missing, ", "))
	}

	switch c.MetricStrategy {
	case StrategyFixed, StrategyCapabilities:
	default:
		return fmt.Errorf("unsupported metric_strategy %q (use %q or %q)", c.MetricStrategy, StrategyFixed, StrategyCapabilities)
	}
	return nil
}

// PullInterval returns the configured cadence.
func (c *Config) PullInterval() time.Duration {
	return time.Duration(c.PullIntervalMS) * time.Millisecond
}

// PenaltyDelay returns the extra wait inserted after a failed cycle.
func (c *Config) PenaltyDelay() time.Duration {
	return time.Duration(c.PenaltyDelayMS) * time.Millisecond
}

// HTTPTimeout bounds every outbound request.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ServerAddr is the listen address of the status API.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
