// Package config provides YAML and environment based configuration for Hourglass.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultInterval         = 30 * time.Second
	DefaultWarningThreshold = 60 * time.Second
	DefaultBatchSize        = 50
	DefaultAIModel          = "gpt-4o-mini"
	DefaultAITimeout        = 20 * time.Second
	DefaultDBDriver         = "sqlite"
	DefaultSQLitePath       = "hourglass.db"
	DefaultLogLevel         = "info"
)

// Host override reminder policies.
const (
	RemindRepeat = "repeat"
	RemindOnce   = "once"
)

// Config is the top-level Hourglass configuration.
type Config struct {
	Interval         time.Duration      `yaml:"interval"`
	Schedule         string             `yaml:"schedule"`
	WarningThreshold time.Duration      `yaml:"warning_threshold"`
	BatchSize        int                `yaml:"batch_size"`
	AppBaseURL       string             `yaml:"app_base_url"`
	StatusAddr       string             `yaml:"status_addr"`
	LogLevel         string             `yaml:"log_level"`
	HostOverride     HostOverrideConfig `yaml:"host_override"`
	Database         DatabaseConfig     `yaml:"database"`
	AI               AIConfig           `yaml:"ai"`
	Notify           NotifyConfig       `yaml:"notify"`
	Analytics        AnalyticsConfig    `yaml:"analytics"`
}

// HostOverrideConfig controls reminders for turns handed to a human host.
type HostOverrideConfig struct {
	Reminders string `yaml:"reminders"` // "repeat" (default) or "once"
}

// DatabaseConfig holds connection settings for the turn store.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql, postgres
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// AIConfig configures the fallback fill generator.
type AIConfig struct {
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig holds per-channel transport settings.
type NotifyConfig struct {
	DiscordWebhook string      `yaml:"discord_webhook"`
	Email          EmailConfig `yaml:"email"`
	SMS            SMSConfig   `yaml:"sms"`
}

// EmailConfig configures the SendGrid transport.
type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	From           string `yaml:"from"`
}

// SMSConfig configures the Twilio transport. Delivery stays off unless
// Enabled is set.
type SMSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TwilioSID  string `yaml:"twilio_sid"`
	TwilioAuth string `yaml:"twilio_auth_token"`
	From       string `yaml:"from"`
}

// AnalyticsConfig configures the PostHog sink.
type AnalyticsConfig struct {
	PostHogAPIKey string `yaml:"posthog_api_key"`
	PostHogHost   string `yaml:"posthog_host"`
}

// Load reads an optional YAML file, applies environment overrides, and
// returns a validated Config. An empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		data = b
	}
	return parse(data, lookup)
}

// Parse unmarshals YAML bytes into a validated Config without consulting
// the environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) (string, bool) { return "", false })
}

func parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse: %w", err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays environment variables on top of file values.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []string

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	millis := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be a positive integer of milliseconds, got %q", key, v))
			return
		}
		*dst = time.Duration(n) * time.Millisecond
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be an integer, got %q", key, v))
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be a boolean, got %q", key, v))
			return
		}
		*dst = b
	}

	millis("HOURGLASS_INTERVAL_MS", &c.Interval)
	str("HOURGLASS_SCHEDULE", &c.Schedule)
	millis("HOURGLASS_WARNING_MS", &c.WarningThreshold)
	integer("HOURGLASS_BATCH_SIZE", &c.BatchSize)
	str("HOURGLASS_HOST_REMINDERS", &c.HostOverride.Reminders)
	str("HOURGLASS_STATUS_ADDR", &c.StatusAddr)
	str("HOURGLASS_LOG_LEVEL", &c.LogLevel)
	str("APP_BASE_URL", &c.AppBaseURL)

	str("HOURGLASS_DB_DRIVER", &c.Database.Driver)
	str("HOURGLASS_DB_DSN", &c.Database.DSN)
	str("HOURGLASS_DB_HOST", &c.Database.Host)
	integer("HOURGLASS_DB_PORT", &c.Database.Port)
	str("HOURGLASS_DB_NAME", &c.Database.Name)
	str("HOURGLASS_DB_USER", &c.Database.User)
	str("HOURGLASS_DB_PASSWORD", &c.Database.Password)

	str("AI_FALLBACK_MODEL", &c.AI.Model)
	str("AI_FALLBACK_API_KEY", &c.AI.APIKey)
	str("AI_FALLBACK_BASE_URL", &c.AI.BaseURL)
	millis("AI_FALLBACK_TIMEOUT_MS", &c.AI.Timeout)

	str("NOTIFY_WEBHOOK_DISCORD", &c.Notify.DiscordWebhook)
	str("NOTIFY_SENDGRID_API_KEY", &c.Notify.Email.SendGridAPIKey)
	str("NOTIFY_EMAIL_FROM", &c.Notify.Email.From)
	boolean("NOTIFY_SMS_ENABLED", &c.Notify.SMS.Enabled)
	str("NOTIFY_TWILIO_SID", &c.Notify.SMS.TwilioSID)
	str("NOTIFY_TWILIO_AUTH_TOKEN", &c.Notify.SMS.TwilioAuth)
	str("NOTIFY_TWILIO_FROM", &c.Notify.SMS.From)

	str("POSTHOG_API_KEY", &c.Analytics.PostHogAPIKey)
	str("POSTHOG_HOST", &c.Analytics.PostHogHost)

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.WarningThreshold == 0 {
		c.WarningThreshold = DefaultWarningThreshold
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.HostOverride.Reminders = strings.ToLower(strings.TrimSpace(c.HostOverride.Reminders))
	if c.HostOverride.Reminders == "" {
		c.HostOverride.Reminders = RemindRepeat
	}
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDBDriver
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = DefaultSQLitePath
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.AI.Model == "" {
		c.AI.Model = DefaultAIModel
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = DefaultAITimeout
	}
	c.AppBaseURL = strings.TrimRight(strings.TrimSpace(c.AppBaseURL), "/")
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Interval < time.Second {
		errs = append(errs, "interval must be at least 1s")
	}
	if c.WarningThreshold < 0 {
		errs = append(errs, "warning_threshold must not be negative")
	}
	if c.BatchSize < 1 {
		errs = append(errs, "batch_size must be positive")
	}
	switch c.HostOverride.Reminders {
	case RemindRepeat, RemindOnce:
	default:
		errs = append(errs, fmt.Sprintf("host_override.reminders must be %q or %q, got %q", RemindRepeat, RemindOnce, c.HostOverride.Reminders))
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for postgres")
		}
	case "mysql":
		if c.Database.DSN == "" && c.Database.Name == "" {
			errs = append(errs, "database.dsn or database.name is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
