package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
interval: 15s
schedule: "*/2 * * * *"
warning_threshold: 2m
batch_size: 25
app_base_url: https://example.test/
status_addr: ":9090"
log_level: debug

host_override:
  reminders: once

database:
  driver: postgres
  dsn: postgres://hourglass@localhost/stories

ai:
  model: gpt-4o
  api_key: sk-test
  base_url: https://llm.internal/v1
  timeout: 5s

notify:
  discord_webhook: https://discord.com/api/webhooks/1/abc
  email:
    sendgrid_api_key: SG.key
    from: hourglass@example.test
  sms:
    enabled: true
    twilio_sid: AC123
    twilio_auth_token: secret
    from: "+15550000000"

analytics:
  posthog_api_key: phc_key
  posthog_host: https://eu.posthog.com
`

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Interval != 15*time.Second {
		t.Errorf("Interval = %v, want 15s", cfg.Interval)
	}
	if cfg.Schedule != "*/2 * * * *" {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
	if cfg.WarningThreshold != 2*time.Minute {
		t.Errorf("WarningThreshold = %v, want 2m", cfg.WarningThreshold)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
	}
	if cfg.AppBaseURL != "https://example.test" {
		t.Errorf("AppBaseURL = %q, want trailing slash trimmed", cfg.AppBaseURL)
	}
	if cfg.HostOverride.Reminders != RemindOnce {
		t.Errorf("HostOverride.Reminders = %q, want once", cfg.HostOverride.Reminders)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://hourglass@localhost/stories" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.AI.Model != "gpt-4o" || cfg.AI.APIKey != "sk-test" || cfg.AI.Timeout != 5*time.Second {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.Notify.Email.From != "hourglass@example.test" {
		t.Errorf("Notify.Email.From = %q", cfg.Notify.Email.From)
	}
	if !cfg.Notify.SMS.Enabled || cfg.Notify.SMS.TwilioSID != "AC123" {
		t.Errorf("Notify.SMS = %+v", cfg.Notify.SMS)
	}
	if cfg.Analytics.PostHogHost != "https://eu.posthog.com" {
		t.Errorf("Analytics.PostHogHost = %q", cfg.Analytics.PostHogHost)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want %v", cfg.Interval, DefaultInterval)
	}
	if cfg.WarningThreshold != DefaultWarningThreshold {
		t.Errorf("WarningThreshold = %v, want %v", cfg.WarningThreshold, DefaultWarningThreshold)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.HostOverride.Reminders != RemindRepeat {
		t.Errorf("HostOverride.Reminders = %q, want repeat", cfg.HostOverride.Reminders)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != DefaultSQLitePath {
		t.Errorf("Database = %+v, want sqlite default", cfg.Database)
	}
	if cfg.AI.Model != DefaultAIModel {
		t.Errorf("AI.Model = %q, want %q", cfg.AI.Model, DefaultAIModel)
	}
	if cfg.Notify.SMS.Enabled {
		t.Error("SMS must be disabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: MySQL\n  name: stories\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 || cfg.Database.User != "root" {
		t.Errorf("Database = %+v, want mysql host defaults", cfg.Database)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("interval: [unterminated"))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want config: parse prefix", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"short interval", "interval: 100ms\n", "interval must be at least 1s"},
		{"negative batch", "batch_size: -1\n", "batch_size must be positive"},
		{"bad reminders", "host_override:\n  reminders: sometimes\n", "host_override.reminders"},
		{"postgres without dsn", "database:\n  driver: postgres\n", "database.dsn is required for postgres"},
		{"mysql without name", "database:\n  driver: mysql\n", "database.dsn or database.name"},
		{"unknown driver", "database:\n  driver: oracle\n", `database.driver "oracle" is not supported`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err, tt.want)
			}
		})
	}
}

func TestParse_EnvOverridesFile(t *testing.T) {
	env := envMap(map[string]string{
		"HOURGLASS_INTERVAL_MS":    "45000",
		"HOURGLASS_WARNING_MS":     "30000",
		"HOURGLASS_BATCH_SIZE":     "10",
		"HOURGLASS_HOST_REMINDERS": "ONCE",
		"AI_FALLBACK_MODEL":        "gpt-4.1-mini",
		"AI_FALLBACK_API_KEY":      "sk-env",
		"APP_BASE_URL":             "https://stories.test/",
		"NOTIFY_WEBHOOK_DISCORD":   "https://discord.com/api/webhooks/2/def",
		"NOTIFY_SMS_ENABLED":       "false",
		"POSTHOG_API_KEY":          "phc_env",
	})

	cfg, err := parse([]byte(fullYAML), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interval != 45*time.Second {
		t.Errorf("Interval = %v, want 45s", cfg.Interval)
	}
	if cfg.WarningThreshold != 30*time.Second {
		t.Errorf("WarningThreshold = %v, want 30s", cfg.WarningThreshold)
	}
	if cfg.BatchSize != 10 {
		t.Errorf("BatchSize = %d, want 10", cfg.BatchSize)
	}
	if cfg.HostOverride.Reminders != RemindOnce {
		t.Errorf("Reminders = %q, want once", cfg.HostOverride.Reminders)
	}
	if cfg.AI.Model != "gpt-4.1-mini" || cfg.AI.APIKey != "sk-env" {
		t.Errorf("AI = %+v", cfg.AI)
	}
	if cfg.AppBaseURL != "https://stories.test" {
		t.Errorf("AppBaseURL = %q", cfg.AppBaseURL)
	}
	if cfg.Notify.DiscordWebhook != "https://discord.com/api/webhooks/2/def" {
		t.Errorf("DiscordWebhook = %q", cfg.Notify.DiscordWebhook)
	}
	if cfg.Notify.SMS.Enabled {
		t.Error("NOTIFY_SMS_ENABLED=false should disable SMS")
	}
	if cfg.Analytics.PostHogAPIKey != "phc_env" {
		t.Errorf("PostHogAPIKey = %q", cfg.Analytics.PostHogAPIKey)
	}
}

func TestParse_InvalidEnvValues(t *testing.T) {
	env := envMap(map[string]string{
		"HOURGLASS_INTERVAL_MS": "soon",
		"HOURGLASS_BATCH_SIZE":  "many",
		"NOTIFY_SMS_ENABLED":    "maybe",
	})
	_, err := parse(nil, env)
	if err == nil {
		t.Fatal("expected environment error")
	}
	for _, key := range []string{"HOURGLASS_INTERVAL_MS", "HOURGLASS_BATCH_SIZE", "NOTIFY_SMS_ENABLED"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error = %q, want to mention %s", err, key)
		}
	}
}

func TestParse_BlankEnvIgnored(t *testing.T) {
	cfg, err := parse(nil, envMap(map[string]string{"HOURGLASS_INTERVAL_MS": "  "}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interval != DefaultInterval {
		t.Errorf("Interval = %v, want default", cfg.Interval)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hourglass.yaml")
	if err := os.WriteFile(path, []byte("batch_size: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(path, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7", cfg.BatchSize)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := load("/nonexistent/hourglass.yaml", noEnv)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want config: read prefix", err)
	}
}

func TestLoad_EmptyPathUsesEnvironment(t *testing.T) {
	t.Setenv("HOURGLASS_BATCH_SIZE", "3")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BatchSize != 3 {
		t.Errorf("BatchSize = %d, want 3", cfg.BatchSize)
	}
}
