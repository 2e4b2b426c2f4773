package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// validJWTSecret meets the 32-character minimum.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = validJWTSecret
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "greenhouse"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
  cors:
    allowed_origins: ["http://localhost:3000"]
notifications:
  workers: 2
  webhook:
    enabled: true
    url: "https://chat.example.com/hook"
binding:
  reconcile_interval: 300
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "greenhouse" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "greenhouse")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	if cfg.Notifications.Workers != 2 {
		t.Errorf("Notifications.Workers = %d, want 2", cfg.Notifications.Workers)
	}
	if got := cfg.GetReconcileInterval().Seconds(); got != 300 {
		t.Errorf("GetReconcileInterval() = %v, want 300", got)
	}
	// Untouched sections keep their defaults.
	if cfg.Notifications.Email.Subject != "Smartpot notification" {
		t.Errorf("Email.Subject = %q, want default", cfg.Notifications.Email.Subject)
	}
	if !cfg.WebSocket.CloseSuperseded {
		t.Error("WebSocket.CloseSuperseded = false, want default true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`)

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("SMARTPOT_TEST_DOTENV=from-file\n"), 0600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SMARTPOT_TEST_DOTENV") })

	if err := loadDotEnv(envPath); err != nil {
		t.Fatalf("loadDotEnv() error = %v", err)
	}
	if got := os.Getenv("SMARTPOT_TEST_DOTENV"); got != "from-file" {
		t.Errorf("SMARTPOT_TEST_DOTENV = %q, want %q", got, "from-file")
	}

	if err := loadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("loadDotEnv(missing) error = %v, want nil", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: "site.id"},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: "mqtt.qos"},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: "api.port"},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: "api.port"},
		{name: "zero send buffer", mutate: func(c *Config) { c.WebSocket.SendBuffer = 0 }, wantErr: "websocket.send_buffer"},
		{name: "zero ping interval", mutate: func(c *Config) { c.WebSocket.PingInterval = 0 }, wantErr: "websocket.ping_interval"},
		{name: "influx without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: "influxdb.url"},
		{name: "zero workers", mutate: func(c *Config) { c.Notifications.Workers = 0 }, wantErr: "notifications.workers"},
		{name: "negative queue size", mutate: func(c *Config) { c.Notifications.QueueSize = -1 }, wantErr: "notifications.queue_size"},
		{name: "email without host", mutate: func(c *Config) { c.Notifications.Email.Enabled = true }, wantErr: "notifications.email.host"},
		{name: "webhook without url", mutate: func(c *Config) { c.Notifications.Webhook.Enabled = true }, wantErr: "notifications.webhook.url"},
		{name: "negative reconcile interval", mutate: func(c *Config) { c.Binding.ReconcileInterval = -1 }, wantErr: "binding.reconcile_interval"},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: "security.jwt.secret"},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: "at least 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Site.ID = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "site.id") || !strings.Contains(err.Error(), "api.port") {
		t.Errorf("Validate() error = %q, want both problems reported", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{Read: 30, Write: 45, Idle: 60},
		},
		Notifications: NotificationConfig{Timeout: 12},
		Security:      SecurityConfig{JWT: JWTConfig{AccessTokenTTL: 15}},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetNotifyTimeout().Seconds(); got != 12 {
		t.Errorf("GetNotifyTimeout() = %v, want 12", got)
	}
	if got := cfg.GetAccessTokenTTL().Minutes(); got != 15 {
		t.Errorf("GetAccessTokenTTL() = %v, want 15", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("SMARTPOT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("SMARTPOT_MQTT_ENABLED", "true")
	t.Setenv("SMARTPOT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("SMARTPOT_MQTT_PORT", "8883")
	t.Setenv("SMARTPOT_API_PORT", "not-a-number")
	t.Setenv("SMARTPOT_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("SMARTPOT_SMTP_PASSWORD", "smtp-pass")
	t.Setenv("SMARTPOT_WEBHOOK_URL", "https://chat.example.com/hook")
	t.Setenv("SMARTPOT_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if !cfg.MQTT.Enabled {
		t.Error("MQTT.Enabled = false, want true")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want unparseable override ignored", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Notifications.Email.Password != "smtp-pass" {
		t.Errorf("Email.Password = %q, want %q", cfg.Notifications.Email.Password, "smtp-pass")
	}
	if cfg.Notifications.Webhook.URL != "https://chat.example.com/hook" {
		t.Errorf("Webhook.URL = %q, want override", cfg.Notifications.Webhook.URL)
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Site.ID == "" {
		t.Error("defaultConfig should have non-empty Site.ID")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.WebSocket.SendBuffer != 256 {
		t.Errorf("defaultConfig WebSocket.SendBuffer = %d, want 256", cfg.WebSocket.SendBuffer)
	}
	if cfg.Notifications.Webhook.Title != "New Notification!" {
		t.Errorf("defaultConfig Webhook.Title = %q", cfg.Notifications.Webhook.Title)
	}
}
