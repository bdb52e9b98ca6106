package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pointbot/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Award.MinChars != 15 {
		t.Errorf("MinChars = %d, want 15", cfg.Award.MinChars)
	}
	if cfg.Award.Cooldown() != 20*time.Second {
		t.Errorf("Cooldown = %v, want 20s", cfg.Award.Cooldown())
	}
	if cfg.Award.LeaderboardLimit != 20 {
		t.Errorf("LeaderboardLimit = %d, want 20", cfg.Award.LeaderboardLimit)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.Path != "points.db" {
		t.Errorf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Port = %d, want 8000", cfg.Server.Port)
	}
	if !cfg.Telegram.Enabled {
		t.Error("telegram source should be enabled by default")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v, want [*]", cfg.Server.AllowedOrigins)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("POINTBOT_TEST_TOKEN", "file-token")
	path := writeConfig(t, `
server:
  port: 9000
telegram:
  token: ${POINTBOT_TEST_TOKEN}
award:
  min_chars: 10
  cooldown_seconds: 5
storage:
  path: /tmp/points-test.db
`)

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Telegram.Token != "file-token" {
		t.Errorf("Token = %q, want expanded env value", cfg.Telegram.Token)
	}
	if cfg.Award.MinChars != 10 || cfg.Award.CooldownSeconds != 5 {
		t.Errorf("unexpected award config: %+v", cfg.Award)
	}
	if cfg.Storage.Path != "/tmp/points-test.db" {
		t.Errorf("Path = %q", cfg.Storage.Path)
	}
	if !cfg.Telegram.Enabled {
		t.Error("telegram should stay enabled when the file does not mention it")
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
award:
  min_chars: 10
`)
	t.Setenv("MIN_CHARS", "25")
	t.Setenv("COOLDOWN_SECONDS", "60")
	t.Setenv("DB_PATH", "env.db")
	t.Setenv("TOKEN", "env-token")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two origins", cfg.Server.AllowedOrigins)
	}
	if cfg.Award.MinChars != 25 {
		t.Errorf("MinChars = %d, want 25", cfg.Award.MinChars)
	}
	if cfg.Award.CooldownSeconds != 60 {
		t.Errorf("CooldownSeconds = %d, want 60", cfg.Award.CooldownSeconds)
	}
	if cfg.Storage.Path != "env.db" {
		t.Errorf("Path = %q, want env.db", cfg.Storage.Path)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Token = %q, want env-token", cfg.Telegram.Token)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "b:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected kafka to be enabled from env")
	}
}

func TestZeroThresholdsAreHonoured(t *testing.T) {
	t.Setenv("MIN_CHARS", "0")
	t.Setenv("COOLDOWN_SECONDS", "0")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Award.MinChars != 0 || cfg.Award.CooldownSeconds != 0 {
		t.Errorf("explicit zeros replaced: %+v", cfg.Award)
	}

	path := writeConfig(t, `
award:
  min_chars: 0
  cooldown_seconds: 0
`)
	t.Setenv("MIN_CHARS", "")
	t.Setenv("COOLDOWN_SECONDS", "")
	cfg, err = Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Award.MinChars != 0 || cfg.Award.Cooldown() != 0 {
		t.Errorf("zeros from file replaced: %+v", cfg.Award)
	}
}

func TestUnsetThresholdsUseDefaults(t *testing.T) {
	t.Setenv("MIN_CHARS", "")
	t.Setenv("COOLDOWN_SECONDS", "")
	path := writeConfig(t, `
award:
  leaderboard_limit: 10
`)

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Award.MinChars != 15 || cfg.Award.CooldownSeconds != 20 {
		t.Errorf("unset thresholds should default to 15/20, got %+v", cfg.Award)
	}
}

func TestLoadInvalidNumber(t *testing.T) {
	t.Setenv("MIN_CHARS", "lots")
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Load(missing, false); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if _, err := Load(missing, true); err != nil {
		t.Fatalf("expected missing file to be tolerated, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing token",
			mutate:  func(c *Config) {},
			wantErr: domain.ErrMissingToken,
		},
		{
			name:   "token present",
			mutate: func(c *Config) { c.Telegram.Token = "abc" },
		},
		{
			name: "kafka only needs no token",
			mutate: func(c *Config) {
				c.Telegram.Enabled = false
				c.Kafka.Enabled = true
			},
		},
		{
			name:    "no source",
			mutate:  func(c *Config) { c.Telegram.Enabled = false },
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name: "unknown driver",
			mutate: func(c *Config) {
				c.Telegram.Token = "abc"
				c.Storage.Driver = "mysql"
			},
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name: "postgres without database",
			mutate: func(c *Config) {
				c.Telegram.Token = "abc"
				c.Storage.Driver = DriverPostgres
			},
			wantErr: domain.ErrInvalidConfig,
		},
		{
			name: "postgres with url",
			mutate: func(c *Config) {
				c.Telegram.Token = "abc"
				c.Storage.Driver = DriverPostgres
				c.Postgres.URL = "postgres://localhost/points"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConnectionString(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "points"}
	if got, want := c.ConnectionString(), "postgres://u:p@db:5432/points?sslmode=disable"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	c.URL = "postgres://override"
	if got := c.ConnectionString(); got != "postgres://override" {
		t.Errorf("URL should take precedence, got %q", got)
	}
}
