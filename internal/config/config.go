package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pointbot/internal/domain"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Telegram TelegramConfig `yaml:"telegram"`
	Award    AwardConfig    `yaml:"award"`
	Messages MessagesConfig `yaml:"messages"`
	Storage  StorageConfig  `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Prune    PruneConfig    `yaml:"prune"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// TelegramConfig holds the messaging platform connection settings
type TelegramConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Token          string `yaml:"token"`
	PollTimeout    int    `yaml:"poll_timeout"` // seconds
	Debug          bool   `yaml:"debug"`
	APIEndpoint    string `yaml:"api_endpoint"`
	ReplyToMessage bool   `yaml:"reply_to_message"`
}

// AwardConfig holds the point award thresholds
type AwardConfig struct {
	MinChars         int `yaml:"min_chars"`
	CooldownSeconds  int `yaml:"cooldown_seconds"`
	LeaderboardLimit int `yaml:"leaderboard_limit"`
	MaxLimit         int `yaml:"max_limit"`
}

// Cooldown returns the cooldown as a duration
func (c AwardConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// MessagesConfig holds the fixed phrases shown to chat users
type MessagesConfig struct {
	DirectRejection  string `yaml:"direct_rejection"`
	InvalidRejection string `yaml:"invalid_rejection"`
}

// StorageConfig selects and configures the point store
type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	Path            string        `yaml:"path"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	BusyTimeout     time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration for the bridged chat source
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	ReplyTopic string   `yaml:"reply_topic"`
	GroupID    string   `yaml:"group_id"`
	Enabled    bool     `yaml:"enabled"`
}

// PruneConfig holds cooldown pruning worker configuration
type PruneConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel converts the configured level name into a slog.Level
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from a YAML file, then applies environment
// overrides and defaults. A missing file is not an error when
// allowMissing is set; the environment alone is used instead.
func Load(path string, allowMissing bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := baseConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables
		data = []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case os.IsNotExist(err) && allowMissing:
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// applyEnv overrides file values with the documented environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
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
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", domain.ErrInvalidConfig, key, v)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", domain.ErrInvalidConfig, key, v)
		}
		*dst = b
		return nil
	}

	str("TOKEN", &c.Telegram.Token)
	str("DB_PATH", &c.Storage.Path)
	str("DB_DRIVER", &c.Storage.Driver)
	str("DATABASE_URL", &c.Postgres.URL)
	str("LOG_LEVEL", &c.Log.Level)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	if v, ok := lookup("CORS_ORIGINS"); ok && v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}

	for key, dst := range map[string]*int{
		"MIN_CHARS":        &c.Award.MinChars,
		"COOLDOWN_SECONDS": &c.Award.CooldownSeconds,
		"PORT":             &c.Server.Port,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*bool{
		"TELEGRAM_ENABLED": &c.Telegram.Enabled,
		"KAFKA_ENABLED":    &c.Kafka.Enabled,
	} {
		if err := flag(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}

	// Telegram defaults
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = 30
	}

	// Award defaults. MinChars and CooldownSeconds are preset in baseConfig
	// so an explicit 0 is kept.
	if c.Award.LeaderboardLimit == 0 {
		c.Award.LeaderboardLimit = 20
	}
	if c.Award.MaxLimit == 0 {
		c.Award.MaxLimit = 100
	}

	// Message defaults
	if c.Messages.DirectRejection == "" {
		c.Messages.DirectRejection = "Bawal na boy 😎"
	}
	if c.Messages.InvalidRejection == "" {
		c.Messages.InvalidRejection = "Bawal na boy 😎"
	}

	// Storage defaults
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "points.db"
	}
	if c.Storage.MaxConnections == 0 {
		c.Storage.MaxConnections = 10
	}
	if c.Storage.ConnMaxLifetime == 0 {
		c.Storage.ConnMaxLifetime = 1 * time.Hour
	}
	if c.Storage.BusyTimeout == 0 {
		c.Storage.BusyTimeout = 5 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 10
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 1
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chat-events"
	}
	if c.Kafka.ReplyTopic == "" {
		c.Kafka.ReplyTopic = "chat-replies"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "pointbot"
	}

	// Prune defaults
	if c.Prune.Interval == 0 {
		c.Prune.Interval = 10 * time.Minute
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for values the process cannot start without
func (c *Config) Validate() error {
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return domain.ErrMissingToken
	}
	if !c.Telegram.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("%w: no message source enabled", domain.ErrInvalidConfig)
	}
	if c.Award.MinChars < 0 {
		return fmt.Errorf("%w: min_chars must not be negative", domain.ErrInvalidConfig)
	}
	if c.Award.CooldownSeconds < 0 {
		return fmt.Errorf("%w: cooldown_seconds must not be negative", domain.ErrInvalidConfig)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" && c.Postgres.Database == "" {
			return fmt.Errorf("%w: postgres driver needs DATABASE_URL or postgres.database", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", domain.ErrInvalidConfig, c.Storage.Driver)
	}
	return nil
}

// baseConfig holds the defaults a zero value cannot express: switches a
// YAML file can only turn off, and award thresholds where 0 is meaningful
func baseConfig() *Config {
	cfg := &Config{}
	cfg.Telegram.Enabled = true
	cfg.Telegram.ReplyToMessage = true
	cfg.Prune.Enabled = true
	cfg.Award.MinChars = 15
	cfg.Award.CooldownSeconds = 20
	return cfg
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := baseConfig()
	cfg.applyDefaults()
	return cfg
}
