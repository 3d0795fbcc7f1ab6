// Package config provides centralized configuration for the palletline service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the master configuration struct for the service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Consumer   ConsumerConfig   `mapstructure:"consumer"`
	Agents     AgentsConfig     `mapstructure:"agents"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port                int `mapstructure:"port"`
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`
	IdleTimeoutSeconds  int `mapstructure:"idle_timeout_seconds"`
}

// ReadTimeout returns the read timeout as a duration.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSeconds) * time.Second
}

// IdleTimeout returns the idle timeout as a duration.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// URL builds a postgres connection string from the settings.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// NATSConfig holds NATS message broker configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// RedisConfig holds Redis configuration for the consumer idempotency guard.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	Enabled  bool          `mapstructure:"enabled"`
	GuardTTL time.Duration `mapstructure:"guard_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DispatcherConfig controls the outbox dispatcher loop.
type DispatcherConfig struct {
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	BatchSize      int `mapstructure:"batch_size"`
}

// PollInterval returns the dispatcher poll interval as a duration.
func (d DispatcherConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalMs) * time.Millisecond
}

// ConsumerConfig controls the broker consumer.
type ConsumerConfig struct {
	PrefetchCount int `mapstructure:"prefetch_count"`
	MaxRetries    int `mapstructure:"max_retries"`
}

// AgentsConfig controls the agent runtime.
type AgentsConfig struct {
	TimeoutMs       int  `mapstructure:"timeout_ms"`
	Concurrency     int  `mapstructure:"concurrency"`
	ContinueOnError bool `mapstructure:"continue_on_error"`
}

// Timeout returns the per-agent invocation deadline.
func (a AgentsConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

// SchedulerConfig controls the cron scheduler.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	JobsFile string `mapstructure:"jobs_file"`
}

// OutboxConfig controls outbox retry and garbage collection.
type OutboxConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
	GCDays     int `mapstructure:"gc_days"`
}

// GCAge returns the minimum age of PUBLISHED rows eligible for GC.
func (o OutboxConfig) GCAge() time.Duration {
	return time.Duration(o.GCDays) * 24 * time.Hour
}

// Load reads configuration from the given file (optional) and environment
// variables prefixed with PALLETLINE_. Defaults cover every knob.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("PALLETLINE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("PALLETLINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "palletline")
	v.SetDefault("database.user", "palletline")
	v.SetDefault("database.password", "palletline")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 25)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "palletline")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.guard_ttl", 24*time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("dispatcher.poll_interval_ms", 1000)
	v.SetDefault("dispatcher.batch_size", 100)

	v.SetDefault("consumer.prefetch_count", 10)
	v.SetDefault("consumer.max_retries", 3)

	v.SetDefault("agents.timeout_ms", 30000)
	v.SetDefault("agents.concurrency", 10)
	v.SetDefault("agents.continue_on_error", true)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.jobs_file", "")

	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.gc_days", 7)
}
