// Package config loads process configuration from a YAML file with
// environment overrides. A .env file, when present, is loaded first so its
// values take part in the overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/auctionhouse/go/internal/client/poll"
	"github.com/mcdev12/auctionhouse/go/internal/clocksync"
	"github.com/mcdev12/auctionhouse/go/internal/dbconfig"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  dbconfig.Config `yaml:"-"`
	NATS      NATSConfig      `yaml:"nats"`
	Redis     RedisConfig     `yaml:"redis"`
	Auction   AuctionConfig   `yaml:"auction"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Clock     ClockConfig     `yaml:"clock"`
	Poll      poll.Config     `yaml:"poll"`
	LogLevel  string          `yaml:"log_level"`
	// Migrate applies the embedded schema at startup.
	Migrate bool `yaml:"migrate"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	SendBuffer     int      `yaml:"send_buffer"`
}

type NATSConfig struct {
	URL           string        `yaml:"url"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type RedisConfig struct {
	// Addr empty disables redis and falls back to the in-memory cache.
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type AuctionConfig struct {
	LockWait      time.Duration          `yaml:"lock_wait"`
	DefaultPolicy models.ExtensionPolicy `yaml:"default_policy"`
}

type SchedulerConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
}

type OutboxConfig struct {
	FallbackInterval time.Duration `yaml:"fallback_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	BatchSize        int           `yaml:"batch_size"`
	HealthPort       int           `yaml:"health_port"`
}

type ClockConfig struct {
	// Source is "local" for the authoritative process or "sql" to follow
	// the database clock.
	Source           string `yaml:"source"`
	clocksync.Config `yaml:",inline"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			SendBuffer:     256,
		},
		Database: dbconfig.NewConfigFromEnv(),
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Redis: RedisConfig{
			KeyPrefix: "lot:snapshot:",
			TTL:       24 * time.Hour,
		},
		Auction: AuctionConfig{
			LockWait: 2 * time.Second,
			DefaultPolicy: models.ExtensionPolicy{
				Window:        30 * time.Second,
				Bonus:         15 * time.Second,
				MaxExtensions: 3,
			},
		},
		Scheduler: SchedulerConfig{
			Workers:       4,
			BatchSize:     100,
			SweepInterval: 30 * time.Second,
			RetryDelay:    time.Second,
		},
		Outbox: OutboxConfig{
			FallbackInterval: 30 * time.Second,
			MaxRetries:       5,
			RetryDelay:       200 * time.Millisecond,
			BatchSize:        100,
			HealthPort:       8081,
		},
		Clock: ClockConfig{
			Source: "local",
			Config: clocksync.DefaultConfig(),
		},
		Poll:     poll.DefaultConfig(),
		LogLevel: "info",
	}
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Info().Str("path", path).Msg("config file not found, using defaults")
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.Database = dbconfig.NewConfigFromEnv()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Clock.Source = getEnv("CLOCK_SOURCE", c.Clock.Source)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if v, err := strconv.ParseBool(os.Getenv("DB_MIGRATE")); err == nil {
		c.Migrate = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	p := c.Auction.DefaultPolicy
	if p.Window < 0 || p.Bonus < 0 || p.MaxExtensions < 0 || p.MaxTotalDuration < 0 {
		return fmt.Errorf("extension policy values must not be negative")
	}
	switch c.Clock.Source {
	case "local", "sql":
	default:
		return fmt.Errorf("unknown clock source %q", c.Clock.Source)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured zerolog level, info when unset.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
