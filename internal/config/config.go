package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string
	StoreDriver   string
	DatabaseURL   string
	RedisURL      string
	DefaultTenant string
	LogLevel      slog.Level

	NumWorkers      int
	QueueSize       int
	MaxConnsPerHost int
	MaxIdleConns    int

	RetrySweepInterval time.Duration
	RetryBatchSize     int
	StalePendingAfter  time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

type configFile struct {
	Server struct {
		Port          string `yaml:"port"`
		DefaultTenant string `yaml:"default_tenant"`
		LogLevel      string `yaml:"log_level"`
	} `yaml:"server"`
	Store struct {
		Driver      string `yaml:"driver"`
		DatabaseURL string `yaml:"database_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"store"`
	Delivery struct {
		NumWorkers         int    `yaml:"num_workers"`
		QueueSize          int    `yaml:"queue_size"`
		MaxConnsPerHost    int    `yaml:"max_conns_per_host"`
		MaxIdleConns       int    `yaml:"max_idle_conns"`
		RetrySweepInterval string `yaml:"retry_sweep_interval"`
		RetryBatchSize     int    `yaml:"retry_batch_size"`
		StalePendingAfter  string `yaml:"stale_pending_after"`
	} `yaml:"delivery"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		GroupID string   `yaml:"group_id"`
	} `yaml:"kafka"`
}

func defaults() Config {
	return Config{
		Port:               "8080",
		StoreDriver:        DriverPostgres,
		DefaultTenant:      "default",
		LogLevel:           slog.LevelInfo,
		NumWorkers:         50,
		QueueSize:          1000,
		MaxConnsPerHost:    20,
		MaxIdleConns:       100,
		RetrySweepInterval: 60 * time.Second,
		RetryBatchSize:     100,
		StalePendingAfter:  5 * time.Minute,
		KafkaTopic:         "ticket-events",
		KafkaGroupID:       "ticket-webhooks",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty), then a .env file (ENV_FILE, default ".env",
// ignored when missing), then the process environment. Later sources win.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	dotenv, err := godotenv.Read(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", envFile, err)
	}
	env := environment{dotenv: dotenv}

	cfg.Port = env.get("PORT", cfg.Port)
	cfg.StoreDriver = strings.ToLower(env.get("STORE_DRIVER", cfg.StoreDriver))
	cfg.DatabaseURL = env.get("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisURL = env.get("REDIS_URL", cfg.RedisURL)
	cfg.DefaultTenant = env.get("DEFAULT_TENANT", cfg.DefaultTenant)
	cfg.NumWorkers = env.getInt("NUM_WORKERS", cfg.NumWorkers)
	cfg.QueueSize = env.getInt("QUEUE_SIZE", cfg.QueueSize)
	cfg.MaxConnsPerHost = env.getInt("MAX_CONNS_PER_HOST", cfg.MaxConnsPerHost)
	cfg.MaxIdleConns = env.getInt("MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.RetrySweepInterval = env.getDuration("RETRY_SWEEP_INTERVAL", cfg.RetrySweepInterval)
	cfg.RetryBatchSize = env.getInt("RETRY_BATCH_SIZE", cfg.RetryBatchSize)
	cfg.StalePendingAfter = env.getDuration("STALE_PENDING_AFTER", cfg.StalePendingAfter)
	cfg.KafkaTopic = env.get("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaGroupID = env.get("KAFKA_GROUP_ID", cfg.KafkaGroupID)
	if brokers := env.get("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}
	if level := env.get("LOG_LEVEL", ""); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("parsing LOG_LEVEL: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	setString(&cfg.Port, f.Server.Port)
	setString(&cfg.DefaultTenant, f.Server.DefaultTenant)
	setString(&cfg.StoreDriver, f.Store.Driver)
	setString(&cfg.DatabaseURL, f.Store.DatabaseURL)
	setString(&cfg.RedisURL, f.Store.RedisURL)
	setInt(&cfg.NumWorkers, f.Delivery.NumWorkers)
	setInt(&cfg.QueueSize, f.Delivery.QueueSize)
	setInt(&cfg.MaxConnsPerHost, f.Delivery.MaxConnsPerHost)
	setInt(&cfg.MaxIdleConns, f.Delivery.MaxIdleConns)
	setInt(&cfg.RetryBatchSize, f.Delivery.RetryBatchSize)
	setString(&cfg.KafkaTopic, f.Kafka.Topic)
	setString(&cfg.KafkaGroupID, f.Kafka.GroupID)
	if len(f.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = f.Kafka.Brokers
	}

	if f.Server.LogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(f.Server.LogLevel)); err != nil {
			return fmt.Errorf("parsing server.log_level: %w", err)
		}
	}
	if err := setDuration(&cfg.RetrySweepInterval, f.Delivery.RetrySweepInterval); err != nil {
		return fmt.Errorf("parsing delivery.retry_sweep_interval: %w", err)
	}
	if err := setDuration(&cfg.StalePendingAfter, f.Delivery.StalePendingAfter); err != nil {
		return fmt.Errorf("parsing delivery.stale_pending_after: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("NUM_WORKERS must be positive")
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QUEUE_SIZE must be positive")
	}
	if c.RetrySweepInterval <= 0 {
		return fmt.Errorf("RETRY_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// environment resolves keys from the process environment first and the
// .env file second.
type environment struct {
	dotenv map[string]string
}

func (e environment) get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if val, ok := e.dotenv[key]; ok && val != "" {
		return val
	}
	return fallback
}

func (e environment) getInt(key string, fallback int) int {
	if val := e.get(key, ""); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func (e environment) getDuration(key string, fallback time.Duration) time.Duration {
	if val := e.get(key, ""); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
