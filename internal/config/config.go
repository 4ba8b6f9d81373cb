package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Row store drivers.
const (
	DriverMemory   = "memory"
	DriverScylla   = "scylla"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret  string `yaml:"jwt_secret"`
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"auth"`
	Redis struct {
		Addr           string `yaml:"addr"`
		Password       string `yaml:"password"`
		DB             int    `yaml:"db"`
		Channel        string `yaml:"channel"`
		LeaderboardTTL string `yaml:"leaderboard_ttl"`
	} `yaml:"redis"`
	RowStore struct {
		Driver string `yaml:"driver"`
	} `yaml:"rowstore"`
	Scylla struct {
		Hosts             []string `yaml:"hosts"`
		Keyspace          string   `yaml:"keyspace"`
		Username          string   `yaml:"username"`
		Password          string   `yaml:"password"`
		ReplicationClass  string   `yaml:"replication_class"`
		ReplicationFactor int      `yaml:"replication_factor"`
		Timeout           string   `yaml:"timeout"`
	} `yaml:"scylla"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Kafka struct {
		Brokers           []string `yaml:"brokers"`
		Topic             string   `yaml:"topic"`
		Username          string   `yaml:"username"`
		Password          string   `yaml:"password"`
		Workers           int      `yaml:"workers"`
		QueueSize         int      `yaml:"queue_size"`
		Partitions        int      `yaml:"partitions"`
		ReplicationFactor int      `yaml:"replication_factor"`
	} `yaml:"kafka"`
	Gateway struct {
		EventTimeout           string   `yaml:"event_timeout"`
		PingInterval           string   `yaml:"ping_interval"`
		PongWait               string   `yaml:"pong_wait"`
		LeaderboardSize        int      `yaml:"leaderboard_size"`
		NotificationAllowedIPs []string `yaml:"notification_allowed_ips"`
	} `yaml:"gateway"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file or environment overrides are present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = "10s"
	cfg.Auth.SessionTTL = "24h"
	cfg.Redis.Channel = "quiz-gateway:rooms"
	cfg.Redis.LeaderboardTTL = "30s"
	cfg.RowStore.Driver = DriverMemory
	cfg.Scylla.Keyspace = "quiz"
	cfg.Scylla.ReplicationClass = "SimpleStrategy"
	cfg.Scylla.ReplicationFactor = 1
	cfg.Scylla.Timeout = "5s"
	cfg.Kafka.Topic = "user_quiz_export"
	cfg.Kafka.Workers = 4
	cfg.Kafka.QueueSize = 100
	cfg.Kafka.Partitions = 1
	cfg.Kafka.ReplicationFactor = 1
	cfg.Gateway.EventTimeout = "5s"
	cfg.Gateway.PingInterval = "30s"
	cfg.Gateway.PongWait = "60s"
	cfg.Gateway.LeaderboardSize = 10
	cfg.Quiz.TTL = "10m"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// Load reads .env (if present), then the YAML config at path (a missing file keeps defaults), then
// environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PORT")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Auth.SessionTTL, "SESSION_TTL")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Redis.Channel, "FANOUT_CHANNEL")
	setString(&c.RowStore.Driver, "ROWSTORE_DRIVER")
	setList(&c.Scylla.Hosts, "SCYLLA_HOSTS")
	setString(&c.Scylla.Keyspace, "SCYLLA_KEYSPACE")
	setString(&c.Scylla.Username, "SCYLLA_USERNAME")
	setString(&c.Scylla.Password, "SCYLLA_PASSWORD")
	setString(&c.Postgres.URL, "POSTGRES_URL")
	setList(&c.Kafka.Brokers, "KAFKA_BROKERS")
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Kafka.Username, "KAFKA_USERNAME")
	setString(&c.Kafka.Password, "KAFKA_PASSWORD")
	setList(&c.Gateway.NotificationAllowedIPs, "NOTIFICATION_ALLOWED_IPS")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	return setInt(&c.Gateway.LeaderboardSize, "LEADERBOARD_SIZE")
}

// Validate reports the first setting that would prevent the gateway from starting.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	switch c.RowStore.Driver {
	case DriverMemory:
	case DriverScylla:
		if len(c.Scylla.Hosts) == 0 || c.Scylla.Keyspace == "" {
			return errors.New("config: scylla driver needs SCYLLA_HOSTS and SCYLLA_KEYSPACE")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return errors.New("config: postgres driver needs POSTGRES_URL")
		}
	default:
		return fmt.Errorf("config: unknown row store driver %q", c.RowStore.Driver)
	}
	if c.Gateway.LeaderboardSize < 1 {
		return errors.New("config: LEADERBOARD_SIZE must be at least 1")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("config: KAFKA_TOPIC is required when brokers are set")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}
