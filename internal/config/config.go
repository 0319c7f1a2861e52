package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"required,numeric"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=json console"`
		File   string `yaml:"file"`
	} `yaml:"log"`
	Content struct {
		URL           string `yaml:"url" validate:"omitempty,url"`
		Token         string `yaml:"token"`
		Timeout       string `yaml:"timeout"`
		SubmitTimeout string `yaml:"submit_timeout"`
	} `yaml:"content"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Quiz struct {
		TTL          string `yaml:"ttl"`
		TickInterval string `yaml:"tick_interval"`
	} `yaml:"quiz"`
	WebSocket struct {
		MessagesPerSecond float64 `yaml:"messages_per_second" validate:"gte=0"`
		Burst             int     `yaml:"burst" validate:"gte=0"`
	} `yaml:"websocket"`
}

// Load reads YAML config from path, then applies a .env file and environment overrides.
// A missing config file is not an error; defaults and the environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}

	// .env is optional in every environment
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if raw := cfg.Quiz.TickInterval; raw != "" {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return cfg, fmt.Errorf("invalid config: quiz.tick_interval must be a positive duration, got %q", raw)
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Content.URL, "CONTENT_API_URL")
	setString(&cfg.Content.Token, "CONTENT_API_TOKEN")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Postgres.URL, "POSTGRES_URL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "quiz.result_submitted"
	}
	if cfg.WebSocket.MessagesPerSecond == 0 {
		cfg.WebSocket.MessagesPerSecond = 10
	}
	if cfg.WebSocket.Burst == 0 {
		cfg.WebSocket.Burst = 20
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
