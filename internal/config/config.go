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

// Config - параметры клиента ленты
type Config struct {
	API struct {
		BaseURL           string        `yaml:"base_url"`
		Timeout           time.Duration `yaml:"timeout"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Burst             int           `yaml:"burst"`
	} `yaml:"api"`
	Realtime struct {
		URL              string        `yaml:"url"`
		HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	} `yaml:"realtime"`
	Storage struct {
		Type     string `yaml:"type"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"storage"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = "http://localhost:5000"
	cfg.API.Timeout = 15 * time.Second
	cfg.API.RequestsPerSecond = 20
	cfg.API.Burst = 40
	cfg.Realtime.HandshakeTimeout = 10 * time.Second
	cfg.Storage.Type = "memory"
	cfg.Storage.Redis.Addr = "localhost:6379"
	cfg.Storage.Redis.Prefix = "casefeed:"
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	return cfg
}

// Load читает YAML-файл (если он есть), затем .env и переменные окружения CASEFEED_*.
// Отсутствующий файл конфигурации не является ошибкой.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// .env необязателен
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Realtime.URL == "" {
		cfg.Realtime.URL = websocketURL(cfg.API.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.New("api.requests_per_second must not be negative")
	}
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return errors.New("storage.postgres.dsn is required for postgres storage")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.API.BaseURL = getEnv("CASEFEED_API_URL", c.API.BaseURL)
	c.Realtime.URL = getEnv("CASEFEED_REALTIME_URL", c.Realtime.URL)
	c.Storage.Type = getEnv("CASEFEED_STORAGE", c.Storage.Type)
	c.Storage.Postgres.DSN = getEnv("CASEFEED_POSTGRES_DSN", c.Storage.Postgres.DSN)
	c.Storage.Redis.Addr = getEnv("CASEFEED_REDIS_ADDR", c.Storage.Redis.Addr)
	c.Storage.Redis.Password = getEnv("CASEFEED_REDIS_PASSWORD", c.Storage.Redis.Password)
	c.Server.Port = getEnv("CASEFEED_PORT", c.Server.Port)
	c.Log.Level = getEnv("CASEFEED_LOG_LEVEL", c.Log.Level)

	if v, ok := os.LookupEnv("CASEFEED_API_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid CASEFEED_API_TIMEOUT: %w", err)
		}
		c.API.Timeout = d
	}
	if v, ok := os.LookupEnv("CASEFEED_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CASEFEED_REDIS_DB: %w", err)
		}
		c.Storage.Redis.DB = n
	}
	return nil
}

// websocketURL выводит адрес канала из адреса API: http -> ws, https -> wss
func websocketURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/socket"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/socket"
	}
	return base
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
