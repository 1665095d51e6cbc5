package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type GatewayConfig struct {
	Zibal struct {
		Merchant    string        `yaml:"merchant"`
		CallbackURL string        `yaml:"callback_url"`
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"zibal"`
}

type RateLimitConfig struct {
	StartPerMinute int `yaml:"start_per_minute"`
}

type WorkersConfig struct {
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
	ReconcileStaleAfter time.Duration `yaml:"reconcile_stale_after"`
	SweepInterval       time.Duration `yaml:"sweep_interval"`
	ReserveTTL          time.Duration `yaml:"reserve_ttl"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Workers   WorkersConfig   `yaml:"workers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Gateway.Zibal.Timeout <= 0 {
		cfg.Gateway.Zibal.Timeout = 15 * time.Second
	}
	if cfg.RateLimit.StartPerMinute <= 0 {
		cfg.RateLimit.StartPerMinute = 5
	}
	if cfg.Workers.ReconcileInterval <= 0 {
		cfg.Workers.ReconcileInterval = time.Minute
	}
	if cfg.Workers.ReconcileStaleAfter <= 0 {
		cfg.Workers.ReconcileStaleAfter = 10 * time.Minute
	}
	if cfg.Workers.SweepInterval <= 0 {
		cfg.Workers.SweepInterval = time.Hour
	}
	if cfg.Workers.ReserveTTL <= 0 {
		cfg.Workers.ReserveTTL = 24 * time.Hour
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, errors.New("redis.addr is required")
	}
	if cfg.Gateway.Zibal.Merchant == "" {
		return nil, errors.New("gateway.zibal.merchant is required")
	}
	if cfg.Gateway.Zibal.CallbackURL == "" {
		return nil, errors.New("gateway.zibal.callback_url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
