// Package config loads server settings from defaults, an optional YAML file,
// a .env file and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the resolved server configuration.
type Config struct {
	Port              string
	DatabaseURL       string
	MongoURL          string
	MongoDatabase     string
	RedisURL          string
	JWTSecret         string
	RequestTimeout    time.Duration
	LatestPageSize    int
	SessionTTL        time.Duration
	CacheTTL          time.Duration
	AuthRatePerMinute int
	CORSOrigins       []string
	SecureCookies     bool
	LogLevel          slog.Level
}

// devSecret is only used when JWT_SECRET is unset.
const devSecret = "dev-only-insecure-secret"

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("database_url", "")
	v.SetDefault("mongo_url", "")
	v.SetDefault("mongo_database", "pricetracker")
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("latest_page_size", 1000)
	v.SetDefault("session_ttl", "168h")
	v.SetDefault("cache_ttl", "30s")
	v.SetDefault("auth_rate_per_minute", 5)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("log_level", "info")
}

// Load reads configFile (may be empty or missing) plus .env and the
// environment. Environment keys are the upper-case setting names, e.g.
// DATABASE_URL.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable .env", "err", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", configFile, err)
			}
			slog.Info("config file not found, using defaults and environment", "file", configFile)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:              v.GetString("port"),
		DatabaseURL:       v.GetString("database_url"),
		MongoURL:          v.GetString("mongo_url"),
		MongoDatabase:     v.GetString("mongo_database"),
		RedisURL:          v.GetString("redis_url"),
		JWTSecret:         v.GetString("jwt_secret"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		LatestPageSize:    v.GetInt("latest_page_size"),
		SessionTTL:        v.GetDuration("session_ttl"),
		CacheTTL:          v.GetDuration("cache_ttl"),
		AuthRatePerMinute: v.GetInt("auth_rate_per_minute"),
		SecureCookies:     v.GetBool("secure_cookies"),
	}
	for _, o := range strings.Split(v.GetString("cors_origins"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log_level"))); err != nil {
		return nil, fmt.Errorf("log_level: %w", err)
	}

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using an insecure development secret")
		cfg.JWTSecret = devSecret
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request_timeout must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.LatestPageSize <= 0 {
		return nil, fmt.Errorf("latest_page_size must be positive, got %d", cfg.LatestPageSize)
	}
	return cfg, nil
}
