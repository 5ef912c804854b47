// Package config loads service configuration from defaults, an optional
// JSON file and environment overrides, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	Port              string `json:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec"`
	JWTSecret         string `json:"jwt_secret"`
}

type Database struct {
	Path string `json:"path"`
}

type Redis struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type Cache struct {
	TTLSec        int    `json:"ttl_sec"`
	NameTTLSec    int    `json:"name_ttl_sec"`
	SweepSchedule string `json:"sweep_schedule"`
}

type Provider struct {
	Enabled              bool   `json:"enabled"`
	APIKey               string `json:"api_key"`
	Endpoint             string `json:"endpoint"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute"`
	TimeoutSec           int    `json:"timeout_sec"`
}

type OpenFIGI struct {
	Endpoint   string `json:"endpoint"`
	APIKey     string `json:"api_key"`
	TimeoutSec int    `json:"timeout_sec"`
}

type TierLimit struct {
	MaxRequests int `json:"max_requests"`
	WindowSec   int `json:"window_sec"`
}

type Breaker struct {
	FailureThreshold   int `json:"failure_threshold"`
	RecoveryTimeoutSec int `json:"recovery_timeout_sec"`
	HalfOpenMaxCalls   int `json:"half_open_max_calls"`
}

type Streaming struct {
	Enabled bool   `json:"enabled"`
	FeedURL string `json:"feed_url"`
	APIKey  string `json:"api_key"`
}

type Config struct {
	Server       Server               `json:"server"`
	Database     Database             `json:"database"`
	Redis        Redis                `json:"redis"`
	Cache        Cache                `json:"cache"`
	AlphaVantage Provider             `json:"alphavantage"`
	Finnhub      Provider             `json:"finnhub"`
	OpenFIGI     OpenFIGI             `json:"openfigi"`
	Tiers        map[string]TierLimit `json:"tiers"`
	Breaker      Breaker              `json:"breaker"`
	Streaming    Streaming            `json:"streaming"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:              "8080",
			RequestTimeoutSec: 10,
			JWTSecret:         "resolver-dev-secret",
		},
		Database: Database{Path: "resolver.db"},
		Redis: Redis{
			Enabled: true,
			Addr:    "localhost:6379",
		},
		Cache: Cache{
			TTLSec:        300,
			NameTTLSec:    900,
			SweepSchedule: "*/10 * * * *",
		},
		AlphaVantage: Provider{
			Enabled:              true,
			Endpoint:             "https://www.alphavantage.co/query",
			MaxRequestsPerMinute: 5,
			TimeoutSec:           8,
		},
		Finnhub: Provider{
			Enabled:              true,
			Endpoint:             "https://finnhub.io/api/v1",
			MaxRequestsPerMinute: 60,
			TimeoutSec:           8,
		},
		OpenFIGI: OpenFIGI{
			Endpoint:   "https://api.openfigi.com",
			TimeoutSec: 8,
		},
		Tiers: map[string]TierLimit{
			"anonymous":  {MaxRequests: 30, WindowSec: 60},
			"free":       {MaxRequests: 120, WindowSec: 60},
			"paid":       {MaxRequests: 600, WindowSec: 60},
			"enterprise": {MaxRequests: 3000, WindowSec: 60},
		},
		Breaker: Breaker{
			FailureThreshold:   5,
			RecoveryTimeoutSec: 30,
			HalfOpenMaxCalls:   2,
		},
		Streaming: Streaming{
			Enabled: false,
			FeedURL: "wss://stream.example.com/prices",
		},
	}
}

// Load reads configuration. A .env file is honoured when present, then the
// JSON file at path (or ./config.json), then environment variables.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

// RequestTimeout returns the per-request deadline as a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

func applyEnv(cfg *Config) {
	envStr("PORT", &cfg.Server.Port)
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec)
	envStr("JWT_SECRET", &cfg.Server.JWTSecret)

	envStr("DATABASE_PATH", &cfg.Database.Path)

	envBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	envStr("REDIS_ADDR", &cfg.Redis.Addr)
	envStr("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)

	envInt("CACHE_TTL_SEC", &cfg.Cache.TTLSec)
	envInt("CACHE_NAME_TTL_SEC", &cfg.Cache.NameTTLSec)
	envStr("CACHE_SWEEP_SCHEDULE", &cfg.Cache.SweepSchedule)

	envBool("ALPHAVANTAGE_ENABLED", &cfg.AlphaVantage.Enabled)
	envStr("ALPHAVANTAGE_API_KEY", &cfg.AlphaVantage.APIKey)
	envStr("ALPHAVANTAGE_ENDPOINT", &cfg.AlphaVantage.Endpoint)
	envInt("ALPHAVANTAGE_MAX_RPM", &cfg.AlphaVantage.MaxRequestsPerMinute)

	envBool("FINNHUB_ENABLED", &cfg.Finnhub.Enabled)
	envStr("FINNHUB_API_KEY", &cfg.Finnhub.APIKey)
	envStr("FINNHUB_ENDPOINT", &cfg.Finnhub.Endpoint)
	envInt("FINNHUB_MAX_RPM", &cfg.Finnhub.MaxRequestsPerMinute)

	envStr("OPENFIGI_ENDPOINT", &cfg.OpenFIGI.Endpoint)
	envStr("OPENFIGI_API_KEY", &cfg.OpenFIGI.APIKey)

	envInt("BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	envInt("BREAKER_RECOVERY_TIMEOUT_SEC", &cfg.Breaker.RecoveryTimeoutSec)
	envInt("BREAKER_HALF_OPEN_MAX_CALLS", &cfg.Breaker.HalfOpenMaxCalls)

	envBool("STREAMING_ENABLED", &cfg.Streaming.Enabled)
	envStr("STREAMING_FEED_URL", &cfg.Streaming.FeedURL)
	envStr("STREAMING_API_KEY", &cfg.Streaming.APIKey)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(v); err == nil && x >= 0 {
			*dst = x
		}
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}
