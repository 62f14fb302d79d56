// Package server provides configuration helpers that define runtime
// defaults, validation, and lifecycle parameters for the DeskChat service.
package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimitConfig defines the fixed-window parameters for per-connection
// message rate limiting.
type RateLimitConfig struct {
	Limit  int           `env:"RATE_LIMIT_MESSAGES" envDefault:"10"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
}

// TelegramConfig carries the optional operator notification sink settings.
// Both values must be set for the sink to activate.
type TelegramConfig struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"TELEGRAM_CHAT_ID"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port              string        `env:"SERVER_PORT" envDefault:":8080"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE" envDefault:"4096"`
	AdminUsername     string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	GracePeriod       time.Duration `env:"RECONNECT_GRACE_PERIOD" envDefault:"15s"`
	RoomMaxAge        time.Duration `env:"ROOM_MAX_AGE" envDefault:"2h"`
	RateLimit         RateLimitConfig
	Telegram          TelegramConfig
}

var (
	configMu        sync.RWMutex
	activeConfig    Config
	allowedOrigins  map[string]struct{}
	allowAllOrigins bool
)

func init() {
	SetConfig(nil)
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		AdminUsername:  "admin",
		GracePeriod:    15 * time.Second,
		RoomMaxAge:     2 * time.Hour,
		RateLimit: RateLimitConfig{
			Limit:  10,
			Window: 60 * time.Second,
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = ":8080"
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}

	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin"
	}

	if cfg.RateLimit.Limit <= 0 {
		cfg.RateLimit.Limit = 10
	}

	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = 60 * time.Second
	}

	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 15 * time.Second
	}

	if cfg.RoomMaxAge <= 0 {
		cfg.RoomMaxAge = 2 * time.Hour
	}

	normalizedOrigins, allowAll := normalizeOrigins(cfg.AllowedOrigins)
	cfg.AllowedOrigins = normalizedOrigins

	configMu.Lock()
	defer configMu.Unlock()

	activeConfig = cfg
	allowAllOrigins = allowAll
	allowedOrigins = make(map[string]struct{}, len(normalizedOrigins))
	for _, origin := range normalizedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	return cfg
}

// SetConfig applies the provided configuration. Passing nil resets to defaults.
func SetConfig(cfg *Config) {
	if cfg == nil {
		defaultCfg := defaultConfig()
		sanitizeConfig(defaultCfg)
		return
	}

	sanitized := Config{
		Port:              cfg.Port,
		AllowedOrigins:    append([]string(nil), cfg.AllowedOrigins...),
		MaxMessageSize:    cfg.MaxMessageSize,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: cfg.AdminPasswordHash,
		GracePeriod:       cfg.GracePeriod,
		RoomMaxAge:        cfg.RoomMaxAge,
		RateLimit:         cfg.RateLimit,
		Telegram:          cfg.Telegram,
	}
	sanitizeConfig(sanitized)
}

func currentConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()

	cfg := activeConfig
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Unset variables fall back to the struct tag defaults.
func NewConfigFromEnv() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = defaultConfig().AllowedOrigins
	}
	return &cfg, nil
}
