// Package config loads runtime settings from the environment, after reading
// a .env file when one is present.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Send policies select which gate the relay runs before persisting.
const (
	PolicyOpen      = "open"
	PolicyDirectory = "directory"
	PolicyFriends   = "friends"
)

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBURL          string `envconfig:"DB_URL" required:"true"`
	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"true"`

	NATSURL       string        `envconfig:"NATS_URL" required:"true"`
	NATSCred      string        `envconfig:"NATS_CRED"`
	NATSUser      string        `envconfig:"NATS_USER"`
	NATSPassword  string        `envconfig:"NATS_PASSWORD"`
	ReconnectWait time.Duration `envconfig:"NATS_RECONNECT_WAIT" default:"2s"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string        `envconfig:"JWT_ISS" default:"recipechat"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"60m"`

	SendPolicy     string        `envconfig:"SEND_POLICY" default:"directory"`
	MessageBurst   int           `envconfig:"MESSAGE_BURST" default:"30"`
	MessageWindow  time.Duration `envconfig:"MESSAGE_WINDOW" default:"1m"`
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"8192"`
	PingInterval   time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	IdleTimeout    time.Duration `envconfig:"IDLE_TIMEOUT" default:"0s"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS"`

	LoginBurst  int           `envconfig:"LOGIN_BURST" default:"10"`
	LoginWindow time.Duration `envconfig:"LOGIN_WINDOW" default:"1m"`
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot express as tags.
func (c Config) Validate() error {
	var errs []error

	if c.DBURL == "" || c.NATSURL == "" || c.JWTSecret == "" {
		errs = append(errs, errors.New("config: DB_URL, NATS_URL and JWT_SECRET are required"))
	}

	switch strings.ToLower(c.SendPolicy) {
	case PolicyOpen, PolicyDirectory, PolicyFriends:
	default:
		errs = append(errs, fmt.Errorf("config: unknown SEND_POLICY %q", c.SendPolicy))
	}

	if c.MessageBurst <= 0 || c.MessageWindow <= 0 {
		errs = append(errs, errors.New("config: MESSAGE_BURST and MESSAGE_WINDOW must be positive"))
	}
	if c.LoginBurst <= 0 || c.LoginWindow <= 0 {
		errs = append(errs, errors.New("config: LOGIN_BURST and LOGIN_WINDOW must be positive"))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("config: PING_INTERVAL must be positive"))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, errors.New("config: IDLE_TIMEOUT must not be negative"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("config: MAX_MESSAGE_SIZE must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("config: TOKEN_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
