// Package config loads server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port       int    `env:"PORT" envDefault:"3000"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`

	StoreDriver      string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	ConnectTimeout   time.Duration `env:"STORE_CONNECT_TIMEOUT" envDefault:"5s"`
	OperationTimeout time.Duration `env:"STORE_OPERATION_TIMEOUT" envDefault:"45s"`
	RetryInterval    time.Duration `env:"STORE_RETRY_INTERVAL" envDefault:"5s"`
	MaxOpenConns     int           `env:"STORE_MAX_OPEN_CONNS" envDefault:"10"`
	// MaxIdleConns caps pooled idle connections; database/sql has no minimum.
	MaxIdleConns     int           `env:"STORE_MAX_IDLE_CONNS" envDefault:"2"`

	UploadDir       string `env:"UPLOAD_DIR" envDefault:"public/uploads"`
	UploadURLPrefix string `env:"UPLOAD_URL_PREFIX" envDefault:"/uploads"`
	MaxUploadBytes  int64  `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`

	RollHistorySize int `env:"ROLL_HISTORY_SIZE" envDefault:"20"`

	WSOutboxSize   int           `env:"WS_OUTBOX_SIZE" envDefault:"32"`
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"3s"`
	WSReadTimeout  time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env (if present) and then the environment. Variables already
// set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.RollHistorySize <= 0 {
		return fmt.Errorf("config: ROLL_HISTORY_SIZE must be positive")
	}
	if c.WSOutboxSize <= 0 {
		return fmt.Errorf("config: WS_OUTBOX_SIZE must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
