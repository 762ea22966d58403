package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/jonwraymond/querykit/storage"
)

var errInvalidConfig = errors.New("querydemo: invalid config")

// config is read from QUERYDEMO_* environment variables.
type config struct {
	Addr            string        `env:"QUERYDEMO_ADDR" envDefault:":8080"`
	ServiceName     string        `env:"QUERYDEMO_SERVICE_NAME" envDefault:"querydemo"`
	Version         string        `env:"QUERYDEMO_VERSION" envDefault:"dev"`
	LogLevel        string        `env:"QUERYDEMO_LOG_LEVEL" envDefault:"info"`
	TracingExporter string        `env:"QUERYDEMO_TRACING_EXPORTER" envDefault:"none"`
	MetricsExporter string        `env:"QUERYDEMO_METRICS_EXPORTER" envDefault:"prometheus"`
	ShutdownTimeout time.Duration `env:"QUERYDEMO_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Storage    storage.Driver `env:"QUERYDEMO_STORAGE" envDefault:"memory"`
	FileDir    string         `env:"QUERYDEMO_FILE_DIR"`
	SQLitePath string         `env:"QUERYDEMO_SQLITE_PATH" envDefault:"querydemo.db"`
	RedisAddr  string         `env:"QUERYDEMO_REDIS_ADDR" envDefault:"localhost:6379"`

	// RedisPassword is read from the file named by the variable.
	RedisPassword string `env:"QUERYDEMO_REDIS_PASSWORD_FILE,file"`

	Scope          string        `env:"QUERYDEMO_SCOPE" envDefault:"all"`
	StaleDuration  time.Duration `env:"QUERYDEMO_STALE_DURATION" envDefault:"5s"`
	GCTime         time.Duration `env:"QUERYDEMO_GC_TIME" envDefault:"5m"`
	RefetchOnStale bool          `env:"QUERYDEMO_REFETCH_ON_STALE" envDefault:"false"`
	FetchTimeout   time.Duration `env:"QUERYDEMO_FETCH_TIMEOUT" envDefault:"30s"`
	AwaitRefetch   bool          `env:"QUERYDEMO_AWAIT_REFETCH" envDefault:"true"`
	BackendLatency time.Duration `env:"QUERYDEMO_BACKEND_LATENCY" envDefault:"0s"`
}

func loadConfig() (config, error) {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// Validate checks values env.Parse cannot.
func (c config) Validate() error {
	switch c.Storage {
	case storage.DriverMemory, storage.DriverFile, storage.DriverSQLite, storage.DriverRedis:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", errInvalidConfig, c.Storage)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: address is empty", errInvalidConfig)
	}
	if c.StaleDuration < 0 || c.GCTime < 0 || c.FetchTimeout < 0 || c.BackendLatency < 0 {
		return fmt.Errorf("%w: durations must not be negative", errInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", errInvalidConfig)
	}
	return nil
}
