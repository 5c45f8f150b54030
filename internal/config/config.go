package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"dev"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseURL string `env:"DATABASE_URL,notEmpty"`
	JWTSecret   string `env:"JWT_SECRET,notEmpty"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`

	// Worker identity; falls back to hostname-pid when empty.
	WorkerID           string        `env:"WORKER_ID"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"800ms"`

	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	SweepStuckAfter time.Duration `env:"SWEEP_STUCK_AFTER" envDefault:"30m"`
	SweepMode       string        `env:"SWEEP_MODE" envDefault:"requeue"` // requeue|fail

	DocumentDir string `env:"DOCUMENT_DIR" envDefault:"./data/documents"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
