package config

import (
	"flag"
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Address string `env:"RUN_ADDRESS"`
	DBPath  string `env:"DATABASE_URI"`

	NodeURL      string `env:"NODE_RPC_URL"`
	NodeUser     string `env:"NODE_RPC_USER"`
	NodePassword string `env:"NODE_RPC_PASSWORD"`

	MinConfirmations int `env:"MIN_CONFIRMATIONS" env-default:"1"`

	FeePercent string `env:"FEE_PERCENT" env-default:"0.01"`
	FeeMin     string `env:"FEE_MIN" env-default:"0.0001"`
	FeeMax     string `env:"FEE_MAX" env-default:"0.5"`
	NetworkFee string `env:"NETWORK_FEE" env-default:"0.0001"`

	PollAttempts   int `env:"POLL_ATTEMPTS" env-default:"60"`
	PollIntervalMs int `env:"POLL_INTERVAL_MS" env-default:"2000"`

	SweepIntervalSec int `env:"SWEEP_INTERVAL_SEC" env-default:"30"`
	SweepWorkers     int `env:"SWEEP_WORKERS" env-default:"5"`

	AdminKey  string `env:"ADMIN_KEY"`
	JWTSecret string `env:"JWT_SECRET" env-default:"supersecretkey"`
}

func NewConfig() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.Address, "a", "localhost:8080", "Address of the HTTP server")
	flag.StringVar(&cfg.DBPath, "d", "", "Database address")
	flag.StringVar(&cfg.NodeURL, "n", "http://localhost:8232", "URL of the chain node RPC endpoint")
	flag.Parse()

	// Environment wins over flags.
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("couldn't read environment variables: %w", err)
	}

	return cfg, nil
}
