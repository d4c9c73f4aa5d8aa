package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/punchamoorthee/pursledger/internal/bundle"
)

const (
	BackendPostgres = "postgres"
	BackendDataAPI  = "rdsdata"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	DBSource string
	Port     string
	Env      string
	LogLevel string

	Backend string
	Target  bundle.Target
	Region  string
	Policy  bundle.Policy

	// TxIdleTimeout is how long a token-held transaction may sit unused before
	// it is rolled back.
	TxIdleTimeout time.Duration

	ServiceName  string
	OTLPEndpoint string
}

// Load reads the configuration from the environment. Values found in
// .env.<APP_ENV> are applied first without overriding variables that are
// already set; a missing file is not an error.
func Load() (*Config, error) {
	appEnv := getEnv("APP_ENV", "development")
	if err := godotenv.Load(".env." + appEnv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env.%s: %w", appEnv, err)
	}

	policy, err := bundle.ParsePolicy(os.Getenv("FAILURE_POLICY"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	idle, err := time.ParseDuration(getEnv("TX_IDLE_TIMEOUT", "5m"))
	if err != nil || idle <= 0 {
		return nil, fmt.Errorf("%w: TX_IDLE_TIMEOUT must be a positive duration", ErrInvalidConfig)
	}

	cfg := &Config{
		DBSource: os.Getenv("DB_SOURCE"),
		Port:     getEnv("SERVER_PORT", "8080"),
		Env:      getEnv("ENVIRONMENT", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Backend: getEnv("STORE_BACKEND", BackendPostgres),
		Target: bundle.Target{
			Database:    os.Getenv("DATABASE"),
			SecretARN:   os.Getenv("SECRET_ARN"),
			ResourceARN: os.Getenv("CLUSTER_ARN"),
		},
		Region: getEnv("AWS_REGION", "us-west-2"),
		Policy: policy,

		TxIdleTimeout: idle,

		ServiceName:  getEnv("SERVICE_NAME", "pursledger"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendPostgres:
		if c.DBSource == "" {
			return fmt.Errorf("%w: DB_SOURCE environment variable is required", ErrInvalidConfig)
		}
	case BackendDataAPI:
		if c.Target.Database == "" || c.Target.SecretARN == "" || c.Target.ResourceARN == "" {
			return fmt.Errorf("%w: DATABASE, SECRET_ARN and CLUSTER_ARN are required for the rdsdata backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORE_BACKEND %q", ErrInvalidConfig, c.Backend)
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
