// Package config loads process settings from the environment, optionally
// seeded from a local .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env        string `mapstructure:"ENV"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	// Store selects the account store: "postgres" or "memory".
	Store       string `mapstructure:"STORE"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBUser      string `mapstructure:"DB_USER"`
	DBPassword  string `mapstructure:"DB_PASSWORD"`
	DBHost      string `mapstructure:"DB_HOST"`
	DBPort      string `mapstructure:"DB_PORT"`
	DBName      string `mapstructure:"DB_NAME"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	BalanceCacheTTL time.Duration `mapstructure:"BALANCE_CACHE_TTL"`

	RabbitMQURL        string `mapstructure:"RABBITMQ_URL"`
	SettlementExchange string `mapstructure:"SETTLEMENT_EXCHANGE"`

	AutoConfirmAfter  time.Duration `mapstructure:"AUTO_CONFIRM_AFTER"`
	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
	WorkerMetricsPort string        `mapstructure:"WORKER_METRICS_PORT"`
	DefaultCurrency   string        `mapstructure:"DEFAULT_CURRENCY"`
}

var keys = []string{
	"ENV", "LOG_LEVEL", "SERVER_PORT", "STORE", "DATABASE_URL",
	"DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME", "DB_MAX_CONNS",
	"JWT_SECRET", "REDIS_ADDR", "BALANCE_CACHE_TTL", "RABBITMQ_URL", "SETTLEMENT_EXCHANGE",
	"AUTO_CONFIRM_AFTER", "WORKER_CONCURRENCY", "WORKER_METRICS_PORT", "DEFAULT_CURRENCY",
}

// Load reads .env (if present) into the process environment, then resolves
// every key from the environment with defaults applied.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		// Missing files are fine; real deployments set the environment directly.
		_ = godotenv.Load(p)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("STORE", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("BALANCE_CACHE_TTL", "30s")
	v.SetDefault("SETTLEMENT_EXCHANGE", "settlement_events")
	v.SetDefault("AUTO_CONFIRM_AFTER", "72h")
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_METRICS_PORT", "9091")
	v.SetDefault("DEFAULT_CURRENCY", "USD")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Store {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" && (c.DBUser == "" || c.DBName == "") {
			return errors.New("DATABASE_URL or DB_USER/DB_NAME is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	if c.AutoConfirmAfter < 0 {
		return errors.New("AUTO_CONFIRM_AFTER must not be negative")
	}
	return nil
}

// DSN prefers DATABASE_URL and otherwise assembles one from the DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) Production() bool {
	return c.Env == "production"
}
