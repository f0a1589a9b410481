package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
)

// devSecret signs tokens when APP_ENV=dev and no JWT_SECRET is set.
const devSecret = "giftshop-dev-secret"

type Config struct {
	AppEnv   string `env:"APP_ENV,default=dev"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
	HTTPPort int    `env:"HTTP_PORT,default=8082"`

	StoreDriver string `env:"STORE_DRIVER,default=memory"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH,default=giftshop.db"`
	RedisAddr   string `env:"REDIS_ADDR,default=localhost:6379"`

	JWTSecret  string        `env:"JWT_SECRET"`
	TokenTTL   time.Duration `env:"TOKEN_TTL,default=24h"`
	BcryptCost int           `env:"BCRYPT_COST,default=10"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=40"`
	TrustProxy     bool    `env:"TRUST_PROXY,default=false"`

	SeedOnStart bool `env:"SEED_ON_START,default=false"`
}

// Load reads the optional dotenv files (default .env) into the environment
// without overriding variables already set, then decodes Config.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverRedis:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.JWTSecret == "" {
		if c.AppEnv != "dev" {
			return errors.New("JWT_SECRET is required outside dev")
		}
		c.JWTSecret = devSecret
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf(":%d", c.HTTPPort) }
