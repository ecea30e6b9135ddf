package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	ServerPort          string  `mapstructure:"SERVER_PORT"`
	AppEnv              string  `mapstructure:"APP_ENV"`
	StoreDriver         string  `mapstructure:"STORE_DRIVER"`
	DatabaseURL         string  `mapstructure:"DATABASE_URL"`
	DBMaxOpenConns      int     `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns      int     `mapstructure:"DB_MAX_IDLE_CONNS"`
	MigrationsDir       string  `mapstructure:"MIGRATIONS_DIR"`
	JWTSecret           string  `mapstructure:"JWT_SECRET"`
	InternalAPIKey      string  `mapstructure:"INTERNAL_API_KEY"`
	RedisURL            string  `mapstructure:"REDIS_URL"`
	RedisChannel        string  `mapstructure:"REDIS_CHANNEL"`
	RabbitMQURL         string  `mapstructure:"RABBITMQ_URL"`
	EventExchange       string  `mapstructure:"EVENT_EXCHANGE"`
	EventQueue          string  `mapstructure:"EVENT_QUEUE"`
	DeliveryWorkers     int     `mapstructure:"DELIVERY_WORKERS"`
	LowBalanceThreshold float64 `mapstructure:"LOW_BALANCE_THRESHOLD"`
	CashbackMinOrder    float64 `mapstructure:"CASHBACK_MIN_ORDER"`
	CashbackPercent     float64 `mapstructure:"CASHBACK_PERCENT"`
	ReconcileSchedule   string  `mapstructure:"RECONCILE_SCHEDULE"`
	AllowedOrigins      string  `mapstructure:"ALLOWED_ORIGINS"`
}

var keys = []string{
	"SERVER_PORT", "APP_ENV", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS",
	"MIGRATIONS_DIR", "JWT_SECRET", "INTERNAL_API_KEY", "REDIS_URL", "REDIS_CHANNEL", "RABBITMQ_URL",
	"EVENT_EXCHANGE", "EVENT_QUEUE", "DELIVERY_WORKERS", "LOW_BALANCE_THRESHOLD", "CASHBACK_MIN_ORDER",
	"CASHBACK_PERCENT", "RECONCILE_SCHEDULE", "ALLOWED_ORIGINS",
}

// Load reads path/.env into the process environment when present, then
// resolves every key from the environment over the defaults.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(path, ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("REDIS_CHANNEL", "aquawallet:realtime")
	v.SetDefault("EVENT_EXCHANGE", "aquawallet.events")
	v.SetDefault("EVENT_QUEUE", "aquawallet.wallet_notifications")
	v.SetDefault("DELIVERY_WORKERS", 8)
	v.SetDefault("LOW_BALANCE_THRESHOLD", 100)
	v.SetDefault("CASHBACK_MIN_ORDER", 100)
	v.SetDefault("CASHBACK_PERCENT", 2)
	v.SetDefault("RECONCILE_SCHEDULE", "@hourly")
	v.SetDefault("ALLOWED_ORIGINS", "*")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.ServerPort = port
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.RabbitMQURL = strings.TrimSpace(cfg.RabbitMQURL)

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.DeliveryWorkers < 1 {
		return errors.New("DELIVERY_WORKERS must be positive")
	}
	if c.LowBalanceThreshold <= 0 {
		return errors.New("LOW_BALANCE_THRESHOLD must be positive")
	}
	if c.CashbackPercent < 0 || c.CashbackMinOrder < 0 {
		return errors.New("cashback settings must not be negative")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) LowBalance() decimal.Decimal {
	return decimal.NewFromFloat(c.LowBalanceThreshold)
}

func (c *Config) CashbackMin() decimal.Decimal {
	return decimal.NewFromFloat(c.CashbackMinOrder)
}

func (c *Config) CashbackRate() decimal.Decimal {
	return decimal.NewFromFloat(c.CashbackPercent)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// OriginAllowed reports whether origin may open a websocket.
func (c *Config) OriginAllowed(origin string) bool {
	for _, o := range c.Origins() {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
