package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kubesec-bank/invest-ledger/internal/money"
)

// Config holds all configuration for the ledger service and ledgerctl.
type Config struct {
	DB       DB       `yaml:"db"`
	Server   Server   `yaml:"server"`
	Auth     Auth     `yaml:"auth"`
	Redis    Redis    `yaml:"redis"`
	Nats     Nats     `yaml:"nats"`
	Oracle   Oracle   `yaml:"oracle"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Currency Currency `yaml:"currency"`
}

type DB struct {
	// Driver is postgres or sqlite.
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SQLitePath string `yaml:"sqlite_path"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
}

// Redis is optional. An empty Addr disables the quote cache and keeps
// session revocations in memory.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Nats is optional. An empty URL disables notifications.
type Nats struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type Oracle struct {
	Timeout         time.Duration `yaml:"timeout"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`

	// QuoteURL and RateURL are templates with a single %s for the ticker
	// or currency code.
	QuoteURL      string `yaml:"quote_url"`
	PricePath     string `yaml:"price_path"`
	CurrencyPath  string `yaml:"currency_path"`
	RateURL       string `yaml:"rate_url"`
	RatePath      string `yaml:"rate_path"`
	QuoteAPIToken string `yaml:"quote_api_token"`

	// Static quotes as "TICKER=PRICE:CUR" pairs, used when no remote
	// source is configured.
	StaticQuotes []string `yaml:"static_quotes"`
	StaticRates  []string `yaml:"static_rates"`
}

type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
}

type Currency struct {
	Base string `yaml:"base"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		DB: DB{
			Driver:     "postgres",
			Host:       "localhost",
			Port:       5432,
			User:       "postgres",
			Password:   "postgres",
			Name:       "ledger",
			SQLitePath: "ledger.db",
		},
		Server: Server{Port: 8080},
		Auth: Auth{
			JWTSecret: "change-me-in-production",
			JWTExpiry: 15 * time.Minute,
		},
		Nats: Nats{SubjectPrefix: "ledger"},
		Oracle: Oracle{
			Timeout:         5 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
			CacheTTL:        time.Minute,
			PricePath:       "$.price",
			CurrencyPath:    "$.currency",
			RatePath:        "$.rate",
		},
		Currency: Currency{Base: money.DefaultBaseCurrency},
	}
}

// Load reads the optional YAML file named by CONFIG_FILE and then applies
// environment variable overrides.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	var err error

	cfg.DB.Driver = getEnv("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	if cfg.DB.Port, err = getEnvInt("DB_PORT", cfg.DB.Port); err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnv("DB_NAME", cfg.DB.Name)
	cfg.DB.SQLitePath = getEnv("SQLITE_PATH", cfg.DB.SQLitePath)

	if cfg.Server.Port, err = getEnvInt("SERVER_PORT", cfg.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	if cfg.Auth.JWTExpiry, err = getEnvDuration("JWT_EXPIRY", cfg.Auth.JWTExpiry); err != nil {
		return fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Nats.URL = getEnv("NATS_URL", cfg.Nats.URL)

	if cfg.Oracle.Timeout, err = getEnvDuration("ORACLE_TIMEOUT", cfg.Oracle.Timeout); err != nil {
		return fmt.Errorf("invalid ORACLE_TIMEOUT: %w", err)
	}
	if cfg.Oracle.CacheTTL, err = getEnvDuration("ORACLE_CACHE_TTL", cfg.Oracle.CacheTTL); err != nil {
		return fmt.Errorf("invalid ORACLE_CACHE_TTL: %w", err)
	}
	cfg.Oracle.QuoteURL = getEnv("QUOTE_URL", cfg.Oracle.QuoteURL)
	cfg.Oracle.RateURL = getEnv("RATE_URL", cfg.Oracle.RateURL)
	cfg.Oracle.QuoteAPIToken = getEnv("QUOTE_API_TOKEN", cfg.Oracle.QuoteAPIToken)
	if v := os.Getenv("STATIC_QUOTES"); v != "" {
		cfg.Oracle.StaticQuotes = splitList(v)
	}
	if v := os.Getenv("STATIC_RATES"); v != "" {
		cfg.Oracle.StaticRates = splitList(v)
	}

	// Standard Alpaca SDK variable names.
	cfg.Alpaca.APIKey = getEnv("APCA_API_KEY_ID", cfg.Alpaca.APIKey)
	cfg.Alpaca.APISecret = getEnv("APCA_API_SECRET_KEY", cfg.Alpaca.APISecret)
	cfg.Alpaca.DataURL = getEnv("APCA_API_DATA_URL", cfg.Alpaca.DataURL)

	cfg.Currency.Base = strings.ToUpper(getEnv("BASE_CURRENCY", cfg.Currency.Base))
	return nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	if !money.ValidCurrency(c.Currency.Base) {
		return fmt.Errorf("unknown BASE_CURRENCY %q", c.Currency.Base)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DB.Driver == "sqlite" {
		return c.DB.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name,
	)
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	return strconv.Atoi(val)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	return time.ParseDuration(val)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
