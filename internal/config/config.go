package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/EricDistort/QuberX/internal/models"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr       string
	MetricsAddr    string
	StorageDriver  string
	PostgresDSN    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	KafkaBrokers   []string
	KafkaTopic     string
	JWTSecret      string
	JWTTTL         time.Duration
	AdminToken     string
	OTLPEndpoint   string
	LogLevel       string
	RateLimitRPS   float64
	RateLimitBurst int
	TxMaxRetries   int
	Policy         Policy
}

// Policy is the ledger rule set, optionally read from LEDGER_POLICY_FILE.
type Policy struct {
	DepositBalanceShare  decimal.Decimal   `yaml:"deposit_balance_share"`
	ReferralLevels       []decimal.Decimal `yaml:"referral_levels"`
	ReferralMaxDepth     int               `yaml:"referral_max_depth"`
	IdempotencyRetention time.Duration     `yaml:"idempotency_retention"`
	HistoryLimit         int               `yaml:"history_limit"`
	BalanceCacheTTL      time.Duration     `yaml:"balance_cache_ttl"`
	PruneSchedule        string            `yaml:"prune_schedule"`
	ReconcileSchedule    string            `yaml:"reconcile_schedule"`
	StalePendingAfter    time.Duration     `yaml:"stale_pending_after"`
	LimiterSweepSchedule string            `yaml:"limiter_sweep_schedule"`
	LimiterIdleAfter     time.Duration     `yaml:"limiter_idle_after"`
	// Products seeds the catalog when STORAGE_DRIVER=memory.
	Products []ProductSeed `yaml:"products"`
}

type ProductSeed struct {
	Name     string          `yaml:"name"`
	Price    decimal.Decimal `yaml:"price"`
	ImageURL string          `yaml:"image_url"`
}

// Catalog numbers the seeded products from 1 in file order.
func (p Policy) Catalog() []models.Product {
	out := make([]models.Product, 0, len(p.Products))
	for i, seed := range p.Products {
		out = append(out, models.Product{
			ID:       int64(i + 1),
			Name:     seed.Name,
			Price:    seed.Price,
			ImageURL: seed.ImageURL,
			Active:   true,
		})
	}
	return out
}

func DefaultPolicy() Policy {
	return Policy{
		DepositBalanceShare:  decimal.RequireFromString("0.5"),
		ReferralLevels:       []decimal.Decimal{decimal.NewFromInt(1)},
		ReferralMaxDepth:     10,
		IdempotencyRetention: 24 * time.Hour,
		HistoryLimit:         100,
		BalanceCacheTTL:      5 * time.Minute,
		PruneSchedule:        "@every 1h",
		ReconcileSchedule:    "@every 15m",
		StalePendingAfter:    72 * time.Hour,
		LimiterSweepSchedule: "@every 10m",
		LimiterIdleAfter:     30 * time.Minute,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using environment and defaults", "error", err)
	}

	cfg := &Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
		StorageDriver: getEnv("STORAGE_DRIVER", DriverPostgres),
		PostgresDSN:   getEnv("POSTGRES_DSN", "host=localhost user=postgres password=postgres dbname=quberx sslmode=disable"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:  strings.Split(getEnv("KAFKA_BROKER", "localhost:9092"), ","),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "ledger-events"),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Policy:        DefaultPolicy(),
	}

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.TxMaxRetries, err = getInt("TX_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if path := os.Getenv("LEDGER_POLICY_FILE"); path != "" {
		if err := cfg.Policy.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("config loaded",
		"http_addr", cfg.HTTPAddr,
		"storage_driver", cfg.StorageDriver,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"kafka_topic", cfg.KafkaTopic)
	return cfg, nil
}

// LoadFile overlays the fields present in a YAML policy file.
func (p *Policy) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.TxMaxRetries < 0 {
		return fmt.Errorf("TX_MAX_RETRIES must not be negative")
	}
	return c.Policy.Validate()
}

func (p *Policy) Validate() error {
	one := decimal.NewFromInt(1)
	if p.DepositBalanceShare.IsNegative() || p.DepositBalanceShare.GreaterThan(one) {
		return fmt.Errorf("deposit_balance_share must be within [0, 1]")
	}
	for i, rate := range p.ReferralLevels {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("referral_levels[%d] must be within [0, 1]", i)
		}
	}
	if p.ReferralMaxDepth < 0 {
		return fmt.Errorf("referral_max_depth must not be negative")
	}
	if p.IdempotencyRetention <= 0 {
		return fmt.Errorf("idempotency_retention must be positive")
	}
	if p.HistoryLimit <= 0 {
		return fmt.Errorf("history_limit must be positive")
	}
	for name, schedule := range map[string]string{
		"prune_schedule":         p.PruneSchedule,
		"reconcile_schedule":     p.ReconcileSchedule,
		"limiter_sweep_schedule": p.LimiterSweepSchedule,
	} {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, schedule, err)
		}
	}
	if p.LimiterIdleAfter <= 0 {
		return fmt.Errorf("limiter_idle_after must be positive")
	}
	for i, seed := range p.Products {
		if strings.TrimSpace(seed.Name) == "" {
			return fmt.Errorf("products[%d]: name is required", i)
		}
		if !seed.Price.IsPositive() {
			return fmt.Errorf("products[%d]: price must be positive", i)
		}
	}
	return nil
}
