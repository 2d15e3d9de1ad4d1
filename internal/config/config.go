// Package config reads service settings from the environment. Call
// godotenv.Load first to pick up a local .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds every setting the binaries use. AWS_REGION and
// AWS_ENDPOINT_OVERRIDE are read by internal/aws directly.
type Config struct {
	AppEnv   string
	RunLocal bool
	HTTPAddr string

	OrdersTable       string
	OrderNumbersTable string
	IdempotencyTable  string
	RatesTable        string
	UsersTable        string

	QueueURL         string // empty disables events
	MetricsNamespace string

	JWTSecret string
	JWTIssuer string

	RateFeedURL     string // empty disables the live feed
	RateFeedAPIKey  string
	RateFeedTimeout time.Duration

	RedisAddr     string // empty disables the rate cache
	RedisPassword string
	RedisDB       int
	RateCacheTTL  time.Duration

	StoreTimeout       time.Duration
	IdempotencyTTL     time.Duration
	EnforceTransitions bool

	TaxRate           float64
	ShippingFee       float64
	FreeShippingAbove float64

	CORSOrigins []string
}

// IsDev reports whether APP_ENV is development.
func (c *Config) IsDev() bool { return c.AppEnv == "development" }

// Require logs and panics unless every key is set. Binaries call it for
// the settings they cannot run without.
func Require(log *zap.Logger, keys ...string) {
	for _, k := range keys {
		mustEnv(k, log)
	}
}

// Load reads the environment. A malformed value is logged and panics.
func Load(log *zap.Logger) *Config {
	return &Config{
		AppEnv:   getEnv("APP_ENV", "production"),
		RunLocal: getBool("RUN_LOCAL", false, log),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		OrdersTable:       getEnv("ORDERS_TABLE", "orders"),
		OrderNumbersTable: getEnv("ORDER_NUMBERS_TABLE", "order_numbers"),
		IdempotencyTable:  getEnv("IDEMPOTENCY_TABLE", "idempotency"),
		RatesTable:        getEnv("RATES_TABLE", "rates"),
		UsersTable:        getEnv("USERS_TABLE", "users"),

		QueueURL:         getEnv("ORDERS_QUEUE_URL", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "JewelryOrders"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "jewelry-orders"),

		RateFeedURL:     getEnv("RATE_FEED_URL", ""),
		RateFeedAPIKey:  getEnv("RATE_FEED_API_KEY", ""),
		RateFeedTimeout: getDuration("RATE_FEED_TIMEOUT", 3*time.Second, log),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0, log),
		RateCacheTTL:  getDuration("RATE_CACHE_TTL", 5*time.Minute, log),

		StoreTimeout:       getDuration("STORE_TIMEOUT", 5*time.Second, log),
		IdempotencyTTL:     getDuration("IDEMPOTENCY_TTL", 48*time.Hour, log),
		EnforceTransitions: getBool("ENFORCE_STATUS_TRANSITIONS", true, log),

		TaxRate:           getFloat("TAX_RATE", 0, log),
		ShippingFee:       getFloat("SHIPPING_FEE", 0, log),
		FreeShippingAbove: getFloat("FREE_SHIPPING_ABOVE", 0, log),

		CORSOrigins: getList("CORS_ORIGINS", []string{"*"}),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func mustEnv(key string, log *zap.Logger) {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return
	}
	log.Error("required environment variable is not set", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func invalidEnv(key, val string, err error, log *zap.Logger) {
	log.Error("malformed environment variable", zap.String("key", key), zap.String("value", val), zap.Error(err))
	panic("malformed environment variable: " + key)
}

func getBool(key string, fallback bool, log *zap.Logger) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		invalidEnv(key, val, err, log)
	}
	return b
}

func getInt(key string, fallback int, log *zap.Logger) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		invalidEnv(key, val, err, log)
	}
	return n
}

func getFloat(key string, fallback float64, log *zap.Logger) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		invalidEnv(key, val, err, log)
	}
	return f
}

func getDuration(key string, fallback time.Duration, log *zap.Logger) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		invalidEnv(key, val, err, log)
	}
	return d
}

func getList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
