package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
)

// Config holds process configuration read from the environment.
type Config struct {
	AppEnv   string
	Port     string
	RunLocal bool
	LogLevel string

	PaystackSecretKey string
	PaystackPublicKey string
	PaystackBaseURL   string
	Currency          string

	DatabaseURL   string
	RunMigrations bool

	RedisURL  string
	JWTSecret string

	// AllowAnonymousVerify accepts verify calls without a bearer token, trusting user_id in the body.
	AllowAnonymousVerify bool

	CartTable        string
	ReferencesTable  string
	FollowUpQueueURL string
	MetricsNamespace string

	APIBaseURL string
}

// Load reads .env (when present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		RunLocal:             getBool("RUN_LOCAL", false),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		PaystackSecretKey:    os.Getenv("PAYSTACK_SECRET_KEY"),
		PaystackPublicKey:    os.Getenv("PAYSTACK_PUBLIC_KEY"),
		PaystackBaseURL:      getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
		Currency:             getEnv("CHECKOUT_CURRENCY", "NGN"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RunMigrations:        getBool("RUN_MIGRATIONS", true),
		RedisURL:             os.Getenv("REDIS_URL"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		AllowAnonymousVerify: getBool("ALLOW_ANONYMOUS_VERIFY", false),
		CartTable:            getEnv("CART_TABLE", "cart"),
		ReferencesTable:      getEnv("REFERENCES_TABLE", "payment_references"),
		FollowUpQueueURL:     os.Getenv("FOLLOWUP_QUEUE_URL"),
		MetricsNamespace:     getEnv("METRICS_NAMESPACE", "Storefront/Checkout"),
		APIBaseURL:           getEnv("API_BASE_URL", "http://localhost:8080"),
	}
}

// ValidateGateway reports a configuration error when the gateway secret is absent.
func (c *Config) ValidateGateway() error {
	if c.PaystackSecretKey == "" {
		return apperr.Configuration("Server not configured with PAYSTACK_SECRET_KEY")
	}
	return nil
}

// ValidateDataStore reports a configuration error when the order store is not configured.
func (c *Config) ValidateDataStore() error {
	if c.DatabaseURL == "" {
		return apperr.Configuration("Server not configured with DATABASE_URL")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultValue
	}
}
