package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	BaseURL     string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (user notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Payment gateway configuration
	Gateway GatewayConfig

	// Order configuration
	IdempotencyTTL  time.Duration
	CheckoutTTL     time.Duration
	CreateOrderRate int // max order creations per user per minute

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

type GatewayConfig struct {
	Provider   string
	BaseURL    string
	PartnerID  string
	ClientID   string
	ClientKey  string
	HMACKey    string
	WebhookKey string

	// Bcrypt hash of the shared token the provider sends on webhook
	// deliveries. Empty disables the check.
	WebhookCredential string

	// PubNub transaction stream (provider side)
	PNSubKey    string
	PNSubSecret string
	PNUUID      string
	PNChannel   string
	PNCipherKey string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8090"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Gateway
		Gateway: GatewayConfig{
			Provider:   getEnv("GATEWAY_PROVIDER", "yespay"),
			BaseURL:    getEnv("GATEWAY_BASE_URL", ""),
			PartnerID:  getEnv("GATEWAY_PARTNER_ID", ""),
			ClientID:   getEnv("GATEWAY_CLIENT_ID", ""),
			ClientKey:  getEnv("GATEWAY_CLIENT_KEY", ""),
			HMACKey:    getEnv("GATEWAY_HMAC_KEY", ""),
			WebhookKey: getEnv("GATEWAY_WEBHOOK_KEY", ""),

			WebhookCredential: getEnv("GATEWAY_WEBHOOK_CREDENTIAL_HASH", ""),

			PNSubKey:    getEnv("GATEWAY_PN_SUB_KEY", ""),
			PNSubSecret: getEnv("GATEWAY_PN_SUB_SECRET", ""),
			PNUUID:      getEnv("GATEWAY_PN_UUID", ""),
			PNChannel:   getEnv("GATEWAY_PN_CHANNEL", ""),
			PNCipherKey: getEnv("GATEWAY_PN_CIPHER_KEY", ""),
		},

		// Orders
		IdempotencyTTL:  getEnvAsDuration("IDEMPOTENCY_TTL", "24h"),
		CheckoutTTL:     getEnvAsDuration("CHECKOUT_TTL", "10m"),
		CreateOrderRate: getEnvAsInt("CREATE_ORDER_RATE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
