package config

import (
	"os"
	"strconv"
	"time"

	"tickethub/internal/services/gateway/psebank"
	"tickethub/internal/services/gateway/stripepay"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (outbound issuance/audit events)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Webhook listener
	WebhookAddr string

	// Timeout configuration
	SeatHoldTTL    time.Duration
	PendingSaleTTL time.Duration
	SweepInterval  time.Duration

	// Cancellation authority: bcrypt hash of the admin API key
	AdminKeyHash string

	// QR payload signing key
	TicketSigningKey string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string

	// Gateway configuration
	StripePay stripepay.Config
	PSEBank   psebank.Config
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Webhook listener
		WebhookAddr: getEnv("WEBHOOK_ADDR", ":8091"),

		// Timeouts
		SeatHoldTTL:    getEnvAsDuration("SEAT_HOLD_TTL", "5m"),
		PendingSaleTTL: getEnvAsDuration("PENDING_SALE_TTL", "30m"),
		SweepInterval:  getEnvAsDuration("SWEEP_INTERVAL", "5m"),

		// Authority + signing
		AdminKeyHash:     getEnv("ADMIN_KEY_HASH", ""),
		TicketSigningKey: getEnv("TICKET_SIGNING_KEY", ""),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),

		StripePay: stripepay.Config{
			BaseURL:    getEnv("STRIPEPAY_BASE_URL", ""),
			MerchantID: getEnv("STRIPEPAY_MERCHANT_ID", ""),
			ClientID:   getEnv("STRIPEPAY_CLIENT_ID", ""),
			ClientKey:  getEnv("STRIPEPAY_CLIENT_KEY", ""),
			HMACKey:    getEnv("STRIPEPAY_HMAC_KEY", ""),
		},

		PSEBank: psebank.Config{
			BaseURL:    getEnv("PSEBANK_BASE_URL", ""),
			MerchantID: getEnv("PSEBANK_MERCHANT_ID", ""),
			ClientID:   getEnv("PSEBANK_CLIENT_ID", ""),
			ClientKey:  getEnv("PSEBANK_CLIENT_KEY", ""),
			HMACKey:    getEnv("PSEBANK_HMAC_KEY", ""),

			PNSubKey:    getEnv("PSEBANK_PN_SUBKEY", ""),
			PNSubSecret: getEnv("PSEBANK_PN_SUBSECRET", ""),
			PNUUID:      getEnv("PSEBANK_PN_UUID", ""),
			PNChannel:   getEnv("PSEBANK_PN_CHANNEL", ""),
			PNCipherKey: getEnv("PSEBANK_PN_CIPHERKEY", ""),
		},
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
	// If parsing fails, fall back to the default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
