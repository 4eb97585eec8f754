package config

import (
	"os"
	"strconv"
	"time"

	"planora/internal/services/gateway/esewa"
	"planora/internal/services/gateway/khalti"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (user notification channels)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Payment configuration
	PaymentTimeout  time.Duration
	SweepInterval   time.Duration
	PrimaryGateway  string
	ESewaConfig     esewa.Config
	KhaltiConfig    khalti.Config
	DefaultCurrency string

	// Recommendation service (external CF API)
	CFBaseURL        string
	CFRequestTimeout time.Duration
	CFTokenKey       string
	CFTokenTTL       time.Duration
	CFCacheTTL       time.Duration

	// Monitoring
	EnableMetrics   bool
	MetricsInterval time.Duration

	// Rate limiting
	RateLimitWindow   time.Duration
	RateLimitRequests int
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

		// Payments
		PaymentTimeout:  getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),
		SweepInterval:   getEnvAsDuration("PAYMENT_SWEEP_INTERVAL", "30s"),
		PrimaryGateway:  getEnv("PRIMARY_GATEWAY", "esewa"),
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "NPR"),

		ESewaConfig: esewa.Config{
			GatewayURL:  getEnv("ESEWA_GATEWAY_URL", "https://rc-epay.esewa.com.np/api/epay/main/v2/form"),
			StatusURL:   getEnv("ESEWA_STATUS_URL", "https://rc.esewa.com.np/api/epay/transaction/status/"),
			ProductCode: getEnv("ESEWA_PRODUCT_CODE", "EPAYTEST"),
			SecretKey:   getEnv("ESEWA_SECRET_KEY", ""),
			SuccessURL:  getEnv("ESEWA_SUCCESS_URL", "http://localhost:5173/success"),
			FailureURL:  getEnv("ESEWA_FAILURE_URL", "http://localhost:5173/failure"),
		},

		KhaltiConfig: khalti.Config{
			BaseURL:           getEnv("KHALTI_BASE_URL", "https://dev.khalti.com/api/v2"),
			SecretKey:         getEnv("KHALTI_SECRET_KEY", ""),
			ReturnURL:         getEnv("KHALTI_RETURN_URL", "http://localhost:5173/success"),
			WebsiteURL:        getEnv("KHALTI_WEBSITE_URL", "http://localhost:5173"),
			WebhookSecretHash: getEnv("KHALTI_WEBHOOK_SECRET_HASH", ""),
			PNSubKey:          getEnv("KHALTI_PN_SUBKEY", ""),
			PNSubSecret:       getEnv("KHALTI_PN_SUBSECRET", ""),
			PNUUID:            getEnv("KHALTI_PN_UUID", "planora-server"),
			PNChannel:         getEnv("KHALTI_PN_CHANNEL", "khalti-payment-notifications"),
		},

		// Recommendation proxy
		CFBaseURL:        getEnv("CF_API_URL", "http://localhost:8000/cf"),
		CFRequestTimeout: getEnvAsDuration("CF_REQUEST_TIMEOUT", "10s"),
		CFTokenKey:       getEnv("CF_TOKEN_KEY", ""),
		CFTokenTTL:       getEnvAsDuration("CF_TOKEN_TTL", "15m"),
		CFCacheTTL:       getEnvAsDuration("CF_CACHE_TTL", "5m"),

		// Monitoring
		EnableMetrics:   getEnvAsBool("ENABLE_METRICS", true),
		MetricsInterval: getEnvAsDuration("METRICS_INTERVAL", "30s"),

		// Rate limiting
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
		RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 60),
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
