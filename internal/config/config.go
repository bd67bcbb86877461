package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Business policy. The booking fee is the fixed deposit required before
	// an appointment can be created; amounts are integer pesewas.
	BookingFeePesewas  int64
	BookingCurrency    string
	ConflictWindow     time.Duration
	CancelNoticeWindow time.Duration

	// Settlement polling for asynchronous rails.
	SettlementPollInterval time.Duration
	SettlementPollAttempts int

	// Hubtel (card gateway + mobile-money push charges).
	HubtelClientID     string
	HubtelClientSecret string
	HubtelMerchantID   string
	HubtelBaseURL      string
	HubtelCallbackURL  string

	// Paystack (initialize/verify gateway).
	PaystackSecretKey string
	PaystackBaseURL   string
	PaystackSuccess   string

	// Auth.
	JWTSecret string

	// Eligibility gate. Empty means bookings are gated by a static allow
	// (demo deployments only).
	EligibilityBaseURL string

	// Redis (payment velocity checks).
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Velocity limits.
	MaxPaymentAttemptsPerPhone int
	PaymentAttemptWindow       time.Duration

	// SendGrid email.
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// AWS / SES fallback email.
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	SESFromEmail        string

	// WhatsApp notifications.
	WhatsAppToken   string
	WhatsAppPhoneID string
	WhatsAppBaseURL string

	// Outbox deliverer.
	OutboxBatchSize int
	OutboxInterval  time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		BookingFeePesewas:  getEnvAsInt64("BOOKING_FEE_PESEWAS", 10000),
		BookingCurrency:    getEnv("BOOKING_CURRENCY", "GHS"),
		ConflictWindow:     getEnvAsDuration("BOOKING_CONFLICT_WINDOW", time.Hour),
		CancelNoticeWindow: getEnvAsDuration("BOOKING_CANCEL_NOTICE_WINDOW", 24*time.Hour),

		SettlementPollInterval: getEnvAsDuration("SETTLEMENT_POLL_INTERVAL", 10*time.Second),
		SettlementPollAttempts: getEnvAsInt("SETTLEMENT_POLL_ATTEMPTS", 30),

		HubtelClientID:     getEnv("HUBTEL_CLIENT_ID", ""),
		HubtelClientSecret: getEnv("HUBTEL_CLIENT_SECRET", ""),
		HubtelMerchantID:   getEnv("HUBTEL_MERCHANT_ID", ""),
		HubtelBaseURL:      getEnv("HUBTEL_BASE_URL", ""),
		HubtelCallbackURL:  getEnv("HUBTEL_CALLBACK_URL", ""),

		PaystackSecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
		PaystackBaseURL:   getEnv("PAYSTACK_BASE_URL", ""),
		PaystackSuccess:   getEnv("PAYSTACK_SUCCESS_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		EligibilityBaseURL: getEnv("ELIGIBILITY_BASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		MaxPaymentAttemptsPerPhone: getEnvAsInt("MAX_PAYMENT_ATTEMPTS_PER_PHONE", 5),
		PaymentAttemptWindow:       getEnvAsDuration("PAYMENT_ATTEMPT_WINDOW", 24*time.Hour),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "no-reply@korlehealth.com"),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Korle Health"),

		AWSRegion:           getEnv("AWS_REGION", "eu-west-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		SESFromEmail:        getEnv("SES_FROM_EMAIL", ""),

		WhatsAppToken:   getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneID: getEnv("WHATSAPP_PHONE_ID", ""),
		WhatsAppBaseURL: getEnv("WHATSAPP_BASE_URL", "https://graph.facebook.com/v19.0"),

		OutboxBatchSize: getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxInterval:  getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", nil),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
