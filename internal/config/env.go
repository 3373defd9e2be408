package config

import (
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	keyPort                 = "PORT"
	keyMongoURI             = "MONGO_URI"
	keyDBName               = "DB_NAME"
	keyJWTSecret            = "JWT_SECRET"
	keyVerificationSecret   = "JWT_VERIFICATION_SECRET"
	keyAccessTokenTTL       = "ACCESS_TOKEN_TTL"
	keyRefreshTokenTTL      = "REFRESH_TOKEN_TTL"
	keyVerificationTokenTTL = "VERIFICATION_TOKEN_TTL"
	keyStripeSecretKey      = "STRIPE_SECRET_KEY"
	keyStripeWebhookSecret  = "STRIPE_WEBHOOK_SECRET"
	keyStripeTimeout        = "STRIPE_TIMEOUT"
	keyCurrency             = "PAYMENT_CURRENCY"
	keyFrontendURL          = "FRONTEND_URL"
	keyAppURL               = "APP_URL"
	keySMTPHost             = "SMTP_HOST"
	keySMTPPort             = "SMTP_PORT"
	keySMTPUser             = "SMTP_USER"
	keySMTPPassword         = "SMTP_PASSWORD"
	keyMailFrom             = "MAIL_FROM"
	keyMailTimeout          = "MAIL_TIMEOUT"
	keyUploadDir            = "UPLOAD_DIR"
	keyKafkaBrokers         = "KAFKA_BROKERS"
	keyPaymentTopic         = "KAFKA_PAYMENT_TOPIC"
	keyReconcileInterval    = "RECONCILE_INTERVAL"
	keyReconcileGrace       = "RECONCILE_GRACE"
)

// Durations are plain integers in the unit each getDuration call names.
func setDefaults(v *viper.Viper) {
	v.SetDefault(keyPort, "8080")
	v.SetDefault(keyDBName, "agency")
	v.SetDefault(keyAccessTokenTTL, 20)
	v.SetDefault(keyRefreshTokenTTL, 7)
	v.SetDefault(keyVerificationTokenTTL, 24)
	v.SetDefault(keyStripeTimeout, 10)
	v.SetDefault(keyCurrency, "EUR")
	v.SetDefault(keyFrontendURL, "http://localhost:5173")
	v.SetDefault(keyAppURL, "http://localhost:8080")
	v.SetDefault(keySMTPPort, 587)
	v.SetDefault(keyMailTimeout, 10)
	v.SetDefault(keyUploadDir, "./public/images")
	v.SetDefault(keyPaymentTopic, "payments")
	v.SetDefault(keyReconcileInterval, 0)
	v.SetDefault(keyReconcileGrace, 15)
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func getDuration(v *viper.Viper, key string, unit time.Duration) time.Duration {
	parsed := v.GetInt(key)
	if parsed < 0 {
		parsed = 0
	}
	return time.Duration(parsed) * unit
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
