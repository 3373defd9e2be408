package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"golang.org/x/text/currency"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type Config struct {
	Port               string
	MongoURI           string
	DBName             string
	JWTSecret          string
	VerificationSecret string

	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	VerificationTokenTTL time.Duration

	Stripe   StripeConfig
	Currency string

	FrontendURL string
	AppURL      string

	SMTP SMTPConfig

	UploadDir string

	KafkaBrokers string
	PaymentTopic string

	ReconcileInterval time.Duration
	ReconcileGrace    time.Duration
}

// Load reads the optional env file into the process environment, then
// resolves every key through v so cobra flags bound to v take precedence.
func Load(v *viper.Viper, envFile string) (Config, error) {
	if err := godotenv.Load(envFile); err != nil {
		log.Println(".env not loaded:", err)
	}

	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		Port:                 getString(v, keyPort),
		MongoURI:             getString(v, keyMongoURI),
		DBName:               getString(v, keyDBName),
		JWTSecret:            getString(v, keyJWTSecret),
		VerificationSecret:   getString(v, keyVerificationSecret),
		AccessTokenTTL:       getDuration(v, keyAccessTokenTTL, time.Minute),
		RefreshTokenTTL:      getDuration(v, keyRefreshTokenTTL, 24*time.Hour),
		VerificationTokenTTL: getDuration(v, keyVerificationTokenTTL, time.Hour),
		Stripe: StripeConfig{
			SecretKey:     getString(v, keyStripeSecretKey),
			WebhookSecret: getString(v, keyStripeWebhookSecret),
			Timeout:       getDuration(v, keyStripeTimeout, time.Second),
		},
		Currency:    strings.ToUpper(getString(v, keyCurrency)),
		FrontendURL: strings.TrimRight(getString(v, keyFrontendURL), "/"),
		AppURL:      strings.TrimRight(getString(v, keyAppURL), "/"),
		SMTP: SMTPConfig{
			Host:     getString(v, keySMTPHost),
			Port:     v.GetInt(keySMTPPort),
			Username: getString(v, keySMTPUser),
			Password: getString(v, keySMTPPassword),
			From:     getString(v, keyMailFrom),
			Timeout:  getDuration(v, keyMailTimeout, time.Second),
		},
		UploadDir:         getString(v, keyUploadDir),
		KafkaBrokers:      getString(v, keyKafkaBrokers),
		PaymentTopic:      getString(v, keyPaymentTopic),
		ReconcileInterval: getDuration(v, keyReconcileInterval, time.Minute),
		ReconcileGrace:    getDuration(v, keyReconcileGrace, time.Minute),
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	return cfg, cfg.Validate()
}

// Validate reports every missing or malformed setting at once.
func (c Config) Validate() error {
	var errs []error
	required := map[string]string{
		keyMongoURI:            c.MongoURI,
		keyJWTSecret:           c.JWTSecret,
		keyVerificationSecret:  c.VerificationSecret,
		keyStripeSecretKey:     c.Stripe.SecretKey,
		keyStripeWebhookSecret: c.Stripe.WebhookSecret,
	}
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if _, err := currency.ParseISO(c.Currency); err != nil {
		errs = append(errs, fmt.Errorf("%s: %q is not an ISO 4217 code", keyCurrency, c.Currency))
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		errs = append(errs, fmt.Errorf("%s must be shorter than %s", keyAccessTokenTTL, keyRefreshTokenTTL))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether payment events should be published.
func (c Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}
