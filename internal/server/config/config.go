package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// STT provider names accepted in STT_PROVIDER.
const (
	STTPlaceholder = "placeholder"
	STTWhisper     = "whisper"
	STTOpenAI      = "openai"
)

// Store drivers accepted in STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port           string
	LogLevel       string
	StoreDriver    string
	DatabaseURL    string
	AllowedOrigin  string
	StagingPath    string
	StagingMaxAge  time.Duration
	SweepInterval  time.Duration
	MaxFileSize    int64
	RateLimitRPS   float64
	RateLimitBurst int
	// AutoCreateUsers creates a record on first upload instead of
	// answering 404 for identities that never registered.
	AutoCreateUsers bool

	Auth    AuthConfig
	Stripe  StripeConfig
	STT     STTConfig
	Webhook IdentityWebhookConfig
}

// AuthConfig points at the external identity provider. When Issuer is empty
// the trusted identity header is used instead of bearer tokens.
type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	AmountCents   int64
	Currency      string
	ProductName   string
	FrontendURL   string
}

type STTConfig struct {
	Provider            string
	FallbackPlaceholder bool
	WhisperURL          string
	Language            string
	OpenAIKey           string
	OpenAIModel         string
	OpenAIBaseURL       string
	Timeout             time.Duration
}

type IdentityWebhookConfig struct {
	Secret string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	allowedOrigin := getEnv("ALLOWED_ORIGIN", "")
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AllowedOrigin:  allowedOrigin,
		StagingPath:    getEnv("STAGING_PATH", os.TempDir()+"/voicenote-staging"),
		StagingMaxAge:  getEnvDuration("STAGING_MAX_AGE_MINUTES", 30*time.Minute),
		SweepInterval:  getEnvDuration("STAGING_SWEEP_INTERVAL_MINUTES", 10*time.Minute),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MB
		RateLimitRPS:   getEnvFloat64("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 5),

		AutoCreateUsers: getEnvBool("AUTO_CREATE_USERS", true),

		Auth: AuthConfig{
			Issuer:   getEnv("AUTH_ISSUER", ""),
			Audience: getEnv("AUTH_AUDIENCE", ""),
			JWKSURL:  getEnv("AUTH_JWKS_URL", ""),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			PriceID:       getEnv("STRIPE_PRICE_ID", ""),
			AmountCents:   getEnvInt64("PAYMENT_AMOUNT_CENTS", 500),
			Currency:      strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
			ProductName:   getEnv("PAYMENT_PRODUCT_NAME", "Unlimited transcriptions"),
			FrontendURL:   strings.TrimRight(getEnv("FRONTEND_URL", allowedOrigin), "/"),
		},
		STT: STTConfig{
			Provider:            strings.ToLower(getEnv("STT_PROVIDER", STTPlaceholder)),
			FallbackPlaceholder: getEnvBool("STT_FALLBACK_PLACEHOLDER", true),
			WhisperURL:          getEnv("WHISPER_URL", ""),
			Language:            getEnv("STT_LANGUAGE", "en"),
			OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:         getEnv("OPENAI_STT_MODEL", "whisper-1"),
			OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
			Timeout:             getEnvSeconds("STT_TIMEOUT_SECONDS", 60*time.Second),
		},
		Webhook: IdentityWebhookConfig{
			Secret: getEnv("IDENTITY_WEBHOOK_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(name, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s must be set", name))
		}
	}

	switch c.StoreDriver {
	case StoreDriverPostgres:
		require("DATABASE_URL", c.DatabaseURL)
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not supported", c.StoreDriver))
	}

	require("ALLOWED_ORIGIN", c.AllowedOrigin)
	require("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	require("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)

	switch c.STT.Provider {
	case STTPlaceholder:
	case STTWhisper:
		require("WHISPER_URL", c.STT.WhisperURL)
	case STTOpenAI:
		require("OPENAI_API_KEY", c.STT.OpenAIKey)
	default:
		errs = append(errs, fmt.Errorf("STT_PROVIDER %q is not supported", c.STT.Provider))
	}

	if (c.Auth.Issuer == "") != (c.Auth.Audience == "") {
		errs = append(errs, errors.New("AUTH_ISSUER and AUTH_AUDIENCE must be set together"))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}
	if c.StagingMaxAge <= 0 {
		errs = append(errs, errors.New("STAGING_MAX_AGE_MINUTES must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("STAGING_SWEEP_INTERVAL_MINUTES must be positive"))
	}
	if c.RateLimitRPS <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must be positive"))
	}
	if c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// TokenAuthEnabled reports whether bearer tokens are verified against the
// identity provider.
func (c *Config) TokenAuthEnabled() bool {
	return c.Auth.Issuer != "" && c.Auth.Audience != ""
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat64(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if minutes, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(minutes * float64(time.Minute))
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if secs, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return fallback
}
