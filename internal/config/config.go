package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Booking hold and sweep configuration
	Booking BookingConfig

	// Stripe checkout and webhook configuration
	Stripe StripeConfig

	// Redis configuration (reset store, distributed locks, delayed jobs)
	Redis RedisConfig

	// Event publishing configuration
	Events EventsConfig

	// Payment proof storage configuration
	Storage StorageConfig

	// Password reset OTP configuration
	PasswordReset PasswordResetConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" (lib/pq) or "pgx"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	SimpleProtocol     bool // pgx only: required behind transaction-mode poolers
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string // shared with the identity service
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds reservation and hold expiry settings
type BookingConfig struct {
	SeatHoldDuration    time.Duration
	FullVehicleFallback time.Duration
	DefaultCurrency     string
	Timezone            string // location used to interpret arrival_date/arrival_time
	SweepCron           string // robfig/cron spec with seconds
	SweepBatchSize      int
}

// StripeConfig holds provider settings for card checkout
type StripeConfig struct {
	SecretKey        string // sk_... (SECRET - never expose to client)
	WebhookSecret    string // whsec_... used to verify Stripe-Signature
	APIURL           string
	SuccessURL       string
	CancelURL        string
	WebhookTolerance time.Duration
	Timeout          time.Duration
	BreakerThreshold int64
}

// CheckoutEnabled reports whether card checkout sessions can be created
func (s StripeConfig) CheckoutEnabled() bool {
	return s.SecretKey != ""
}

// RedisConfig holds Redis connection settings. Empty Addr disables Redis-backed features.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether Redis is configured
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// EventsConfig selects the watermill publisher
type EventsConfig struct {
	Driver  string // "gochannel" or "amqp"
	AMQPURL string
}

// StorageConfig selects where payment proofs are stored
type StorageConfig struct {
	Driver        string // "local" or "cloudinary"
	LocalDir      string
	PublicBaseURL string
	CloudinaryURL string
	Folder        string
	MaxDimension  int
}

// PasswordResetConfig holds OTP settings for the reset store
type PasswordResetConfig struct {
	OTPLength   int
	OTPExpiry   time.Duration
	TokenExpiry time.Duration
	MaxAttempts int
	BcryptCost  int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			SimpleProtocol:     getEnvAsBool("DATABASE_SIMPLE_PROTOCOL", false),
			AutoMigrate:        getEnvAsBool("DATABASE_AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			SeatHoldDuration:    time.Duration(getEnvAsInt("SEAT_HOLD_MINUTES", 15)) * time.Minute,
			FullVehicleFallback: time.Duration(getEnvAsInt("FULL_VEHICLE_FALLBACK_MINUTES", 30)) * time.Minute,
			DefaultCurrency:     getEnv("DEFAULT_CURRENCY", "PKR"),
			Timezone:            getEnv("BOOKING_TIMEZONE", "Asia/Karachi"),
			SweepCron:           getEnv("HOLD_SWEEP_CRON", "0 * * * * *"),
			SweepBatchSize:      getEnvAsInt("HOLD_SWEEP_BATCH", 100),
		},
		Stripe: StripeConfig{
			SecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
			APIURL:           getEnv("STRIPE_API_URL", "https://api.stripe.com"),
			SuccessURL:       getEnv("STRIPE_SUCCESS_URL", ""),
			CancelURL:        getEnv("STRIPE_CANCEL_URL", ""),
			WebhookTolerance: time.Duration(getEnvAsInt("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
			Timeout:          time.Duration(getEnvAsInt("STRIPE_TIMEOUT_SECONDS", 10)) * time.Second,
			BreakerThreshold: int64(getEnvAsInt("STRIPE_BREAKER_THRESHOLD", 5)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Driver:  getEnv("EVENTS_DRIVER", "gochannel"),
			AMQPURL: getEnv("AMQP_URL", ""),
		},
		Storage: StorageConfig{
			Driver:        getEnv("PROOF_STORAGE", "local"),
			LocalDir:      getEnv("PROOF_LOCAL_DIR", "./uploads/payment_proofs"),
			PublicBaseURL: getEnv("PROOF_PUBLIC_BASE_URL", "/media/payment_proofs"),
			CloudinaryURL: getEnv("CLOUDINARY_URL", ""),
			Folder:        getEnv("PROOF_FOLDER", "payment_proofs"),
			MaxDimension:  getEnvAsInt("PROOF_MAX_DIMENSION", 1600),
		},
		PasswordReset: PasswordResetConfig{
			OTPLength:   getEnvAsInt("RESET_OTP_LENGTH", 6),
			OTPExpiry:   time.Duration(getEnvAsInt("RESET_OTP_EXPIRY_MINUTES", 10)) * time.Minute,
			TokenExpiry: time.Duration(getEnvAsInt("RESET_TOKEN_EXPIRY_MINUTES", 10)) * time.Minute,
			MaxAttempts: getEnvAsInt("RESET_OTP_MAX_ATTEMPTS", 5),
			BcryptCost:  getEnvAsInt("BCRYPT_COST", 10),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'pgx')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.SeatHoldDuration <= 0 {
		return fmt.Errorf("SEAT_HOLD_MINUTES must be positive")
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	// Webhook secret is mandatory outside development, unsigned events must never be accepted
	if c.Server.Environment == "production" && c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
	}

	switch c.Events.Driver {
	case "gochannel":
	case "amqp":
		if c.Events.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when EVENTS_DRIVER=amqp")
		}
	default:
		return fmt.Errorf("invalid EVENTS_DRIVER: %s (must be 'gochannel' or 'amqp')", c.Events.Driver)
	}

	switch c.Storage.Driver {
	case "local":
	case "cloudinary":
		if c.Storage.CloudinaryURL == "" {
			return fmt.Errorf("CLOUDINARY_URL is required when PROOF_STORAGE=cloudinary")
		}
	default:
		return fmt.Errorf("invalid PROOF_STORAGE: %s (must be 'local' or 'cloudinary')", c.Storage.Driver)
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
