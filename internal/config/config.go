package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/hawkpark/hawkpark-be/internal/models"
)

// Authentication modes.
const (
	AuthModeHeader = "header"
	AuthModeJWT    = "jwt"
)

// Config holds the application configuration.
type Config struct {
	ServerPort     int
	Env            string
	LogLevel       string
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseURL    string
	AllowedOrigins []string

	AuthMode  string
	JWTSecret string

	MaxListingsPerOwner int
	MaxHourlyPrice      models.Money

	SweepSchedule string        // cron spec for the booking sweeper
	StatsInterval time.Duration // how often marketplace gauges refresh

	GeocodeEnabled bool
	GeocodeURL     string
	GeocodeRegion  string // appended to every geocoded address
	GeocodeTimeout time.Duration
	RedisURL       string // optional cache for geocoding results
}

// Load loads configuration from environment variables or sets defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Could not read .env file")
	}

	port, err := strconv.Atoi(getEnv("PORT", "3001"))
	if err != nil {
		return nil, fmt.Errorf("PORT: %w", err)
	}
	maxListings, err := strconv.Atoi(getEnv("MAX_LISTINGS_PER_OWNER", "3"))
	if err != nil {
		return nil, fmt.Errorf("MAX_LISTINGS_PER_OWNER: %w", err)
	}
	maxPrice, err := models.ParseMoney(getEnv("MAX_HOURLY_PRICE", "20.00"))
	if err != nil {
		return nil, fmt.Errorf("MAX_HOURLY_PRICE: %w", err)
	}
	statsInterval, err := time.ParseDuration(getEnv("STATS_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("STATS_INTERVAL: %w", err)
	}
	geocodeTimeout, err := time.ParseDuration(getEnv("GEOCODE_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("GEOCODE_TIMEOUT: %w", err)
	}
	geocodeEnabled, err := strconv.ParseBool(getEnv("GEOCODE_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("GEOCODE_ENABLED: %w", err)
	}

	cfg := &Config{
		ServerPort:          port,
		Env:                 getEnv("APP_ENV", "development"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DatabaseDriver:      getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseURL:         getEnv("DATABASE_URL", "file:hawkpark.db"),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")),
		AuthMode:            getEnv("AUTH_MODE", AuthModeHeader),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		MaxListingsPerOwner: maxListings,
		MaxHourlyPrice:      maxPrice,
		SweepSchedule:       getEnv("SWEEP_SCHEDULE", "@every 1h"),
		StatsInterval:       statsInterval,
		GeocodeEnabled:      geocodeEnabled,
		GeocodeURL:          getEnv("GEOCODE_URL", "https://nominatim.openstreetmap.org/search"),
		GeocodeRegion:       getEnv("GEOCODE_REGION", "Ontario, Canada"),
		GeocodeTimeout:      geocodeTimeout,
		RedisURL:            getEnv("REDIS_URL", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	switch c.AuthMode {
	case AuthModeHeader:
	case AuthModeJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be header or jwt, got %q", c.AuthMode)
	}
	if c.MaxListingsPerOwner < 0 {
		return fmt.Errorf("MAX_LISTINGS_PER_OWNER must not be negative")
	}
	if c.MaxHourlyPrice <= 0 {
		return fmt.Errorf("MAX_HOURLY_PRICE must be positive")
	}
	if c.StatsInterval <= 0 {
		return fmt.Errorf("STATS_INTERVAL must be positive")
	}
	return nil
}

// IsProduction reports whether the app runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
