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

// RateLimit describes a per-operation request budget.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	AppEnv      string

	// Pi platform
	PiAPIBaseURL     string
	PiAPIKey         string
	HorizonBaseURL   string
	BlockExplorerURL string
	PlatformTimeout  time.Duration
	StrictMemoCheck  bool

	// Sessions
	SessionTTL   time.Duration
	CookieSecure bool

	// Firebase (push delivery)
	FirebaseCredentialsPath string

	// Per-route rate limits, keyed by operation name
	RateLimits map[string]RateLimit
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	apiKey, exists := os.LookupEnv("PI_API_KEY")
	if !exists || apiKey == "" {
		return nil, fmt.Errorf("PI_API_KEY is required")
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		AppEnv:      strings.ToLower(getEnv("APP_ENV", "production")),

		PiAPIBaseURL:     getEnv("PI_API_BASE_URL", "https://api.minepi.com/v2"),
		PiAPIKey:         apiKey,
		HorizonBaseURL:   getEnv("PI_HORIZON_BASE_URL", "https://api.mainnet.minepi.com"),
		BlockExplorerURL: getEnv("PI_BLOCK_EXPLORER_URL", "https://blockexplorer.minepi.com/tx"),
		PlatformTimeout:  getEnvDuration("PI_PLATFORM_TIMEOUT", 10*time.Second),
		StrictMemoCheck:  getEnvBool("PI_STRICT_MEMO_CHECK", false),

		SessionTTL:   getEnvDuration("SESSION_TTL", 24*time.Hour),
		CookieSecure: getEnvBool("COOKIE_SECURE", true),

		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),

		RateLimits: map[string]RateLimit{
			"auth_signin":        loadRateLimit("AUTH_SIGNIN", 10, time.Minute),
			"payment_approve":    loadRateLimit("PAYMENT_APPROVE", 30, time.Minute),
			"payment_complete":   loadRateLimit("PAYMENT_COMPLETE", 30, time.Minute),
			"payment_cancel":     loadRateLimit("PAYMENT_CANCEL", 10, time.Minute),
			"payment_incomplete": loadRateLimit("PAYMENT_INCOMPLETE", 10, time.Minute),
		},
	}

	return cfg, nil
}

// loadRateLimit reads RATE_LIMIT_<NAME> ("count/window", e.g. "10/1m")
// and falls back to the given defaults.
func loadRateLimit(name string, defLimit int, defWindow time.Duration) RateLimit {
	raw := getEnv("RATE_LIMIT_"+name, "")
	if raw == "" {
		return RateLimit{Limit: defLimit, Window: defWindow}
	}

	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		log.Printf("Invalid RATE_LIMIT_%s value %q, using default", name, raw)
		return RateLimit{Limit: defLimit, Window: defWindow}
	}

	limit, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || limit <= 0 {
		log.Printf("Invalid RATE_LIMIT_%s limit %q, using default", name, parts[0])
		return RateLimit{Limit: defLimit, Window: defWindow}
	}

	window, err := time.ParseDuration(strings.TrimSpace(parts[1]))
	if err != nil || window <= 0 {
		log.Printf("Invalid RATE_LIMIT_%s window %q, using default", name, parts[1])
		return RateLimit{Limit: defLimit, Window: defWindow}
	}

	return RateLimit{Limit: limit, Window: window}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using default", key, value)
		return fallback
	}
	return d
}
