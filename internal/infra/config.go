package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	GoogleClientID string
	GoogleIssuer   string

	GeoIPDBPath    string
	DefaultLocale  string
	AllowedOrigins []string

	ImageProvider      string
	GeminiAPIKey       string
	GeminiBaseURL      string
	GeminiQuickModel   string
	GeminiPremiumModel string

	TiersPath      string
	AdminUserIDs   []string
	AnonCookieName string

	AnonCacheTTL           time.Duration
	AnonFallbackTTL        time.Duration
	AnonMaxFallbackEntries int
	AnonSweepInterval      time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		GoogleClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleIssuer:   getEnv("GOOGLE_ISSUER", "https://accounts.google.com"),

		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:  getEnv("DEFAULT_LOCALE", "en"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		ImageProvider:      getEnv("IMAGE_PROVIDER", "gemini"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiQuickModel:   getEnv("GEMINI_QUICK_MODEL", "gemini-2.5-flash-image"),
		GeminiPremiumModel: getEnv("GEMINI_PREMIUM_MODEL", "gemini-2.5-pro-image"),

		TiersPath:      os.Getenv("TIERS_PATH"),
		AdminUserIDs:   splitList(os.Getenv("ADMIN_USER_IDS")),
		AnonCookieName: getEnv("ANON_SESSION_COOKIE", "anon_session"),

		AnonCacheTTL:           time.Second * time.Duration(getEnvInt("ANON_CACHE_TTL_SECONDS", 60)),
		AnonFallbackTTL:        time.Second * time.Duration(getEnvInt("ANON_FALLBACK_TTL_SECONDS", 24*3600)),
		AnonMaxFallbackEntries: getEnvInt("ANON_FALLBACK_MAX_ENTRIES", 10000),
		AnonSweepInterval:      time.Second * time.Duration(getEnvInt("ANON_SWEEP_INTERVAL_SECONDS", 60)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
