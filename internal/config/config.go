package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port                 string
	AllowedOrigins       []string
	FrontendURL          string
	OAuthConfig          OAuthConfig
	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetimeMin int
	RedisURL             string
	RedisPassword        string
	JWTSecret            string
	SessionTTL           time.Duration
	UpstreamConnectTimeout time.Duration
	UpstreamReadTimeout    time.Duration
	CleanupInterval        time.Duration
	StreamGracePeriod      time.Duration
}

var AppConfig *Config

func LoadConfig() *Config {
	port := GetEnv("PORT", "8080")

	// Frontend & CORS
	frontendURL := GetEnv("FRONTEND_URL", "http://localhost:5173")
	allowedOriginsStr := GetEnv("ALLOWED_ORIGINS", "")

	allowedOrigins := []string{
		frontendURL,
		"http://localhost:5173", // Local development
	}
	if allowedOriginsStr != "" {
		extras := strings.Split(allowedOriginsStr, ",")
		for _, origin := range extras {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	// Database Config
	dbURL := GetEnv("DATABASE_URL", GetEnv("DATABASE_URI", ""))
	dbMaxOpenConns := GetEnvAsInt("DB_MAX_OPEN_CONNS", 25)
	dbMaxIdleConns := GetEnvAsInt("DB_MAX_IDLE_CONNS", 25)
	dbConnMaxLifetimeMin := GetEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	// Security
	jwtSecret := GetEnv("JWT_SECRET", "your-secret-key-change-this-in-production")
	sessionTTLDays := GetEnvAsInt("SESSION_TTL_DAYS", 7)

	// Relay timeouts. Connect timeout bounds how long a stalled upstream can
	// hold a quota slot before admission fails; read timeout bounds a relay
	// whose upstream stops producing bytes.
	connectTimeoutSec := GetEnvAsInt("UPSTREAM_CONNECT_TIMEOUT_SECONDS", 30)
	readTimeoutSec := GetEnvAsInt("UPSTREAM_READ_TIMEOUT_SECONDS", 60)

	cleanupIntervalMin := GetEnvAsInt("CLEANUP_INTERVAL_MINUTES", 60)
	streamGraceMin := GetEnvAsInt("STREAM_GRACE_MINUTES", 5)

	oauthConfig := LoadOAuthConfig()

	AppConfig = &Config{
		Port:                 port,
		AllowedOrigins:       allowedOrigins,
		FrontendURL:          frontendURL,
		OAuthConfig:          *oauthConfig,
		DatabaseURL:          dbURL,
		DBMaxOpenConns:       dbMaxOpenConns,
		DBMaxIdleConns:       dbMaxIdleConns,
		DBConnMaxLifetimeMin: dbConnMaxLifetimeMin,
		RedisURL:             GetEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:        GetEnv("REDIS_PASSWORD", ""),
		JWTSecret:            jwtSecret,
		SessionTTL:           time.Duration(sessionTTLDays) * 24 * time.Hour,
		UpstreamConnectTimeout: time.Duration(connectTimeoutSec) * time.Second,
		UpstreamReadTimeout:    time.Duration(readTimeoutSec) * time.Second,
		CleanupInterval:        time.Duration(cleanupIntervalMin) * time.Minute,
		StreamGracePeriod:      time.Duration(streamGraceMin) * time.Minute,
	}

	return AppConfig
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
