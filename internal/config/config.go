package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret  string
	ServerPort string

	RedisURL string

	// Media transport provider (room tokens + room teardown).
	MediaAPIKey    string
	MediaAPISecret string
	MediaURL       string

	// How long a declined huddle's records linger before the deferred
	// hard-delete fires.
	HuddleCleanupDelay time.Duration
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", "postgres"),
		DBName:             getEnv("DB_NAME", "teamchat"),
		JWTSecret:          getEnv("JWT_SECRET", "super-secret-key-change-me"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		MediaAPIKey:        getEnv("MEDIA_API_KEY", "devkey"),
		MediaAPISecret:     getEnv("MEDIA_API_SECRET", "devsecret-change-me"),
		MediaURL:           getEnv("MEDIA_URL", "http://localhost:7880"),
		HuddleCleanupDelay: getEnvSeconds("HUDDLE_CLEANUP_DELAY_SEC", 20),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	if val := os.Getenv(key); val != "" {
		if sec, err := strconv.Atoi(val); err == nil && sec > 0 {
			return time.Duration(sec) * time.Second
		}
	}
	return time.Duration(fallback) * time.Second
}
