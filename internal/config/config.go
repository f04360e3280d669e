package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	PromotionCacheTTL     time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	LogFormat             string
	MetricsEnabled        bool
}

// Load reads the environment. A .env file in the working directory is
// applied first without overriding variables that are already set.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	promoTTL, err := strconv.Atoi(getEnv("PROMOTION_CACHE_TTL_SECONDS", "60"))
	if err != nil || promoTTL < 1 {
		promoTTL = 60
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	runMigrations, err := strconv.ParseBool(getEnv("RUN_MIGRATIONS", "true"))
	if err != nil {
		runMigrations = true
	}
	metricsEnabled, err := strconv.ParseBool(getEnv("PROMETHEUS_ENABLED", "true"))
	if err != nil {
		metricsEnabled = true
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RunMigrations:         runMigrations,
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		PromotionCacheTTL:     time.Duration(promoTTL) * time.Second,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		MetricsEnabled:        metricsEnabled,
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
