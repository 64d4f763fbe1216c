package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

type Config struct {
	MongoURI  string
	DBName    string
	JWTSecret string
	Port      string
	LogLevel  string

	RedisAddr     string
	RedisPassword string

	SegmentConfigPath string

	MatrixRefreshInterval time.Duration
	CorpusWindow          time.Duration
	RequestTimeout        time.Duration
	RebuildTimeout        time.Duration
	MaxLimit              int
	DefaultLimit          int
	LTVMultiplier         float64
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = Config{
		MongoURI:  getEnvOrDefault("MONGO_URI", ""),
		DBName:    getEnvOrDefault("DB_NAME", "supplements"),
		JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
		Port:      getEnvOrDefault("PORT", "8080"),
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		SegmentConfigPath: getEnvOrDefault("SEGMENT_CONFIG_PATH", ""),

		MatrixRefreshInterval: getDurationEnv("MATRIX_REFRESH_INTERVAL", 600, time.Second),
		CorpusWindow:          getDurationEnv("CORPUS_WINDOW_DAYS", 0, 24*time.Hour),
		RequestTimeout:        getDurationEnv("REQUEST_TIMEOUT", 5, time.Second),
		RebuildTimeout:        getDurationEnv("REBUILD_TIMEOUT", 120, time.Second),
		MaxLimit:              getIntEnv("RECOMMEND_MAX_LIMIT", 100),
		DefaultLimit:          getIntEnv("RECOMMEND_DEFAULT_LIMIT", 10),
		LTVMultiplier:         getFloatEnv("LTV_MULTIPLIER", 1),
	}
	if AppEnv.DefaultLimit > AppEnv.MaxLimit {
		AppEnv.DefaultLimit = AppEnv.MaxLimit
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv reads a positive integer count of unit. "0" is honored so
// MATRIX_REFRESH_INTERVAL=0 can select per-request rebuilds.
func getDurationEnv(key string, defaultValue int, unit time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			return time.Duration(parsed) * unit
		}
	}
	return time.Duration(defaultValue) * unit
}

func getIntEnv(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}
