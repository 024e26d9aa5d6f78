package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env   string
	Port  int
	DBURL string

	DBMaxConns int32

	JWTSecret           string
	JWTAccessTTLMinutes int
	JWTRefreshTTLDays   int

	AdminEmail    string
	AdminPassword string
	AdminName     string

	CORSAllowedOrigins []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RealtimeChannel is the Redis pub/sub channel the worker relays
	// Postgres change notifications onto.
	RealtimeChannel string

	StorageDir       string
	StoragePublicURL string
	UploadMaxBytes   int64

	OTelEndpoint    string
	OTelServiceName string
	OTelSampleRatio float64

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerHealthPort   int
	NotifierTimeout    time.Duration
}

var ErrWeakJWTSecret = errors.New("JWT_SECRET must be at least 32 characters outside dev")

func Load() Config {
	// a missing .env is the normal case in containers
	_ = godotenv.Load()

	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		DBMaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 15),
		JWTRefreshTTLDays:   getEnvInt("JWT_REFRESH_TTL_DAYS", 7),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RealtimeChannel: getEnv("REALTIME_CHANNEL", "backoffice:changes"),

		StorageDir:       getEnv("STORAGE_DIR", "./data/storage"),
		StoragePublicURL: getEnv("STORAGE_PUBLIC_URL", "http://localhost:8080/files"),
		UploadMaxBytes:   int64(getEnvInt("UPLOAD_MAX_BYTES", 5<<20)),

		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "backoffice-api"),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: time.Duration(getEnvInt("WORKER_POLL_MS", 250)) * time.Millisecond,
		WorkerHealthPort:   getEnvInt("WORKER_HEALTH_PORT", 8081),
		NotifierTimeout:    time.Duration(getEnvInt("NOTIFIER_TIMEOUT_MS", 3000)) * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Env == "dev" || c.Env == "test" {
		return nil
	}
	if len(c.JWTSecret) < 32 {
		return ErrWeakJWTSecret
	}
	return nil
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLDays) * 24 * time.Hour
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "backoffice")
	pass := getEnv("DB_PASSWORD", "backoffice")
	name := getEnv("DB_NAME", "backoffice")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	num, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}

	return num
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}

	return f
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
