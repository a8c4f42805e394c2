package config

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Env  string
	Port int

	DBURL        string
	DBMaxConns   int32
	AutoMigrate  bool
	StoreBackend string // "postgres" | "memory"

	JWTSecret       string
	BcryptCost      int
	HashConcurrency int

	AllowedOrigins  []string
	RateLimit       int
	RateLimitWindow time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TracingEnabled bool
	OTelEndpoint   string

	AdminName     string
	AdminEmail    string
	AdminPassword string
}

func Load() Config {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		DBURL:        getEnv("DATABASE_URL", buildDBURL()),
		DBMaxConns:   int32(getEnvInt("DB_MAX_CONNS", 10)),
		AutoMigrate:  getEnvBool("AUTO_MIGRATE", true),
		StoreBackend: getEnv("STORE_BACKEND", "postgres"),

		JWTSecret:       os.Getenv("JWT_SECRET"),
		BcryptCost:      getEnvInt("BCRYPT_COST", bcrypt.DefaultCost),
		HashConcurrency: getEnvInt("HASH_CONCURRENCY", runtime.NumCPU()),

		AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimit:       getEnvInt("RATE_LIMIT", 20),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTelEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		AdminName:     getEnv("ADMIN_NAME", "Administrator"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

// Validate rejects settings the service cannot run safely with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		if c.Env != "dev" && c.Env != "test" {
			return errors.New("JWT_SECRET is required")
		}
	}

	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return errors.New("BCRYPT_COST out of range")
	}

	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return errors.New("STORE_BACKEND must be postgres or memory")
	}

	return nil
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "rolegate")
	pass := getEnv("DB_PASSWORD", "rolegate")
	name := getEnv("DB_NAME", "rolegate")
	ssl := getEnv("DB_SSLMODE", "disable")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + name,
		RawQuery: url.Values{"sslmode": {ssl}}.Encode(),
	}

	return u.String()
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			slog.Warn("invalid integer env value, using default", "key", key, "err", err)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env value, using default", "key", key, "err", err)
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env value, using default", "key", key, "err", err)
			return fallback
		}
		return d
	}
	return fallback
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
