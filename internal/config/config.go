package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Booking   BookingConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type BookingConfig struct {
	Timeout time.Duration

	// RateLimit bookings per RateWindow per client IP.
	RateLimit  int
	RateWindow time.Duration

	// IdempotencyTTL bounds how long a stored booking result replays for
	// its Idempotency-Key.
	IdempotencyTTL time.Duration
}

type ReconcileConfig struct {
	// Spec is a cron expression for the periodic ledger reconciliation pass.
	Spec string
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverHost := getenv("SERVER_HOST", "localhost")

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresHost := getenv("POSTGRES_HOST", "localhost")

	postgresPort, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	postgresUser := os.Getenv("POSTGRES_USER")
	if postgresUser == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_USER", op)
	}

	postgresPassword := os.Getenv("POSTGRES_PASSWORD")
	if postgresPassword == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_PASSWORD", op)
	}

	postgresDB := os.Getenv("POSTGRES_DB")
	if postgresDB == "" {
		return nil, fmt.Errorf("%s: missing POSTGRES_DB", op)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%s: missing JWT_SECRET", op)
	}

	bookingTimeout, err := durationEnv("BOOKING_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rateLimit, err := intEnv("BOOKING_RATE_LIMIT", 10)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rateWindow, err := durationEnv("BOOKING_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	idempotencyTTL, err := durationEnv("IDEMPOTENCY_TTL", 2*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Config{
		Server: ServerConfig{
			Host: serverHost,
			Port: serverPort,
		},
		Postgres: PostgresConfig{
			User:     postgresUser,
			Password: postgresPassword,
			Name:     postgresDB,
			Host:     postgresHost,
			Port:     postgresPort,
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
		},
		Booking: BookingConfig{
			Timeout:        bookingTimeout,
			RateLimit:      rateLimit,
			RateWindow:     rateWindow,
			IdempotencyTTL: idempotencyTTL,
		},
		Reconcile: ReconcileConfig{
			Spec: getenv("RECONCILE_CRON", "@every 5m"),
		},
	}, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
