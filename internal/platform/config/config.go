package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string

	// OpenRegistration relaxes the owner-only gate on user registration.
	// Off by default: only the manager owner may register users.
	OpenRegistration bool

	// OperatorAddr and OperatorKeyHash enable the X-API-Key auth path for
	// machine callers. The hash is bcrypt; the matching caller is attributed
	// to OperatorAddr.
	OperatorAddr    string
	OperatorKeyHash string

	DatabaseURL  string
	Redis        RedisConfig
	KafkaBrokers []string
	KafkaTopic   string
}

// RedisConfig tunes the optional Redis event sink.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("VOUCHSAFE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	kafkaTopic := os.Getenv("KAFKA_TOPIC")
	if kafkaTopic == "" {
		kafkaTopic = "vouchsafe.events"
	}

	return Server{
		Addr:             addr,
		JWTSigningKey:    jwtSigningKey,
		OpenRegistration: os.Getenv("VOUCHSAFE_OPEN_REGISTRATION") == "true",
		OperatorAddr:     os.Getenv("VOUCHSAFE_OPERATOR_ADDR"),
		OperatorKeyHash:  os.Getenv("VOUCHSAFE_OPERATOR_KEY_HASH"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   kafkaTopic,
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
