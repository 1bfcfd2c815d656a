package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr string

	// JWTSigningKey signs owner API access tokens.
	JWTSigningKey string
	// TokenSigningKey keys the HMAC over capability token payloads.
	TokenSigningKey string
	// DocumentKey is the 32-byte hex key for document encryption at rest.
	DocumentKey [32]byte

	// BackendTimeout bounds every vault and credential store call.
	BackendTimeout time.Duration

	Redis    RedisConfig
	Postgres PostgresConfig
}

// RedisConfig configures the optional Redis backends for the vault and
// credential store. An empty URL means in-memory backends.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the optional durable audit sink. An empty DSN
// means the in-memory audit store.
type PostgresConfig struct {
	DSN string
}

func FromEnv() Server {
	cfg := Server{
		Addr:            getenv("CUSTODA_ADDR", ":8080"),
		JWTSigningKey:   getenv("CUSTODA_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		TokenSigningKey: getenv("CUSTODA_TOKEN_SIGNING_KEY", "dev-capability-key-change-in-production"),
		BackendTimeout:  getenvDuration("CUSTODA_BACKEND_TIMEOUT", 5*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("CUSTODA_REDIS_URL"),
			PoolSize:     getenvInt("CUSTODA_REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("CUSTODA_REDIS_MIN_IDLE", 2),
			DialTimeout:  getenvDuration("CUSTODA_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("CUSTODA_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("CUSTODA_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("CUSTODA_POSTGRES_DSN"),
		},
	}

	if raw := os.Getenv("CUSTODA_DOCUMENT_KEY"); raw != "" {
		if decoded, err := hex.DecodeString(raw); err == nil && len(decoded) == 32 {
			copy(cfg.DocumentKey[:], decoded)
			return cfg
		}
	}
	// Development fallback; production deployments must set a real key.
	copy(cfg.DocumentKey[:], []byte("dev-document-key-0123456789abcd!"))
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
