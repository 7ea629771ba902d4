package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	JWTSecret          string
	AccessTokenMinutes int
	EncryptKey         string
	LegacyEncryptKeys  []string

	CORSOrigins []string
	Debug       bool
	LogLevel    string
	LogFormat   string

	TypingTimeout     time.Duration
	HeartbeatInterval time.Duration
	SendQueueSize     int
	StoreRetryDelay   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL     string
	NATSSubject string
}

func Load() (*Config, error) {
	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbUser := getEnv("POSTGRES_USER", "postgres")
	dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
	dbName := getEnv("POSTGRES_DB", "chatsync")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbUser, dbPass),
		Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
		Path:     dbName,
		RawQuery: "sslmode=disable",
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "chatsync"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
		DatabaseURL: u.String(),
		SQLitePath:  getEnv("SQLITE_PATH", "chatsync.db"),

		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),
		EncryptKey:         os.Getenv("ENCRYPTION_KEY"),
		LegacyEncryptKeys:  getEnvAsList("LEGACY_ENCRYPTION_KEYS", nil),

		Debug:     getEnvAsBool("DEBUG", true),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		TypingTimeout:     time.Duration(getEnvAsInt("TYPING_TIMEOUT_MS", 800)) * time.Millisecond,
		HeartbeatInterval: time.Duration(getEnvAsInt("HEARTBEAT_INTERVAL_SECONDS", 25)) * time.Second,
		SendQueueSize:     getEnvAsInt("SEND_QUEUE_SIZE", 256),
		StoreRetryDelay:   time.Duration(getEnvAsInt("STORE_RETRY_DELAY_MS", 100)) * time.Millisecond,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: getEnv("NATS_SUBJECT", "chatsync.messages.pending"),
	}

	cfg.CORSOrigins = getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"})

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}
	switch cfg.StoreDriver {
	case "postgres", "sqlite", "memory":
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be postgres, sqlite or memory, got %q", cfg.StoreDriver)
	}
	if cfg.TypingTimeout <= 0 {
		return nil, fmt.Errorf("TYPING_TIMEOUT_MS must be positive")
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 256
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
