package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort int
	LogLevel   string

	DatabaseURL string

	JWTSecret  []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string

	KafkaBrokers []string
	EventsTopic  string
}

// Load reads the environment (plus an optional .env file) and
// validates the token signing parameters. A misconfigured secret,
// issuer or audience is a startup error, never a runtime one.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not found: %v, using system environment", err)
	}

	cfg := &Config{
		ServerPort: envIntDefault("SERVER_PORT", 8000),
		LogLevel:   envDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:  []byte(os.Getenv("JWT_AUTH_SECRET")),
		AccessTTL:  time.Duration(envIntDefault("JWT_EXPIRATION_TIME", 900)) * time.Second,
		RefreshTTL: time.Duration(envIntDefault("JWT_REFRESH_EXPIRATION_TIME", 604800)) * time.Second,
		Issuer:     envDefault("JWT_ISSUER", "http://localhost:8000"),
		Audience:   envDefault("JWT_AUDIENCE", "http://localhost:3000"),

		KafkaBrokers: csv(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:  envDefault("KAFKA_EVENTS_TOPIC", "user_events"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("config: JWT_AUTH_SECRET must be at least 32 characters, got %d", len(c.JWTSecret))
	}
	if err := wellFormedURL(c.Issuer); err != nil {
		return fmt.Errorf("config: JWT_ISSUER: %w", err)
	}
	if err := wellFormedURL(c.Audience); err != nil {
		return fmt.Errorf("config: JWT_AUDIENCE: %w", err)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("config: token lifetimes must be positive")
	}
	return nil
}

func wellFormedURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", s)
	}
	return nil
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
