package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// EnvProduction enables production defaults such as secure cookies.
	EnvProduction = "production"
	// EnvDevelopment is the default environment.
	EnvDevelopment = "development"

	// MinSecretLength is the minimum accepted length of the token signing secret.
	MinSecretLength = 32

	defaultTokenTTL = 7 * 24 * time.Hour
)

// Config captures environment driven configuration values for the Saturday service.
type Config struct {
	Environment  string
	HTTPPort     int
	DatabaseURL  string
	JWTSecret    string
	TokenTTL     time.Duration
	CookieSecure bool
	LogLevel     slog.Level
	NATSURL      string
	SeedSchools  string
}

// Production reports whether the service runs with production defaults.
func (c Config) Production() bool {
	return c.Environment == EnvProduction
}

// Load parses configuration values from the current process environment.
//
// A .env file in the working directory is applied first when present; variables
// already set in the environment win. The signing secret is mandatory and the
// loader refuses to fall back to a default.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to read .env file: %w", err)
	}
	return FromEnv()
}

// FromEnv parses configuration from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		Environment: EnvDevelopment,
		HTTPPort:    8080,
		DatabaseURL: "file:saturday.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		TokenTTL:    defaultTokenTTL,
		LogLevel:    slog.LevelInfo,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if env := strings.ToLower(strings.TrimSpace(os.Getenv("SATURDAY_ENV"))); env != "" {
		switch env {
		case EnvProduction, EnvDevelopment:
			cfg.Environment = env
		default:
			invalid = append(invalid, "SATURDAY_ENV")
		}
	}

	if portValue := strings.TrimSpace(os.Getenv("SATURDAY_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SATURDAY_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("SATURDAY_DATABASE_URL")); dsn != "" {
		cfg.DatabaseURL = dsn
	}

	if secret := strings.TrimSpace(os.Getenv("SATURDAY_JWT_SECRET")); secret == "" {
		missing = append(missing, "SATURDAY_JWT_SECRET")
	} else if len(secret) < MinSecretLength {
		invalid = append(invalid, "SATURDAY_JWT_SECRET")
	} else {
		cfg.JWTSecret = secret
	}

	if ttlValue := strings.TrimSpace(os.Getenv("SATURDAY_TOKEN_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl < time.Minute {
			invalid = append(invalid, "SATURDAY_TOKEN_TTL")
		} else {
			cfg.TokenTTL = ttl
		}
	}

	cfg.CookieSecure = cfg.Production()
	if secureValue := strings.TrimSpace(os.Getenv("SATURDAY_COOKIE_SECURE")); secureValue != "" {
		secure, err := strconv.ParseBool(secureValue)
		if err != nil {
			invalid = append(invalid, "SATURDAY_COOKIE_SECURE")
		} else {
			cfg.CookieSecure = secure
		}
	}

	if levelValue := strings.TrimSpace(os.Getenv("SATURDAY_LOG_LEVEL")); levelValue != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "SATURDAY_LOG_LEVEL")
		}
	}

	cfg.NATSURL = strings.TrimSpace(os.Getenv("SATURDAY_NATS_URL"))
	cfg.SeedSchools = strings.TrimSpace(os.Getenv("SATURDAY_SEED_SCHOOLS"))

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variable values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
