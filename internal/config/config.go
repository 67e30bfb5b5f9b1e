// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DBTypeMongo  = "mongo"
	DBTypeMemory = "memory"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	RequestTimeout time.Duration
}

// Addr is the listen address for net/http.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type    string // "mongo" or "memory"
	URI     string
	Name    string
	Timeout time.Duration
}

// AuthConfig holds token signing settings
type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// WebsocketConfig tunes each live session
type WebsocketConfig struct {
	OutboxSize     int
	MaxMessageSize int64
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// Config holds the complete application configuration
type Config struct {
	Env            string
	Server         *ServerConfig
	Database       *DatabaseConfig
	Auth           *AuthConfig
	Websocket      *WebsocketConfig
	Log            *LogConfig
	AllowedOrigins []string
}

// IsDevelopment reports whether ENV=development.
func (c *Config) IsDevelopment() bool {
	return c.Env == EnvDevelopment
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
		RequestTimeout: 5 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:    DBTypeMongo,
		URI:     "mongodb://localhost:27017",
		Name:    "glooo",
		Timeout: 10 * time.Second,
	}
}

// devSecret signs tokens only when ENV=development and JWT_SECRET is unset.
const devSecret = "glooo-development-secret"

// LoadConfig loads .env (if any) and then reads the process environment.
func LoadConfig() (*Config, error) {
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
		filepath.Join(os.Getenv("GOPATH"), "src/glooo/.env"),
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		// Silent when no .env exists
		_ = godotenv.Load()
	}

	return LoadFromEnv(os.Getenv)
}

// LoadFromEnv builds a Config from getenv, applying defaults for unset keys.
func LoadFromEnv(getenv func(string) string) (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(getenv("ENV")))
	if env == "" {
		env = EnvProduction
	}
	if env != EnvDevelopment && env != EnvProduction {
		return nil, fmt.Errorf("ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, env)
	}

	serverConfig := DefaultConfig()
	if portStr := getenv("PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", portStr)
		}
		serverConfig.Port = port
	}
	if host := getenv("HOST"); host != "" {
		serverConfig.Host = host
	}
	if metricsEnabled := getenv("METRICS_ENABLED"); metricsEnabled != "" {
		enabled, err := strconv.ParseBool(metricsEnabled)
		if err != nil {
			return nil, fmt.Errorf("invalid METRICS_ENABLED %q", metricsEnabled)
		}
		serverConfig.MetricsEnabled = enabled
	}
	timeout, err := durationOrDefault(getenv, "REQUEST_TIMEOUT", serverConfig.RequestTimeout)
	if err != nil {
		return nil, err
	}
	serverConfig.RequestTimeout = timeout

	dbConfig := DefaultDatabaseConfig()
	if dbType := strings.ToLower(getenv("DB_TYPE")); dbType != "" {
		dbConfig.Type = dbType
	}
	switch dbConfig.Type {
	case DBTypeMongo:
		if uri := getenv("DATABASE_URL"); uri != "" {
			dbConfig.URI = uri
		}
	case DBTypeMemory:
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbConfig.Type)
	}
	if name := getenv("DB_NAME"); name != "" {
		dbConfig.Name = name
	}
	if dbConfig.Timeout, err = durationOrDefault(getenv, "DB_TIMEOUT", dbConfig.Timeout); err != nil {
		return nil, err
	}

	authConfig := &AuthConfig{
		Secret:   getenv("JWT_SECRET"),
		TokenTTL: 28 * 24 * time.Hour,
	}
	if authConfig.Secret == "" {
		if env != EnvDevelopment {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required outside development")
		}
		authConfig.Secret = devSecret
	}
	if authConfig.TokenTTL, err = durationOrDefault(getenv, "TOKEN_TTL", authConfig.TokenTTL); err != nil {
		return nil, err
	}

	wsConfig := &WebsocketConfig{OutboxSize: 256, MaxMessageSize: 8192}
	if v := getenv("WS_OUTBOX_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WS_OUTBOX_SIZE %q", v)
		}
		wsConfig.OutboxSize = n
	}
	if v := getenv("WS_MAX_MESSAGE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WS_MAX_MESSAGE_SIZE %q", v)
		}
		wsConfig.MaxMessageSize = n
	}

	logConfig := &LogConfig{Level: "info", Format: "text"}
	if level := strings.ToLower(getenv("LOG_LEVEL")); level != "" {
		switch level {
		case "debug", "info", "warn", "error":
			logConfig.Level = level
		default:
			return nil, fmt.Errorf("invalid LOG_LEVEL %q", level)
		}
	}
	if format := strings.ToLower(getenv("LOG_FORMAT")); format != "" {
		logConfig.Format = format
	}

	config := &Config{
		Env:            env,
		Server:         serverConfig,
		Database:       dbConfig,
		Auth:           authConfig,
		Websocket:      wsConfig,
		Log:            logConfig,
		AllowedOrigins: []string{"*"}, // Default to allow all origins
	}

	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = splitList(origins)
	}

	return config, nil
}

func durationOrDefault(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	value := getenv(key)
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
