// Package config loads the gateway's process-level configuration
// (ServerConfig, StorageConfig, ProvidersConfig, ObservabilityConfig) from
// the environment, and resolves the engine's strict-deep-merged option
// chain (Options/Resolve, §4.10).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// GatewayConfig is the process-level configuration consumed at startup to
// wire storage, provider adapters, and the HTTP binding.
type GatewayConfig struct {
	Environment   string
	Server        ServerConfig
	Storage       StorageConfig
	Providers     ProvidersConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
	Engine        Options
}

// ServerConfig holds the thin HTTP binding's listen configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SessionHeader   string
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects and configures the storage.Storage backend.
type StorageConfig struct {
	Type           string // "memory" or "valkey"
	ValkeyAddr     string
	ValkeyPassword string
	ValkeyDB       int
}

// ProviderConfig is shared shape for a single vendor's credentials/limits.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ProvidersConfig holds the three wired vendor adapters' configuration.
type ProvidersConfig struct {
	OpenAI   ProviderConfig
	DeepSeek ProviderConfig
	Gemini   ProviderConfig
}

// ObservabilityConfig configures structured logging, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel        string
	LogFormat       string
	MetricsEnabled  bool
	MetricsPort     int
	TracingEnabled  bool
	TracingEndpoint string
}

// AuthConfig configures the HTTP-boundary JWT check. The engine itself is
// auth-agnostic (see DESIGN.md); this is consumed only by internal/httpapi.
type AuthConfig struct {
	Required  bool
	JWTSecret string
	JWTIssuer string
}

// Load reads GatewayConfig from the environment, loading a .env file first
// when present.
func Load() (*GatewayConfig, error) {
	_ = godotenv.Load()

	cfg := &GatewayConfig{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			SessionHeader:   getEnv("SESSION_HEADER_NAME", "x-session-id"),
		},
		Storage: StorageConfig{
			Type:           getEnv("STORAGE_TYPE", "memory"),
			ValkeyAddr:     getEnv("VALKEY_ADDR", "localhost:6379"),
			ValkeyPassword: getEnv("VALKEY_PASSWORD", ""),
			ValkeyDB:       getEnvAsInt("VALKEY_DB", 0),
		},
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 30*time.Second),
			},
			DeepSeek: ProviderConfig{
				APIKey:  getEnv("DEEPSEEK_API_KEY", ""),
				BaseURL: getEnv("DEEPSEEK_BASE_URL", ""),
				Timeout: getEnvAsDuration("DEEPSEEK_TIMEOUT", 30*time.Second),
			},
			Gemini: ProviderConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 30*time.Second),
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LogFormat:       getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:     getEnvAsInt("METRICS_PORT", 9090),
			TracingEnabled:  getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint: getEnv("TRACING_ENDPOINT", ""),
		},
		Auth: AuthConfig{
			Required:  getEnvAsBool("AUTH_REQUIRED", false),
			JWTSecret: getEnv("JWT_SECRET", ""),
			JWTIssuer: getEnv("JWT_ISSUER", ""),
		},
		Engine: Defaults(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field invariants not covered by Resolve.
func (c *GatewayConfig) Validate() error {
	if c.Storage.Type != "memory" && c.Storage.Type != "valkey" {
		return fmt.Errorf("STORAGE_TYPE must be \"memory\" or \"valkey\", got %q", c.Storage.Type)
	}
	if c.Auth.Required && c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when AUTH_REQUIRED=true")
	}
	hasProvider := c.Providers.OpenAI.APIKey != "" || c.Providers.DeepSeek.APIKey != "" || c.Providers.Gemini.APIKey != ""
	if !hasProvider && c.Environment == "production" {
		return fmt.Errorf("at least one provider API key must be configured in production")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
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

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
