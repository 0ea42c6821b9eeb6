package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Storage      StorageConfig      `yaml:"storage" envconfig:"STORAGE"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	JWT          JWTConfig          `yaml:"jwt" envconfig:"JWT"`
	WebAuthn     WebAuthnConfig     `yaml:"webauthn" envconfig:"WEBAUTHN"`
	SessionStore SessionStoreConfig `yaml:"session_store" envconfig:"SESSION_STORE"`
	CSRF         CSRFConfig         `yaml:"csrf" envconfig:"CSRF"`
	CORS         CORSConfig         `yaml:"cors" envconfig:"CORS"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	RPID     string `yaml:"rp_id" envconfig:"RP_ID"`
	RPOrigin string `yaml:"rp_origin" envconfig:"RP_ORIGIN"`
	RPName   string `yaml:"rp_name" envconfig:"RP_NAME"`
	BaseURL  string `yaml:"base_url" envconfig:"BASE_URL"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// JWTConfig contains legacy bearer token configuration
type JWTConfig struct {
	Secret     string `yaml:"secret" envconfig:"SECRET"`
	ExpiryDays int    `yaml:"expiry_days" envconfig:"EXPIRY_DAYS"`
	Issuer     string `yaml:"issuer" envconfig:"ISSUER"`
}

// WebAuthnConfig contains ceremony configuration
type WebAuthnConfig struct {
	// ChallengeTTL is how long an issued challenge stays consumable (seconds)
	ChallengeTTL int `yaml:"challenge_ttl" envconfig:"CHALLENGE_TTL"`
	// SweepInterval is how often expired challenges are purged (seconds)
	SweepInterval int `yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
}

// SessionStoreConfig contains session store configuration
type SessionStoreConfig struct {
	// Type is the session store type: "memory" or "redis"
	Type string `yaml:"type" envconfig:"TYPE"`
	// Redis contains Redis-specific configuration
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
	// InactivityTTLMinutes is the sliding idle timeout; each authenticated
	// request pushes a session's expiry this far into the future
	InactivityTTLMinutes int `yaml:"inactivity_ttl_minutes" envconfig:"INACTIVITY_TTL_MINUTES"`
	// CookieName is the session cookie name
	CookieName string `yaml:"cookie_name" envconfig:"COOKIE_NAME"`
	// CookieSecure marks the session cookie Secure
	CookieSecure bool `yaml:"cookie_secure" envconfig:"COOKIE_SECURE"`
	// CookieDomain scopes the session cookie (empty for host-only)
	CookieDomain string `yaml:"cookie_domain" envconfig:"COOKIE_DOMAIN"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// CSRFConfig contains double-submit CSRF protection configuration
type CSRFConfig struct {
	Secret     string `yaml:"secret" envconfig:"SECRET"`
	CookieName string `yaml:"cookie_name" envconfig:"COOKIE_NAME"`
	HeaderName string `yaml:"header_name" envconfig:"HEADER_NAME"`
	// ExemptPaths never require a CSRF token (health checks, webhooks)
	ExemptPaths []string `yaml:"exempt_paths" envconfig:"EXEMPT_PATHS"`
}

// CORSConfig contains cross-origin configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// RateLimitConfig throttles the ceremony endpoints
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts    int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds  int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	LockoutSeconds int  `yaml:"lockout_seconds" envconfig:"LOCKOUT_SECONDS"`
}

// SetDefaults fills zero values with safe limits
func (c *RateLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("AUTH", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Set BaseURL if not provided
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			RPID:     "localhost",
			RPOrigin: "http://localhost:8080",
			RPName:   "Glossbook",
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "glossbook_auth",
				Timeout:  10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			ExpiryDays: 7,
			Issuer:     "glossbook-auth",
		},
		WebAuthn: WebAuthnConfig{
			ChallengeTTL:  300,
			SweepInterval: 60,
		},
		SessionStore: SessionStoreConfig{
			Type:                 "memory",
			InactivityTTLMinutes: 1440,
			CookieName:           "gb_session",
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "auth:session:",
			},
		},
		CSRF: CSRFConfig{
			CookieName:  "gb_csrf",
			HeaderName:  "X-CSRF-Token",
			ExemptPaths: []string{"/health"},
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			MaxAttempts:    10,
			WindowSeconds:  60,
			LockoutSeconds: 300,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.RPID == "" {
		return fmt.Errorf("rp_id is required")
	}

	if c.Server.RPOrigin == "" {
		return fmt.Errorf("rp_origin is required")
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.SessionStore.Type != "memory" && c.SessionStore.Type != "redis" {
		return fmt.Errorf("invalid session store type: %s (must be memory or redis)", c.SessionStore.Type)
	}

	if c.SessionStore.InactivityTTLMinutes < 1 {
		return fmt.Errorf("invalid session inactivity ttl: %d", c.SessionStore.InactivityTTLMinutes)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	if c.CSRF.Secret == "" {
		return fmt.Errorf("csrf secret is required")
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
