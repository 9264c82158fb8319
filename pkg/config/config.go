package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every configuration environment variable
const EnvPrefix = "OID4VC"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" envconfig:"SERVER"`
	Logging      LoggingConfig      `yaml:"logging" envconfig:"LOGGING"`
	Holder       HolderConfig       `yaml:"holder" envconfig:"HOLDER"`
	Verifier     VerifierConfig     `yaml:"verifier" envconfig:"VERIFIER"`
	SessionStore SessionStoreConfig `yaml:"session_store" envconfig:"SESSION_STORE"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host    string     `yaml:"host" envconfig:"HOST"`
	Port    int        `yaml:"port" envconfig:"PORT"`
	BaseURL string     `yaml:"base_url" envconfig:"BASE_URL"`
	CORS    CORSConfig `yaml:"cors" envconfig:"CORS"`
	// ShutdownTimeout is the graceful shutdown grace period in seconds
	ShutdownTimeout int `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// CORSConfig lists the origins allowed to call the API from a browser
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// HolderConfig configures the wallet side of credential issuance
type HolderConfig struct {
	// ClientID identifies the wallet to authorization servers
	ClientID string `yaml:"client_id" envconfig:"CLIENT_ID"`
	// RedirectURI receives the authorization code. Defaults to <base_url>/holder/offers/callback.
	RedirectURI string `yaml:"redirect_uri" envconfig:"REDIRECT_URI"`
	// AllowedAlgorithms restricts proof signing algorithms, in preference order
	AllowedAlgorithms []string `yaml:"allowed_algorithms" envconfig:"ALLOWED_ALGORITHMS"`
	// KeyAlgorithm is the algorithm of the generated holder key
	KeyAlgorithm       string `yaml:"key_algorithm" envconfig:"KEY_ALGORITHM"`
	HTTPTimeoutSeconds int    `yaml:"http_timeout_seconds" envconfig:"HTTP_TIMEOUT_SECONDS"`
}

// VerifierConfig configures proof request creation
type VerifierConfig struct {
	// KeyAlgorithm is the algorithm of the generated verifier did:jwk key
	KeyAlgorithm string `yaml:"key_algorithm" envconfig:"KEY_ALGORITHM"`
	// SigningAlgorithm overrides the request object algorithm
	SigningAlgorithm  string `yaml:"signing_algorithm" envconfig:"SIGNING_ALGORITHM"`
	RequestTTLSeconds int    `yaml:"request_ttl_seconds" envconfig:"REQUEST_TTL_SECONDS"`
	// ResponseURI receives authorization responses. Defaults to <base_url>/verifier/response.
	ResponseURI string `yaml:"response_uri" envconfig:"RESPONSE_URI"`
}

// SessionStoreConfig contains proof request session store configuration
type SessionStoreConfig struct {
	// Type is the session store type: "memory" or "redis"
	Type string `yaml:"type" envconfig:"TYPE"`
	// Redis contains Redis-specific configuration
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
	// CleanupIntervalSeconds is how often the memory store drops expired sessions
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds" envconfig:"CLEANUP_INTERVAL_SECONDS"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// RateLimitConfig limits requests per client IP on the response endpoint
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" envconfig:"ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
	Burst             int  `yaml:"burst" envconfig:"BURST"`
}

// SetDefaults fills unset rate limit values
func (c *RateLimitConfig) SetDefaults() {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.Burst <= 0 {
		c.Burst = 10
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
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Holder.RedirectURI == "" {
		cfg.Holder.RedirectURI = cfg.Server.BaseURL + "/holder/offers/callback"
	}
	if cfg.Verifier.ResponseURI == "" {
		cfg.Verifier.ResponseURI = cfg.Server.BaseURL + "/verifier/response"
	}
	cfg.RateLimit.SetDefaults()

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Holder: HolderConfig{
			ClientID:           "go-oid4vc-wallet",
			KeyAlgorithm:       "ES256",
			HTTPTimeoutSeconds: 30,
		},
		Verifier: VerifierConfig{
			KeyAlgorithm:      "ES256",
			RequestTTLSeconds: 600,
		},
		SessionStore: SessionStoreConfig{
			Type:                   "memory",
			CleanupIntervalSeconds: 60,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "oid4vp:session:",
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             10,
		},
	}
}

var supportedKeyAlgorithms = map[string]bool{"EdDSA": true, "ES256": true, "ES384": true}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Holder.ClientID == "" {
		return fmt.Errorf("holder client_id is required")
	}

	if !supportedKeyAlgorithms[c.Holder.KeyAlgorithm] {
		return fmt.Errorf("invalid holder key algorithm: %s (must be EdDSA, ES256, or ES384)", c.Holder.KeyAlgorithm)
	}

	if !supportedKeyAlgorithms[c.Verifier.KeyAlgorithm] {
		return fmt.Errorf("invalid verifier key algorithm: %s (must be EdDSA, ES256, or ES384)", c.Verifier.KeyAlgorithm)
	}

	if c.Verifier.RequestTTLSeconds < 0 {
		return fmt.Errorf("invalid verifier request ttl: %d", c.Verifier.RequestTTLSeconds)
	}

	if c.SessionStore.Type != "memory" && c.SessionStore.Type != "redis" {
		return fmt.Errorf("invalid session store type: %s (must be memory or redis)", c.SessionStore.Type)
	}

	if c.SessionStore.Type == "redis" && c.SessionStore.Redis.Address == "" {
		return fmt.Errorf("redis address is required when using redis session store")
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HTTPTimeout returns the holder's outbound HTTP timeout
func (c *HolderConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// RequestTTL returns how long a proof request stays answerable
func (c *VerifierConfig) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLSeconds) * time.Second
}
