// ABOUTME: Configuration loading and parsing for vision-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, duration parsing and VISION_* overrides

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// MinJWTSecretLength matches the verifier's minimum HS256 secret size.
const MinJWTSecretLength = 32

// Config represents the complete vision-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale" toml:"tailscale"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Gateway    GatewayConfig    `yaml:"gateway" toml:"gateway"`
	Processing ProcessingConfig `yaml:"processing" toml:"processing"`
	Moderation ModerationConfig `yaml:"moderation" toml:"moderation"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret    string   `yaml:"jwt_secret" toml:"jwt_secret"`
	AdminUserIDs []string `yaml:"admin_user_ids" toml:"admin_user_ids"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr       string   `yaml:"grpc_addr" toml:"grpc_addr"` // optional gRPC health endpoint
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// DatabaseConfig holds identity directory configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite | postgres
	Path   string `yaml:"path" toml:"path"`     // sqlite file
	DSN    string `yaml:"dsn" toml:"dsn"`       // postgres connection string
}

// GatewayConfig holds realtime connection tuning
type GatewayConfig struct {
	HeartbeatInterval time.Duration `yaml:"-" toml:"-"`
	WriteTimeout      time.Duration `yaml:"-" toml:"-"`
	RateWindow        time.Duration `yaml:"-" toml:"-"`
	DedupeTTL         time.Duration `yaml:"-" toml:"-"`

	SendQueue      int      `yaml:"send_queue" toml:"send_queue"`
	ReadLimit      int64    `yaml:"read_limit" toml:"read_limit"`
	MaxInflight    int      `yaml:"max_inflight" toml:"max_inflight"`
	RateLimit      int      `yaml:"rate_limit" toml:"rate_limit"` // events per rate_window, 0 disables
	AnalyticsTiers []string `yaml:"analytics_tiers" toml:"analytics_tiers"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	WriteTimeoutRaw      string `yaml:"write_timeout" toml:"write_timeout"`
	RateWindowRaw        string `yaml:"rate_window" toml:"rate_window"`
	DedupeTTLRaw         string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// ProcessingConfig selects and tunes the processing backend
type ProcessingConfig struct {
	Backend          string        `yaml:"backend" toml:"backend"` // simulated | http | openai | gemini
	BaseURL          string        `yaml:"base_url" toml:"base_url"`
	APIKey           string        `yaml:"api_key" toml:"api_key"`
	Model            string        `yaml:"model" toml:"model"`
	TranscribeModel  string        `yaml:"transcribe_model" toml:"transcribe_model"`
	CachePath        string        `yaml:"cache_path" toml:"cache_path"` // empty keeps the cache in memory
	CacheEnabled     bool          `yaml:"cache_enabled" toml:"cache_enabled"`
	Timeout          time.Duration `yaml:"-" toml:"-"`
	SimulatedLatency time.Duration `yaml:"-" toml:"-"`
	CacheTTL         time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw          string `yaml:"timeout" toml:"timeout"`
	SimulatedLatencyRaw string `yaml:"simulated_latency" toml:"simulated_latency"`
	CacheTTLRaw         string `yaml:"cache_ttl" toml:"cache_ttl"`
}

// ModerationConfig holds conversation message filtering
type ModerationConfig struct {
	BlockedTerms []string `yaml:"blocked_terms" toml:"blocked_terms"`
	Replacement  string   `yaml:"replacement" toml:"replacement"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// envOverrides are read from VISION_* environment variables and win over the file.
type envOverrides struct {
	HTTPAddr          string `envconfig:"HTTP_ADDR"`
	GRPCAddr          string `envconfig:"GRPC_ADDR"`
	JWTSecret         string `envconfig:"JWT_SECRET"`
	DatabaseDriver    string `envconfig:"DB_DRIVER"`
	DatabasePath      string `envconfig:"DB_PATH"`
	DatabaseDSN       string `envconfig:"DB_DSN"`
	ProcessingBackend string `envconfig:"PROCESSING_BACKEND"`
	ProcessingBaseURL string `envconfig:"PROCESSING_BASE_URL"`
	ProcessingAPIKey  string `envconfig:"PROCESSING_API_KEY"`
	LogLevel          string `envconfig:"LOG_LEVEL"`
	LogFormat         string `envconfig:"LOG_FORMAT"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, files ending in
// .toml are decoded as TOML, and VISION_* variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} references with environment values
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Gateway.HeartbeatInterval == 0 {
		c.Gateway.HeartbeatInterval = 30 * time.Second
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = 10 * time.Second
	}
	if c.Gateway.RateWindow == 0 {
		c.Gateway.RateWindow = 10 * time.Second
	}
	if c.Gateway.DedupeTTL == 0 {
		c.Gateway.DedupeTTL = 5 * time.Minute
	}
	if c.Gateway.SendQueue == 0 {
		c.Gateway.SendQueue = 64
	}
	if c.Gateway.ReadLimit == 0 {
		c.Gateway.ReadLimit = 10 << 20 // base64 images and audio clips
	}
	if c.Gateway.MaxInflight == 0 {
		c.Gateway.MaxInflight = 256
	}
	if len(c.Gateway.AnalyticsTiers) == 0 {
		c.Gateway.AnalyticsTiers = []string{"enterprise"}
	}
	if c.Processing.Backend == "" {
		c.Processing.Backend = "simulated"
	}
	if c.Processing.Timeout == 0 {
		c.Processing.Timeout = 30 * time.Second
	}
	if c.Processing.CacheTTL == 0 {
		c.Processing.CacheTTL = time.Hour
	}
	if c.Moderation.Replacement == "" {
		c.Moderation.Replacement = "***"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// applyEnvOverrides copies any VISION_* variables over the file values.
func applyEnvOverrides(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process("VISION", &o); err != nil {
		return err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Server.HTTPAddr, o.HTTPAddr)
	override(&cfg.Server.GRPCAddr, o.GRPCAddr)
	override(&cfg.Auth.JWTSecret, o.JWTSecret)
	override(&cfg.Database.Driver, o.DatabaseDriver)
	override(&cfg.Database.Path, o.DatabasePath)
	override(&cfg.Database.DSN, o.DatabaseDSN)
	override(&cfg.Processing.Backend, o.ProcessingBackend)
	override(&cfg.Processing.BaseURL, o.ProcessingBaseURL)
	override(&cfg.Processing.APIKey, o.ProcessingAPIKey)
	override(&cfg.Logging.Level, o.LogLevel)
	override(&cfg.Logging.Format, o.LogFormat)
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return errors.New("tailscale.hostname is required when tailscale is enabled")
	}

	if len(c.Auth.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d characters", MinJWTSecretLength)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (use sqlite or postgres)", c.Database.Driver)
	}

	switch c.Processing.Backend {
	case "simulated":
	case "http":
		if c.Processing.BaseURL == "" {
			return errors.New("processing.base_url is required for the http backend")
		}
	case "openai", "gemini":
		if c.Processing.APIKey == "" {
			return fmt.Errorf("processing.api_key is required for the %s backend", c.Processing.Backend)
		}
	default:
		return fmt.Errorf("processing.backend %q is not supported", c.Processing.Backend)
	}

	if c.Gateway.SendQueue < 1 {
		return errors.New("gateway.send_queue must be positive")
	}
	if c.Gateway.MaxInflight < 1 {
		return errors.New("gateway.max_inflight must be positive")
	}
	if c.Gateway.RateLimit < 0 {
		return errors.New("gateway.rate_limit must not be negative")
	}

	if !slices.Contains([]string{"", "json", "text"}, c.Logging.Format) {
		return fmt.Errorf("logging.format %q is not supported (use json or text)", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"gateway.heartbeat_interval", cfg.Gateway.HeartbeatIntervalRaw, &cfg.Gateway.HeartbeatInterval},
		{"gateway.write_timeout", cfg.Gateway.WriteTimeoutRaw, &cfg.Gateway.WriteTimeout},
		{"gateway.rate_window", cfg.Gateway.RateWindowRaw, &cfg.Gateway.RateWindow},
		{"gateway.dedupe_ttl", cfg.Gateway.DedupeTTLRaw, &cfg.Gateway.DedupeTTL},
		{"processing.timeout", cfg.Processing.TimeoutRaw, &cfg.Processing.Timeout},
		{"processing.simulated_latency", cfg.Processing.SimulatedLatencyRaw, &cfg.Processing.SimulatedLatency},
		{"processing.cache_ttl", cfg.Processing.CacheTTLRaw, &cfg.Processing.CacheTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}

	return nil
}
