// Package config loads layered configuration for the registry and host
// daemons via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings for the registry daemon.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig configures the blob store and repository backend.
type StorageConfig struct {
	Path        string `mapstructure:"path"`
	RepoBackend string `mapstructure:"repo_backend"` // "postgres" | "memory"
	DatabaseURL string `mapstructure:"database_url"`
}

// SignatureConfig configures the signature verifier's policy.
type SignatureConfig struct {
	RequireSignatures bool     `mapstructure:"require_signatures"`
	AllowUnsigned     bool     `mapstructure:"allow_unsigned"`
	TrustedKeysJSON   string   `mapstructure:"trusted_keys_json"`
	SupportedAlgs     []string `mapstructure:"supported_algorithms"`
}

// ValidationConfig configures the validation cache and static-scan bounds.
type ValidationConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CacheSize       int           `mapstructure:"cache_size"`
	RegexTimeoutMs  int           `mapstructure:"regex_timeout_ms"`
	MaxContentSize  int           `mapstructure:"max_content_size"`
	MaxIterations   int           `mapstructure:"max_iterations"`
	MaxPluginSize   int64         `mapstructure:"max_plugin_size"`
}

// OptimizationConfig configures the bundle optimizer.
type OptimizationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Compression int    `mapstructure:"compression"`
	Algorithm   string `mapstructure:"algorithm"` // "gzip" | "brotli" | "deflate"
}

// HostConfig configures the plugin host daemon.
type HostConfig struct {
	PluginsDir              string        `mapstructure:"plugins_dir"`
	BatchSize               int           `mapstructure:"batch_size"`
	LoadTimeout             time.Duration `mapstructure:"load_timeout"`
	DependencyWaitTimeout   time.Duration `mapstructure:"dependency_wait_timeout"`
	HealthProbeInterval     time.Duration `mapstructure:"health_probe_interval"`
	HealthProbeTimeout      time.Duration `mapstructure:"health_probe_timeout"`
	MaxConsecutiveFailures  int           `mapstructure:"max_consecutive_failures"`
	CleanupIntervalMs       int           `mapstructure:"cleanup_interval_ms"`
	MemoryPressureThreshold float64       `mapstructure:"memory_pressure_threshold"`
	Strategy                string        `mapstructure:"strategy"` // "serial" | "parallel" | "batched"
}

// RateLimitConfig configures the upload rate limiter middleware.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config is the root configuration object for both daemons.
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Signature    SignatureConfig    `mapstructure:"signature"`
	Validation   ValidationConfig   `mapstructure:"validation"`
	Optimization OptimizationConfig `mapstructure:"optimization"`
	Host         HostConfig         `mapstructure:"host"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// LoadConfig loads configuration from an optional file plus environment
// variables, applying defaults first.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFromEnv loads configuration purely from defaults + environment;
// it is LoadConfig with no config file.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig("")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.path", "./data")
	v.SetDefault("storage.repo_backend", "memory")
	v.SetDefault("storage.database_url", "")

	v.SetDefault("signature.require_signatures", false)
	v.SetDefault("signature.allow_unsigned", true)
	v.SetDefault("signature.trusted_keys_json", "[]")
	v.SetDefault("signature.supported_algorithms", []string{"RS256", "RS512", "ES256", "ES512"})

	v.SetDefault("validation.cache_ttl", 24*time.Hour)
	v.SetDefault("validation.cache_size", 1000)
	v.SetDefault("validation.regex_timeout_ms", 5000)
	v.SetDefault("validation.max_content_size", 1<<20)
	v.SetDefault("validation.max_iterations", 100000)
	v.SetDefault("validation.max_plugin_size", int64(50<<20))

	v.SetDefault("optimization.enabled", true)
	v.SetDefault("optimization.compression", 6)
	v.SetDefault("optimization.algorithm", "gzip")

	v.SetDefault("host.plugins_dir", "./plugins")
	v.SetDefault("host.batch_size", 10)
	v.SetDefault("host.load_timeout", 30*time.Second)
	v.SetDefault("host.dependency_wait_timeout", 30*time.Second)
	v.SetDefault("host.health_probe_interval", 5*time.Second)
	v.SetDefault("host.health_probe_timeout", 5*time.Second)
	v.SetDefault("host.max_consecutive_failures", 3)
	v.SetDefault("host.cleanup_interval_ms", 60000)
	v.SetDefault("host.memory_pressure_threshold", 0.85)
	v.SetDefault("host.strategy", "batched")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// bindEnv wires the documented named environment variables onto their
// nested viper keys, since AutomaticEnv alone won't discover keys that
// were never Set.
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("validation.max_plugin_size", "MAX_PLUGIN_SIZE")
	_ = v.BindEnv("validation.regex_timeout_ms", "PLUGIN_REGEX_TIMEOUT_MS")
	_ = v.BindEnv("validation.max_content_size", "PLUGIN_MAX_CONTENT_SIZE")
	_ = v.BindEnv("validation.max_iterations", "PLUGIN_MAX_ITERATIONS")
	_ = v.BindEnv("validation.cache_ttl", "PLUGIN_VALIDATION_CACHE_TTL")
	_ = v.BindEnv("validation.cache_size", "PLUGIN_VALIDATION_CACHE_SIZE")
	_ = v.BindEnv("storage.path", "REGISTRY_STORAGE_PATH")
	_ = v.BindEnv("signature.require_signatures", "REQUIRE_PLUGIN_SIGNATURES")
	_ = v.BindEnv("signature.allow_unsigned", "ALLOW_UNSIGNED_PLUGINS")
	_ = v.BindEnv("signature.trusted_keys_json", "TRUSTED_PLUGIN_KEYS")
	_ = v.BindEnv("optimization.enabled", "ENABLE_BUNDLE_OPTIMIZATION")
	_ = v.BindEnv("optimization.compression", "BUNDLE_OPT_COMPRESSION")
	_ = v.BindEnv("host.plugins_dir", "PLUGINS_DIR")
	_ = v.BindEnv("host.batch_size", "PLUGIN_BATCH_SIZE")
	_ = v.BindEnv("host.load_timeout", "PLUGIN_LOAD_TIMEOUT")
}

// Validate enforces cross-field invariants and fails fast on a
// misconfigured production deployment: configuration errors are fatal at
// startup, not discovered later mid-request.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.Storage.RepoBackend != "postgres" && c.Storage.RepoBackend != "memory" {
		return fmt.Errorf("config: storage.repo_backend must be postgres or memory, got %q", c.Storage.RepoBackend)
	}
	if c.Storage.RepoBackend == "postgres" && c.Storage.DatabaseURL == "" {
		return fmt.Errorf("config: storage.database_url required when repo_backend=postgres")
	}
	if c.IsProduction() && c.Signature.RequireSignatures && c.Signature.TrustedKeysJSON == "[]" {
		return fmt.Errorf("config: production requires TRUSTED_PLUGIN_KEYS when REQUIRE_PLUGIN_SIGNATURES is set")
	}
	switch c.Host.Strategy {
	case "serial", "parallel", "batched":
	default:
		return fmt.Errorf("config: host.strategy must be serial, parallel or batched, got %q", c.Host.Strategy)
	}
	if c.Validation.CacheSize <= 0 {
		return fmt.Errorf("config: validation.cache_size must be positive")
	}
	return nil
}

// IsProduction reports whether Environment is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// IsDevelopment reports whether Environment is "development".
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}
