package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Remote    RemoteConfig
	Catalog   CatalogConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name    string
	Env     string
	Port    string
	Version string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
}

// RemoteConfig holds the remote platform client settings
type RemoteConfig struct {
	Timeout           time.Duration
	MaxResponseSize   int64
	HostTemplate      string
	ReportingTemplate string
	UserAgent         string
}

// CatalogConfig holds bulk product query settings
type CatalogConfig struct {
	DetailBatchSize int
	// FilterPricingByModified applies the modified date range to pricing updates.
	FilterPricingByModified bool
	// FilterQuantityByModified applies the modified date range to availability updates.
	FilterQuantityByModified bool
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool // traces
	MetricsEnabled    bool
	LogsEnabled       bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration

	ProfilingEnabled bool
	PyroscopeAddress string
	ProfileTypes     []string
	SpanProfiles     bool
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with CONNECTOR_ prefix (e.g., CONNECTOR_REMOTE_TIMEOUT)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")
	return load(v)
}

// LoadFile loads configuration from an explicit file path plus environment variables.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("CONNECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:    v.GetString("app.name"),
			Env:     v.GetString("app.env"),
			Port:    v.GetString("app.port"),
			Version: v.GetString("app.version"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Remote: RemoteConfig{
			Timeout:           v.GetDuration("remote.timeout"),
			MaxResponseSize:   v.GetInt64("remote.max_response_size"),
			HostTemplate:      v.GetString("remote.host_template"),
			ReportingTemplate: v.GetString("remote.reporting_template"),
			UserAgent:         v.GetString("remote.user_agent"),
		},
		Catalog: CatalogConfig{
			DetailBatchSize:          v.GetInt("catalog.detail_batch_size"),
			FilterPricingByModified:  v.GetBool("catalog.filter_pricing_by_modified"),
			FilterQuantityByModified: v.GetBool("catalog.filter_quantity_by_modified"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			PyroscopeAddress:  v.GetString("telemetry.pyroscope_address"),
			ProfileTypes:      v.GetStringSlice("telemetry.profile_types"),
			SpanProfiles:      v.GetBool("telemetry.span_profiles"),
		},
	}

	applyDefaults(cfg, v)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.App.Name == "" {
		cfg.App.Name = "erp-connector"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.App.Version == "" {
		cfg.App.Version = "dev"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	// Product queries can run for minutes; the write timeout covers the whole invocation.
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 32 << 20
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 60 * time.Second
	}
	if cfg.Remote.MaxResponseSize == 0 {
		cfg.Remote.MaxResponseSize = 32 << 20
	}
	if cfg.Catalog.DetailBatchSize == 0 {
		cfg.Catalog.DetailBatchSize = 500
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	// 0 is a meaningful ratio, so only an unset key falls back to 1.
	if !v.IsSet("telemetry.sampling_ratio") {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Catalog.DetailBatchSize < 1 {
		return fmt.Errorf("catalog.detail_batch_size must be positive, got %d", c.Catalog.DetailBatchSize)
	}
	if c.Remote.Timeout < 0 {
		return fmt.Errorf("remote.timeout cannot be negative")
	}
	if c.Remote.HostTemplate != "" &&
		(!strings.Contains(c.Remote.HostTemplate, "{protocol}") || !strings.Contains(c.Remote.HostTemplate, "{api}")) {
		return fmt.Errorf("remote.host_template must contain {protocol} and {api}")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Telemetry.ProfilingEnabled && c.Telemetry.PyroscopeAddress == "" {
		return fmt.Errorf("telemetry.pyroscope_address is required when profiling is enabled")
	}
	if c.App.Env == "production" && c.Telemetry.Insecure {
		return fmt.Errorf("telemetry.insecure must be false in production")
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
