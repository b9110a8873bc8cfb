package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kubilitics/kubilitics-topoview/internal/engine"
)

type Config struct {
	Port               int      `mapstructure:"port"`
	DatabaseType       string   `mapstructure:"database_type"` // sqlite or postgres
	DatabasePath       string   `mapstructure:"database_path"`
	DatabaseURL        string   `mapstructure:"database_url"` // postgres DSN
	LogLevel           string   `mapstructure:"log_level"`
	LogFormat          string   `mapstructure:"log_format"` // text or json
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`

	KubeconfigPath    string `mapstructure:"kubeconfig_path"`
	KubeContext       string `mapstructure:"kube_context"`
	Namespace         string `mapstructure:"namespace"`           // empty = all namespaces
	InformerResyncSec int    `mapstructure:"informer_resync_sec"` // 0 = no periodic resync
	RebuildDebounceMs int    `mapstructure:"rebuild_debounce_ms"`

	DatasetCacheTTLSec int `mapstructure:"dataset_cache_ttl_sec"` // 0 = cache disabled
	DatasetCacheSize   int `mapstructure:"dataset_cache_size"`

	TickIntervalMs  int     `mapstructure:"tick_interval_ms"`
	AlphaDecay      float64 `mapstructure:"alpha_decay"` // 0 = cool down in 300 ticks
	WarmAlphaTarget float64 `mapstructure:"warm_alpha_target"`
	Charge          float64 `mapstructure:"charge"`
	LinkDistance    float64 `mapstructure:"link_distance"`
	FocusThreshold  float64 `mapstructure:"focus_threshold"`
	MinZoom         float64 `mapstructure:"min_zoom"`
	MaxZoom         float64 `mapstructure:"max_zoom"`

	WSInputRatePerSec float64 `mapstructure:"ws_input_rate_per_sec"` // 0 = no limit
	WSInputBurst      int     `mapstructure:"ws_input_burst"`

	TracingEndpoint     string  `mapstructure:"tracing_endpoint"` // empty = tracing disabled
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8090)
	v.SetDefault("database_type", "sqlite")
	v.SetDefault("database_path", "./topoview.db")
	v.SetDefault("database_url", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("shutdown_timeout_sec", 15)
	v.SetDefault("kubeconfig_path", "")
	v.SetDefault("kube_context", "")
	v.SetDefault("namespace", "")
	v.SetDefault("informer_resync_sec", 0)
	v.SetDefault("rebuild_debounce_ms", 250)
	v.SetDefault("dataset_cache_ttl_sec", 30)
	v.SetDefault("dataset_cache_size", 64)
	v.SetDefault("tick_interval_ms", 16)
	v.SetDefault("alpha_decay", 0)
	v.SetDefault("warm_alpha_target", 0.3)
	v.SetDefault("charge", -30)
	v.SetDefault("link_distance", 30)
	v.SetDefault("focus_threshold", 15)
	v.SetDefault("min_zoom", 0.1)
	v.SetDefault("max_zoom", 8)
	v.SetDefault("ws_input_rate_per_sec", 120)
	v.SetDefault("ws_input_burst", 240)
	v.SetDefault("tracing_endpoint", "")
	v.SetDefault("tracing_sampling_rate", 1.0)
}

// Load reads config.yaml from the standard locations, then KUBILITICS_* env vars.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads an explicit config file, then KUBILITICS_* env vars.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/kubilitics/")
		v.AddConfigPath("$HOME/.kubilitics")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("KUBILITICS")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitOrigins accepts both a YAML list and a comma separated env value.
func splitOrigins(in []string) []string {
	var out []string
	for _, o := range in {
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.DatabaseType {
	case "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database_type %q", c.DatabaseType)
	}
	if c.MinZoom > 0 && c.MaxZoom > 0 && c.MinZoom > c.MaxZoom {
		return fmt.Errorf("min_zoom %.2f exceeds max_zoom %.2f", c.MinZoom, c.MaxZoom)
	}
	return nil
}

// EngineOptions maps the physics and interaction settings onto engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		FocusThreshold:  c.FocusThreshold,
		MinZoom:         c.MinZoom,
		MaxZoom:         c.MaxZoom,
		Charge:          c.Charge,
		LinkDistance:    c.LinkDistance,
		WarmAlphaTarget: c.WarmAlphaTarget,
		AlphaDecay:      c.AlphaDecay,
		TickInterval:    time.Duration(c.TickIntervalMs) * time.Millisecond,
	}
}
