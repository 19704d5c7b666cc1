// Package config loads osmnodes settings from defaults, an optional YAML
// file, OSMNODES_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/NERVsystems/osmnodes/pkg/osm"
	"github.com/NERVsystems/osmnodes/pkg/version"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// OSMNODES_OVERPASS_ENDPOINT for overpass.endpoint.
const EnvPrefix = "OSMNODES"

// Config holds all application configuration.
type Config struct {
	Overpass OverpassConfig `mapstructure:"overpass"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type OverpassConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	ServerTimeout int           `mapstructure:"server_timeout"`
	RPS           float64       `mapstructure:"rps"`
	Burst         int           `mapstructure:"burst"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Environment string `mapstructure:"environment"`
	Insecure    bool   `mapstructure:"insecure"`
}

// New returns a viper instance with defaults and environment overrides set.
// Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("overpass.endpoint", osm.OverpassBaseURL)
	v.SetDefault("overpass.user_agent", version.UserAgent())
	v.SetDefault("overpass.timeout", time.Duration(0))
	v.SetDefault("overpass.server_timeout", 0)
	v.SetDefault("overpass.rps", 1.0)
	v.SetDefault("overpass.burst", 1)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.size", 128)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("server.health_interval", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.insecure", true)

	// OSMNODES_CACHE_TTL → cache.ttl
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file, if any, and decodes and validates v. An empty
// file searches for osmnodes.yaml in the working directory and ./configs,
// and a missing file is not an error in that case.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("osmnodes")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.Overpass.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("overpass.endpoint must be an absolute URL, got %q", c.Overpass.Endpoint))
	}
	if c.Overpass.UserAgent == "" {
		errs = append(errs, "overpass.user_agent is required")
	}
	if c.Overpass.Timeout < 0 {
		errs = append(errs, "overpass.timeout must not be negative")
	}
	if c.Overpass.ServerTimeout < 0 {
		errs = append(errs, "overpass.server_timeout must not be negative")
	}
	if c.Overpass.RPS < 0 {
		errs = append(errs, "overpass.rps must not be negative")
	}
	if c.Overpass.RPS > 0 && c.Overpass.Burst < 1 {
		errs = append(errs, fmt.Sprintf("overpass.burst must be at least 1, got %d", c.Overpass.Burst))
	}
	if c.Cache.Enabled {
		if c.Cache.Size < 1 {
			errs = append(errs, fmt.Sprintf("cache.size must be at least 1, got %d", c.Cache.Size))
		}
		if c.Cache.TTL <= 0 {
			errs = append(errs, "cache.ttl must be positive")
		}
	}
	if c.Server.HealthInterval <= 0 {
		errs = append(errs, "server.health_interval must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ParseLevel maps a level name to a slog level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

// ClientOptions translates the overpass and cache sections into client
// options.
func (c *Config) ClientOptions(logger *slog.Logger) []osm.ClientOption {
	opts := []osm.ClientOption{
		osm.WithEndpoint(c.Overpass.Endpoint),
		osm.WithUserAgent(c.Overpass.UserAgent),
		osm.WithTimeout(c.Overpass.Timeout),
		osm.WithRateLimit(c.Overpass.RPS, c.Overpass.Burst),
		osm.WithLogger(logger),
	}
	if c.Cache.Enabled {
		opts = append(opts, osm.WithCache(c.Cache.Size, c.Cache.TTL))
	}
	return opts
}
