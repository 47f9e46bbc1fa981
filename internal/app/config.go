package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/noticeboardhq/noticeboard/internal/cache"
	"github.com/noticeboardhq/noticeboard/internal/database"
)

// Config represents the runtime configuration for the noticeboard backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int        `mapstructure:"port"`
	LogLevel string     `mapstructure:"log_level"`
	CSRF     CSRFConfig `mapstructure:"csrf"`
}

// CSRFConfig controls the anti-forgery middleware on the admin surface.
type CSRFConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// CacheConfig selects and configures the shared cache store.
type CacheConfig struct {
	Driver     string           `mapstructure:"driver"` // file | redis
	Dir        string           `mapstructure:"dir"`
	DefaultTTL time.Duration    `mapstructure:"default_ttl"`
	Redis      RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// MaintenanceConfig controls the periodic cache maintenance job.
type MaintenanceConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Schedule     string `mapstructure:"schedule"`
	LogPath      string `mapstructure:"log_path"`
	ErrorLogPath string `mapstructure:"error_log_path"`
	Warm         bool   `mapstructure:"warm"`
}

// MonitoringConfig toggles metrics and health endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// DatabaseOpenConfig converts the application configuration into the database
// package representation.
func (c DatabaseConfig) DatabaseOpenConfig() database.Config {
	return database.Config{
		Driver:   c.Driver,
		Path:     c.Path,
		DSN:      c.DSN,
		Host:     c.Host,
		Port:     c.Port,
		Name:     c.Name,
		User:     c.User,
		Password: c.Password,
	}
}

// RedisStoreConfig converts the cache configuration into the cache package
// representation.
func (c CacheConfig) RedisStoreConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil configuration")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Cache.Driver)) {
	case "", "file":
		if strings.TrimSpace(c.Cache.Dir) == "" {
			return errors.New("config: cache.dir is required for the file driver")
		}
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Address) == "" {
			return errors.New("config: cache.redis.address is required for the redis driver")
		}
	default:
		return fmt.Errorf("config: unsupported cache driver %q", c.Cache.Driver)
	}
	return nil
}

// LoadConfig initialises application configuration using Viper with sensible
// defaults. Environment variables prefixed NOTICEBOARD_ override file values.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("NOTICEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.csrf.enabled", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/noticeboard.sqlite")

	v.SetDefault("cache.driver", "file")
	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt_issuer", "noticeboard")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@hourly")
	v.SetDefault("maintenance.log_path", "./data/maintenance.log")
	v.SetDefault("maintenance.error_log_path", "./data/maintenance-error.log")
	v.SetDefault("maintenance.warm", true)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
