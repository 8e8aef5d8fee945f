package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the ShopCore backend.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Notify   NotifyConfig   `mapstructure:"notifications"`
	Email    EmailConfig    `mapstructure:"email"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string            `mapstructure:"driver"`
	Path     string            `mapstructure:"path"`
	DSN      string            `mapstructure:"dsn"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Name     string            `mapstructure:"name"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// AuthConfig carries the JWT validation parameters shared with the identity service.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// RealtimeConfig selects and tunes the fan-out layer.
type RealtimeConfig struct {
	// Driver chooses the bus implementation: "memory" for single-instance
	// deployments, "redis" when sessions are spread across processes.
	Driver   string        `mapstructure:"driver"`
	RedisURL string        `mapstructure:"redis_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// NotifyConfig tunes the scheduled-notification sweep.
type NotifyConfig struct {
	SweepSchedule string `mapstructure:"sweep_schedule"`
	SweepEnabled  bool   `mapstructure:"sweep_enabled"`
}

// EmailConfig configures the SMTP channel.
type EmailConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads configuration from the optional path, applying environment
// overrides with the SHOPCORE_ prefix (nested keys use underscores, e.g.
// SHOPCORE_REALTIME_DRIVER).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/shopcore.db")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("realtime.driver", "memory")
	v.SetDefault("realtime.timeout", 5*time.Second)
	v.SetDefault("notifications.sweep_enabled", true)
	v.SetDefault("notifications.sweep_schedule", "*/5 * * * *")
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.port", 587)
	v.SetDefault("email.timeout", 10*time.Second)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SHOPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	decode := func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
	if err := v.Unmarshal(cfg, decode); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs cross-field sanity checks.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	switch strings.ToLower(c.Realtime.Driver) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Realtime.RedisURL) == "" {
			return fmt.Errorf("realtime.redis_url is required when realtime.driver is redis")
		}
	default:
		return fmt.Errorf("unsupported realtime driver %q", c.Realtime.Driver)
	}

	return nil
}
