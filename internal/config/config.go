// Package config provides configuration management for the inventory application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Client   ClientConfig   `mapstructure:"client"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig holds serve-side configuration.
type ServerConfig struct {
	Addr             string        `mapstructure:"addr"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	SubscriberBuffer int           `mapstructure:"subscriber_buffer"`
}

// AlertsConfig holds severity classification thresholds.
type AlertsConfig struct {
	DefaultReorderLevel     int     `mapstructure:"default_reorder_level"`
	DefaultDailyConsumption float64 `mapstructure:"default_daily_consumption"`
	CriticalDays            int     `mapstructure:"critical_days"`
}

// ClientConfig holds the watch client's configuration.
type ClientConfig struct {
	ServerURL        string        `mapstructure:"server_url"`
	MaxNotifications int           `mapstructure:"max_notifications"`
	NotificationTTL  time.Duration `mapstructure:"notification_ttl"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/stockpilot"
	}
	return filepath.Join(home, ".config", "stockpilot")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:             ":8385",
			PingInterval:     30 * time.Second,
			WriteTimeout:     10 * time.Second,
			SubscriberBuffer: 64,
		},
		Alerts: AlertsConfig{
			DefaultReorderLevel:     10,
			DefaultDailyConsumption: 0.5,
			CriticalDays:            3,
		},
		Client: ClientConfig{
			ServerURL:        "ws://localhost:8385/ws/alerts",
			MaxNotifications: 10,
			NotificationTTL:  10 * time.Second,
			MaxRetries:       5,
			BaseDelay:        time.Second,
			MaxDelay:         30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DefaultConfigDir(), "stockpilot.db"),
		},
	}
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.ping_interval", cfg.Server.PingInterval)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("server.subscriber_buffer", cfg.Server.SubscriberBuffer)
	v.SetDefault("alerts.default_reorder_level", cfg.Alerts.DefaultReorderLevel)
	v.SetDefault("alerts.default_daily_consumption", cfg.Alerts.DefaultDailyConsumption)
	v.SetDefault("alerts.critical_days", cfg.Alerts.CriticalDays)
	v.SetDefault("client.server_url", cfg.Client.ServerURL)
	v.SetDefault("client.max_notifications", cfg.Client.MaxNotifications)
	v.SetDefault("client.notification_ttl", cfg.Client.NotificationTTL)
	v.SetDefault("client.max_retries", cfg.Client.MaxRetries)
	v.SetDefault("client.base_delay", cfg.Client.BaseDelay)
	v.SetDefault("client.max_delay", cfg.Client.MaxDelay)
	v.SetDefault("database.path", cfg.Database.Path)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKPILOT_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("STOCKPILOT_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STOCKPILOT_SERVER_URL"); v != "" {
		cfg.Client.ServerURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Alerts.DefaultReorderLevel < 0 {
		return fmt.Errorf("alerts.default_reorder_level must be non-negative")
	}
	if c.Alerts.DefaultDailyConsumption < 0 {
		return fmt.Errorf("alerts.default_daily_consumption must be non-negative")
	}
	if c.Alerts.CriticalDays < 0 {
		return fmt.Errorf("alerts.critical_days must be non-negative")
	}
	if c.Client.MaxNotifications <= 0 {
		return fmt.Errorf("client.max_notifications must be positive")
	}
	if c.Client.NotificationTTL <= 0 {
		return fmt.Errorf("client.notification_ttl must be positive")
	}
	if c.Client.MaxRetries <= 0 {
		return fmt.Errorf("client.max_retries must be positive")
	}
	return nil
}
