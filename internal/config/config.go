// Package config loads and validates application configuration from
// defaults, an optional config.yaml, and BOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// TelegramConfig holds the transport credential and the admin registration
// secret. Core behavior does not depend on their values beyond gating the
// admin-registration dialog.
type TelegramConfig struct {
	Token     string `mapstructure:"token"      validate:"required"`
	AdminCode string `mapstructure:"admin_code" validate:"required"`
}

// DatabaseConfig holds the store connection string.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// APIConfig holds the read API listen address.
type APIConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// SchedulerConfig controls the background maintenance job.
type SchedulerConfig struct {
	MaintenanceEnabled bool   `mapstructure:"maintenance_enabled"`
	MaintenanceCron    string `mapstructure:"maintenance_cron" validate:"required"`
}

// Config is the application configuration, loaded once at process start.
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// WebAppURL is the mini-application base URL linked from the personal
	// cabinet; the customer code is appended as a query parameter.
	WebAppURL string `mapstructure:"webapp_url" validate:"required,url"`

	// SupportText is the static support contact message.
	SupportText string `mapstructure:"support_text" validate:"required"`
}

// Load reads configuration in priority order: defaults, config.yaml (path
// optional), then BOT_* environment variables. The result is validated
// before being returned.
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("BOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow a missing config file; env and defaults may be enough.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	// Empty defaults register the keys so AutomaticEnv can fill them.
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.admin_code", "")
	viper.SetDefault("database.path", "storage.db")
	viper.SetDefault("api.addr", ":8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", true)
	viper.SetDefault("scheduler.maintenance_enabled", true)
	viper.SetDefault("scheduler.maintenance_cron", "0 4 * * *")
	viper.SetDefault("webapp_url", "https://usmnv.github.io/Gd-cargo/")
	viper.SetDefault("support_text",
		"🆘 Поддержка\n\n"+
			"📞 Телефон: +7 (800) 123-45-67\n"+
			"📧 Email: support@goldendragon.com\n"+
			"⏰ Время работы: 9:00 - 21:00 (МСК)")
}
