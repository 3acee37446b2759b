// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Score     ScoreConfig     `mapstructure:"score"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Media     MediaConfig     `mapstructure:"media"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
	// ChatID is the main community chat; settlement reports are sent here.
	ChatID int64 `mapstructure:"chat_id"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// ScoreConfig holds the point economy tunables. The defaults match the
// long-standing community values; change them with care, existing user
// expectations are built around them.
type ScoreConfig struct {
	// SettleCap bounds any single user's score delta per settlement cycle.
	SettleCap int64 `mapstructure:"settle_cap"`
	// CheckinMin/CheckinMax delimit the ordinary-day reward range, inclusive.
	CheckinMin int `mapstructure:"checkin_min"`
	CheckinMax int `mapstructure:"checkin_max"`
	// FloodStreak is the number of consecutive same-user messages allowed
	// before the next one triggers a warning.
	FloodStreak int `mapstructure:"flood_streak"`
	// SettleCron is the settlement schedule in cron syntax.
	SettleCron string `mapstructure:"settle_cron"`
	// CodeExpiryDays is the lifetime of activation codes won on checkin.
	// Zero means codes never expire.
	CodeExpiryDays int `mapstructure:"code_expiry_days"`
}

// JobsConfig holds the housekeeping job schedules in cron syntax.
// The settlement schedule lives in ScoreConfig next to the values it
// settles.
type JobsConfig struct {
	CodeCleanupCron string `mapstructure:"code_cleanup_cron"`
	ExpiryBanCron   string `mapstructure:"expiry_ban_cron"`
}

// MediaConfig holds the media server (Emby/Jellyfin) connection settings.
type MediaConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, SCORE_SETTLE_CAP.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional - env vars can provide all config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "conciergebot")
	v.SetDefault("database.name", "conciergebot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Point economy defaults
	v.SetDefault("score.settle_cap", 20)
	v.SetDefault("score.checkin_min", -2)
	v.SetDefault("score.checkin_max", 5)
	v.SetDefault("score.flood_streak", 5)
	v.SetDefault("score.settle_cron", "0 8,20 * * *")
	v.SetDefault("score.code_expiry_days", 30)

	// Housekeeping job defaults
	v.SetDefault("jobs.code_cleanup_cron", "5 0 * * *")
	v.SetDefault("jobs.expiry_ban_cron", "15 0 * * *")

	// Media server defaults
	v.SetDefault("media.enabled", false)
	v.SetDefault("media.timeout", "15s")
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}
