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
	Redis     RedisConfig     `mapstructure:"redis"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Game      GameConfig      `mapstructure:"game"`
	AntiCheat AntiCheatConfig `mapstructure:"anticheat"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
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

// RedisConfig holds the ephemeral state store connection configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AdminConfig holds admin user configuration.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// GameConfig holds session mechanics configuration.
type GameConfig struct {
	QuestionTimeout      time.Duration `mapstructure:"question_timeout"`
	SpeedQuestionTimeout time.Duration `mapstructure:"speed_question_timeout"`
	SessionTimeout       time.Duration `mapstructure:"session_timeout"`
	ChallengeTimeout     time.Duration `mapstructure:"challenge_timeout"`
	ConversationTTL      time.Duration `mapstructure:"conversation_ttl"`
	StartToken           string        `mapstructure:"start_token"`
	VictoryImage         string        `mapstructure:"victory_image"`
}

// AntiCheatConfig holds the heuristics thresholds.
type AntiCheatConfig struct {
	FastLatency       time.Duration `mapstructure:"fast_latency"`
	SpeedStreak       int           `mapstructure:"speed_streak"`
	ChallengeAttempts int           `mapstructure:"challenge_attempts"`
	Q1WarnStreak      int           `mapstructure:"q1_warn_streak"`
	Q1SuspendStreak   int           `mapstructure:"q1_suspend_streak"`
	SuspensionTTL     time.Duration `mapstructure:"suspension_ttl"`
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
	// e.g. BOT_TOKEN, DATABASE_HOST, REDIS_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
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
	v.SetDefault("database.user", "triviabot")
	v.SetDefault("database.name", "triviabot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Game defaults
	v.SetDefault("game.question_timeout", "12s")
	v.SetDefault("game.speed_question_timeout", "10s")
	v.SetDefault("game.session_timeout", "5m")
	v.SetDefault("game.challenge_timeout", "15s")
	v.SetDefault("game.conversation_ttl", "30m")
	v.SetDefault("game.start_token", "GO")

	// Anti-cheat defaults
	v.SetDefault("anticheat.fast_latency", "2500ms")
	v.SetDefault("anticheat.speed_streak", 3)
	v.SetDefault("anticheat.challenge_attempts", 2)
	v.SetDefault("anticheat.q1_warn_streak", 3)
	v.SetDefault("anticheat.q1_suspend_streak", 5)
	v.SetDefault("anticheat.suspension_ttl", "24h")
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
