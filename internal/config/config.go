// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Workers  int     `yaml:"workers"` // update handlers
	AdminIDs []int64 `yaml:"admin_ids"`
	Locale   string  `yaml:"locale"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port         int           `yaml:"port"`
	APIKey       string        `yaml:"api_key"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FeedConfig tunes the DonationAlerts client.
type FeedConfig struct {
	BaseURL                string        `yaml:"base_url"`
	AccessToken            string        `yaml:"access_token"`
	RequestTimeout         time.Duration `yaml:"request_timeout"`
	PageDelay              time.Duration `yaml:"page_delay"`
	RateLimitRetries       int           `yaml:"rate_limit_retries"`
	RateLimitBackoff       time.Duration `yaml:"rate_limit_backoff"`
	MaxBackoff             time.Duration `yaml:"max_backoff"`
	TransientRetries       int           `yaml:"transient_retries"`
	TransientBackoff       time.Duration `yaml:"transient_backoff"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
}

type ChannelConfig struct {
	ID          string        `yaml:"id"` // -100… chat id or @username
	RevokeDelay time.Duration `yaml:"revoke_delay"`
	InviteTTL   time.Duration `yaml:"invite_ttl"`
}

type SchedulerConfig struct {
	SyncInterval    time.Duration `yaml:"sync_interval"`
	SyncOverlap     time.Duration `yaml:"sync_overlap"`
	InitialLookback time.Duration `yaml:"initial_lookback"`
	ReconcileCron   string        `yaml:"reconcile_cron"`
	Timezone        string        `yaml:"timezone"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
	// ReminderInterval 0 keeps the default; a negative value disables reminders.
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	ReminderDays     []int         `yaml:"reminder_days"`
}

// Location resolves Timezone, falling back to UTC.
func (s SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Feed      FeedConfig      `yaml:"donation_alerts"`
	Channel   ChannelConfig   `yaml:"channel"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path (a missing file is allowed), loads
// .env into the environment and applies environment overrides and defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// env-only deployment
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Feed.AccessToken == "" {
		return nil, errors.New("donation_alerts.access_token is required")
	}
	if cfg.Channel.ID == "" {
		return nil, errors.New("channel.id is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Bot.Token, "BOT_TOKEN")
	setString(&cfg.Feed.AccessToken, "ACCESS_TOKEN")
	setString(&cfg.Channel.ID, "CHANNEL_ID")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Admin.APIKey, "ADMIN_API_KEY")
	setString(&cfg.Admin.JWTSecret, "JWT_SECRET")

	if v := strings.TrimSpace(os.Getenv("ADMIN_IDS")); v != "" {
		ids, err := ParseAdminIDs(v)
		if err != nil {
			return fmt.Errorf("ADMIN_IDS: %w", err)
		}
		cfg.Bot.AdminIDs = ids
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// ParseAdminIDs parses a comma separated list of Telegram user ids.
func ParseAdminIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 4
	}
	if cfg.Bot.Locale == "" {
		cfg.Bot.Locale = "ru"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Admin.Port == 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.Admin.SessionTTL <= 0 {
		cfg.Admin.SessionTTL = 30 * time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}

	f := &cfg.Feed
	if f.BaseURL == "" {
		f.BaseURL = "https://www.donationalerts.com/api/v1"
	}
	if f.RequestTimeout <= 0 {
		f.RequestTimeout = 30 * time.Second
	}
	if f.PageDelay <= 0 {
		f.PageDelay = 500 * time.Millisecond
	}
	if f.RateLimitRetries <= 0 {
		f.RateLimitRetries = 2
	}
	if f.RateLimitBackoff <= 0 {
		f.RateLimitBackoff = 2 * time.Second
	}
	if f.MaxBackoff <= 0 {
		f.MaxBackoff = time.Minute
	}
	if f.TransientRetries <= 0 {
		f.TransientRetries = 3
	}
	if f.TransientBackoff <= 0 {
		f.TransientBackoff = 5 * time.Second
	}
	if f.MaxConsecutiveFailures <= 0 {
		f.MaxConsecutiveFailures = 3
	}

	if cfg.Channel.RevokeDelay <= 0 {
		cfg.Channel.RevokeDelay = 500 * time.Millisecond
	}
	if cfg.Channel.InviteTTL <= 0 {
		cfg.Channel.InviteTTL = 24 * time.Hour
	}

	s := &cfg.Scheduler
	if s.SyncInterval <= 0 {
		s.SyncInterval = time.Hour
	}
	if s.SyncOverlap <= 0 {
		s.SyncOverlap = 10 * time.Minute
	}
	if s.InitialLookback <= 0 {
		s.InitialLookback = 30 * 24 * time.Hour
	}
	if s.ReconcileCron == "" {
		s.ReconcileCron = "0 12 * * *"
	}
	if s.Timezone == "" {
		s.Timezone = "Europe/Moscow"
	}
	if s.RunTimeout <= 0 {
		s.RunTimeout = 30 * time.Minute
	}
	if s.ReminderInterval == 0 {
		s.ReminderInterval = 6 * time.Hour
	}
	if len(s.ReminderDays) == 0 {
		s.ReminderDays = []int{3, 1}
	}
}
