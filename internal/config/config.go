package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "PDUFA_SCANNER_CONFIG"
	environmentEnv    = "APP_ENV"
	portEnv           = "PORT"
	logLevelEnv       = "LOG_LEVEL"
	storageDriverEnv  = "STORAGE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	discordWebhookEnv = "DISCORD_WEBHOOK_URL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	schedulerCronEnv  = "SCHEDULER_CRON"
	dotenvFile        = ".env"
)

// Config holds high-level settings required across the application.
type Config struct {
	Environment string          `yaml:"environment" validate:"oneof=production development"`
	Server      ServerConfig    `yaml:"server"`
	Logging     LoggingConfig   `yaml:"logging"`
	Storage     StorageConfig   `yaml:"storage"`
	Cache       CacheConfig     `yaml:"cache"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Fetch       FetchConfig     `yaml:"fetch"`
	Alerts      AlertConfig     `yaml:"alerts"`
	Sites       []SiteConfig    `yaml:"sites" validate:"dive"`
}

// ServerConfig describes the HTTP facade.
type ServerConfig struct {
	Port            string        `yaml:"port" validate:"required,numeric"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       float64       `yaml:"rateLimit" validate:"gte=0"`
	RateBurst       int           `yaml:"rateBurst" validate:"gte=0"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `yaml:"driver" validate:"oneof=memory postgres sqlite"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver memory"`
}

// CacheConfig tunes the read-through cache.
type CacheConfig struct {
	TTL             time.Duration `yaml:"ttl" validate:"gt=0"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

// SchedulerConfig defines when the scraper should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression" validate:"required"`
	Timezone       string         `yaml:"timezone"`
	RunOnStart     bool           `yaml:"runOnStart"`
	CycleTimeout   time.Duration  `yaml:"cycleTimeout" validate:"gt=0"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	if loc, err := time.LoadLocation(s.Timezone); err == nil && s.Timezone != "" {
		return loc
	}
	return time.UTC
}

// FetchConfig bounds the source fan-out.
type FetchConfig struct {
	Concurrency int           `yaml:"concurrency" validate:"gte=0"`
	SiteTimeout time.Duration `yaml:"siteTimeout"`
}

// AlertConfig controls which decisions are announced and how.
type AlertConfig struct {
	LookaheadDays int            `yaml:"lookaheadDays" validate:"min=1,max=365"`
	SuppressFor   time.Duration  `yaml:"suppressFor" validate:"gte=0"`
	Discord       DiscordConfig  `yaml:"discord"`
	Telegram      TelegramConfig `yaml:"telegram"`
	Retry         RetryConfig    `yaml:"retry"`
}

// DiscordConfig holds the webhook target.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhookUrl" validate:"omitempty,url"`
	Username   string `yaml:"username"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// RetryConfig bounds alert delivery retries.
type RetryConfig struct {
	MaxAttempts  uint          `yaml:"maxAttempts" validate:"min=1,max=10"`
	InitialDelay time.Duration `yaml:"initialDelay" validate:"gt=0"`
	MaxDelay     time.Duration `yaml:"maxDelay" validate:"gtefield=InitialDelay"`
}

// SiteConfig describes a single upstream source with its scanner strategy.
type SiteConfig struct {
	Name     string            `yaml:"name" validate:"required"`
	Scanner  string            `yaml:"scanner" validate:"oneof=calendar feed announcements"`
	URL      string            `yaml:"url" validate:"required,url"`
	Options  map[string]string `yaml:"options"`
	Disabled bool              `yaml:"disabled"`
}

// Load reads .env and YAML configuration (if present), applies environment
// overrides and validates the result.
func Load(logger *zap.Logger) (Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("config: cannot load .env", zap.Error(err))
	}

	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			logger.Warn("config: cannot read file, falling back to defaults", zap.String("path", path), zap.Error(err))
		} else {
			fileCfg := Default()
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				logger.Warn("config: cannot parse file, falling back to defaults", zap.String("path", path), zap.Error(err))
			} else {
				cfg = fileCfg
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone(logger)

	if len(cfg.Sites) == 0 {
		cfg.Sites = Default().Sites
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation at once.
func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(environmentEnv); v != "" {
		c.Environment = v
	}

	if v := os.Getenv(portEnv); v != "" {
		c.Server.Port = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(storageDriverEnv); v != "" {
		c.Storage.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Storage.DSN = v
	}

	if v := os.Getenv(discordWebhookEnv); v != "" {
		c.Alerts.Discord.WebhookURL = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Alerts.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Alerts.Telegram.ChatID = v
	}

	if v := os.Getenv(schedulerCronEnv); v != "" {
		c.Scheduler.CronExpression = v
	}
}

func (c *Config) bindTimezone(logger *zap.Logger) {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		logger.Warn("config: unknown timezone, reverting to default", zap.String("timezone", tz), zap.String("default", defaultTimezone))
		loc, _ = time.LoadLocation(defaultTimezone)
		c.Scheduler.Timezone = defaultTimezone
	}
	c.Scheduler.location = loc
}

// Default returns the built-in configuration that files and environment override.
func Default() Config {
	return Config{
		Environment: "production",
		Server: ServerConfig{
			Port:            "3001",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{Driver: "memory"},
		Cache:   CacheConfig{TTL: 5 * time.Minute, CleanupInterval: 10 * time.Minute},
		Scheduler: SchedulerConfig{
			CronExpression: "0 9 * * *",
			Timezone:       "America/New_York",
			RunOnStart:     true,
			CycleTimeout:   10 * time.Minute,
		},
		Fetch: FetchConfig{Concurrency: 4, SiteTimeout: time.Minute},
		Alerts: AlertConfig{
			LookaheadDays: 7,
			Discord:       DiscordConfig{Username: "PDUFA Alerts"},
			Retry: RetryConfig{
				MaxAttempts:  4,
				InitialDelay: 2 * time.Second,
				MaxDelay:     30 * time.Second,
			},
		},
		Sites: []SiteConfig{
			{
				Name:    "biopharmcatalyst",
				Scanner: "calendar",
				URL:     "https://www.biopharmcatalyst.com/calendars/fda-calendar",
				Options: map[string]string{"table": "table"},
			},
			{
				Name:    "rttnews",
				Scanner: "calendar",
				URL:     "https://www.rttnews.com/corpinfo/fdacalendar.aspx",
				Options: map[string]string{"table": "table", "columns": "date,company,drug,description"},
			},
			{
				Name:    "globenewswire",
				Scanner: "announcements",
				URL:     "https://www.globenewswire.com/search/keyword/PDUFA",
				Options: map[string]string{"item": "div.mainLink, li.row", "headline": "a", "summary": "p, span"},
			},
		},
	}
}
