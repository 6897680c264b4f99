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
	"github.com/robfig/cron/v3"
)

// Environment keys understood by eventpush. Real environment variables win
// over values from the .env file.
const (
	EnvWPURL          = "WP_URL"
	EnvWPUser         = "WP_USER"
	EnvWPAppPassword  = "WP_APP_PASSWORD"
	EnvEventPageID    = "EVENT_PAGE_ID"
	EnvAdminPassword  = "ADMIN_PASSWORD"
	EnvCheckInterval  = "CHECK_INTERVAL_SECONDS"
	EnvDatabasePath   = "DATABASE_PATH"
	EnvAdminAddr      = "ADMIN_ADDR"
	EnvLogLevel       = "LOG_LEVEL"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

const (
	DefaultStorageDriver  = "sqlite"
	DefaultStoragePath    = "events.db"
	DefaultWPTimeout      = 15 * time.Second
	DefaultInterval       = 60 * time.Second
	DefaultAdminAddr      = ":5000"
	DefaultAdminPassword  = "adminpass"
	DefaultHousekeeping   = "0 3 * * *"
	DefaultAuditRetention = 30 * 24 * time.Hour
)

// LookupFunc resolves an environment key.
type LookupFunc func(key string) (string, bool)

// envLookup layers the process environment over the values read from envFile.
// A missing envFile is not an error.
func envLookup(envFile string) (LookupFunc, error) {
	var dotenv map[string]string
	if strings.TrimSpace(envFile) != "" {
		m, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
		dotenv = m
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides file values with environment values.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if cfg == nil || lookup == nil {
		return nil
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	str(EnvWPURL, &cfg.WordPress.URL)
	str(EnvWPUser, &cfg.WordPress.User)
	str(EnvWPAppPassword, &cfg.WordPress.AppPassword)
	str(EnvAdminPassword, &cfg.Admin.Password)
	str(EnvDatabasePath, &cfg.Storage.Path)
	str(EnvAdminAddr, &cfg.Admin.Addr)
	str(EnvLogLevel, &cfg.Logging.Level)
	str(EnvTelegramToken, &cfg.Telegram.Token)

	if v, ok := lookup(EnvEventPageID); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvEventPageID, v)
		}
		cfg.WordPress.PageID = n
	}
	if v, ok := lookup(EnvCheckInterval); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: expected a positive integer, got %q", EnvCheckInterval, v)
		}
		cfg.Dispatcher.Interval = strconv.Itoa(n) + "s"
	}
	if v, ok := lookup(EnvTelegramChatID); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvTelegramChatID, v)
		}
		cfg.Telegram.ChatID = n
	}
	return nil
}

// ApplyDefaults fills empty fields with runtime defaults.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.Console && !cfg.Logging.File.Enabled {
		cfg.Logging.Console = true
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(cfg.Dispatcher.Interval) == "" {
		cfg.Dispatcher.Interval = DefaultInterval.String()
	}
	if strings.TrimSpace(cfg.Admin.Addr) == "" {
		cfg.Admin.Addr = DefaultAdminAddr
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = DefaultAdminPassword
	}
	if strings.TrimSpace(cfg.Housekeeping.Schedule) == "" {
		cfg.Housekeeping.Schedule = DefaultHousekeeping
	}
}

// Validate checks fields that would otherwise fail late at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d != "" && d != "sqlite" {
		errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", cfg.Storage.Driver))
	}
	if cfg.WordPress.PageID < 0 {
		errs = append(errs, errors.New("wordpress.page_id: must be >= 0"))
	}
	durations := map[string]string{
		"storage.busy_timeout":         cfg.Storage.BusyTimeout,
		"wordpress.timeout":            cfg.WordPress.Timeout,
		"dispatcher.interval":          cfg.Dispatcher.Interval,
		"admin.read_timeout":           cfg.Admin.ReadTimeout,
		"admin.write_timeout":          cfg.Admin.WriteTimeout,
		"admin.idle_timeout":           cfg.Admin.IdleTimeout,
		"housekeeping.audit_retention": cfg.Housekeeping.AuditRetention,
	}
	if cfg.Notifier != nil {
		durations["notifier.retry_base"] = cfg.Notifier.RetryBase
		durations["notifier.retry_max_delay"] = cfg.Notifier.RetryMaxDelay
		durations["notifier.dedup_window"] = cfg.Notifier.DedupWindow
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if sp := strings.TrimSpace(cfg.Housekeeping.Schedule); sp != "" {
		if _, err := cronParser.Parse(sp); err != nil {
			errs = append(errs, fmt.Errorf("housekeeping.schedule: %w", err))
		}
	}
	return errors.Join(errs...)
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Location resolves dispatcher.timezone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Dispatcher.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("dispatcher.timezone: %w", err)
	}
	return loc, nil
}
