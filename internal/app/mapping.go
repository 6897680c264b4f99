package app

import (
	"strings"
	"time"

	"eventpush/internal/admin"
	"eventpush/internal/config"
	"eventpush/internal/dispatch"
	"eventpush/internal/housekeeping"
	"eventpush/internal/notifier"
	"eventpush/internal/publish"
	"eventpush/internal/storage"
	"eventpush/internal/transport/telegram"
	logx "eventpush/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Remote: logx.RemoteConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.TrimSpace(cfg.Storage.Driver),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
	}, nil
}

func mapPublishConfig(cfg *config.Config) (publish.Config, error) {
	timeout, err := config.ParseDurationOrDefault("wordpress.timeout", cfg.WordPress.Timeout, config.DefaultWPTimeout)
	if err != nil {
		return publish.Config{}, err
	}
	return publish.Config{
		BaseURL:     strings.TrimSpace(cfg.WordPress.URL),
		User:        cfg.WordPress.User,
		AppPassword: cfg.WordPress.AppPassword,
		PageID:      cfg.WordPress.PageID,
		Timeout:     timeout,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	iv, err := config.ParseDurationOrDefault("dispatcher.interval", cfg.Dispatcher.Interval, config.DefaultInterval)
	if err != nil {
		return dispatch.Config{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{Interval: iv, Location: loc}, nil
}

func mapAdminConfig(cfg *config.Config) (admin.ServerConfig, error) {
	var (
		out admin.ServerConfig
		err error
	)
	out.Addr = strings.TrimSpace(cfg.Admin.Addr)
	out.CORSOrigins = append([]string(nil), cfg.Admin.CORSOrigins...)
	if out.ReadTimeout, err = config.ParseDurationOrDefault("admin.read_timeout", cfg.Admin.ReadTimeout, 15*time.Second); err != nil {
		return out, err
	}
	if out.WriteTimeout, err = config.ParseDurationOrDefault("admin.write_timeout", cfg.Admin.WriteTimeout, 15*time.Second); err != nil {
		return out, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("admin.idle_timeout", cfg.Admin.IdleTimeout, 60*time.Second); err != nil {
		return out, err
	}
	return out, nil
}

func mapTelegramConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{
		Token:    strings.TrimSpace(cfg.Telegram.Token),
		ChatID:   cfg.Telegram.ChatID,
		ThreadID: cfg.Telegram.ThreadID,
	}
}

// mapNotifierConfig: an omitted notifier section means "on when telegram is configured".
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	tgReady := mapTelegramConfig(cfg).Enabled()
	nc := cfg.Notifier
	if nc == nil {
		return notifier.Config{
			Enabled:     tgReady,
			DedupWindow: time.Hour,
			RetryMax:    2,
		}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	window, err := config.ParseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, time.Hour)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       nc.Enabled && tgReady,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   window,
		PersistDedup:  nc.PersistDedup,
		NotifySent:    nc.NotifySent,
	}, nil
}

func mapHousekeepingConfig(cfg *config.Config) (housekeeping.Config, error) {
	// An explicit "0s" keeps audit rows forever; only an empty value takes the default.
	retention := config.DefaultAuditRetention
	if raw := strings.TrimSpace(cfg.Housekeeping.AuditRetention); raw != "" {
		d, err := config.ParseDurationField("housekeeping.audit_retention", raw)
		if err != nil {
			return housekeeping.Config{}, err
		}
		retention = d
	}
	loc, err := cfg.Location()
	if err != nil {
		return housekeeping.Config{}, err
	}
	return housekeeping.Config{
		Schedule:       cfg.Housekeeping.Schedule,
		AuditRetention: retention,
		Location:       loc,
	}, nil
}

// validate runs every mapping so a reload that would fail to apply is rejected up front.
func validate(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPublishConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDispatchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapAdminConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	_, err := mapHousekeepingConfig(cfg)
	return err
}
