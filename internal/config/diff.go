package config

import (
	"reflect"
	"sort"
	"strings"

	logx "eventpush/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured fields for logging. Secrets (passwords, tokens) are never included;
// only whether they changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	ow, nw := oldCfg.WordPress, newCfg.WordPress
	if ow.URL != nw.URL || ow.User != nw.User || ow.PageID != nw.PageID ||
		strings.TrimSpace(ow.Timeout) != strings.TrimSpace(nw.Timeout) || ow.AppPassword != nw.AppPassword {
		changed = append(changed, "wordpress")
		attrs = append(attrs,
			logx.String("wordpress.url", nw.URL),
			logx.Bool("wordpress.user_set", nw.User != ""),
			logx.Int("wordpress.page_id", nw.PageID),
			logx.String("wordpress.timeout", strings.TrimSpace(nw.Timeout)),
			logx.Bool("wordpress.app_password_changed", ow.AppPassword != nw.AppPassword),
		)
	}

	if !reflect.DeepEqual(oldCfg.Dispatcher, newCfg.Dispatcher) {
		changed = append(changed, "dispatcher")
		attrs = append(attrs,
			logx.String("dispatcher.interval", newCfg.Dispatcher.Interval),
			logx.String("dispatcher.timezone", newCfg.Dispatcher.Timezone),
		)
	}

	oa, na := oldCfg.Admin, newCfg.Admin
	oaNoSecret, naNoSecret := oa, na
	oaNoSecret.Password, naNoSecret.Password = "", ""
	if oa.Password != na.Password || !reflect.DeepEqual(oaNoSecret, naNoSecret) {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.String("admin.addr", na.Addr),
			logx.Int("admin.cors_origins", len(na.CORSOrigins)),
			logx.Bool("admin.password_changed", oa.Password != na.Password),
		)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.ChatID != nt.ChatID || ot.ThreadID != nt.ThreadID {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", nt.Token != ""),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int64("telegram.chat_id", nt.ChatID),
			logx.Int("telegram.thread_id", nt.ThreadID),
		)
	}

	// Nil notifier means runtime defaults; compare presence as well as content.
	if (oldCfg.Notifier == nil) != (newCfg.Notifier == nil) ||
		(oldCfg.Notifier != nil && !reflect.DeepEqual(*oldCfg.Notifier, *newCfg.Notifier)) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.String("notifier.dedup_window", n.DedupWindow),
				logx.Bool("notifier.notify_sent", n.NotifySent),
			)
		} else {
			attrs = append(attrs, logx.Bool("notifier.defaults", true))
		}
	}

	if !reflect.DeepEqual(oldCfg.Housekeeping, newCfg.Housekeeping) {
		changed = append(changed, "housekeeping")
		attrs = append(attrs,
			logx.String("housekeeping.schedule", newCfg.Housekeeping.Schedule),
			logx.String("housekeeping.audit_retention", newCfg.Housekeeping.AuditRetention),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed sections that cannot be applied without a restart.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		out = append(out, "storage")
	}
	return out
}
