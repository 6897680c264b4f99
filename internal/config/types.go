package config

type Config struct {
	Logging      LoggingConfig      `json:"logging"`
	Storage      StorageConfig      `json:"storage"`
	WordPress    WordPressConfig    `json:"wordpress"`
	Dispatcher   DispatcherConfig   `json:"dispatcher"`
	Admin        AdminConfig        `json:"admin"`
	Telegram     TelegramConfig     `json:"telegram"`
	Notifier     *NotifierConfig    `json:"notifier,omitempty"`
	Housekeeping HousekeepingConfig `json:"housekeeping"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the event database.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./events.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// WordPressConfig is the push target. All four of url, user, app_password and
// page_id must be set or every push short-circuits as "not configured".
type WordPressConfig struct {
	URL         string `json:"url"`
	User        string `json:"user"`
	AppPassword string `json:"app_password"` // do not log
	PageID      int    `json:"page_id"`
	Timeout     string `json:"timeout,omitempty"` // default "15s"
}

type DispatcherConfig struct {
	// Interval between scan cycles (Go duration string). Default "60s".
	Interval string `json:"interval"`
	// Timezone used to interpret publish_datetime. Empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
}

// AdminConfig controls the admin HTTP surface.
//
// Security note: the password travels in query strings, bind to a trusted
// network or put a TLS proxy in front.
type AdminConfig struct {
	Addr        string   `json:"addr"`     // default ":5000"
	Password    string   `json:"password"` // default "adminpass", do not log
	CORSOrigins []string `json:"cors_origins,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"` // do not log
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// NotifierConfig controls operator alerts about dispatch outcomes.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// If the whole section is omitted, alerts are enabled whenever telegram is configured.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	// DedupWindow suppresses repeats of the same alert (e.g. an event failing every cycle).
	DedupWindow  string `json:"dedup_window,omitempty"`
	PersistDedup bool   `json:"persist_dedup,omitempty"`
	NotifySent   bool   `json:"notify_sent"`
}

type HousekeepingConfig struct {
	// Schedule is a standard 5-field cron expression. Default "0 3 * * *".
	Schedule string `json:"schedule,omitempty"`
	// AuditRetention is a Go duration string. "0s" keeps audit rows forever.
	AuditRetention string `json:"audit_retention,omitempty"`
}
