package config

type Config struct {
	Telegram  TelegramConfig            `json:"telegram"`
	Logging   LoggingConfig             `json:"logging"`
	Storage   *StorageConfig            `json:"storage,omitempty"`
	Notifier  *NotifierConfig           `json:"notifier,omitempty"`
	Scheduler SchedulerConfig           `json:"scheduler"`
	Raid      RaidConfig                `json:"raid"`
	Templates map[string]TemplateConfig `json:"templates,omitempty"`
	FFLogs    FFLogsConfig              `json:"fflogs"`
	HTTP      HTTPConfig                `json:"http,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	// LogChat receives warn/error log lines when logging.telegram is enabled.
	LogChat int64 `json:"log_chat,omitempty"`
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
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the persistence backend for the events and
// characters tables.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./raidbot.db" }
type StorageConfig struct {
	// Driver is one of file, sqlite, bolt, postgres, redis.
	Driver string `json:"driver"`
	// Path is a directory (file) or database file (sqlite, bolt).
	Path string `json:"path,omitempty"`
	// DSN is a postgres connection string.
	DSN string `json:"dsn,omitempty"`
	// Addr, Password, DB address a redis server.
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	// KeyPrefix namespaces redis keys. Default "raidbot:".
	KeyPrefix   string `json:"key_prefix,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the async delivery pipeline used for reminders,
// reports and announcements.
//
// If the whole section is omitted the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
	// DedupWindow suppresses identical messages to the same chat within the
	// window. Empty disables it.
	DedupWindow string `json:"dedup_window,omitempty"`
}

type SchedulerConfig struct {
	// Timezone used to read typed datetimes and template times. Default UTC.
	Timezone string `json:"timezone,omitempty"`
	// PollInterval bounds how late a trigger may fire. Default "30s".
	PollInterval string `json:"poll_interval,omitempty"`
}

type ReminderConfig struct {
	Label string `json:"label"`
	// Offset before the event start, Go duration string (e.g. "3h").
	Offset string `json:"offset"`
}

type RaidConfig struct {
	// Roles lists the accepted role names in display order.
	Roles []string `json:"roles,omitempty"`
	// DefaultComposition is used when a create request names no roles.
	DefaultComposition map[string]int `json:"default_composition,omitempty"`
	Reminders          []ReminderConfig `json:"reminders,omitempty"`
	// FetchDelay after the event start for the performance report. Default "30m".
	FetchDelay string `json:"fetch_delay,omitempty"`
	// HorizonWeeks for recurring generation. Default 4.
	HorizonWeeks int `json:"horizon_weeks,omitempty"`
}

// TemplateConfig describes a recurring raid slot.
type TemplateConfig struct {
	Name string   `json:"name"`
	Days []string `json:"days"`
	// Time is "HH:MM" in scheduler.timezone.
	Time string `json:"time"`
	// Auto is an optional cron spec that regenerates the horizon, skipping
	// occurrences that already exist.
	Auto string `json:"auto,omitempty"`
	// ChatID is where auto-generated events are announced.
	ChatID   int64 `json:"chat_id,omitempty"`
	ThreadID int   `json:"thread_id,omitempty"`
}

type FFLogsConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	// Region defaults to "na".
	Region     string `json:"region,omitempty"`
	TokenURL   string `json:"token_url,omitempty"`
	APIURL     string `json:"api_url,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// HTTPConfig controls the admin HTTP server.
//
// Prefer binding to localhost. A non-loopback address requires a token or
// allow_insecure.
type HTTPConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Metrics       bool   `json:"metrics,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
