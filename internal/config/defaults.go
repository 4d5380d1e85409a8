package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "raidbot/pkg/logx"
)

const (
	DefaultTokenURL = "https://www.fflogs.com/oauth/token"
	DefaultAPIURL   = "https://www.fflogs.com/api/v2/client"
)

// DefaultRoles is the role list used when raid.roles is omitted.
var DefaultRoles = []string{
	"Tank", "Regen Healer", "Shield Healer",
	"Melee DPS", "Ranged DPS", "Caster DPS", "Flex",
}

func DefaultComposition() map[string]int {
	return map[string]int{
		"Tank":          2,
		"Regen Healer":  1,
		"Shield Healer": 1,
		"Melee DPS":     2,
		"Ranged DPS":    1,
		"Caster DPS":    1,
		"Flex":          0,
	}
}

func DefaultReminders() []ReminderConfig {
	return []ReminderConfig{
		{Label: "24 hours", Offset: "24h"},
		{Label: "3 hours", Offset: "3h"},
		{Label: "1 hour", Offset: "1h"},
	}
}

func DefaultTemplates() map[string]TemplateConfig {
	return map[string]TemplateConfig{
		"raid1": {Name: "Weekly Static Run", Days: []string{"Monday", "Tuesday", "Thursday"}, Time: "20:00"},
	}
}

func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:       true,
		Workers:       2,
		QueueSize:     512,
		RatePerSec:    3,
		RetryMax:      3,
		RetryBase:     "500ms",
		RetryMaxDelay: "10s",
		DedupWindow:   "1m",
	}
}

// ApplyDefaults fills omitted sections in place.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Storage == nil {
		cfg.Storage = &StorageConfig{Driver: "file", Path: "./data"}
	}
	if len(cfg.Raid.Roles) == 0 {
		cfg.Raid.Roles = append([]string(nil), DefaultRoles...)
	}
	if len(cfg.Raid.DefaultComposition) == 0 {
		cfg.Raid.DefaultComposition = DefaultComposition()
	}
	if cfg.Raid.Reminders == nil {
		cfg.Raid.Reminders = DefaultReminders()
	}
	if cfg.Raid.FetchDelay == "" {
		cfg.Raid.FetchDelay = "30m"
	}
	if cfg.Raid.HorizonWeeks <= 0 {
		cfg.Raid.HorizonWeeks = 4
	}
	if cfg.Templates == nil {
		cfg.Templates = DefaultTemplates()
	}
	if cfg.FFLogs.Region == "" {
		cfg.FFLogs.Region = "na"
	}
	if cfg.FFLogs.TokenURL == "" {
		cfg.FFLogs.TokenURL = DefaultTokenURL
	}
	if cfg.FFLogs.APIURL == "" {
		cfg.FFLogs.APIURL = DefaultAPIURL
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8080"
	}
}

// Validate checks a config after ApplyDefaults. Secrets are never echoed.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token: required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		add("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChat == 0 {
		add("logging.telegram: telegram.log_chat is required")
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "file", "sqlite", "bolt":
			if strings.TrimSpace(s.Path) == "" {
				add("storage.path: required for driver %q", s.Driver)
			}
		case "postgres":
			if strings.TrimSpace(s.DSN) == "" {
				add("storage.dsn: required for driver postgres")
			}
		case "redis":
			if strings.TrimSpace(s.Addr) == "" {
				add("storage.addr: required for driver redis")
			}
		default:
			add("storage.driver: unknown driver %q", s.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}

	if n := cfg.Notifier; n != nil {
		if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
			errs = append(errs, err)
		}
		if _, err := ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
			errs = append(errs, err)
		}
	}

	if _, err := LoadLocation(cfg.Scheduler.Timezone); err != nil {
		add("scheduler.timezone: %w", err)
	}
	if _, err := ParseDurationField("scheduler.poll_interval", cfg.Scheduler.PollInterval); err != nil {
		errs = append(errs, err)
	}

	roles := map[string]bool{}
	for _, r := range cfg.Raid.Roles {
		key := strings.ToLower(strings.TrimSpace(r))
		if key == "" {
			add("raid.roles: empty role name")
			continue
		}
		if strings.ContainsAny(r, ":") {
			add("raid.roles: %q must not contain ':'", r)
		}
		if roles[key] {
			add("raid.roles: duplicate role %q", r)
		}
		roles[key] = true
	}
	for role, n := range cfg.Raid.DefaultComposition {
		if !roles[strings.ToLower(role)] {
			add("raid.default_composition: unknown role %q", role)
		}
		if n < 0 {
			add("raid.default_composition.%s: must be >= 0", role)
		}
	}
	labels := map[string]bool{}
	for i, r := range cfg.Raid.Reminders {
		if strings.TrimSpace(r.Label) == "" {
			add("raid.reminders[%d].label: required", i)
		}
		if labels[r.Label] {
			add("raid.reminders[%d].label: duplicate %q", i, r.Label)
		}
		labels[r.Label] = true
		d, err := ParseDurationField(fmt.Sprintf("raid.reminders[%d].offset", i), r.Offset)
		if err != nil {
			errs = append(errs, err)
		} else if d <= 0 {
			add("raid.reminders[%d].offset: must be > 0", i)
		}
	}
	if _, err := ParseDurationField("raid.fetch_delay", cfg.Raid.FetchDelay); err != nil {
		errs = append(errs, err)
	}

	for id, t := range cfg.Templates {
		if strings.TrimSpace(t.Name) == "" {
			add("templates.%s.name: required", id)
		}
		if len(t.Days) == 0 {
			add("templates.%s.days: required", id)
		}
		for _, d := range t.Days {
			if _, ok := ParseWeekday(d); !ok {
				add("templates.%s.days: unknown weekday %q", id, d)
			}
		}
		if _, _, err := ParseClock(t.Time); err != nil {
			add("templates.%s.time: %w", id, err)
		}
		if t.Auto != "" && t.ChatID == 0 {
			add("templates.%s.chat_id: required when auto is set", id)
		}
	}

	if _, err := ParseDurationField("fflogs.timeout", cfg.FFLogs.Timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LoadLocation resolves a timezone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// ParseWeekday accepts full or three-letter English day names in any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if s == full || (len(s) == 3 && strings.HasPrefix(full, s)) {
			return d, true
		}
	}
	return 0, false
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	return t.Hour(), t.Minute(), nil
}
