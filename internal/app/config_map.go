package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"raidbot/internal/config"
	"raidbot/internal/fflogs"
	"raidbot/internal/notifier"
	"raidbot/internal/observability/httpserver"
	"raidbot/internal/raid"
	"raidbot/internal/raidcmd"
	"raidbot/internal/storage"
	kit "raidbot/internal/transport"
	logx "raidbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChat,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{Driver: "file", Path: "./data"}, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         sc.DSN,
		Addr:        sc.Addr,
		Password:    sc.Password,
		DB:          sc.DB,
		KeyPrefix:   sc.KeyPrefix,
		BusyTimeout: busy,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	nc := config.DefaultNotifier()
	if cfg.Notifier != nil {
		nc = *cfg.Notifier
	}
	if nc.Workers < 0 || nc.QueueSize < 0 || nc.RatePerSec < 0 || nc.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0")
	}
	base, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", nc.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", nc.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       nc.Enabled,
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		DedupWindow:   dedup,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpserver.Config, error) {
	hc := cfg.HTTP
	read, err := config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	// pprof profile/trace stream for up to 30s by default
	write, err := config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 60*time.Second)
	if err != nil {
		return httpserver.Config{}, err
	}
	return httpserver.Config{
		Enabled:       hc.Enabled,
		Addr:          hc.Addr,
		Token:         hc.Token,
		AllowInsecure: hc.AllowInsecure,
		Metrics:       hc.Metrics,
		Pprof:         hc.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapFFLogsConfig(cfg *config.Config) (fflogs.Config, error) {
	fc := cfg.FFLogs
	timeout, err := config.ParseDurationOrDefault("fflogs.timeout", fc.Timeout, 15*time.Second)
	if err != nil {
		return fflogs.Config{}, err
	}
	out := fflogs.Config{
		ClientID:     strings.TrimSpace(fc.ClientID),
		ClientSecret: strings.TrimSpace(fc.ClientSecret),
		TokenURL:     fc.TokenURL,
		APIURL:       fc.APIURL,
		Region:       fc.Region,
		RatePerSec:   fc.RatePerSec,
		Timeout:      timeout,
	}
	if out.TokenURL == "" {
		out.TokenURL = config.DefaultTokenURL
	}
	if out.APIURL == "" {
		out.APIURL = config.DefaultAPIURL
	}
	return out, nil
}

func mapRaidConfig(cfg *config.Config) (raid.Config, error) {
	loc, err := config.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return raid.Config{}, fmt.Errorf("scheduler.timezone: %w", err)
	}
	roles := raid.NewRoleSet(cfg.Raid.Roles)
	comp := make(map[string]int, len(cfg.Raid.DefaultComposition))
	for name, n := range cfg.Raid.DefaultComposition {
		canon, ok := roles.Canonical(name)
		if !ok {
			return raid.Config{}, fmt.Errorf("raid.default_composition: unknown role %q", name)
		}
		comp[canon] = n
	}
	reminders := make([]raid.Reminder, 0, len(cfg.Raid.Reminders))
	for i, r := range cfg.Raid.Reminders {
		d, err := config.ParseDurationField(fmt.Sprintf("raid.reminders[%d].offset", i), r.Offset)
		if err != nil {
			return raid.Config{}, err
		}
		reminders = append(reminders, raid.Reminder{Label: r.Label, Offset: d})
	}
	fetch, err := config.ParseDurationOrDefault("raid.fetch_delay", cfg.Raid.FetchDelay, 30*time.Minute)
	if err != nil {
		return raid.Config{}, err
	}
	return raid.Config{
		Roles:              roles,
		DefaultComposition: comp,
		Reminders:          reminders,
		FetchDelay:         fetch,
		Location:           loc,
		HorizonWeeks:       cfg.Raid.HorizonWeeks,
	}, nil
}

// mapTemplates returns the templates by id and the cron jobs of those with
// an auto spec, ordered by id.
func mapTemplates(cfg *config.Config) (map[string]raid.Template, []raid.AutoJob, error) {
	ids := make([]string, 0, len(cfg.Templates))
	for id := range cfg.Templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(map[string]raid.Template, len(ids))
	var jobs []raid.AutoJob
	for _, id := range ids {
		tc := cfg.Templates[id]
		hour, minute, err := config.ParseClock(tc.Time)
		if err != nil {
			return nil, nil, fmt.Errorf("templates.%s.time: %w", id, err)
		}
		tpl := raid.Template{ID: id, Name: tc.Name, Hour: hour, Minute: minute}
		for _, d := range tc.Days {
			wd, ok := config.ParseWeekday(d)
			if !ok {
				return nil, nil, fmt.Errorf("templates.%s.days: unknown weekday %q", id, d)
			}
			tpl.Days = append(tpl.Days, wd)
		}
		out[id] = tpl
		if spec := strings.TrimSpace(tc.Auto); spec != "" {
			jobs = append(jobs, raid.AutoJob{
				Template: tpl,
				Spec:     spec,
				Channel:  raidcmd.FormatChannel(kit.ChatTarget{ChatID: tc.ChatID, ThreadID: tc.ThreadID}),
			})
		}
	}
	return out, jobs, nil
}
