package config

import (
	"reflect"
	"sort"
	"strings"

	logx "raidbot/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the template ids that changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.LogChat != newCfg.Telegram.LogChat ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.log_chat_set", newCfg.Telegram.LogChat != 0),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// HTTP (never log token)
	nh := newCfg.HTTP
	if oldCfg.HTTP != nh {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.Bool("http.enabled", nh.Enabled),
			logx.String("http.addr", strings.TrimSpace(nh.Addr)),
			logx.Bool("http.token_set", strings.TrimSpace(nh.Token) != ""),
			logx.Bool("http.metrics", nh.Metrics),
			logx.Bool("http.pprof", nh.Pprof),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Raid, newCfg.Raid) {
		changed = append(changed, "raid")
		attrs = append(attrs,
			logx.Int("raid.roles", len(newCfg.Raid.Roles)),
			logx.Int("raid.reminders", len(newCfg.Raid.Reminders)),
			logx.String("raid.fetch_delay", newCfg.Raid.FetchDelay),
		)
	}

	// Notifier. A nil section means runtime defaults.
	defN := DefaultNotifier()
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = &defN
	}
	if newN == nil {
		newN = &defN
	}
	if *oldN != *newN {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
		)
	}

	// Storage. Never log the DSN or password.
	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.Bool("storage.dsn_set", strings.TrimSpace(nS.DSN) != ""),
			logx.String("storage.addr", strings.TrimSpace(nS.Addr)),
		)
	}

	// FFLogs (never log the secret)
	nf := newCfg.FFLogs
	if oldCfg.FFLogs != nf {
		changed = append(changed, "fflogs")
		attrs = append(attrs,
			logx.Bool("fflogs.client_set", nf.ClientID != ""),
			logx.String("fflogs.region", nf.Region),
			logx.Int("fflogs.rate_per_sec", nf.RatePerSec),
		)
	}

	tplChanged := diffTemplates(oldCfg.Templates, newCfg.Templates)
	if len(tplChanged) > 0 {
		changed = append(changed, "templates")
		attrs = append(attrs,
			logx.Int("templates.changed_count", len(tplChanged)),
			logx.Int("templates.count", len(newCfg.Templates)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, tplChanged
}

// RestartRequired reports which changed sections are only read at startup.
func RestartRequired(changed []string) []string {
	out := make([]string, 0, len(changed))
	for _, s := range changed {
		switch s {
		case "telegram", "storage", "raid", "scheduler", "fflogs", "templates":
			out = append(out, s)
		}
	}
	return out
}

func diffTemplates(oldM, newM map[string]TemplateConfig) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		o, oOK := oldM[id]
		n, nOK := newM[id]
		if oOK != nOK || !reflect.DeepEqual(o, n) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
