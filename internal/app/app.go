// Package app wires configuration, storage, the raid engine and the Telegram
// surface into one supervised process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"raidbot/internal/config"
	"raidbot/internal/eventbus"
	"raidbot/internal/fflogs"
	"raidbot/internal/metrics"
	"raidbot/internal/notifier"
	"raidbot/internal/observability/httpserver"
	"raidbot/internal/raid"
	"raidbot/internal/raidcmd"
	rtsup "raidbot/internal/runtime/supervisor"
	"raidbot/internal/storage"
	kit "raidbot/internal/transport"
	telegram "raidbot/internal/transport/telegram/adapter"
	"raidbot/internal/transport/telegram/router"
	"raidbot/internal/trigger"
	logx "raidbot/pkg/logx"
	"raidbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter *telegram.Adapter
	sched   *trigger.Scheduler
	ctrl    *raid.Controller
	ff      *fflogs.Service
	notif   *notifier.Service
	http    *httpserver.Service
	auto    *raid.AutoScheduler
	cmdm    *router.CommandManager

	updates chan kit.Update
}

func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver))

	a, err := build(ctx, cfg, ad, store, bus, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.cfgm = cfgm
	a.logs = logSvc
	return a, nil
}

// build assembles the raid engine and its surfaces on top of an open store.
func build(ctx context.Context, cfg *config.Config, ad *telegram.Adapter, store storage.Store, bus eventbus.Bus, log logx.Logger) (*App, error) {
	rcfg, err := mapRaidConfig(cfg)
	if err != nil {
		return nil, err
	}
	poll, err := config.ParseDurationOrDefault("scheduler.poll_interval", cfg.Scheduler.PollInterval, 30*time.Second)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	fcfg, err := mapFFLogsConfig(cfg)
	if err != nil {
		return nil, err
	}
	hcfg, err := mapHTTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	templates, jobs, err := mapTemplates(cfg)
	if err != nil {
		return nil, err
	}

	sched := trigger.New(
		trigger.WithPollInterval(poll),
		trigger.WithLogger(log.With(logx.String("comp", "trigger"))),
	)
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)
	pub := raidcmd.NewPublisher(ad, notif, rcfg.Roles, log.With(logx.String("comp", "publisher")))

	client := fflogs.NewClient(ctx, fcfg, log.With(logx.String("comp", "fflogs")))
	ff := fflogs.NewService(client, fflogs.NewRegistry(store), log.With(logx.String("comp", "fflogs")))
	if !ff.Enabled() {
		log.Info("fflogs disabled: client credentials not set")
	}

	ctrl := raid.NewController(rcfg, raid.Deps{
		Store:     raid.NewStore(raid.NewTablePersister(store), log.With(logx.String("comp", "store"))),
		Scheduler: sched,
		Publisher: pub,
		Reporter:  ff,
		Bus:       bus,
		Logger:    log.With(logx.String("comp", "raid")),
	})

	var auto *raid.AutoScheduler
	if len(jobs) > 0 {
		auto, err = raid.NewAutoScheduler(ctrl, jobs, rcfg.Location, log.With(logx.String("comp", "autoschedule")))
		if err != nil {
			return nil, err
		}
	}

	handlers := raidcmd.New(ctrl, ff, pub, templates, log.With(logx.String("comp", "raidcmd")))
	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad)
	cmdm.SetRegistry(handlers.Commands(), handlers.Callbacks())

	a := &App{
		log:     log.With(logx.String("comp", "app")),
		bus:     bus,
		store:   store,
		adapter: ad,
		sched:   sched,
		ctrl:    ctrl,
		ff:      ff,
		notif:   notif,
		auto:    auto,
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}
	a.http = httpserver.New(hcfg, httpserver.Sources{
		Events:        ctrl.Upcoming,
		Notifications: notif.Snapshot,
		Health:        a.health,
		Metrics:       metrics.Handler(),
	}, log.With(logx.String("comp", "http")))
	return a, nil
}

// health reports component status for /healthz and the systemd watchdog.
func (a *App) health() map[string]string {
	out := map[string]string{"scheduler": "ok", "telegram": "ok", "notifier": "ok"}
	if a.sup != nil && a.sup.Context().Err() != nil {
		out["app"] = "stopping"
	}
	if a.adapter.Supervisor() == nil {
		out["telegram"] = "stopped"
	}
	// a disabled notifier is fine: the publisher sends directly
	if a.notif.Enabled() && !a.notif.Running() {
		out["notifier"] = "stopped"
	}
	return out
}

func (a *App) healthy() bool {
	for _, v := range a.health() {
		if v != "ok" {
			return false
		}
	}
	return true
}

// Done is closed when the app context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// validate rejects a reloaded config that could not be applied.
func validate(_ context.Context, cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRaidConfig(cfg); err != nil {
		return err
	}
	_, _, err := mapTemplates(cfg)
	return err
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(validate)
	}

	// Recovery runs before the scheduler loop so every pending trigger is
	// back in the queue when it first polls.
	if n, err := a.ff.Registry().Load(ctx); err != nil {
		return fmt.Errorf("load characters: %w", err)
	} else if n > 0 {
		a.log.Info("characters loaded", logx.Int("participants", n))
	}
	if _, _, err := a.ctrl.Recover(ctx); err != nil {
		return fmt.Errorf("recover raids: %w", err)
	}

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	a.sup.Go("trigger.scheduler", a.sched.Run)
	if a.auto != nil {
		a.auto.Start()
	}
	if a.http.Enabled() {
		a.http.Start(a.sup.Context())
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("eventbus.audit", func(c context.Context) {
		auditLoop(c, a.bus, a.log.With(logx.String("comp", "audit")))
	})
	if a.cfgm != nil {
		a.sup.Go0("config.reload", a.reloadLoop)
		a.sup.Go("config.watch", a.cfgm.Watch)
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		systemd.WatchdogLoop(c, a.log, a.healthy)
	})

	systemd.Notify(a.log, systemd.Ready)
	a.log.Info("app started",
		logx.Int("events", len(a.ctrl.Upcoming())),
		logx.Int("pending_triggers", a.sched.Len()),
		logx.Bool("fflogs", a.ff.Enabled()),
	)
	return nil
}

func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the latest of a burst
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig hot-applies logging, notifier and HTTP settings. Other sections
// need a restart.
func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	sections, attrs, _ := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(c)
		}
	}

	if hcfg, err := mapHTTPConfig(next); err != nil {
		a.log.Warn("invalid http config; keeping previous", logx.Err(err))
	} else {
		a.http.Reconfigure(c, hcfg)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	systemd.Notify(a.log, systemd.Stopping)
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step slow", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("autoschedule", 2*time.Second, func(c context.Context) error {
		if a.auto != nil {
			a.auto.Stop(c)
		}
		return nil
	})
	step("http", time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	// drain queued reminders while the adapter can still send
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, a.adapter.Stop)
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
