package raid

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "raidbot/pkg/logx"
)

// AutoJob regenerates a template's horizon on a cron spec.
type AutoJob struct {
	Template Template
	Spec     string
	Channel  string
}

// AutoScheduler runs AutoJobs. Generation skips slots that already exist.
type AutoScheduler struct {
	ctrl *Controller
	c    *cron.Cron
	log  logx.Logger
	jobs []AutoJob
}

func NewAutoScheduler(ctrl *Controller, jobs []AutoJob, loc *time.Location, log logx.Logger) (*AutoScheduler, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	a := &AutoScheduler{
		ctrl: ctrl,
		log:  log,
		jobs: jobs,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{log}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
		),
	}
	for _, j := range jobs {
		j := j
		if _, err := a.c.AddFunc(j.Spec, func() { a.run(j) }); err != nil {
			return nil, fmt.Errorf("template %s: auto spec %q: %w", j.Template.ID, j.Spec, err)
		}
	}
	return a, nil
}

func (a *AutoScheduler) run(j AutoJob) {
	n, err := a.ctrl.Generate(context.Background(), j.Template, j.Channel, true)
	if err != nil {
		a.log.Error("auto schedule failed", logx.String("template", j.Template.ID), logx.Int("created", n), logx.Err(err))
		return
	}
	a.log.Info("auto schedule ran", logx.String("template", j.Template.ID), logx.Int("created", n))
}

func (a *AutoScheduler) Len() int { return len(a.jobs) }

func (a *AutoScheduler) Start() {
	a.c.Start()
	a.log.Info("auto scheduler started", logx.Int("jobs", len(a.jobs)))
}

// Stop waits for running jobs or ctx, whichever ends first.
func (a *AutoScheduler) Stop(ctx context.Context) {
	select {
	case <-a.c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts logx to cron.Logger.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(strings.ReplaceAll(k, " ", "_"), kv[i+1]))
	}
	return out
}
