package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Roster metrics
	Signups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_signups_total",
			Help: "Sign-up attempts by outcome (accepted, waitlisted, rejected)",
		},
		[]string{"outcome"},
	)

	Cancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raidbot_cancellations_total",
			Help: "Participants removed from an event roster",
		},
	)

	Promotions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raidbot_promotions_total",
			Help: "Waitlist entries promoted into a freed slot",
		},
	)

	EventsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raidbot_events_active",
			Help: "Events currently held in the registry",
		},
	)

	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_persist_failures_total",
			Help: "Failed snapshot writes by table",
		},
		[]string{"table"},
	)

	// Scheduler metrics
	PendingTriggers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raidbot_pending_triggers",
			Help: "Timed triggers waiting to fire",
		},
	)

	TriggersFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_triggers_fired_total",
			Help: "Triggers fired by kind (reminder, fetch)",
		},
		[]string{"kind"},
	)

	TriggersSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_triggers_skipped_total",
			Help: "Triggers not registered or not fired by reason",
		},
		[]string{"reason"},
	)

	RemindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raidbot_reminders_sent_total",
			Help: "Reminder messages delivered",
		},
	)

	// Delivery metrics
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_notifications_total",
			Help: "Outbound notifications by result",
		},
		[]string{"result"},
	)

	UpdatesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raidbot_updates_dropped_total",
			Help: "Incoming chat updates dropped because the router was busy",
		},
	)

	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_commands_total",
			Help: "Handled chat commands and callbacks by route and result",
		},
		[]string{"route", "result"},
	)

	GoroutineRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_goroutine_restarts_total",
			Help: "Supervised goroutine restarts by name",
		},
		[]string{"name"},
	)

	// Analytics metrics
	FFLogsRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_fflogs_requests_total",
			Help: "Analytics API requests by result",
		},
		[]string{"result"},
	)

	FFLogsDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raidbot_fflogs_request_duration_seconds",
			Help:    "Analytics API request latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	// HTTP metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raidbot_http_requests_total",
			Help: "Admin HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(Signups)
	prometheus.MustRegister(Cancellations)
	prometheus.MustRegister(Promotions)
	prometheus.MustRegister(EventsActive)
	prometheus.MustRegister(PersistFailures)
	prometheus.MustRegister(PendingTriggers)
	prometheus.MustRegister(TriggersFired)
	prometheus.MustRegister(TriggersSkipped)
	prometheus.MustRegister(RemindersSent)
	prometheus.MustRegister(NotificationsSent)
	prometheus.MustRegister(UpdatesDropped)
	prometheus.MustRegister(Commands)
	prometheus.MustRegister(GoroutineRestarts)
	prometheus.MustRegister(FFLogsRequests)
	prometheus.MustRegister(FFLogsDuration)
	prometheus.MustRegister(HTTPRequests)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation and records it into a histogram.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}
