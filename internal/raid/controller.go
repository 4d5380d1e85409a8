package raid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"raidbot/internal/eventbus"
	"raidbot/internal/metrics"
	"raidbot/internal/trigger"
	logx "raidbot/pkg/logx"
)

// Publisher delivers presentations to a channel. Channel and ref are opaque
// strings owned by the transport.
type Publisher interface {
	Publish(ctx context.Context, channel string, p Presentation) (ref string, err error)
	Update(ctx context.Context, channel, ref string, p Presentation) error
	Notify(ctx context.Context, channel, text string) error
}

// Reporter builds the post-event performance summary. An empty report means
// nothing to say.
type Reporter interface {
	EventReport(ctx context.Context, ev *Event) (string, error)
}

type Reminder struct {
	Label  string
	Offset time.Duration
}

type Config struct {
	Roles              *RoleSet
	DefaultComposition map[string]int
	Reminders          []Reminder
	FetchDelay         time.Duration
	Location           *time.Location
	HorizonWeeks       int
}

type Deps struct {
	Store     *Store
	Scheduler *trigger.Scheduler
	Publisher Publisher
	Reporter  Reporter
	Bus       eventbus.Bus
	Logger    logx.Logger
}

// Controller owns the event lifecycle: creation, roster changes, triggers
// and deletion.
type Controller struct {
	cfg      Config
	store    *Store
	sched    *trigger.Scheduler
	pub      Publisher
	reporter Reporter
	bus      eventbus.Bus
	log      logx.Logger
	roster   Roster
}

func NewController(cfg Config, d Deps) *Controller {
	if cfg.Roles == nil {
		cfg.Roles = NewRoleSet(nil)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.HorizonWeeks <= 0 {
		cfg.HorizonWeeks = 4
	}
	log := d.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{
		cfg:      cfg,
		store:    d.Store,
		sched:    d.Scheduler,
		pub:      d.Publisher,
		reporter: d.Reporter,
		bus:      d.Bus,
		log:      log,
	}
	c.roster = Roster{Roles: cfg.Roles, Now: c.sched.Now}
	return c
}

func (c *Controller) Roles() *RoleSet { return c.cfg.Roles }

func (c *Controller) Location() *time.Location { return c.cfg.Location }

func (c *Controller) Now() time.Time { return c.sched.Now() }

func (c *Controller) HorizonWeeks() int { return c.cfg.HorizonWeeks }

func (c *Controller) RenderOptions() RenderOptions {
	return RenderOptions{Location: c.cfg.Location, Roles: c.cfg.Roles}
}

func (c *Controller) Get(id string) (*Event, bool) { return c.store.Get(id) }

// Upcoming lists events scheduled after now, earliest first.
func (c *Controller) Upcoming() []*Event { return c.store.Upcoming(c.sched.Now()) }

func (c *Controller) publish(typ string, d eventbus.RaidData) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Type: typ, Time: c.sched.Now(), Data: d})
}

type CreateSpec struct {
	Name        string
	Description string
	ScheduledAt time.Time
	Category    string
	GuideLink   string
	// Capacity overrides the default composition when non-empty.
	Capacity  map[string]int
	Channel   string
	CreatedBy int64
	// Publish posts the event card to Channel and records it as origin.
	Publish bool
}

func (c *Controller) capacityFor(spec map[string]int) (map[string]int, error) {
	if len(spec) == 0 {
		out := make(map[string]int, len(c.cfg.DefaultComposition))
		for k, v := range c.cfg.DefaultComposition {
			out[k] = v
		}
		return out, nil
	}
	out := make(map[string]int, len(spec))
	for role, limit := range spec {
		canon, ok := c.cfg.Roles.Canonical(role)
		if !ok {
			return nil, &ValidationError{Message: fmt.Sprintf("Unknown role %q. Valid roles: %s", role, c.cfg.Roles)}
		}
		if limit < 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("Role %s cannot have a negative limit.", canon)}
		}
		out[canon] = limit
	}
	return out, nil
}

// Create validates spec, persists a new event and registers its triggers.
func (c *Controller) Create(ctx context.Context, spec CreateSpec) (*Event, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return nil, &ValidationError{Message: "Raid name is required."}
	}
	if spec.ScheduledAt.IsZero() {
		return nil, &ValidationError{Message: "Raid time is required."}
	}
	now := c.sched.Now()
	if !spec.ScheduledAt.After(now) {
		return nil, &ValidationError{Message: "Raid time must be in the future."}
	}
	capacity, err := c.capacityFor(spec.Capacity)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		ID:            NewID(),
		Name:          name,
		Description:   strings.TrimSpace(spec.Description),
		ScheduledAt:   spec.ScheduledAt.UTC(),
		Capacity:      capacity,
		Category:      strings.TrimSpace(spec.Category),
		GuideLink:     strings.TrimSpace(spec.GuideLink),
		OriginChannel: spec.Channel,
		CreatedBy:     spec.CreatedBy,
		CreatedAt:     now.UTC(),
	}
	if err := c.store.Insert(ctx, ev); err != nil {
		return nil, err
	}
	n := c.registerTriggers(ev)
	c.log.Info("raid created",
		logx.String("event_id", ev.ID),
		logx.String("name", ev.Name),
		logx.Time("at", ev.ScheduledAt),
		logx.Int("triggers", n),
	)
	c.publish(eventbus.RaidCreated, eventbus.RaidData{EventID: ev.ID, Name: ev.Name})

	if spec.Publish && spec.Channel != "" {
		if out, err := c.Show(ctx, ev.ID, spec.Channel); err == nil {
			ev = out
		} else {
			c.log.Warn("publish raid card failed", logx.String("event_id", ev.ID), logx.Err(err))
		}
	}
	return ev, nil
}

// Show posts the event card to channel and makes that post the live one.
func (c *Controller) Show(ctx context.Context, id, channel string) (*Event, error) {
	ev, ok := c.store.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if c.pub == nil {
		return ev, nil
	}
	ref, err := c.pub.Publish(ctx, channel, RenderAnnouncement(ev, c.RenderOptions()))
	if err != nil {
		return nil, err
	}
	return c.store.Mutate(ctx, id, func(e *Event) (bool, error) {
		e.OriginChannel = channel
		e.OriginMessage = ref
		return true, nil
	})
}

// registerTriggers schedules every reminder not yet sent and the post-event
// fetch. Triggers already in the past are skipped.
func (c *Controller) registerTriggers(ev *Event) int {
	n := 0
	for _, r := range c.cfg.Reminders {
		if ev.HasReminder(r.Label) {
			continue
		}
		t := trigger.Trigger{EventID: ev.ID, FiresAt: ev.ScheduledAt.Add(-r.Offset), Kind: trigger.KindReminder, Label: r.Label}
		if c.sched.ScheduleAt(t, c.fireReminder) {
			n++
		}
	}
	if c.cfg.FetchDelay > 0 {
		t := trigger.Trigger{EventID: ev.ID, FiresAt: ev.ScheduledAt.Add(c.cfg.FetchDelay), Kind: trigger.KindFetch}
		if c.sched.ScheduleAt(t, c.fireFetch) {
			n++
		}
	}
	return n
}

// Recover loads persisted events and re-registers their pending triggers.
func (c *Controller) Recover(ctx context.Context) (events, triggers int, err error) {
	events, err = c.store.Load(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, ev := range c.store.List() {
		triggers += c.registerTriggers(ev)
	}
	c.log.Info("raids recovered", logx.Int("events", events), logx.Int("triggers", triggers))
	return events, triggers, nil
}

// fireReminder records the label before sending so a crash or restart never
// delivers the same reminder twice.
func (c *Controller) fireReminder(ctx context.Context, t trigger.Trigger) {
	send := false
	ev, err := c.store.Mutate(ctx, t.EventID, func(ev *Event) (bool, error) {
		if ev.HasReminder(t.Label) {
			return false, nil
		}
		ev.RemindersSent = append(ev.RemindersSent, t.Label)
		send = true
		return true, nil
	})
	switch {
	case errors.Is(err, ErrNotFound):
		metrics.TriggersSkipped.WithLabelValues("missing").Inc()
		c.log.Debug("reminder for deleted raid skipped", logx.String("event_id", t.EventID))
		return
	case err != nil:
		c.log.Error("reminder not recorded", logx.String("event_id", t.EventID), logx.String("label", t.Label), logx.Err(err))
		return
	case !send:
		metrics.TriggersSkipped.WithLabelValues("duplicate").Inc()
		return
	}

	if ev.OriginChannel == "" || c.pub == nil {
		c.log.Warn("reminder has no destination", logx.String("event_id", ev.ID), logx.String("label", t.Label))
		return
	}
	text := RenderReminder(ev, t.Label, c.RenderOptions())
	if err := c.pub.Notify(ctx, ev.OriginChannel, text); err != nil {
		c.log.Warn("reminder delivery failed", logx.String("event_id", ev.ID), logx.String("label", t.Label), logx.Err(err))
		return
	}
	metrics.RemindersSent.Inc()
	c.publish(eventbus.ReminderSent, eventbus.RaidData{EventID: ev.ID, Name: ev.Name, Label: t.Label})
}

func (c *Controller) fireFetch(ctx context.Context, t trigger.Trigger) {
	ev, ok := c.store.Get(t.EventID)
	if !ok {
		metrics.TriggersSkipped.WithLabelValues("missing").Inc()
		return
	}
	report, err := c.Report(ctx, ev.ID)
	if err != nil {
		c.log.Warn("post-raid report failed", logx.String("event_id", ev.ID), logx.Err(err))
		return
	}
	if report == "" || ev.OriginChannel == "" || c.pub == nil {
		return
	}
	if err := c.pub.Notify(ctx, ev.OriginChannel, report); err != nil {
		c.log.Warn("post-raid report delivery failed", logx.String("event_id", ev.ID), logx.Err(err))
		return
	}
	c.publish(eventbus.FetchDone, eventbus.RaidData{EventID: ev.ID, Name: ev.Name})
}

// Report builds the performance summary of event id.
func (c *Controller) Report(ctx context.Context, id string) (string, error) {
	ev, ok := c.store.Get(id)
	if !ok {
		return "", ErrNotFound
	}
	if c.reporter == nil {
		return "", nil
	}
	return c.reporter.EventReport(ctx, ev)
}

// Delete removes the event, drops its pending triggers and marks the live
// card as cancelled.
func (c *Controller) Delete(ctx context.Context, id string) (*Event, error) {
	ev, err := c.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	dropped := c.sched.DropEvent(id)
	c.log.Info("raid deleted", logx.String("event_id", id), logx.String("name", ev.Name), logx.Int("dropped_triggers", dropped))
	c.publish(eventbus.RaidDeleted, eventbus.RaidData{EventID: id, Name: ev.Name})

	if ev.OriginChannel != "" && ev.OriginMessage != "" && c.pub != nil {
		if err := c.pub.Update(ctx, ev.OriginChannel, ev.OriginMessage, RenderCancelled(ev)); err != nil {
			c.log.Warn("cancel notice failed", logx.String("event_id", id), logx.Err(err))
		}
	}
	return ev, nil
}

// Join signs pid up for role. A missing event is a rejected result. The
// error is non-nil only when persisting failed.
func (c *Controller) Join(ctx context.Context, id string, pid int64, displayName, role string) (Result, error) {
	var res Result
	ev, err := c.store.Mutate(ctx, id, func(ev *Event) (bool, error) {
		res = c.roster.SignUp(ev, pid, displayName, role)
		return res.Changed(), nil
	})
	if errors.Is(err, ErrNotFound) {
		metrics.Signups.WithLabelValues(string(StatusRejected)).Inc()
		return rejected("Raid not found!"), nil
	}
	if err != nil {
		return rejected("Could not save your signup. Please try again."), err
	}
	metrics.Signups.WithLabelValues(string(res.Status)).Inc()
	if res.Changed() {
		c.log.Info("raid signup",
			logx.String("event_id", id),
			logx.Int64("participant", pid),
			logx.String("role", res.Role),
			logx.String("status", string(res.Status)),
		)
		c.publish(eventbus.RaidSignup, eventbus.RaidData{EventID: id, Name: ev.Name, Participant: pid, Role: res.Role, Label: string(res.Status)})
		c.refresh(ctx, ev)
	}
	return res, nil
}

// CancelSignup removes pid and promotes the next same-role waitlist entry.
func (c *Controller) CancelSignup(ctx context.Context, id string, pid int64) (CancelResult, error) {
	var res CancelResult
	ev, err := c.store.Mutate(ctx, id, func(ev *Event) (bool, error) {
		res = c.roster.Cancel(ev, pid)
		return res.Removed, nil
	})
	if err != nil {
		return CancelResult{}, err
	}
	if !res.Removed {
		return res, nil
	}
	metrics.Cancellations.Inc()
	c.publish(eventbus.RaidCancelled, eventbus.RaidData{EventID: id, Name: ev.Name, Participant: pid, Role: res.Role})
	if res.Promoted != nil {
		metrics.Promotions.Inc()
		c.log.Info("waitlist promoted", logx.String("event_id", id), logx.Int64("participant", res.Promoted.ParticipantID), logx.String("role", res.Role))
		c.publish(eventbus.RaidPromoted, eventbus.RaidData{EventID: id, Name: ev.Name, Participant: res.Promoted.ParticipantID, Role: res.Role})
	}
	c.refresh(ctx, ev)
	return res, nil
}

func (c *Controller) refresh(ctx context.Context, ev *Event) {
	if ev.OriginChannel == "" || ev.OriginMessage == "" || c.pub == nil {
		return
	}
	if err := c.pub.Update(ctx, ev.OriginChannel, ev.OriginMessage, RenderAnnouncement(ev, c.RenderOptions())); err != nil {
		c.log.Warn("raid card update failed", logx.String("event_id", ev.ID), logx.Err(err))
	}
}

type PingTarget struct {
	ID   int64
	Name string
}

// PingTargets returns the unique participants of every event in category,
// ordered by name, and the number of matching events.
func (c *Controller) PingTargets(category string) ([]PingTarget, int) {
	seen := map[int64]bool{}
	var out []PingTarget
	events := 0
	for _, ev := range c.store.List() {
		if !strings.EqualFold(ev.Category, category) {
			continue
		}
		events++
		for id, p := range ev.Participants {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, PingTarget{ID: id, Name: p.DisplayName})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, events
}

func (c *Controller) exists(category string, at time.Time) bool {
	for _, ev := range c.store.List() {
		if ev.Category == category && ev.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

// Generate creates the template's occurrences over the horizon. With
// skipExisting, slots that already hold an event of the same category are
// left alone. It returns how many events were created.
func (c *Controller) Generate(ctx context.Context, tpl Template, channel string, skipExisting bool) (int, error) {
	created := 0
	for _, at := range tpl.Occurrences(c.sched.Now(), c.cfg.Location, c.cfg.HorizonWeeks) {
		if skipExisting && c.exists(tpl.ID, at) {
			continue
		}
		day := at.In(c.cfg.Location).Weekday()
		_, err := c.Create(ctx, CreateSpec{
			Name:        tpl.occurrenceName(day),
			Description: tpl.occurrenceDescription(day),
			ScheduledAt: at,
			Category:    tpl.ID,
			Channel:     channel,
		})
		if err != nil {
			return created, err
		}
		created++
	}
	c.log.Info("recurring raids generated", logx.String("template", tpl.ID), logx.Int("created", created))
	return created, nil
}
