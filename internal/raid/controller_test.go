package raid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raidbot/internal/eventbus"
	"raidbot/internal/storage"
	"raidbot/internal/trigger"
	logx "raidbot/pkg/logx"
)

var now0 = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC) // Wednesday

var testReminders = []Reminder{
	{Label: "24 hours", Offset: 24 * time.Hour},
	{Label: "3 hours", Offset: 3 * time.Hour},
	{Label: "1 hour", Offset: time.Hour},
}

type note struct {
	channel, text string
}

type fakePublisher struct {
	mu        sync.Mutex
	seq       int
	published []Presentation
	updates   map[string]Presentation
	notes     []note
	notifyErr error
}

func (f *fakePublisher) Publish(_ context.Context, channel string, p Presentation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.published = append(f.published, p)
	return fmt.Sprintf("%s/%d", channel, f.seq), nil
}

func (f *fakePublisher) Update(_ context.Context, _, ref string, p Presentation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]Presentation{}
	}
	f.updates[ref] = p
	return nil
}

func (f *fakePublisher) Notify(_ context.Context, channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notes = append(f.notes, note{channel, text})
	return nil
}

func (f *fakePublisher) notesCopy() []note {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]note(nil), f.notes...)
}

type fakeReporter struct{ calls int }

func (r *fakeReporter) EventReport(_ context.Context, ev *Event) (string, error) {
	r.calls++
	return "report for " + ev.Name, nil
}

type harness struct {
	clock   *trigger.ManualClock
	sched   *trigger.Scheduler
	persist Persister
	store   *Store
	pub     *fakePublisher
	rep     *fakeReporter
	bus     eventbus.Bus
	ctrl    *Controller
}

func syncDispatch(_ string, fn func(ctx context.Context)) { fn(context.Background()) }

func newHarness(t *testing.T, p Persister, at time.Time) *harness {
	t.Helper()
	h := &harness{
		clock:   trigger.NewManual(at),
		persist: p,
		pub:     &fakePublisher{},
		rep:     &fakeReporter{},
		bus:     eventbus.New(),
	}
	h.sched = trigger.New(trigger.WithClock(h.clock), trigger.WithDispatcher(syncDispatch))
	h.store = NewStore(p, logx.Nop())
	h.ctrl = NewController(Config{
		Roles: testRoles,
		DefaultComposition: map[string]int{
			"Tank": 2, "Regen Healer": 1, "Shield Healer": 1,
			"Melee DPS": 2, "Ranged DPS": 1, "Caster DPS": 1, "Flex": 0,
		},
		Reminders:    testReminders,
		FetchDelay:   30 * time.Minute,
		Location:     time.UTC,
		HorizonWeeks: 4,
	}, Deps{
		Store:     h.store,
		Scheduler: h.sched,
		Publisher: h.pub,
		Reporter:  h.rep,
		Bus:       h.bus,
	})
	return h
}

func (h *harness) advance(d time.Duration) {
	h.sched.RunDue(h.clock.Advance(d))
}

func pendingLabels(s *trigger.Scheduler) []string {
	var out []string
	for _, tr := range s.Pending() {
		if tr.Kind == trigger.KindFetch {
			out = append(out, "fetch")
			continue
		}
		out = append(out, tr.Label)
	}
	return out
}

func TestCreateRegistersOnlyFutureReminders(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)

	ev, err := h.ctrl.Create(context.Background(), CreateSpec{
		Name:        "Savage",
		ScheduledAt: now0.Add(90 * time.Minute),
		Channel:     "100",
	})
	require.NoError(t, err)

	pending := h.sched.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, "1 hour", pending[0].Label)
	assert.Equal(t, now0.Add(30*time.Minute), pending[0].FiresAt)
	assert.Equal(t, trigger.KindFetch, pending[1].Kind)
	assert.Equal(t, ev.ScheduledAt.Add(30*time.Minute), pending[1].FiresAt)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()

	tests := []struct {
		name string
		spec CreateSpec
	}{
		{"missing name", CreateSpec{ScheduledAt: now0.Add(time.Hour)}},
		{"missing time", CreateSpec{Name: "x"}},
		{"past time", CreateSpec{Name: "x", ScheduledAt: now0.Add(-time.Hour)}},
		{"unknown role", CreateSpec{Name: "x", ScheduledAt: now0.Add(time.Hour), Capacity: map[string]int{"Bard": 1}}},
		{"negative limit", CreateSpec{Name: "x", ScheduledAt: now0.Add(time.Hour), Capacity: map[string]int{"Tank": -1}}},
	}
	for _, tt := range tests {
		_, err := h.ctrl.Create(ctx, tt.spec)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve, tt.name)
	}
	assert.Equal(t, 0, h.store.Len())
}

func TestCreateUsesCustomComposition(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)

	ev, err := h.ctrl.Create(context.Background(), CreateSpec{
		Name:        "Farm",
		ScheduledAt: now0.Add(48 * time.Hour),
		Capacity:    map[string]int{"tank": 1, "Caster DPS": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Tank": 1, "Caster DPS": 3}, ev.Capacity)

	res, err := h.ctrl.Join(context.Background(), ev.ID, 1, "alice", "Melee DPS")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)
}

func TestCreatePublishRecordsOrigin(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()

	ev, err := h.ctrl.Create(ctx, CreateSpec{Name: "Savage", ScheduledAt: now0.Add(48 * time.Hour), Channel: "100", Publish: true})
	require.NoError(t, err)
	assert.Equal(t, "100", ev.OriginChannel)
	assert.Equal(t, "100/1", ev.OriginMessage)
	require.Len(t, h.pub.published, 1)
	assert.Contains(t, h.pub.published[0].Text, "New Raid Event!")

	_, err = h.ctrl.Join(ctx, ev.ID, 7, "alice", "Tank")
	require.NoError(t, err)
	upd, ok := h.pub.updates["100/1"]
	require.True(t, ok)
	assert.Contains(t, upd.Text, "Tank (1/2)</b>: alice")
}

func TestReminderFiresOnceAndMarksLabel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()

	ev, err := h.ctrl.Create(ctx, CreateSpec{Name: "Savage", ScheduledAt: now0.Add(90 * time.Minute), Channel: "100", GuideLink: "https://guide"})
	require.NoError(t, err)
	_, err = h.ctrl.Join(ctx, ev.ID, 7, "alice", "Tank")
	require.NoError(t, err)

	h.advance(31 * time.Minute)

	notes := h.pub.notesCopy()
	require.Len(t, notes, 1)
	assert.Equal(t, "100", notes[0].channel)
	assert.Contains(t, notes[0].text, "<b>1 hour Reminder</b> for Savage!")
	assert.Contains(t, notes[0].text, `tg://user?id=7`)
	assert.Contains(t, notes[0].text, "We are using this guide: https://guide")

	got, ok := h.store.Get(ev.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"1 hour"}, got.RemindersSent)

	// A duplicate firing of the same label is a no-op.
	h.ctrl.fireReminder(ctx, trigger.Trigger{EventID: ev.ID, Kind: trigger.KindReminder, Label: "1 hour"})
	assert.Len(t, h.pub.notesCopy(), 1)
}

func TestReminderForDeletedEventIsSkipped(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()

	h.ctrl.fireReminder(ctx, trigger.Trigger{EventID: "missing", Kind: trigger.KindReminder, Label: "1 hour"})
	h.ctrl.fireFetch(ctx, trigger.Trigger{EventID: "missing", Kind: trigger.KindFetch})
	assert.Empty(t, h.pub.notesCopy())
	assert.Equal(t, 0, h.rep.calls)
}

func TestFetchNotifiesReport(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)

	_, err := h.ctrl.Create(context.Background(), CreateSpec{Name: "Savage", ScheduledAt: now0.Add(10 * time.Minute), Channel: "100"})
	require.NoError(t, err)

	h.advance(41 * time.Minute)
	notes := h.pub.notesCopy()
	require.Len(t, notes, 1)
	assert.Equal(t, "report for Savage", notes[0].text)
	assert.Equal(t, 0, h.sched.Len())
}

func TestRecoveryDoesNotRefireSentReminders(t *testing.T) {
	t.Parallel()
	p := &MemoryPersister{}
	h := newHarness(t, p, now0)
	ctx := context.Background()

	ev, err := h.ctrl.Create(ctx, CreateSpec{Name: "Savage", ScheduledAt: now0.Add(25 * time.Hour), Channel: "100"})
	require.NoError(t, err)
	h.advance(61 * time.Minute)
	require.Len(t, h.pub.notesCopy(), 1)

	restarted := newHarness(t, p, h.clock.Now())
	events, triggers, err := restarted.ctrl.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, events)
	assert.Equal(t, 3, triggers)
	assert.Equal(t, []string{"3 hours", "1 hour", "fetch"}, pendingLabels(restarted.sched))

	got, ok := restarted.store.Get(ev.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"24 hours"}, got.RemindersSent)

	restarted.advance(30 * time.Hour)
	texts := restarted.pub.notesCopy()
	require.Len(t, texts, 3)
	assert.Contains(t, texts[0].text, "3 hours Reminder")
	assert.Contains(t, texts[1].text, "1 hour Reminder")
	assert.Equal(t, "report for Savage", texts[2].text)
}

func TestPersistFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()
	p := &MemoryPersister{}
	h := newHarness(t, p, now0)
	ctx := context.Background()

	ev, err := h.ctrl.Create(ctx, CreateSpec{Name: "Savage", ScheduledAt: now0.Add(48 * time.Hour)})
	require.NoError(t, err)

	p.SetFail(errors.New("disk full"))
	res, err := h.ctrl.Join(ctx, ev.ID, 1, "alice", "Tank")
	require.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, StatusRejected, res.Status)

	got, ok := h.store.Get(ev.ID)
	require.True(t, ok)
	assert.Empty(t, got.Participants)

	_, err = h.ctrl.Delete(ctx, ev.ID)
	require.ErrorIs(t, err, ErrPersist)
	_, ok = h.store.Get(ev.ID)
	assert.True(t, ok)

	p.SetFail(nil)
	res, err = h.ctrl.Join(ctx, ev.ID, 1, "alice", "Tank")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, res.Status)
}

func TestJoinMissingEvent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)

	res, err := h.ctrl.Join(context.Background(), "nope", 1, "alice", "Tank")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "Raid not found!", res.Message)
}

func TestCancelSignupPromotesAndPublishes(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()
	ch, unsub := h.bus.Subscribe(16, "raid.promoted")
	defer unsub()

	ev, err := h.ctrl.Create(ctx, CreateSpec{Name: "Savage", ScheduledAt: now0.Add(48 * time.Hour), Capacity: map[string]int{"Tank": 1}})
	require.NoError(t, err)
	_, _ = h.ctrl.Join(ctx, ev.ID, 1, "A", "Tank")
	_, _ = h.ctrl.Join(ctx, ev.ID, 2, "B", "Tank")

	res, err := h.ctrl.CancelSignup(ctx, ev.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, int64(2), res.Promoted.ParticipantID)

	select {
	case e := <-ch:
		d := e.Data.(eventbus.RaidData)
		assert.Equal(t, int64(2), d.Participant)
	default:
		t.Fatal("expected promotion event")
	}

	_, err = h.ctrl.CancelSignup(ctx, "nope", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDropsTriggersAndCancelsCard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()

	ev, err := h.ctrl.Create(ctx, CreateSpec{Name: "Savage", ScheduledAt: now0.Add(48 * time.Hour), Channel: "100", Publish: true})
	require.NoError(t, err)
	require.Equal(t, 4, h.sched.Len())

	_, err = h.ctrl.Delete(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, h.sched.Len())
	upd := h.pub.updates[ev.OriginMessage]
	assert.Equal(t, "CANCELLED: Savage", upd.Text)
	assert.True(t, upd.Closed)

	_, err = h.ctrl.Delete(ctx, ev.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpcomingAndPingTargets(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()

	late, err := h.ctrl.Create(ctx, CreateSpec{Name: "Late", ScheduledAt: now0.Add(72 * time.Hour), Category: "raid1"})
	require.NoError(t, err)
	early, err := h.ctrl.Create(ctx, CreateSpec{Name: "Early", ScheduledAt: now0.Add(2 * time.Hour), Category: "raid1"})
	require.NoError(t, err)
	_, err = h.ctrl.Create(ctx, CreateSpec{Name: "Other", ScheduledAt: now0.Add(3 * time.Hour), Category: "farm"})
	require.NoError(t, err)

	_, _ = h.ctrl.Join(ctx, late.ID, 1, "bob", "Tank")
	_, _ = h.ctrl.Join(ctx, early.ID, 1, "bob", "Tank")
	_, _ = h.ctrl.Join(ctx, early.ID, 2, "alice", "Caster DPS")

	up := h.ctrl.Upcoming()
	require.Len(t, up, 3)
	assert.Equal(t, "Early", up[0].Name)
	assert.Equal(t, "Late", up[2].Name)

	h.clock.Advance(2*time.Hour + time.Minute)
	assert.Len(t, h.ctrl.Upcoming(), 2)

	targets, events := h.ctrl.PingTargets("raid1")
	assert.Equal(t, 2, events)
	assert.Equal(t, []PingTarget{{ID: 2, Name: "alice"}, {ID: 1, Name: "bob"}}, targets)

	targets, events = h.ctrl.PingTargets("none")
	assert.Empty(t, targets)
	assert.Equal(t, 0, events)
}

func TestGenerateRecurring(t *testing.T) {
	t.Parallel()
	h := newHarness(t, &MemoryPersister{}, now0)
	ctx := context.Background()
	tpl := Template{ID: "raid1", Name: "Weekly Static Run", Days: []time.Weekday{time.Monday}, Hour: 20}

	n, err := h.ctrl.Generate(ctx, tpl, "100", false)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	evs := h.ctrl.Upcoming()
	require.Len(t, evs, 4)
	assert.Equal(t, "Weekly Static Run - Monday", evs[0].Name)
	assert.Equal(t, "Regular raid1 raid on Mondays", evs[0].Description)
	assert.Equal(t, "raid1", evs[0].Category)
	assert.Equal(t, 2, evs[0].Capacity["Tank"])
	assert.Equal(t, time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC), evs[0].ScheduledAt)
	for i := 1; i < len(evs); i++ {
		assert.Equal(t, 7*24*time.Hour, evs[i].ScheduledAt.Sub(evs[i-1].ScheduledAt))
	}

	n, err = h.ctrl.Generate(ctx, tpl, "100", true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 4, h.store.Len())
}

func TestStoreRoundTripThroughFileDriver(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	h := newHarness(t, NewTablePersister(st), now0)
	ev, err := h.ctrl.Create(ctx, CreateSpec{Name: "Savage", ScheduledAt: now0.Add(48 * time.Hour), Category: "raid1", GuideLink: "https://guide", Capacity: map[string]int{"Tank": 1}})
	require.NoError(t, err)
	_, _ = h.ctrl.Join(ctx, ev.ID, 1, "A", "Tank")
	_, _ = h.ctrl.Join(ctx, ev.ID, 2, "B", "Tank")

	before, ok := h.store.Get(ev.ID)
	require.True(t, ok)

	reloaded := NewStore(NewTablePersister(st), logx.Nop())
	n, err := reloaded.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	after, ok := reloaded.Get(ev.ID)
	require.True(t, ok)
	assert.Equal(t, before, after)
}
