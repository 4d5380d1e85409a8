package trigger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu    sync.Mutex
	fired []Trigger
}

func (r *recorder) cb(_ context.Context, t Trigger) {
	r.mu.Lock()
	r.fired = append(r.fired, t)
	r.mu.Unlock()
}

func (r *recorder) labels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.fired))
	for _, t := range r.fired {
		out = append(out, t.Label)
	}
	return out
}

func syncDispatch(_ string, fn func(ctx context.Context)) { fn(context.Background()) }

func newTestScheduler(clock Clock) *Scheduler {
	return New(WithClock(clock), WithDispatcher(syncDispatch))
}

func TestScheduleAtRejectsPastAndNow(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(NewManual(t0))
	rec := &recorder{}

	assert.False(t, s.ScheduleAt(Trigger{EventID: "e", FiresAt: t0, Label: "now"}, rec.cb))
	assert.False(t, s.ScheduleAt(Trigger{EventID: "e", FiresAt: t0.Add(-time.Minute), Label: "past"}, rec.cb))
	assert.True(t, s.ScheduleAt(Trigger{EventID: "e", FiresAt: t0.Add(time.Minute), Label: "future"}, rec.cb))
	assert.Equal(t, 1, s.Len())
}

func TestRunDueFiresInOrder(t *testing.T) {
	t.Parallel()
	clock := NewManual(t0)
	s := newTestScheduler(clock)
	rec := &recorder{}

	s.ScheduleAt(Trigger{EventID: "e", Kind: KindReminder, FiresAt: t0.Add(3 * time.Hour), Label: "c"}, rec.cb)
	s.ScheduleAt(Trigger{EventID: "e", Kind: KindReminder, FiresAt: t0.Add(1 * time.Hour), Label: "a"}, rec.cb)
	s.ScheduleAt(Trigger{EventID: "e", Kind: KindReminder, FiresAt: t0.Add(2 * time.Hour), Label: "b"}, rec.cb)

	assert.Equal(t, 0, s.RunDue(clock.Advance(30*time.Minute)))
	assert.Equal(t, 2, s.RunDue(clock.Advance(90*time.Minute)))
	assert.Equal(t, []string{"a", "b"}, rec.labels())
	assert.Equal(t, 1, s.RunDue(clock.Advance(time.Hour)))
	assert.Equal(t, []string{"a", "b", "c"}, rec.labels())
	assert.Equal(t, 0, s.Len())
}

func TestScheduleAtReplacesSameKey(t *testing.T) {
	t.Parallel()
	clock := NewManual(t0)
	s := newTestScheduler(clock)
	rec := &recorder{}

	tr := Trigger{EventID: "e", Kind: KindFetch, Label: "fetch", FiresAt: t0.Add(time.Hour)}
	s.ScheduleAt(tr, rec.cb)
	tr.FiresAt = t0.Add(2 * time.Hour)
	s.ScheduleAt(tr, rec.cb)
	require.Equal(t, 1, s.Len())

	s.RunDue(t0.Add(90 * time.Minute))
	assert.Empty(t, rec.labels())
	s.RunDue(t0.Add(2 * time.Hour))
	assert.Equal(t, []string{"fetch"}, rec.labels())
}

func TestDropEvent(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(NewManual(t0))
	rec := &recorder{}
	s.ScheduleAt(Trigger{EventID: "a", Kind: KindReminder, Label: "1 hour", FiresAt: t0.Add(time.Hour)}, rec.cb)
	s.ScheduleAt(Trigger{EventID: "a", Kind: KindFetch, Label: "fetch", FiresAt: t0.Add(time.Hour)}, rec.cb)
	s.ScheduleAt(Trigger{EventID: "b", Kind: KindReminder, Label: "1 hour", FiresAt: t0.Add(time.Hour)}, rec.cb)
	require.Equal(t, 3, s.Len())

	assert.Equal(t, 2, s.DropEvent("a"))
	assert.Equal(t, 0, s.DropEvent("a"))
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].EventID)

	s.RunDue(t0.Add(2 * time.Hour))
	assert.Len(t, rec.labels(), 1)
}

func TestRunFiresWithSystemClock(t *testing.T) {
	t.Parallel()
	done := make(chan Trigger, 1)
	s := New(WithPollInterval(10 * time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	ok := s.ScheduleAt(Trigger{EventID: "e", Kind: KindReminder, Label: "soon", FiresAt: time.Now().Add(20 * time.Millisecond)},
		func(_ context.Context, t Trigger) { done <- t })
	require.True(t, ok)

	select {
	case got := <-done:
		assert.Equal(t, "soon", got.Label)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not fire")
	}
}
