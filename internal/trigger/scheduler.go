package trigger

import (
	"container/heap"
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"raidbot/internal/metrics"
	logx "raidbot/pkg/logx"
)

type Kind string

const (
	KindReminder Kind = "reminder"
	KindFetch    Kind = "fetch"
)

// Trigger is a one-shot timed action tied to an event.
type Trigger struct {
	EventID string
	FiresAt time.Time
	Kind    Kind
	Label   string
}

// Key identifies a trigger slot. Scheduling the same key again replaces the
// pending one.
func (t Trigger) Key() string {
	return t.EventID + "|" + string(t.Kind) + "|" + t.Label
}

type Callback func(ctx context.Context, t Trigger)

// Dispatcher runs a fired callback as an independent unit of work. It must
// not block the scheduling loop.
type Dispatcher func(name string, fn func(ctx context.Context))

type item struct {
	t     Trigger
	cb    Callback
	index int
}

type queue []*item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].t.FiresAt.Equal(q[j].t.FiresAt) {
		return q[i].t.Key() < q[j].t.Key()
	}
	return q[i].t.FiresAt.Before(q[j].t.FiresAt)
}
func (q queue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *queue) Push(x any) {
	it := x.(*item)
	it.index = len(*q)
	*q = append(*q, it)
}
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

// Scheduler keeps pending triggers in a time-ordered heap polled by one loop.
type Scheduler struct {
	clock    Clock
	poll     time.Duration
	dispatch Dispatcher
	log      logx.Logger

	mu    sync.Mutex
	q     queue
	byKey map[string]*item
	wake  chan struct{}
}

type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithPollInterval caps how long the loop sleeps between checks.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.poll = d
		}
	}
}

func WithDispatcher(d Dispatcher) Option { return func(s *Scheduler) { s.dispatch = d } }

func WithLogger(l logx.Logger) Option { return func(s *Scheduler) { s.log = l } }

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock: NewSystem(),
		poll:  30 * time.Second,
		log:   logx.Nop(),
		byKey: map[string]*item{},
		wake:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.dispatch == nil {
		s.dispatch = s.goDispatch
	}
	return s
}

func (s *Scheduler) goDispatch(name string, fn func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("trigger callback panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		fn(context.Background())
	}()
}

func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// ScheduleAt registers cb to run once at t.FiresAt. It returns false and does
// nothing when FiresAt is not in the future.
func (s *Scheduler) ScheduleAt(t Trigger, cb Callback) bool {
	if cb == nil {
		return false
	}
	now := s.clock.Now()
	if !t.FiresAt.After(now) {
		metrics.TriggersSkipped.WithLabelValues("past").Inc()
		return false
	}
	t.FiresAt = t.FiresAt.UTC()

	s.mu.Lock()
	if it, ok := s.byKey[t.Key()]; ok {
		it.t = t
		it.cb = cb
		heap.Fix(&s.q, it.index)
	} else {
		it := &item{t: t, cb: cb}
		heap.Push(&s.q, it)
		s.byKey[t.Key()] = it
	}
	n := len(s.q)
	s.mu.Unlock()

	metrics.PendingTriggers.Set(float64(n))
	s.poke()
	return true
}

// DropEvent removes every pending trigger of eventID and returns how many
// were removed.
func (s *Scheduler) DropEvent(eventID string) int {
	s.mu.Lock()
	removed := 0
	for key, it := range s.byKey {
		if it.t.EventID != eventID {
			continue
		}
		heap.Remove(&s.q, it.index)
		delete(s.byKey, key)
		removed++
	}
	n := len(s.q)
	s.mu.Unlock()

	metrics.PendingTriggers.Set(float64(n))
	return removed
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.q)
}

// Pending returns a copy of the pending triggers ordered by firing time.
func (s *Scheduler) Pending() []Trigger {
	s.mu.Lock()
	out := make([]Trigger, 0, len(s.q))
	for _, it := range s.q {
		out = append(out, it.t)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].FiresAt.Equal(out[j].FiresAt) {
			return out[i].Key() < out[j].Key()
		}
		return out[i].FiresAt.Before(out[j].FiresAt)
	})
	return out
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// RunDue fires every trigger due at or before now and returns how many fired.
func (s *Scheduler) RunDue(now time.Time) int {
	s.mu.Lock()
	var due []*item
	for len(s.q) > 0 && !s.q[0].t.FiresAt.After(now) {
		it := heap.Pop(&s.q).(*item)
		delete(s.byKey, it.t.Key())
		due = append(due, it)
	}
	n := len(s.q)
	s.mu.Unlock()

	if len(due) == 0 {
		return 0
	}
	metrics.PendingTriggers.Set(float64(n))
	for _, it := range due {
		it := it
		metrics.TriggersFired.WithLabelValues(string(it.t.Kind)).Inc()
		s.log.Debug("trigger fired",
			logx.String("event_id", it.t.EventID),
			logx.String("kind", string(it.t.Kind)),
			logx.String("label", it.t.Label),
			logx.Duration("late", now.Sub(it.t.FiresAt)),
		)
		s.dispatch("trigger."+string(it.t.Kind), func(ctx context.Context) { it.cb(ctx, it.t) })
	}
	return len(due)
}

// next returns how long the loop may sleep.
func (s *Scheduler) next(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	wait := s.poll
	if len(s.q) > 0 {
		if d := s.q[0].t.FiresAt.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// Run drives the scheduler until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("trigger scheduler started", logx.Duration("poll", s.poll), logx.Int("pending", s.Len()))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("trigger scheduler stopped", logx.Int("pending", s.Len()))
			return nil
		case <-s.wake:
		case <-timer.C:
		}
		now := s.clock.Now()
		s.RunDue(now)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.next(now))
	}
}
