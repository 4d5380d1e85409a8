package raid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"raidbot/internal/metrics"
	logx "raidbot/pkg/logx"
)

// Persister saves and loads the whole events table.
type Persister interface {
	LoadEvents(ctx context.Context) ([]*Event, error)
	SaveEvents(ctx context.Context, events []*Event) error
}

// Store is the authoritative in-memory event table.
//
// Mutations are serialized per event id and copy-on-write: the callback works
// on a clone, the full table is persisted with the clone in place, and only
// then does the clone replace the committed event. A failed write leaves the
// committed state untouched.
type Store struct {
	persist Persister
	log     logx.Logger

	mu     sync.RWMutex
	events map[string]*Event

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// saveMu orders snapshot writes with commits.
	saveMu sync.Mutex
}

func NewStore(p Persister, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		persist: p,
		log:     log,
		events:  map[string]*Event{},
		locks:   map[string]*sync.Mutex{},
	}
}

// Load replaces the in-memory table with the persisted one.
func (s *Store) Load(ctx context.Context) (int, error) {
	evs, err := s.persist.LoadEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("load events: %w", err)
	}
	m := make(map[string]*Event, len(evs))
	for _, ev := range evs {
		if ev == nil || ev.ID == "" {
			continue
		}
		ev.normalize()
		m[ev.ID] = ev
	}
	s.mu.Lock()
	s.events = m
	s.mu.Unlock()
	metrics.EventsActive.Set(float64(len(m)))
	return len(m), nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) Get(id string) (*Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, false
	}
	return ev.Clone(), true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// List returns copies of all events ordered by time, then id.
func (s *Store) List() []*Event {
	s.mu.RLock()
	out := make([]*Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Clone())
	}
	s.mu.RUnlock()
	sortEvents(out)
	return out
}

// Upcoming returns events scheduled strictly after now.
func (s *Store) Upcoming(now time.Time) []*Event {
	all := s.List()
	out := all[:0]
	for _, ev := range all {
		if ev.ScheduledAt.After(now) {
			out = append(out, ev)
		}
	}
	return out
}

func sortEvents(evs []*Event) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].ScheduledAt.Equal(evs[j].ScheduledAt) {
			return evs[i].ScheduledAt.Before(evs[j].ScheduledAt)
		}
		return evs[i].ID < evs[j].ID
	})
}

// commit persists the table with id replaced by ev (or removed when ev is
// nil) and then applies the change in memory.
func (s *Store) commit(ctx context.Context, id string, ev *Event) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	snap := make([]*Event, 0, len(s.events)+1)
	for k, e := range s.events {
		if k != id {
			snap = append(snap, e)
		}
	}
	s.mu.RUnlock()
	if ev != nil {
		snap = append(snap, ev)
	}
	sortEvents(snap)

	if err := s.persist.SaveEvents(ctx, snap); err != nil {
		metrics.PersistFailures.WithLabelValues("events").Inc()
		s.log.Error("persist events failed", logx.String("event_id", id), logx.Err(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.mu.Lock()
	if ev != nil {
		s.events[id] = ev
	} else {
		delete(s.events, id)
	}
	n := len(s.events)
	s.mu.Unlock()
	metrics.EventsActive.Set(float64(n))
	return nil
}

// Insert adds a new event and persists the table.
func (s *Store) Insert(ctx context.Context, ev *Event) error {
	if ev == nil || ev.ID == "" {
		return errors.New("raid: event id is required")
	}
	l := s.lockFor(ev.ID)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	_, exists := s.events[ev.ID]
	s.mu.RUnlock()
	if exists {
		return fmt.Errorf("raid: duplicate event id %s", ev.ID)
	}
	cp := ev.Clone()
	cp.normalize()
	return s.commit(ctx, cp.ID, cp)
}

// Mutate runs fn on a copy of event id. When fn reports a change the copy is
// persisted and committed. The returned event is a copy of the resulting
// state.
func (s *Store) Mutate(ctx context.Context, id string, fn func(ev *Event) (changed bool, err error)) (*Event, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	cur, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	cp := cur.Clone()
	changed, err := fn(cp)
	if err != nil {
		return nil, err
	}
	if !changed {
		return cp, nil
	}
	if err := s.commit(ctx, id, cp); err != nil {
		return nil, err
	}
	return cp.Clone(), nil
}

// Delete removes event id and persists the table.
func (s *Store) Delete(ctx context.Context, id string) (*Event, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.RLock()
	cur, ok := s.events[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if err := s.commit(ctx, id, nil); err != nil {
		return nil, err
	}

	s.locksMu.Lock()
	delete(s.locks, id)
	s.locksMu.Unlock()
	return cur.Clone(), nil
}
