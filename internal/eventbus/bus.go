package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the raid engine and its delivery layer.
const (
	RaidCreated   = "raid.created"
	RaidDeleted   = "raid.deleted"
	RaidSignup    = "raid.signup"
	RaidCancelled = "raid.cancelled"
	RaidPromoted  = "raid.promoted"
	ReminderSent  = "reminder.sent"
	FetchDone     = "fetch.done"

	NotifySent   = "notifier.sent"
	NotifyFailed = "notifier.failed"
)

// Event is a lightweight in-memory signal.
//
// Publish never blocks. Slow subscribers drop events once their buffer is
// full.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// RaidData is the payload of raid.* and reminder.sent events.
type RaidData struct {
	EventID     string `json:"event_id"`
	Name        string `json:"name,omitempty"`
	Participant int64  `json:"participant,omitempty"`
	Role        string `json:"role,omitempty"`
	Label       string `json:"label,omitempty"`
}

type Bus interface {
	Publish(e Event)
	// Subscribe delivers events whose Type matches one of prefixes. No
	// prefixes means everything.
	Subscribe(buffer int, prefixes ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch       chan Event
	prefixes []string
}

func (s *sub) wants(typ string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(typ, p) {
			return true
		}
	}
	return false
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	targets := make([]chan Event, 0, len(b.subs))
	for _, s := range b.subs {
		if s.wants(e.Type) {
			targets = append(targets, s.ch)
		}
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		// A concurrent unsubscribe may close ch.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int, prefixes ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer), prefixes: append([]string(nil), prefixes...)}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, unsub
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
