// Package raid holds the raid lifecycle: the event registry, role rosters
// with waitlist promotion, timed reminders and post-event reports, and the
// recurring generator.
package raid

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("raid not found")
	// ErrPersist wraps failed snapshot writes. The mutation that caused it
	// was not committed.
	ErrPersist = errors.New("raid: persist failed")
)

// ValidationError is a caller mistake reported back as a message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

type Participant struct {
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

type WaitlistEntry struct {
	ParticipantID int64     `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Role          string    `json:"role"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Event is one scheduled raid.
//
// A participant id appears in at most one of Participants and Waitlist. For
// every role with a positive limit, the number of participants in that role
// never exceeds the limit. A zero limit means unbounded and hidden.
type Event struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	ScheduledAt   time.Time             `json:"scheduled_at"`
	Capacity      map[string]int        `json:"capacity_by_role"`
	Participants  map[int64]Participant `json:"participants"`
	Waitlist      []WaitlistEntry       `json:"waitlist"`
	RemindersSent []string              `json:"reminders_sent"`
	Category      string                `json:"category,omitempty"`
	GuideLink     string                `json:"guide_link,omitempty"`
	OriginChannel string                `json:"origin_channel,omitempty"`
	OriginMessage string                `json:"origin_message,omitempty"`
	CreatedBy     int64                 `json:"created_by,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

// NewID returns a time-ordered unique id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Capacity = make(map[string]int, len(e.Capacity))
	for k, v := range e.Capacity {
		cp.Capacity[k] = v
	}
	cp.Participants = make(map[int64]Participant, len(e.Participants))
	for k, v := range e.Participants {
		cp.Participants[k] = v
	}
	cp.Waitlist = slices.Clone(e.Waitlist)
	cp.RemindersSent = slices.Clone(e.RemindersSent)
	return &cp
}

// normalize makes nil collections empty so round trips compare equal.
func (e *Event) normalize() {
	if e.Capacity == nil {
		e.Capacity = map[string]int{}
	}
	if e.Participants == nil {
		e.Participants = map[int64]Participant{}
	}
	if e.Waitlist == nil {
		e.Waitlist = []WaitlistEntry{}
	}
	if e.RemindersSent == nil {
		e.RemindersSent = []string{}
	}
	e.ScheduledAt = e.ScheduledAt.UTC()
}

func (e *Event) HasReminder(label string) bool {
	return slices.Contains(e.RemindersSent, label)
}

// RoleCount counts participants holding role.
func (e *Event) RoleCount(role string) int {
	n := 0
	for _, p := range e.Participants {
		if p.Role == role {
			n++
		}
	}
	return n
}

func (e *Event) waitlistIndex(pid int64) int {
	for i, w := range e.Waitlist {
		if w.ParticipantID == pid {
			return i
		}
	}
	return -1
}
