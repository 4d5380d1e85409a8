package raid

import (
	"fmt"
	"slices"
	"time"
)

type Status string

const (
	StatusAccepted   Status = "accepted"
	StatusWaitlisted Status = "waitlisted"
	StatusRejected   Status = "rejected"
)

// Result is the outcome of a roster operation. Message is meant for the
// participant.
type Result struct {
	Status  Status
	Message string
	Role    string
}

// Changed reports whether the roster was mutated.
func (r Result) Changed() bool { return r.Status != StatusRejected }

func rejected(format string, args ...any) Result {
	return Result{Status: StatusRejected, Message: fmt.Sprintf(format, args...)}
}

// CancelResult describes a cancellation. Promoted is set when a waitlist
// entry took the freed slot.
type CancelResult struct {
	Removed  bool
	Role     string
	Promoted *WaitlistEntry
}

func (c CancelResult) Message() string {
	if c.Removed {
		return "You have been removed from the raid."
	}
	return "You are not signed up for this raid."
}

// Roster applies signup rules to an event in place. It never persists;
// callers run it inside Store.Mutate.
type Roster struct {
	Roles *RoleSet
	Now   func() time.Time
}

func (r Roster) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// SignUp adds pid to ev in role, or to the waitlist when the role is full.
func (r Roster) SignUp(ev *Event, pid int64, displayName, role string) Result {
	canon, ok := r.Roles.Canonical(role)
	if !ok {
		return rejected("Invalid role. Please choose from: %s", r.Roles)
	}
	if p, ok := ev.Participants[pid]; ok {
		return rejected("You're already signed up as %s", p.Role)
	}
	if i := ev.waitlistIndex(pid); i >= 0 {
		return rejected("You're already on the waitlist as %s", ev.Waitlist[i].Role)
	}

	now := r.now()
	if limit := ev.Capacity[canon]; limit > 0 && ev.RoleCount(canon) >= limit {
		ev.Waitlist = append(ev.Waitlist, WaitlistEntry{
			ParticipantID: pid,
			DisplayName:   displayName,
			Role:          canon,
			JoinedAt:      now,
		})
		return Result{
			Status:  StatusWaitlisted,
			Role:    canon,
			Message: fmt.Sprintf("Role %s is full. You've been added to the waitlist.", canon),
		}
	}

	if ev.Participants == nil {
		ev.Participants = map[int64]Participant{}
	}
	ev.Participants[pid] = Participant{DisplayName: displayName, Role: canon, JoinedAt: now}
	return Result{
		Status:  StatusAccepted,
		Role:    canon,
		Message: fmt.Sprintf("You've signed up for %s as %s", ev.Name, canon),
	}
}

// Cancel removes pid from the participants and promotes the earliest
// waitlist entry of the same role.
func (r Roster) Cancel(ev *Event, pid int64) CancelResult {
	p, ok := ev.Participants[pid]
	if !ok {
		return CancelResult{}
	}
	delete(ev.Participants, pid)
	res := CancelResult{Removed: true, Role: p.Role}

	for i, w := range ev.Waitlist {
		if w.Role != p.Role {
			continue
		}
		ev.Waitlist = slices.Delete(ev.Waitlist, i, i+1)
		w.JoinedAt = r.now()
		ev.Participants[w.ParticipantID] = Participant{DisplayName: w.DisplayName, Role: w.Role, JoinedAt: w.JoinedAt}
		res.Promoted = &w
		break
	}
	return res
}
