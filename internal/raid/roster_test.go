package raid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRoles = NewRoleSet([]string{"Tank", "Regen Healer", "Shield Healer", "Melee DPS", "Ranged DPS", "Caster DPS", "Flex"})

func newEvent(capacity map[string]int) *Event {
	ev := &Event{ID: "ev1", Name: "Savage", Capacity: capacity}
	ev.normalize()
	return ev
}

func fixedRoster(t time.Time) Roster {
	return Roster{Roles: testRoles, Now: func() time.Time { return t }}
}

func TestSignUpOutcomes(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		setup  func(ev *Event, r Roster)
		pid    int64
		role   string
		want   Status
		msg    string
		inRole string
	}{
		{
			name: "accepted",
			pid:  1, role: "Tank",
			want: StatusAccepted, msg: "You've signed up for Savage as Tank", inRole: "Tank",
		},
		{
			name: "role is case insensitive",
			pid:  1, role: "  melee dps ",
			want: StatusAccepted, inRole: "Melee DPS",
		},
		{
			name: "unknown role",
			pid:  1, role: "Bard",
			want: StatusRejected, msg: "Invalid role. Please choose from: " + testRoles.String(),
		},
		{
			name:  "already signed up",
			setup: func(ev *Event, r Roster) { r.SignUp(ev, 1, "alice", "Tank") },
			pid:   1, role: "Caster DPS",
			want: StatusRejected, msg: "You're already signed up as Tank",
		},
		{
			name: "full role goes to waitlist",
			setup: func(ev *Event, r Roster) {
				r.SignUp(ev, 1, "alice", "Ranged DPS")
			},
			pid: 2, role: "Ranged DPS",
			want: StatusWaitlisted, msg: "Role Ranged DPS is full. You've been added to the waitlist.",
		},
		{
			name: "waitlisted cannot sign up again",
			setup: func(ev *Event, r Roster) {
				r.SignUp(ev, 1, "alice", "Ranged DPS")
				r.SignUp(ev, 2, "bob", "Ranged DPS")
			},
			pid: 2, role: "Tank",
			want: StatusRejected, msg: "You're already on the waitlist as Ranged DPS",
		},
		{
			name: "zero limit is unbounded",
			setup: func(ev *Event, r Roster) {
				for i := int64(10); i < 20; i++ {
					r.SignUp(ev, i, "flex", "Flex")
				}
			},
			pid: 1, role: "Flex",
			want: StatusAccepted, inRole: "Flex",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := newEvent(map[string]int{"Tank": 2, "Ranged DPS": 1, "Flex": 0})
			r := fixedRoster(now)
			if tt.setup != nil {
				tt.setup(ev, r)
			}
			res := r.SignUp(ev, tt.pid, "tester", tt.role)
			assert.Equal(t, tt.want, res.Status)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, res.Message)
			}
			if tt.inRole != "" {
				require.Contains(t, ev.Participants, tt.pid)
				assert.Equal(t, tt.inRole, ev.Participants[tt.pid].Role)
				assert.Equal(t, now, ev.Participants[tt.pid].JoinedAt)
			}
		})
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	t.Parallel()
	ev := newEvent(map[string]int{"Tank": 2, "Caster DPS": 1})
	r := fixedRoster(time.Now())
	for i := int64(1); i <= 20; i++ {
		role := "Tank"
		if i%2 == 0 {
			role = "Caster DPS"
		}
		r.SignUp(ev, i, "p", role)
		assert.LessOrEqual(t, ev.RoleCount("Tank"), 2)
		assert.LessOrEqual(t, ev.RoleCount("Caster DPS"), 1)
	}
	assert.Len(t, ev.Participants, 3)
	assert.Len(t, ev.Waitlist, 17)
}

func TestTankScenario(t *testing.T) {
	t.Parallel()
	ev := newEvent(map[string]int{"Tank": 2})
	r := fixedRoster(time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, StatusAccepted, r.SignUp(ev, 1, "A", "Tank").Status)
	assert.Equal(t, StatusAccepted, r.SignUp(ev, 2, "B", "Tank").Status)
	assert.Equal(t, StatusWaitlisted, r.SignUp(ev, 3, "C", "Tank").Status)

	later := time.Date(2025, 3, 5, 13, 0, 0, 0, time.UTC)
	r.Now = func() time.Time { return later }
	res := r.Cancel(ev, 1)
	require.True(t, res.Removed)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, int64(3), res.Promoted.ParticipantID)

	assert.NotContains(t, ev.Participants, int64(1))
	assert.Contains(t, ev.Participants, int64(2))
	require.Contains(t, ev.Participants, int64(3))
	assert.Equal(t, later, ev.Participants[3].JoinedAt)
	assert.Empty(t, ev.Waitlist)
}

func TestPromotionIsFIFOWithinRole(t *testing.T) {
	t.Parallel()
	ev := newEvent(map[string]int{"Tank": 1, "Melee DPS": 1})
	r := fixedRoster(time.Now())

	r.SignUp(ev, 1, "t1", "Tank")
	r.SignUp(ev, 2, "m1", "Melee DPS")
	r.SignUp(ev, 3, "m2", "Melee DPS")
	r.SignUp(ev, 4, "t2", "Tank")
	r.SignUp(ev, 5, "t3", "Tank")

	res := r.Cancel(ev, 1)
	require.NotNil(t, res.Promoted)
	assert.Equal(t, int64(4), res.Promoted.ParticipantID)

	require.Len(t, ev.Waitlist, 2)
	assert.Equal(t, int64(3), ev.Waitlist[0].ParticipantID)
	assert.Equal(t, int64(5), ev.Waitlist[1].ParticipantID)
}

func TestCancelWithoutMatchingWaitlist(t *testing.T) {
	t.Parallel()
	ev := newEvent(map[string]int{"Tank": 1, "Melee DPS": 1})
	r := fixedRoster(time.Now())

	r.SignUp(ev, 1, "t1", "Tank")
	r.SignUp(ev, 2, "m1", "Melee DPS")
	r.SignUp(ev, 3, "m2", "Melee DPS")
	before := append([]WaitlistEntry(nil), ev.Waitlist...)

	res := r.Cancel(ev, 1)
	assert.True(t, res.Removed)
	assert.Nil(t, res.Promoted)
	assert.Equal(t, before, ev.Waitlist)
	assert.Equal(t, 0, ev.RoleCount("Tank"))
}

func TestCancelNotSignedUp(t *testing.T) {
	t.Parallel()
	ev := newEvent(map[string]int{"Tank": 1})
	r := fixedRoster(time.Now())
	r.SignUp(ev, 1, "t1", "Tank")
	r.SignUp(ev, 2, "t2", "Tank")

	res := r.Cancel(ev, 2)
	assert.False(t, res.Removed)
	assert.Equal(t, "You are not signed up for this raid.", res.Message())
	assert.Len(t, ev.Waitlist, 1)
}

func TestParticipantInAtMostOneCollection(t *testing.T) {
	t.Parallel()
	ev := newEvent(map[string]int{"Tank": 1, "Caster DPS": 1})
	r := fixedRoster(time.Now())
	for round := 0; round < 3; round++ {
		for pid := int64(1); pid <= 4; pid++ {
			r.SignUp(ev, pid, "p", "Tank")
			r.SignUp(ev, pid, "p", "Caster DPS")
		}
		r.Cancel(ev, int64(round+1))
	}
	for _, w := range ev.Waitlist {
		assert.NotContains(t, ev.Participants, w.ParticipantID)
	}
}
