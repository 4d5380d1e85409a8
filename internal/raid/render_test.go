package raid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sampleEvent() *Event {
	ev := &Event{
		ID:          "0195",
		Name:        "Savage <Week 1>",
		Description: "Prog night",
		ScheduledAt: time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC),
		Capacity:    map[string]int{"Tank": 2, "Caster DPS": 1, "Flex": 0},
		Category:    "raid1",
		GuideLink:   "https://guide",
		Participants: map[int64]Participant{
			2: {DisplayName: "zed", Role: "Tank"},
			1: {DisplayName: "amy", Role: "Tank"},
			3: {DisplayName: "flexer", Role: "Flex"},
		},
		Waitlist: []WaitlistEntry{{ParticipantID: 4, DisplayName: "late", Role: "Tank"}},
	}
	ev.normalize()
	return ev
}

func TestRenderCard(t *testing.T) {
	t.Parallel()
	p := Render(sampleEvent(), RenderOptions{Roles: testRoles})

	assert.Equal(t, "0195", p.EventID)
	assert.Equal(t, []string{"Tank", "Caster DPS"}, p.JoinRoles)
	assert.False(t, p.Closed)

	want := []string{
		"<b>Savage &lt;Week 1&gt;</b>",
		"🕒 Mon, 10 Mar 2025 20:00 UTC",
		"Prog night",
		"<b>Guide:</b> https://guide",
		"<b>Tank (2/2)</b>: amy, zed",
		"<b>Caster DPS (0/1)</b>: None",
		"<b>Waitlist</b>\nlate (Tank)",
		"<i>Raid ID: 0195 | Type: raid1</i>",
	}
	for _, w := range want {
		assert.Contains(t, p.Text, w)
	}
	assert.NotContains(t, p.Text, "Flex")
	assert.Less(t, strings.Index(p.Text, "Tank ("), strings.Index(p.Text, "Caster DPS ("))
}

func TestRenderIsDeterministic(t *testing.T) {
	t.Parallel()
	opts := RenderOptions{Roles: testRoles, Location: time.FixedZone("CET", 3600)}
	first := Render(sampleEvent(), opts)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Render(sampleEvent(), opts))
	}
	assert.Contains(t, first.Text, "21:00 CET")
}

func TestRenderReminder(t *testing.T) {
	t.Parallel()
	got := RenderReminder(sampleEvent(), "3 hours", RenderOptions{
		Mention: func(id int64, name string) string { return "@" + name },
	})
	assert.Equal(t, "<b>3 hours Reminder</b> for Savage &lt;Week 1&gt;! @amy @flexer @zed\n\nDon't forget to study. We are using this guide: https://guide", got)

	ev := sampleEvent()
	ev.Participants = map[int64]Participant{}
	ev.GuideLink = ""
	assert.Equal(t, "<b>1 hour Reminder</b> for Savage &lt;Week 1&gt;!", RenderReminder(ev, "1 hour", RenderOptions{}))
}

func TestListLine(t *testing.T) {
	t.Parallel()
	got := ListLine(sampleEvent(), RenderOptions{})
	assert.Equal(t, "[raid1] Savage &lt;Week 1&gt; (ID: <code>0195</code>) - Mon, 10 Mar 2025 20:00 UTC - 3 signed up", got)
}
