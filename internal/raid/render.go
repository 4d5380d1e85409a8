package raid

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

const timeLayout = "Mon, 02 Jan 2006 15:04 MST"

// Presentation is the rendered form of an event. Text is HTML.
type Presentation struct {
	EventID string
	Text    string
	// JoinRoles are the roles offered as signup choices, in display order.
	JoinRoles []string
	// Closed presentations carry no signup controls.
	Closed bool
}

type RenderOptions struct {
	Location *time.Location
	Roles    *RoleSet
	// Mention formats a participant reference. Defaults to a tg://user link.
	Mention func(id int64, name string) string
}

func (o RenderOptions) loc() *time.Location {
	if o.Location != nil {
		return o.Location
	}
	return time.UTC
}

func (o RenderOptions) roles() *RoleSet {
	if o.Roles != nil {
		return o.Roles
	}
	return NewRoleSet(nil)
}

func (o RenderOptions) mention(id int64, name string) string {
	if o.Mention != nil {
		return o.Mention(id, name)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, id, html.EscapeString(name))
}

// Participant renders a mention of id.
func (o RenderOptions) Participant(id int64, name string) string {
	return o.mention(id, name)
}

// FormatTime renders t in the configured location.
func (o RenderOptions) FormatTime(t time.Time) string {
	return t.In(o.loc()).Format(timeLayout)
}

// Render is pure: equal events render to equal presentations.
func Render(ev *Event, opts RenderOptions) Presentation {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(ev.Name))
	fmt.Fprintf(&b, "🕒 %s\n", opts.FormatTime(ev.ScheduledAt))
	if ev.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", html.EscapeString(ev.Description))
	}
	if ev.GuideLink != "" {
		fmt.Fprintf(&b, "\n<b>Guide:</b> %s\n", html.EscapeString(ev.GuideLink))
	}

	byRole := map[string][]string{}
	for _, p := range ev.Participants {
		byRole[p.Role] = append(byRole[p.Role], p.DisplayName)
	}

	var join []string
	b.WriteString("\n")
	for _, role := range opts.roles().Ordered(ev.Capacity) {
		limit := ev.Capacity[role]
		if limit <= 0 {
			continue
		}
		join = append(join, role)
		names := byRole[role]
		sort.Strings(names)
		list := "None"
		if len(names) > 0 {
			esc := make([]string, len(names))
			for i, n := range names {
				esc[i] = html.EscapeString(n)
			}
			list = strings.Join(esc, ", ")
		}
		fmt.Fprintf(&b, "<b>%s (%d/%d)</b>: %s\n", html.EscapeString(role), len(names), limit, list)
	}

	if len(ev.Waitlist) > 0 {
		b.WriteString("\n<b>Waitlist</b>\n")
		for _, w := range ev.Waitlist {
			fmt.Fprintf(&b, "%s (%s)\n", html.EscapeString(w.DisplayName), html.EscapeString(w.Role))
		}
	}

	category := ev.Category
	if category == "" {
		category = "-"
	}
	fmt.Fprintf(&b, "\n<i>Raid ID: %s | Type: %s</i>", ev.ID, html.EscapeString(category))

	return Presentation{EventID: ev.ID, Text: b.String(), JoinRoles: join}
}

// RenderReminder mentions every participant, ordered by display name then id.
func RenderReminder(ev *Event, label string, opts RenderOptions) string {
	type entry struct {
		id   int64
		name string
	}
	list := make([]entry, 0, len(ev.Participants))
	for id, p := range ev.Participants {
		list = append(list, entry{id, p.DisplayName})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].name != list[j].name {
			return list[i].name < list[j].name
		}
		return list[i].id < list[j].id
	})
	mentions := make([]string, len(list))
	for i, e := range list {
		mentions[i] = opts.mention(e.id, e.name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s Reminder</b> for %s! %s", html.EscapeString(label), html.EscapeString(ev.Name), strings.Join(mentions, " "))
	if ev.GuideLink != "" {
		fmt.Fprintf(&b, "\n\nDon't forget to study. We are using this guide: %s", html.EscapeString(ev.GuideLink))
	}
	return strings.TrimRight(b.String(), " ")
}

func RenderCancelled(ev *Event) Presentation {
	return Presentation{
		EventID: ev.ID,
		Text:    "CANCELLED: " + html.EscapeString(ev.Name),
		Closed:  true,
	}
}

// RenderAnnouncement prefixes the event card for a fresh post.
func RenderAnnouncement(ev *Event, opts RenderOptions) Presentation {
	p := Render(ev, opts)
	p.Text = "<b>New Raid Event!</b>\n\n" + p.Text
	return p
}

// ListLine is one row of the upcoming list.
func ListLine(ev *Event, opts RenderOptions) string {
	prefix := ""
	if ev.Category != "" {
		prefix = "[" + html.EscapeString(ev.Category) + "] "
	}
	return fmt.Sprintf("%s%s (ID: <code>%s</code>) - %s - %d signed up",
		prefix, html.EscapeString(ev.Name), ev.ID, opts.FormatTime(ev.ScheduledAt), len(ev.Participants))
}
