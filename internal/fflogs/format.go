package fflogs

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// FormatDuration renders h:mm:ss, or m:ss under an hour.
func FormatDuration(d time.Duration) string {
	total := int64(d / time.Second)
	if total < 0 {
		total = 0
	}
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatRecent renders a character's recent reports as HTML.
func FormatRecent(logs CharacterLogs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Recent Logs for %s</b>\n", html.EscapeString(logs.Name))
	fmt.Fprintf(&b, "Server: %s (%s)\n", html.EscapeString(logs.Server), html.EscapeString(logs.Region))
	if len(logs.Reports) == 0 {
		b.WriteString("\nNo recent raid logs found for this character.")
		return b.String()
	}
	for _, r := range logs.Reports {
		fmt.Fprintf(&b, "\n<b>%s - %s</b>\n", html.EscapeString(r.Title), r.Start.Format("2006-01-02"))
		fmt.Fprintf(&b, "Zone: %s\n", html.EscapeString(r.Zone))
		fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(r.Duration))
		fmt.Fprintf(&b, "Pulls: %d | Kills: %d", r.Pulls, r.Kills)
		if r.HasBestPull {
			fmt.Fprintf(&b, " | Best Pull: %.1f%%", r.BestPull)
		}
		fmt.Fprintf(&b, "\n<a href=\"%s\">View Log</a>\n", html.EscapeString(r.URL))
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeZones(b *strings.Builder, st StaticStats) {
	if len(st.Zones) == 0 {
		b.WriteString("\nNo recent raid logs found for participants.\n")
	}
	for _, z := range st.Zones {
		fmt.Fprintf(b, "\n<b>%s</b>\n", html.EscapeString(z.Zone))
		fmt.Fprintf(b, "Pulls: %d | Kills: %d | Success Rate: %s\n", z.Pulls, z.Kills, z.KillRatio())
		fmt.Fprintf(b, "Best Pull: %.1f%%\n", z.BestPull)
	}
	if len(st.Members) > 0 {
		b.WriteString("\n<b>Participants with FFLogs Data</b>\n")
		for _, m := range st.Members {
			fmt.Fprintf(b, "%s (%s) - %s\n", html.EscapeString(m.Character), html.EscapeString(m.Server), html.EscapeString(m.Role))
		}
	}
}

// FormatStatic renders the on-demand static performance view.
func FormatStatic(st StaticStats, raidDate string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Static Performance: %s</b>\n", html.EscapeString(st.Raid))
	fmt.Fprintf(&b, "Raid Date: %s\n", html.EscapeString(raidDate))
	writeZones(&b, st)
	return strings.TrimRight(b.String(), "\n")
}

// FormatEventReport renders the automatic post-raid report.
func FormatEventReport(st StaticStats) string {
	var b strings.Builder
	b.WriteString("<b>Raid Performance Report</b>\n")
	fmt.Fprintf(&b, "<b>Raid Performance: %s</b>\n", html.EscapeString(st.Raid))
	b.WriteString("Here's the static performance report based on recent logs.\n")
	writeZones(&b, st)
	return strings.TrimRight(b.String(), "\n")
}
