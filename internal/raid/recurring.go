package raid

import (
	"fmt"
	"sort"
	"time"
)

// Template is a recurring raid slot: a set of weekdays at one local time.
type Template struct {
	ID     string
	Name   string
	Days   []time.Weekday
	Hour   int
	Minute int
}

// Occurrences lists the template's slots over weeks starting from the
// current local week, keeping only times strictly after now. Results are UTC
// and ordered.
func (t Template) Occurrences(now time.Time, loc *time.Location, weeks int) []time.Time {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	var out []time.Time
	for w := 0; w < weeks; w++ {
		for _, d := range t.Days {
			add := (int(d)-int(today.Weekday())+7)%7 + 7*w
			day := today.AddDate(0, 0, add)
			at := time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
			if at.After(now) {
				out = append(out, at.UTC())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (t Template) occurrenceName(day time.Weekday) string {
	return fmt.Sprintf("%s - %s", t.Name, day)
}

func (t Template) occurrenceDescription(day time.Weekday) string {
	return fmt.Sprintf("Regular %s raid on %ss", t.ID, day)
}
