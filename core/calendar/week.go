package calendar

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var errInvalidWeekday = errors.New("invalid day of week")

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses an english day name ("monday", "Mon", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if wd, ok := weekdays[s]; ok {
		return wd, nil
	}
	if len(s) >= 3 {
		for name, wd := range weekdays {
			if strings.HasPrefix(name, s) {
				return wd, nil
			}
		}
	}
	return 0, errInvalidWeekday
}

// mondayOffset maps Sunday to 6 and Monday to 0.
func mondayOffset(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

// StartOfWeek returns the Monday at 00:00 of the week t falls in, in t's location.
func StartOfWeek(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d-mondayOffset(t.Weekday()), 0, 0, 0, 0, t.Location())
}

// Window is the half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// WeekOf returns the Monday-aligned week containing t.
func WeekOf(t time.Time) Window {
	start := StartOfWeek(t)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

func (w Window) IsValid() bool {
	return w.End.After(w.Start)
}

// Overlaps reports whether [start, end) intersects the window.
func (w Window) Overlaps(start, end time.Time) bool {
	return overlaps(start, end, w.Start, w.End)
}

// Days returns midnight of each calendar day intersecting the window, in loc.
func (w Window) Days(loc *time.Location) []time.Time {
	start := w.Start.In(loc)
	y, m, d := start.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	var days []time.Time
	for day.Before(w.End) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}

// overlaps is the half-open interval test.
func overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

func formatDate(t time.Time) string {
	return t.Format(core.DateLayout)
}
