package calendar

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	timeOfDayRegex = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

	errInvalidTimeOfDay = errors.New("time of day must be formatted as HH:MM")
)

// TimeOfDay is a wall clock time expressed in minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay parses a zero-padded "HH:MM" 24h string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeOfDayRegex.MatchString(s) {
		return 0, errInvalidTimeOfDay
	}
	h, _ := strconv.Atoi(s[:2])
	m, _ := strconv.Atoi(s[3:])
	return TimeOfDay(h*60 + m), nil
}

func IsValidTimeOfDay(s string) bool {
	return timeOfDayRegex.MatchString(s)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On returns the instant of t on the calendar day of date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location())
}
