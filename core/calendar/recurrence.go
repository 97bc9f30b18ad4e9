package calendar

import (
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/teambition/rrule-go"

	"github.com/trezcool/academia/core"
)

// Occurrence is one concrete instance of a (possibly recurring) definition.
type Occurrence struct {
	Date  string    `json:"date"` // YYYY-MM-DD in the occurrence location
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WeeklyRule is the simple recurrence form of personal events: same time, same weekday, every week.
type WeeklyRule struct {
	DayOfWeek time.Weekday
	Start     TimeOfDay
	End       TimeOfDay
}

func (r WeeklyRule) Validate() error {
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return core.NewValidationError(nil, core.FieldError{Field: "dayOfWeek", Error: errInvalidWeekday.Error()})
	}
	if r.End <= r.Start {
		return core.NewValidationError(nil, core.FieldError{Field: "recurringEndTime", Error: errEndBeforeStart.Error()})
	}
	return nil
}

// ExpandWeekly returns the instances of r intersecting w, one per Monday-aligned week, ordered by start.
// Times of day are interpreted in the location of w.Start.
func ExpandWeekly(r WeeklyRule, w Window) ([]Occurrence, error) {
	if err := vala.BeginValidation().Validate(
		vala.GreaterThan(int(r.End), int(r.Start), "end"),
		func() (bool, string) {
			return r.DayOfWeek >= time.Sunday && r.DayOfWeek <= time.Saturday, "invalid dayOfWeek"
		},
		func() (bool, string) { return w.IsValid(), "window must end after it starts" },
	).Check(); err != nil {
		return nil, errors.Wrap(err, "expanding weekly rule")
	}

	var out []Occurrence
	for monday := StartOfWeek(w.Start); monday.Before(w.End); monday = monday.AddDate(0, 0, 7) {
		day := monday.AddDate(0, 0, mondayOffset(r.DayOfWeek))
		start, end := r.Start.On(day), r.End.On(day)
		if w.Overlaps(start, end) {
			out = append(out, Occurrence{Date: formatDate(day), Start: start, End: end})
		}
	}
	return out, nil
}

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

var frequencies = map[Frequency]rrule.Frequency{
	FrequencyDaily:   rrule.DAILY,
	FrequencyWeekly:  rrule.WEEKLY,
	FrequencyMonthly: rrule.MONTHLY,
}

var rruleWeekdays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Rule is the general recurrence form used by lectures. The series starts at the lecture start time.
type Rule struct {
	Frequency Frequency `json:"frequency" validate:"required,frequency"`
	Interval  int       `json:"interval" validate:"gte=0,lte=52"`
	ByWeekday []string  `json:"byWeekday" validate:"dive,weekday"`
	Until     string    `json:"until,omitempty" validate:"omitempty,date"` // inclusive calendar date
	Count     int       `json:"count,omitempty" validate:"gte=0"`
}

// Validate checks the cross field constraints of the rule.
func (r Rule) Validate(dtstart time.Time) error {
	var flds []core.FieldError
	if _, ok := frequencies[r.Frequency]; !ok {
		flds = append(flds, core.FieldError{Field: "frequency", Error: "frequency must be one of daily, weekly, monthly"})
	}
	if r.Frequency == FrequencyWeekly && len(r.ByWeekday) == 0 {
		flds = append(flds, core.FieldError{Field: "byWeekday", Error: "weekly recurrences require at least one weekday"})
	}
	for _, wd := range r.ByWeekday {
		if _, err := ParseWeekday(wd); err != nil {
			flds = append(flds, core.FieldError{Field: "byWeekday", Error: err.Error()})
			break
		}
	}
	if r.Until != "" && r.Count > 0 {
		flds = append(flds, core.FieldError{Field: "until", Error: "until and count are mutually exclusive"})
	}
	if r.Until != "" {
		until, err := time.ParseInLocation(core.DateLayout, r.Until, dtstart.Location())
		if err != nil {
			flds = append(flds, core.FieldError{Field: "until", Error: "until must be a date formatted as YYYY-MM-DD"})
		} else if endOfDay(until).Before(dtstart) {
			flds = append(flds, core.FieldError{Field: "until", Error: "until must not be before the start date"})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (r Rule) option(dtstart time.Time) (rrule.ROption, error) {
	freq, ok := frequencies[r.Frequency]
	if !ok {
		return rrule.ROption{}, errors.Errorf("unknown frequency %q", r.Frequency)
	}
	opt := rrule.ROption{
		Freq:     freq,
		Interval: r.Interval,
		Dtstart:  dtstart,
		Count:    r.Count,
		Wkst:     rrule.MO,
	}
	if opt.Interval < 1 {
		opt.Interval = 1
	}
	for _, s := range r.ByWeekday {
		wd, err := ParseWeekday(s)
		if err != nil {
			return rrule.ROption{}, err
		}
		opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
	}
	if r.Until != "" {
		until, err := time.ParseInLocation(core.DateLayout, r.Until, dtstart.Location())
		if err != nil {
			return rrule.ROption{}, errors.Wrap(err, "parsing until")
		}
		opt.Until = endOfDay(until)
	}
	return opt, nil
}

func (r Rule) rrule(dtstart time.Time) (*rrule.RRule, error) {
	opt, err := r.option(dtstart)
	if err != nil {
		return nil, err
	}
	return rrule.NewRRule(opt)
}

// ExpandRule returns the instances of the series (dtstart, duration, r) intersecting w, ordered by start.
// Instances starting on one of the excluded dates are skipped.
func ExpandRule(r Rule, dtstart time.Time, duration time.Duration, w Window, excluded ...string) ([]Occurrence, error) {
	if err := vala.BeginValidation().Validate(
		vala.StringNotEmpty(string(r.Frequency), "frequency"),
		vala.GreaterThan(int(duration/time.Minute), 0, "duration"),
		func() (bool, string) { return w.IsValid(), "window must end after it starts" },
		func() (bool, string) {
			return r.Frequency != FrequencyWeekly || len(r.ByWeekday) > 0, "weekly rule without weekday"
		},
	).Check(); err != nil {
		return nil, errors.Wrap(err, "expanding rule")
	}

	rule, err := r.rrule(dtstart)
	if err != nil {
		return nil, errors.Wrap(err, "building rrule")
	}

	set := &rrule.Set{}
	set.RRule(rule)
	for _, date := range excluded {
		day, err := time.ParseInLocation(core.DateLayout, date, dtstart.Location())
		if err != nil {
			continue
		}
		set.ExDate(time.Date(day.Year(), day.Month(), day.Day(),
			dtstart.Hour(), dtstart.Minute(), dtstart.Second(), 0, dtstart.Location()))
	}

	// an instance started before the window may still run into it
	starts := set.Between(w.Start.Add(-duration), w.End, true)

	out := make([]Occurrence, 0, len(starts))
	for _, start := range starts {
		end := start.Add(duration)
		if !w.Overlaps(start, end) {
			continue
		}
		out = append(out, Occurrence{Date: formatDate(start), Start: start, End: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func endOfDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, day.Location())
}
