package calendar

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

var (
	errEndBeforeStart = errors.New("end must be after start")
	errMalformed      = errors.New("malformed event")
)

// Kind tells whether a personal event marks its owner as busy or as preferring that time.
type Kind string

const (
	KindBusy      Kind = "busy"
	KindPreferred Kind = "preferred"
)

func (k Kind) IsValid() bool {
	return k == KindBusy || k == KindPreferred
}

// Event is a personal calendar entry, either single or recurring weekly.
type Event struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	GroupID     string `json:"groupId,omitempty"`
	Kind        Kind   `json:"type"`
	Title       string `json:"title"`
	IsRecurring bool   `json:"isRecurring"`

	// single
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	// recurring
	DayOfWeek          string `json:"dayOfWeek,omitempty"`
	RecurringStartTime string `json:"recurringStartTime,omitempty"` // HH:MM
	RecurringEndTime   string `json:"recurringEndTime,omitempty"`   // HH:MM

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ev Event) weeklyRule() (WeeklyRule, error) {
	wd, err := ParseWeekday(ev.DayOfWeek)
	if err != nil {
		return WeeklyRule{}, errors.Wrapf(errMalformed, "dayOfWeek %q", ev.DayOfWeek)
	}
	start, err := ParseTimeOfDay(ev.RecurringStartTime)
	if err != nil {
		return WeeklyRule{}, errors.Wrapf(errMalformed, "recurringStartTime %q", ev.RecurringStartTime)
	}
	end, err := ParseTimeOfDay(ev.RecurringEndTime)
	if err != nil {
		return WeeklyRule{}, errors.Wrapf(errMalformed, "recurringEndTime %q", ev.RecurringEndTime)
	}
	if end <= start {
		return WeeklyRule{}, errors.Wrap(errMalformed, errEndBeforeStart.Error())
	}
	return WeeklyRule{DayOfWeek: wd, Start: start, End: end}, nil
}

// Expand returns the occurrences of the event intersecting w.
// Recurring times of day are interpreted in loc and excepted dates are dropped.
func (ev Event) Expand(w Window, loc *time.Location, exceptions ExceptionSet) ([]Occurrence, error) {
	if !ev.IsRecurring {
		if ev.StartTime == nil || ev.EndTime == nil {
			return nil, errors.Wrap(errMalformed, "missing start or end time")
		}
		if !ev.EndTime.After(*ev.StartTime) {
			return nil, errors.Wrap(errMalformed, errEndBeforeStart.Error())
		}
		if !w.Overlaps(*ev.StartTime, *ev.EndTime) {
			return nil, nil
		}
		return []Occurrence{{
			Date:  formatDate(ev.StartTime.In(loc)),
			Start: *ev.StartTime,
			End:   *ev.EndTime,
		}}, nil
	}

	rule, err := ev.weeklyRule()
	if err != nil {
		return nil, err
	}
	occs, err := ExpandWeekly(rule, Window{Start: w.Start.In(loc), End: w.End.In(loc)})
	if err != nil {
		return nil, err
	}
	out := occs[:0]
	for _, occ := range occs {
		if !exceptions.Has(ev.ID, occ.Date) {
			out = append(out, occ)
		}
	}
	return out, nil
}

// NewEvent contains the information needed to create or replace a personal Event.
type NewEvent struct {
	Kind               Kind       `json:"type" validate:"required,eventkind"`
	Title              string     `json:"title" validate:"max=200"`
	GroupID            string     `json:"groupId" validate:"omitempty,uuid"`
	IsRecurring        bool       `json:"isRecurring"`
	DayOfWeek          string     `json:"dayOfWeek" validate:"omitempty,weekday"`
	RecurringStartTime string     `json:"recurringStartTime" validate:"omitempty,hhmm"`
	RecurringEndTime   string     `json:"recurringEndTime" validate:"omitempty,hhmm"`
	StartTime          *time.Time `json:"startTime"`
	EndTime            *time.Time `json:"endTime"`
}

func (ne *NewEvent) Clean() {
	ne.Title = core.CleanString(ne.Title)
	ne.DayOfWeek = core.CleanString(ne.DayOfWeek, true /* lower */)
	if ne.IsRecurring {
		ne.StartTime, ne.EndTime = nil, nil
		if wd, err := ParseWeekday(ne.DayOfWeek); err == nil {
			ne.DayOfWeek = wd.String()
		}
	} else {
		ne.DayOfWeek, ne.RecurringStartTime, ne.RecurringEndTime = "", "", ""
		if ne.StartTime != nil {
			t := ne.StartTime.UTC()
			ne.StartTime = &t
		}
		if ne.EndTime != nil {
			t := ne.EndTime.UTC()
			ne.EndTime = &t
		}
	}
}

func (ne NewEvent) apply(ev *Event) {
	ev.Kind = ne.Kind
	ev.Title = ne.Title
	ev.GroupID = ne.GroupID
	ev.IsRecurring = ne.IsRecurring
	ev.StartTime = ne.StartTime
	ev.EndTime = ne.EndTime
	ev.DayOfWeek = ne.DayOfWeek
	ev.RecurringStartTime = ne.RecurringStartTime
	ev.RecurringEndTime = ne.RecurringEndTime
}

// DeleteEvent tells which part of a series is deleted.
// Without DeleteAllRecurring, only the occurrence of DateString is removed.
type DeleteEvent struct {
	DateString         string `json:"dateString" validate:"omitempty,date"`
	DeleteAllRecurring bool   `json:"deleteAllRecurring"`
}

type EventFilter struct {
	UserIDs []string
	Kind    Kind
}
