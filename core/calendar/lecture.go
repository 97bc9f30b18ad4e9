package calendar

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

type LectureStatus string

const (
	LectureScheduled LectureStatus = "scheduled"
	LectureOngoing   LectureStatus = "ongoing"
	LectureCompleted LectureStatus = "completed"
)

// Lecture is a group session authored by an instructor. Recurring lectures start their series at StartTime.
type Lecture struct {
	ID           string        `json:"id"`
	GroupID      string        `json:"groupId"`
	InstructorID string        `json:"instructorId"`
	Title        string        `json:"title"`
	Description  string        `json:"description,omitempty"`
	Location     string        `json:"location,omitempty"`
	StartTime    time.Time     `json:"startTime"`
	EndTime      time.Time     `json:"endTime"`
	IsRecurring  bool          `json:"isRecurring"`
	Recurrence   *Rule         `json:"recurrence,omitempty"`
	Status       LectureStatus `json:"status"` // derived, see ComputeStatus
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (l Lecture) Duration() time.Duration {
	return l.EndTime.Sub(l.StartTime)
}

// Expand returns the occurrences of the lecture intersecting w.
// A recurring series is laid out in loc so its wall clock time survives DST changes.
func (l Lecture) Expand(w Window, loc *time.Location, exceptions ExceptionSet) ([]Occurrence, error) {
	if !l.EndTime.After(l.StartTime) {
		return nil, errors.Wrap(errMalformed, errEndBeforeStart.Error())
	}
	if !l.IsRecurring {
		if !w.Overlaps(l.StartTime, l.EndTime) {
			return nil, nil
		}
		return []Occurrence{{Date: formatDate(l.StartTime.In(loc)), Start: l.StartTime, End: l.EndTime}}, nil
	}
	if l.Recurrence == nil {
		return nil, errors.Wrap(errMalformed, "recurring lecture without recurrence rule")
	}
	return ExpandRule(*l.Recurrence, l.StartTime.In(loc), l.Duration(), w, exceptions.Dates(l.ID)...)
}

// ComputeStatus derives the lecture status at now.
// A series is ongoing while one of its occurrences runs and completed once its last occurrence ended.
func (l Lecture) ComputeStatus(now time.Time, loc *time.Location) LectureStatus {
	if !l.IsRecurring || l.Recurrence == nil {
		switch {
		case now.Before(l.StartTime):
			return LectureScheduled
		case now.Before(l.EndTime):
			return LectureOngoing
		default:
			return LectureCompleted
		}
	}

	r, err := l.Recurrence.rrule(l.StartTime.In(loc))
	if err != nil {
		return LectureScheduled
	}
	if last := r.Before(now, true); !last.IsZero() && now.Before(last.Add(l.Duration())) {
		return LectureOngoing
	}
	if next := r.After(now, false); next.IsZero() && !now.Before(l.StartTime) {
		return LectureCompleted
	}
	return LectureScheduled
}

// NewLecture contains the information needed to create or replace a Lecture.
type NewLecture struct {
	GroupID      string    `json:"groupId" validate:"required,uuid"`
	InstructorID string    `json:"instructorId" validate:"omitempty,uuid"`
	Title        string    `json:"title" validate:"required,notblank,max=200"`
	Description  string    `json:"description" validate:"max=2000"`
	Location     string    `json:"location" validate:"max=200"`
	StartTime    time.Time `json:"startTime" validate:"required"`
	EndTime      time.Time `json:"endTime" validate:"required"`
	IsRecurring  bool      `json:"isRecurring"`
	Recurrence   *Rule     `json:"recurrence"`
}

func (nl *NewLecture) Clean() {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	nl.Location = core.CleanString(nl.Location)
	nl.StartTime = nl.StartTime.UTC()
	nl.EndTime = nl.EndTime.UTC()
	if !nl.IsRecurring {
		nl.Recurrence = nil
	} else if nl.Recurrence != nil {
		nl.Recurrence.Frequency = Frequency(core.CleanString(string(nl.Recurrence.Frequency), true))
		for i, wd := range nl.Recurrence.ByWeekday {
			nl.Recurrence.ByWeekday[i] = core.CleanString(wd, true)
		}
	}
}

// Validate checks the constraints spanning several fields. The recurrence is checked in loc.
func (nl NewLecture) Validate(loc *time.Location) error {
	if !nl.EndTime.After(nl.StartTime) {
		return core.NewValidationError(nil, core.FieldError{Field: "endTime", Error: errEndBeforeStart.Error()})
	}
	if nl.IsRecurring {
		if nl.Recurrence == nil {
			return core.NewValidationError(nil, core.FieldError{Field: "recurrence", Error: "this field is required"})
		}
		return nl.Recurrence.Validate(nl.StartTime.In(loc))
	}
	return nil
}

func (nl NewLecture) apply(l *Lecture) {
	l.GroupID = nl.GroupID
	l.Title = nl.Title
	l.Description = nl.Description
	l.Location = nl.Location
	l.StartTime = nl.StartTime
	l.EndTime = nl.EndTime
	l.IsRecurring = nl.IsRecurring
	l.Recurrence = nl.Recurrence
}

type LectureFilter struct {
	GroupIDs     []string
	InstructorID string
}
