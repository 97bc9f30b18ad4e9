package coursework

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Status is the lifecycle state of a work item. It is always derived from time and submission/grade facts.
type Status string

const (
	StatusUpcoming   Status = "upcoming"
	StatusActive     Status = "active"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusGraded     Status = "graded"
	StatusPastDue    Status = "past-due"
)

var allStatuses = []Status{StatusUpcoming, StatusActive, StatusInProgress, StatusCompleted, StatusGraded, StatusPastDue}

func (s Status) IsValid() bool {
	for _, st := range allStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can happen without a retake.
func (s Status) IsTerminal() bool {
	return s == StatusGraded
}

// ParseStatuses parses a comma separated list of statuses. Blank entries are ignored.
func ParseStatuses(csv string) ([]Status, error) {
	var out []Status
	for _, part := range strings.Split(csv, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		st := Status(part)
		if !st.IsValid() {
			return nil, errors.Errorf("unknown status %q", part)
		}
		out = append(out, st)
	}
	return out, nil
}

// Facts are the inputs of ComputeStatus.
type Facts struct {
	AvailableFrom time.Time
	DueAt         time.Time
	HasSubmission bool
	HasGrade      bool
	InProgress    bool // a quiz attempt was started and not submitted
}

// ComputeStatus derives the status of a work item at now. Rules apply in order:
//  1. graded once a grade exists
//  2. completed once a submission exists
//  3. past-due after the due time, even for an attempt in progress
//  4. in-progress while a quiz attempt runs
//  5. active within [AvailableFrom, DueAt]
//  6. upcoming otherwise
func ComputeStatus(now time.Time, f Facts) Status {
	switch {
	case f.HasGrade:
		return StatusGraded
	case f.HasSubmission:
		return StatusCompleted
	case now.After(f.DueAt):
		return StatusPastDue
	case f.InProgress:
		return StatusInProgress
	case !now.Before(f.AvailableFrom):
		return StatusActive
	default:
		return StatusUpcoming
	}
}

// CanStart reports whether a quiz attempt may begin.
func CanStart(now time.Time, f Facts) bool {
	return ComputeStatus(now, f) == StatusActive
}

// CanSubmit reports whether work may be handed in: within the active window, or after it when late work is allowed.
func CanSubmit(now time.Time, f Facts, allowLate bool) bool {
	switch ComputeStatus(now, f) {
	case StatusActive, StatusInProgress:
		return !now.After(f.DueAt)
	case StatusPastDue:
		return allowLate
	default:
		return false
	}
}

// CanUnsubmit reports whether a submission may be withdrawn.
func CanUnsubmit(now time.Time, f Facts) bool {
	return ComputeStatus(now, f) == StatusCompleted && !now.After(f.DueAt)
}
