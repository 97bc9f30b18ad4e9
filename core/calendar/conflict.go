package calendar

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// Scope selects the committed lectures a candidate is checked against.
// A lecture is in scope when it belongs to GroupID or is taught by InstructorID.
type Scope struct {
	GroupID      string
	InstructorID string
}

func (s Scope) filter() LectureFilter {
	f := LectureFilter{InstructorID: s.InstructorID}
	if s.GroupID != "" {
		f.GroupIDs = []string{s.GroupID}
	}
	return f
}

type lectureSource interface {
	QueryLectures(ctx context.Context, filter LectureFilter, exec ...core.DBExecutor) ([]Lecture, error)
	ListExceptions(ctx context.Context, seriesIDs []string, exec ...core.DBExecutor) ([]Exception, error)
}

// ConflictDetector rejects lectures overlapping an already committed lecture occurrence.
// Recurring series are only compared up to Horizon past the candidate start.
type ConflictDetector struct {
	source  lectureSource
	loc     *time.Location
	horizon time.Duration
	metrics core.Metrics
}

func NewConflictDetector(source lectureSource, loc *time.Location, horizon time.Duration, metrics core.Metrics) *ConflictDetector {
	if metrics == nil {
		metrics = core.NopMetrics
	}
	return &ConflictDetector{source: source, loc: loc, horizon: horizon, metrics: metrics}
}

func (d *ConflictDetector) window(candidate Lecture) Window {
	w := Window{Start: candidate.StartTime, End: candidate.EndTime}
	if candidate.IsRecurring {
		if end := candidate.StartTime.Add(d.horizon); end.After(w.End) {
			w.End = end
		}
	}
	return w
}

// Check returns a *core.ConflictError naming the first committed lecture whose occurrence overlaps one of the
// candidate's. excludeID is skipped so a lecture can be updated in place.
func (d *ConflictDetector) Check(ctx context.Context, scope Scope, candidate Lecture, excludeID string, exec ...core.DBExecutor) error {
	w := d.window(candidate)

	lectures, err := d.source.QueryLectures(ctx, scope.filter(), exec...)
	if err != nil {
		return errors.Wrap(err, "querying committed lectures")
	}

	seriesIDs := make([]string, 0, len(lectures)+1)
	for _, l := range lectures {
		if l.IsRecurring {
			seriesIDs = append(seriesIDs, l.ID)
		}
	}
	if candidate.IsRecurring && candidate.ID != "" {
		seriesIDs = append(seriesIDs, candidate.ID)
	}
	var excs ExceptionSet
	if len(seriesIDs) > 0 {
		list, err := d.source.ListExceptions(ctx, seriesIDs, exec...)
		if err != nil {
			return errors.Wrap(err, "listing lecture exceptions")
		}
		excs = NewExceptionSet(list...)
	}

	wanted, err := candidate.Expand(w, d.loc, excs)
	if err != nil {
		return errors.Wrap(err, "expanding candidate lecture")
	}
	if len(wanted) == 0 {
		return nil
	}

	type booked struct {
		lecture Lecture
		occ     Occurrence
	}
	var committed []booked
	for _, l := range lectures {
		if l.ID == excludeID || (candidate.ID != "" && l.ID == candidate.ID) {
			continue
		}
		occs, err := l.Expand(w, d.loc, excs)
		if err != nil {
			// a malformed committed lecture cannot be booked against anyway
			continue
		}
		for _, occ := range occs {
			committed = append(committed, booked{lecture: l, occ: occ})
		}
	}
	sort.Slice(committed, func(i, j int) bool { return committed[i].occ.Start.Before(committed[j].occ.Start) })

	for _, occ := range wanted {
		for _, b := range committed {
			if !b.occ.Start.Before(occ.End) {
				break
			}
			if overlaps(occ.Start, occ.End, b.occ.Start, b.occ.End) {
				label := "instructor"
				if b.lecture.GroupID == scope.GroupID {
					label = "group"
				}
				d.metrics.ConflictDetected(label)
				return core.NewConflictError(b.lecture.Title, b.occ.Start, b.occ.End)
			}
		}
	}
	return nil
}
