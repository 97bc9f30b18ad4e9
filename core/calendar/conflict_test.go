package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

type lectureStub struct {
	lectures   []Lecture
	exceptions []Exception
}

func (s *lectureStub) QueryLectures(_ context.Context, filter LectureFilter, _ ...core.DBExecutor) ([]Lecture, error) {
	var out []Lecture
	for _, l := range s.lectures {
		if core.ContainsString(filter.GroupIDs, l.GroupID) || (filter.InstructorID != "" && l.InstructorID == filter.InstructorID) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *lectureStub) ListExceptions(_ context.Context, seriesIDs []string, _ ...core.DBExecutor) ([]Exception, error) {
	var out []Exception
	for _, exc := range s.exceptions {
		if core.ContainsString(seriesIDs, exc.SeriesID) {
			out = append(out, exc)
		}
	}
	return out, nil
}

type metricsStub struct {
	conflicts []string
}

func (m *metricsStub) ConflictDetected(scope string)         { m.conflicts = append(m.conflicts, scope) }
func (m *metricsStub) SweepCompleted(int, int, int, float64) {}

func TestConflictDetector_Check(t *testing.T) {
	algebra := Lecture{
		ID: "a", GroupID: "g1", InstructorID: "t1", Title: "Algebra",
		StartTime: utc(2024, 6, 4, 14, 0), EndTime: utc(2024, 6, 4, 15, 0),
	}
	physics := Lecture{
		ID: "p", GroupID: "g3", InstructorID: "t3", Title: "Physics",
		StartTime: utc(2024, 6, 4, 9, 0), EndTime: utc(2024, 6, 4, 10, 0),
		IsRecurring: true, Recurrence: &Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"tuesday"}},
	}
	stub := &lectureStub{
		lectures:   []Lecture{algebra, physics},
		exceptions: []Exception{{SeriesID: "p", Date: "2024-06-25"}},
	}

	candidate := func(group, instructor string, start, end time.Time) Lecture {
		return Lecture{GroupID: group, InstructorID: instructor, Title: "New", StartTime: start, EndTime: end}
	}

	tests := []struct {
		name      string
		candidate Lecture
		excludeID string
		wantTitle string
	}{
		{
			name:      "same group overlapping",
			candidate: candidate("g1", "t2", utc(2024, 6, 4, 14, 30), utc(2024, 6, 4, 15, 30)),
			wantTitle: "Algebra",
		},
		{
			name:      "other group same time",
			candidate: candidate("g2", "t2", utc(2024, 6, 4, 14, 30), utc(2024, 6, 4, 15, 30)),
		},
		{
			name:      "same instructor other group",
			candidate: candidate("g2", "t1", utc(2024, 6, 4, 14, 30), utc(2024, 6, 4, 15, 30)),
			wantTitle: "Algebra",
		},
		{
			name:      "touching intervals",
			candidate: candidate("g1", "t2", utc(2024, 6, 4, 15, 0), utc(2024, 6, 4, 16, 0)),
		},
		{
			name:      "updating in place",
			candidate: candidate("g1", "t1", utc(2024, 6, 4, 14, 30), utc(2024, 6, 4, 15, 30)),
			excludeID: "a",
		},
		{
			name:      "future occurrence of a series",
			candidate: candidate("g3", "t9", utc(2024, 6, 18, 9, 30), utc(2024, 6, 18, 10, 30)),
			wantTitle: "Physics",
		},
		{
			name:      "excepted occurrence of a series",
			candidate: candidate("g3", "t9", utc(2024, 6, 25, 9, 30), utc(2024, 6, 25, 10, 30)),
		},
		{
			name: "recurring candidate meets a single lecture",
			candidate: Lecture{
				GroupID: "g1", InstructorID: "t2", Title: "Weekly",
				StartTime: utc(2024, 5, 28, 14, 0), EndTime: utc(2024, 5, 28, 14, 30),
				IsRecurring: true, Recurrence: &Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"tuesday"}},
			},
			wantTitle: "Algebra",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := new(metricsStub)
			detector := NewConflictDetector(stub, time.UTC, 26*7*24*time.Hour, metrics)
			scope := Scope{GroupID: tt.candidate.GroupID, InstructorID: tt.candidate.InstructorID}

			err := detector.Check(context.Background(), scope, tt.candidate, tt.excludeID)
			if tt.wantTitle == "" {
				assert.NoError(t, err)
				assert.Empty(t, metrics.conflicts)
				return
			}
			var cerr *core.ConflictError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.wantTitle, cerr.Title)
			assert.Contains(t, err.Error(), tt.wantTitle)
			assert.Len(t, metrics.conflicts, 1)
		})
	}

	t.Run("horizon bounds recurring candidates", func(t *testing.T) {
		far := Lecture{
			ID: "far", GroupID: "g4", InstructorID: "t4", Title: "Far",
			StartTime: utc(2025, 6, 3, 8, 0), EndTime: utc(2025, 6, 3, 9, 0),
		}
		detector := NewConflictDetector(&lectureStub{lectures: []Lecture{far}}, time.UTC, 4*7*24*time.Hour, nil)
		weekly := Lecture{
			GroupID: "g4", InstructorID: "t4", Title: "Weekly",
			StartTime: utc(2024, 6, 4, 8, 0), EndTime: utc(2024, 6, 4, 9, 0),
			IsRecurring: true, Recurrence: &Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"tuesday"}},
		}
		assert.NoError(t, detector.Check(context.Background(), Scope{GroupID: "g4"}, weekly, ""))
	})
}
