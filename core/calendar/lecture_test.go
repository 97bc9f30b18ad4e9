package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLecture_ComputeStatus(t *testing.T) {
	single := Lecture{ID: "l1", StartTime: utc(2024, 6, 4, 14, 0), EndTime: utc(2024, 6, 4, 15, 0)}
	series := Lecture{
		ID:          "l2",
		StartTime:   utc(2024, 6, 3, 10, 0),
		EndTime:     utc(2024, 6, 3, 11, 0),
		IsRecurring: true,
		Recurrence:  &Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"monday"}, Count: 2},
	}
	openSeries := series
	openSeries.Recurrence = &Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"monday"}}

	tests := []struct {
		name    string
		lecture Lecture
		now     time.Time
		want    LectureStatus
	}{
		{name: "single before", lecture: single, now: utc(2024, 6, 4, 13, 59), want: LectureScheduled},
		{name: "single at start", lecture: single, now: utc(2024, 6, 4, 14, 0), want: LectureOngoing},
		{name: "single at end", lecture: single, now: utc(2024, 6, 4, 15, 0), want: LectureCompleted},
		{name: "series before dtstart", lecture: series, now: utc(2024, 6, 1, 0, 0), want: LectureScheduled},
		{name: "series first occurrence", lecture: series, now: utc(2024, 6, 3, 10, 30), want: LectureOngoing},
		{name: "series between occurrences", lecture: series, now: utc(2024, 6, 5, 0, 0), want: LectureScheduled},
		{name: "series second occurrence", lecture: series, now: utc(2024, 6, 10, 10, 59), want: LectureOngoing},
		{name: "series over", lecture: series, now: utc(2024, 6, 10, 12, 0), want: LectureCompleted},
		{name: "open series", lecture: openSeries, now: utc(2025, 1, 1, 0, 0), want: LectureScheduled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lecture.ComputeStatus(tt.now, time.UTC))
		})
	}
}

func TestNewLecture_Validate(t *testing.T) {
	start := utc(2024, 6, 4, 14, 0)

	tests := []struct {
		name    string
		nl      NewLecture
		wantErr bool
	}{
		{name: "single", nl: NewLecture{StartTime: start, EndTime: start.Add(time.Hour)}},
		{name: "end before start", nl: NewLecture{StartTime: start, EndTime: start}, wantErr: true},
		{name: "recurring without rule", nl: NewLecture{StartTime: start, EndTime: start.Add(time.Hour), IsRecurring: true}, wantErr: true},
		{
			name: "recurring weekly without weekday",
			nl: NewLecture{
				StartTime: start, EndTime: start.Add(time.Hour), IsRecurring: true,
				Recurrence: &Rule{Frequency: FrequencyWeekly},
			},
			wantErr: true,
		},
		{
			name: "recurring",
			nl: NewLecture{
				StartTime: start, EndTime: start.Add(time.Hour), IsRecurring: true,
				Recurrence: &Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"tuesday"}, Until: "2024-12-17"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nl.Validate(time.UTC)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
