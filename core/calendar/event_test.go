package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestEvent_Expand(t *testing.T) {
	week := WeekOf(utc(2024, 6, 3, 0, 0))
	weekly := Event{
		ID:                 "series",
		Kind:               KindBusy,
		IsRecurring:        true,
		DayOfWeek:          "monday",
		RecurringStartTime: "10:00",
		RecurringEndTime:   "11:00",
	}

	tests := []struct {
		name    string
		event   Event
		excs    ExceptionSet
		window  Window
		want    []string
		wantErr bool
	}{
		{name: "recurring", event: weekly, window: week, want: []string{"2024-06-03"}},
		{
			name:   "recurring excepted",
			event:  weekly,
			excs:   NewExceptionSet(Exception{SeriesID: "series", Date: "2024-06-03"}),
			window: week,
			want:   []string{},
		},
		{
			name:   "exception of another week",
			event:  weekly,
			excs:   NewExceptionSet(Exception{SeriesID: "series", Date: "2024-06-10"}),
			window: week,
			want:   []string{"2024-06-03"},
		},
		{
			name:   "single in window",
			event:  Event{ID: "one", StartTime: timePtr(utc(2024, 6, 5, 8, 0)), EndTime: timePtr(utc(2024, 6, 5, 9, 0))},
			window: week,
			want:   []string{"2024-06-05"},
		},
		{
			name:   "single out of window",
			event:  Event{ID: "one", StartTime: timePtr(utc(2024, 6, 12, 8, 0)), EndTime: timePtr(utc(2024, 6, 12, 9, 0))},
			window: week,
			want:   nil,
		},
		{name: "single without end", event: Event{ID: "bad", StartTime: timePtr(utc(2024, 6, 5, 8, 0))}, window: week, wantErr: true},
		{
			name:    "recurring with invalid weekday",
			event:   Event{ID: "bad", IsRecurring: true, DayOfWeek: "noday", RecurringStartTime: "10:00", RecurringEndTime: "11:00"},
			window:  week,
			wantErr: true,
		},
		{
			name:    "recurring ending before start",
			event:   Event{ID: "bad", IsRecurring: true, DayOfWeek: "monday", RecurringStartTime: "10:00", RecurringEndTime: "09:00"},
			window:  week,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs, err := tt.event.Expand(tt.window, time.UTC, tt.excs)
			if tt.wantErr {
				assert.ErrorIs(t, err, errMalformed)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, occs)
				return
			}
			assert.Equal(t, tt.want, dates(occs))
		})
	}
}

func TestEvent_ExpandInLocation(t *testing.T) {
	loc := time.FixedZone("WAT", 60*60)
	ev := Event{ID: "s", IsRecurring: true, DayOfWeek: "monday", RecurringStartTime: "00:30", RecurringEndTime: "01:30"}

	occs, err := ev.Expand(WeekOf(time.Date(2024, 6, 3, 0, 0, 0, 0, loc)), loc, nil)
	require.NoError(t, err)
	require.Len(t, occs, 1)
	assert.Equal(t, "2024-06-03", occs[0].Date)
	assert.True(t, occs[0].Start.Equal(utc(2024, 6, 2, 23, 30)))
}

func TestExceptionSet(t *testing.T) {
	set := NewExceptionSet()
	set.Add("s1", "2024-06-03")
	set.Add("s1", "2024-06-03")
	set.Add("s2", "2024-06-04")

	assert.True(t, set.Has("s1", "2024-06-03"))
	assert.False(t, set.Has("s1", "2024-06-04"))
	assert.False(t, set.Has("s3", "2024-06-03"))
	assert.Equal(t, []string{"2024-06-03"}, set.Dates("s1"))

	var empty ExceptionSet
	assert.False(t, empty.Has("s1", "2024-06-03"))
	assert.Empty(t, empty.Dates("s1"))
}
