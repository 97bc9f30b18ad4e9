package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartOfWeek(t *testing.T) {
	monday := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 7; i++ {
		day := monday.AddDate(0, 0, i).Add(13*time.Hour + 37*time.Minute)
		t.Run(day.Weekday().String(), func(t *testing.T) {
			got := StartOfWeek(day)
			assert.Equal(t, time.Monday, got.Weekday())
			assert.True(t, got.Equal(monday), "StartOfWeek(%v) = %v, want %v", day, got, monday)
			assert.False(t, day.Before(got))
			assert.True(t, day.Before(got.AddDate(0, 0, 7)))
		})
	}

	t.Run("keeps location", func(t *testing.T) {
		loc := time.FixedZone("EAT", 3*60*60)
		day := time.Date(2024, 6, 9, 23, 30, 0, 0, loc) // Sunday
		got := StartOfWeek(day)
		assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, loc), got)
	})
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{in: "monday", want: time.Monday},
		{in: " Sunday ", want: time.Sunday},
		{in: "WED", want: time.Wednesday},
		{in: "thurs", want: time.Thursday},
		{in: "sa", wantErr: true},
		{in: "funday", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWeekday(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindow_Days(t *testing.T) {
	w := WeekOf(time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC))
	days := w.Days(time.UTC)
	require.Len(t, days, 7)
	assert.Equal(t, "2024-06-03", formatDate(days[0]))
	assert.Equal(t, "2024-06-09", formatDate(days[6]))
}

func TestTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:05", want: 9*60 + 5},
		{in: "23:59", want: 23*60 + 59},
		{in: "24:00", wantErr: true},
		{in: "9:05", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "12h30", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Equal(t, errInvalidTimeOfDay, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}
