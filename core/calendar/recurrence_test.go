package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func dates(occs []Occurrence) []string {
	out := make([]string, 0, len(occs))
	for _, occ := range occs {
		out = append(out, occ.Date)
	}
	return out
}

func TestExpandWeekly(t *testing.T) {
	week := WeekOf(utc(2024, 6, 3, 0, 0))

	t.Run("monday 10:00-11:00", func(t *testing.T) {
		occs, err := ExpandWeekly(WeeklyRule{DayOfWeek: time.Monday, Start: 10 * 60, End: 11 * 60}, week)
		require.NoError(t, err)
		require.Len(t, occs, 1)
		assert.Equal(t, Occurrence{Date: "2024-06-03", Start: utc(2024, 6, 3, 10, 0), End: utc(2024, 6, 3, 11, 0)}, occs[0])
	})

	t.Run("sunday closes the week", func(t *testing.T) {
		occs, err := ExpandWeekly(WeeklyRule{DayOfWeek: time.Sunday, Start: 8 * 60, End: 9 * 60}, week)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-06-09"}, dates(occs))
	})

	t.Run("window across two weeks", func(t *testing.T) {
		w := Window{Start: utc(2024, 6, 5, 0, 0), End: utc(2024, 6, 13, 0, 0)}
		occs, err := ExpandWeekly(WeeklyRule{DayOfWeek: time.Wednesday, Start: 60, End: 120}, w)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-06-05", "2024-06-12"}, dates(occs))
	})

	t.Run("partial window", func(t *testing.T) {
		w := Window{Start: utc(2024, 6, 3, 10, 30), End: utc(2024, 6, 4, 0, 0)}
		occs, err := ExpandWeekly(WeeklyRule{DayOfWeek: time.Monday, Start: 10 * 60, End: 11 * 60}, w)
		require.NoError(t, err)
		assert.Len(t, occs, 1)

		w.Start = utc(2024, 6, 3, 11, 0)
		occs, err = ExpandWeekly(WeeklyRule{DayOfWeek: time.Monday, Start: 10 * 60, End: 11 * 60}, w)
		require.NoError(t, err)
		assert.Empty(t, occs)
	})

	t.Run("invalid rule fails fast", func(t *testing.T) {
		_, err := ExpandWeekly(WeeklyRule{DayOfWeek: time.Monday, Start: 11 * 60, End: 10 * 60}, week)
		assert.Error(t, err)
		_, err = ExpandWeekly(WeeklyRule{DayOfWeek: 9, Start: 10 * 60, End: 11 * 60}, week)
		assert.Error(t, err)
	})
}

func TestExpandRule(t *testing.T) {
	dtstart := utc(2024, 6, 3, 10, 0) // Monday
	hour := time.Hour

	tests := []struct {
		name     string
		rule     Rule
		dtstart  time.Time
		duration time.Duration
		window   Window
		excluded []string
		want     []string
	}{
		{
			name:     "until on the window boundary is inclusive",
			rule:     Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"monday"}, Until: "2024-06-10"},
			dtstart:  dtstart,
			duration: hour,
			window:   Window{Start: utc(2024, 6, 10, 0, 0), End: utc(2024, 6, 17, 0, 0)},
			want:     []string{"2024-06-10"},
		},
		{
			name:     "until stops the series",
			rule:     Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"monday"}, Until: "2024-06-10"},
			dtstart:  dtstart,
			duration: hour,
			window:   Window{Start: utc(2024, 6, 1, 0, 0), End: utc(2024, 7, 1, 0, 0)},
			want:     []string{"2024-06-03", "2024-06-10"},
		},
		{
			name:     "interval counts periods from dtstart",
			rule:     Rule{Frequency: FrequencyWeekly, Interval: 2, ByWeekday: []string{"mon"}},
			dtstart:  dtstart,
			duration: hour,
			window:   Window{Start: utc(2024, 6, 10, 0, 0), End: utc(2024, 7, 1, 0, 0)},
			want:     []string{"2024-06-17"},
		},
		{
			name:     "several weekdays",
			rule:     Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"monday", "wednesday", "friday"}},
			dtstart:  dtstart,
			duration: hour,
			window:   WeekOf(dtstart),
			want:     []string{"2024-06-03", "2024-06-05", "2024-06-07"},
		},
		{
			name:     "count",
			rule:     Rule{Frequency: FrequencyDaily, Count: 3},
			dtstart:  utc(2024, 6, 3, 9, 0),
			duration: hour,
			window:   WeekOf(dtstart),
			want:     []string{"2024-06-03", "2024-06-04", "2024-06-05"},
		},
		{
			name:     "excluded dates",
			rule:     Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"monday", "wednesday"}},
			dtstart:  dtstart,
			duration: hour,
			window:   WeekOf(dtstart),
			excluded: []string{"2024-06-05", "not-a-date"},
			want:     []string{"2024-06-03"},
		},
		{
			name:     "instance started before the window",
			rule:     Rule{Frequency: FrequencyDaily},
			dtstart:  utc(2024, 6, 3, 23, 0),
			duration: 2 * hour,
			window:   Window{Start: utc(2024, 6, 4, 0, 0), End: utc(2024, 6, 5, 0, 0)},
			want:     []string{"2024-06-03", "2024-06-04"},
		},
		{
			name:     "window before dtstart",
			rule:     Rule{Frequency: FrequencyMonthly},
			dtstart:  dtstart,
			duration: hour,
			window:   Window{Start: utc(2024, 5, 1, 0, 0), End: utc(2024, 6, 1, 0, 0)},
			want:     []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occs, err := ExpandRule(tt.rule, tt.dtstart, tt.duration, tt.window, tt.excluded...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, dates(occs))
			for _, occ := range occs {
				assert.Equal(t, tt.duration, occ.End.Sub(occ.Start))
			}
		})
	}

	t.Run("restartable", func(t *testing.T) {
		rule := Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"tuesday"}}
		w := Window{Start: utc(2024, 6, 1, 0, 0), End: utc(2024, 9, 1, 0, 0)}
		first, err := ExpandRule(rule, utc(2024, 6, 4, 14, 0), hour, w)
		require.NoError(t, err)
		second, err := ExpandRule(rule, utc(2024, 6, 4, 14, 0), hour, w)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("invalid input fails fast", func(t *testing.T) {
		_, err := ExpandRule(Rule{Frequency: FrequencyWeekly}, dtstart, hour, WeekOf(dtstart))
		assert.Error(t, err)
		_, err = ExpandRule(Rule{Frequency: FrequencyDaily}, dtstart, 0, WeekOf(dtstart))
		assert.Error(t, err)
	})
}

func TestRule_Validate(t *testing.T) {
	dtstart := utc(2024, 6, 3, 10, 0)

	tests := []struct {
		name      string
		rule      Rule
		wantField string
	}{
		{name: "valid weekly", rule: Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"monday"}, Until: "2024-12-20"}},
		{name: "valid daily", rule: Rule{Frequency: FrequencyDaily, Count: 10}},
		{name: "until on start date", rule: Rule{Frequency: FrequencyDaily, Until: "2024-06-03"}},
		{name: "unknown frequency", rule: Rule{Frequency: "yearly"}, wantField: "frequency"},
		{name: "weekly without weekday", rule: Rule{Frequency: FrequencyWeekly}, wantField: "byWeekday"},
		{name: "bad weekday", rule: Rule{Frequency: FrequencyWeekly, ByWeekday: []string{"someday"}}, wantField: "byWeekday"},
		{name: "until and count", rule: Rule{Frequency: FrequencyDaily, Until: "2024-12-20", Count: 3}, wantField: "until"},
		{name: "until before start", rule: Rule{Frequency: FrequencyDaily, Until: "2024-06-02"}, wantField: "until"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate(dtstart)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}
}

func TestWeeklyRule_Validate(t *testing.T) {
	assert.NoError(t, WeeklyRule{DayOfWeek: time.Friday, Start: 60, End: 61}.Validate())
	assert.Error(t, WeeklyRule{DayOfWeek: time.Friday, Start: 60, End: 60}.Validate())
}
