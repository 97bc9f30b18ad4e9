package coursework

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeStatus(t *testing.T) {
	from := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
	before, during, after := from.Add(-time.Hour), from.Add(24*time.Hour), due.Add(time.Second)

	tests := []struct {
		name  string
		now   time.Time
		facts Facts
		want  Status
	}{
		{name: "graded wins over everything", now: after, facts: Facts{HasSubmission: true, HasGrade: true}, want: StatusGraded},
		{name: "graded without submission", now: before, facts: Facts{HasGrade: true}, want: StatusGraded},
		{name: "submitted", now: during, facts: Facts{HasSubmission: true}, want: StatusCompleted},
		{name: "submitted, now past due", now: after, facts: Facts{HasSubmission: true}, want: StatusCompleted},
		{name: "expired attempt is past due", now: after, facts: Facts{InProgress: true}, want: StatusPastDue},
		{name: "nothing after due", now: after, want: StatusPastDue},
		{name: "attempt running", now: during, facts: Facts{InProgress: true}, want: StatusInProgress},
		{name: "within window", now: during, want: StatusActive},
		{name: "window start is inclusive", now: from, want: StatusActive},
		{name: "window end is inclusive", now: due, want: StatusActive},
		{name: "before window", now: before, want: StatusUpcoming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.facts.AvailableFrom, tt.facts.DueAt = from, due
			if got := ComputeStatus(tt.now, tt.facts); got != tt.want {
				t.Errorf("ComputeStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	from := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	due := time.Date(2024, 1, 10, 23, 59, 0, 0, time.UTC)
	facts := func(sub, inProgress bool) Facts {
		return Facts{AvailableFrom: from, DueAt: due, HasSubmission: sub, InProgress: inProgress}
	}
	during, after := from.Add(time.Hour), due.Add(time.Minute)

	t.Run("start", func(t *testing.T) {
		assert.True(t, CanStart(during, facts(false, false)))
		assert.False(t, CanStart(from.Add(-time.Minute), facts(false, false)))
		assert.False(t, CanStart(during, facts(false, true)))
		assert.False(t, CanStart(after, facts(false, false)))
	})

	t.Run("submit", func(t *testing.T) {
		assert.True(t, CanSubmit(during, facts(false, false), false))
		assert.True(t, CanSubmit(during, facts(false, true), false))
		assert.True(t, CanSubmit(due, facts(false, false), false))
		assert.False(t, CanSubmit(from.Add(-time.Minute), facts(false, false), true))
		assert.False(t, CanSubmit(during, facts(true, false), true))
		assert.False(t, CanSubmit(after, facts(false, false), false))
		assert.True(t, CanSubmit(after, facts(false, false), true))
	})

	t.Run("unsubmit", func(t *testing.T) {
		assert.True(t, CanUnsubmit(during, facts(true, false)))
		assert.False(t, CanUnsubmit(after, facts(true, false)))
		assert.False(t, CanUnsubmit(during, facts(false, false)))
	})
}

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses("active, PAST-DUE,,")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusActive, StatusPastDue}, got)

	got, err = ParseStatuses("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseStatuses("active,late")
	assert.Error(t, err)
}

func TestWorkItem_Refresh(t *testing.T) {
	now := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	item := WorkItem{
		AvailableFrom: now.Add(-time.Hour),
		DueAt:         now.Add(time.Hour),
		Status:        StatusUpcoming,
	}
	assert.True(t, item.Refresh(now))
	assert.Equal(t, StatusActive, item.Status)
	assert.False(t, item.Refresh(now))

	started := now
	item.StartedAt = &started
	assert.True(t, item.Refresh(now))
	assert.Equal(t, StatusInProgress, item.Status)

	item.Submission = &Submission{SubmittedAt: now}
	assert.True(t, item.Refresh(now))
	assert.Equal(t, StatusCompleted, item.Status)
}

func TestRetakeRequest_MarshalJSON(t *testing.T) {
	req := RetakeRequest{ID: "r1", Target: QuizTarget{ItemID: "i1"}, State: RetakePending}
	data, err := req.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"targetType":"quiz"`)
	assert.Contains(t, string(data), `"targetId":"i1"`)
	assert.Contains(t, string(data), `"state":"pending"`)

	target, err := NewRetakeTarget(KindAssignment, "i2")
	require.NoError(t, err)
	assert.Equal(t, AssignmentTarget{ItemID: "i2"}, target)
	_, err = NewRetakeTarget("exam", "i3")
	assert.Error(t, err)
}

func TestAutoScore(t *testing.T) {
	key := map[string]string{"q1": "A", "q2": "b", "q3": "Paris", "q4": "4"}
	assert.Equal(t, 10.0, autoScore(10, key, map[string]string{"q1": "a", "q2": "B", "q3": " paris ", "q4": "4"}))
	assert.Equal(t, 5.0, autoScore(10, key, map[string]string{"q1": "a", "q2": "c", "q3": "paris"}))
	assert.Equal(t, 0.0, autoScore(10, key, nil))
}
