package calendar_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
	"github.com/trezcool/academia/core/group"
	"github.com/trezcool/academia/core/user"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
	testutil "github.com/trezcool/academia/tests"
)

type fixture struct {
	repo     calendar.Repository
	svc      *calendar.Service
	metrics  *testutil.Metrics
	teacher  user.User
	teacher2 user.User
	student  user.User
	student2 user.User
	g1, g2   group.Group
}

func setup(t *testing.T) fixture {
	testutil.FreezeTime(t, time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)) // a Saturday

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	grpRepo := inmemdb.NewGroupRepository(db)
	repo := inmemdb.NewCalendarRepository(db)
	validate, _ := testutil.NewValidator()
	logger := new(testutil.Logger)
	metrics := new(testutil.Metrics)

	f := fixture{repo: repo, metrics: metrics}
	f.teacher = testutil.CreateUser(t, usrRepo, "Ada", "ada", "ada@test.cd", "", []string{user.RoleTeacher}, true)
	f.teacher2 = testutil.CreateUser(t, usrRepo, "Alan", "alan", "alan@test.cd", "", []string{user.RoleTeacher}, true)
	f.student = testutil.CreateUser(t, usrRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleStudent}, true)
	f.student2 = testutil.CreateUser(t, usrRepo, "Eve", "eve", "eve@test.cd", "", []string{user.RoleStudent}, true)
	f.g1 = testutil.CreateGroup(t, grpRepo, "G1", f.teacher.ID, f.student.ID, f.student2.ID)
	f.g2 = testutil.CreateGroup(t, grpRepo, "G2", f.teacher2.ID, f.student.ID)

	groups := group.NewService(grpRepo, nil, validate, logger)
	f.svc = calendar.NewService(repo, db, groups, validate, core.NewTestConfig(), logger, metrics)
	return f
}

func at(d, h, m int) time.Time {
	return time.Date(2024, 6, d, h, m, 0, 0, time.UTC)
}

func single(groupID, title string, start, end time.Time) calendar.NewLecture {
	return calendar.NewLecture{GroupID: groupID, Title: title, StartTime: start, EndTime: end}
}

func TestService_CreateLecture_conflicts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0)))
	require.NoError(t, err)
	assert.Equal(t, f.teacher.ID, a.InstructorID)
	assert.Equal(t, calendar.LectureScheduled, a.Status)

	_, err = f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Biology", at(4, 14, 30), at(4, 15, 30)))
	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, "Algebra", conflict.Title)
	assert.Contains(t, err.Error(), "Algebra")

	lectures, err := f.repo.QueryLectures(ctx, calendar.LectureFilter{GroupIDs: []string{f.g1.ID}})
	require.NoError(t, err)
	assert.Len(t, lectures, 1, "rejected lecture must not be stored")

	c, err := f.svc.CreateLecture(ctx, f.teacher2, single(f.g2.ID, "Chemistry", at(4, 14, 30), at(4, 15, 30)))
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, 1, f.metrics.Conflicts["group"])
}

func TestService_CreateLecture_instructorBusyElsewhere(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0)))
	require.NoError(t, err)

	nl := single(f.g2.ID, "Geometry", at(4, 14, 30), at(4, 15, 30))
	nl.InstructorID = f.teacher.ID
	_, err = f.svc.CreateLecture(ctx, f.teacher2, nl)
	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, "Algebra", conflict.Title)
	assert.Equal(t, 1, f.metrics.Conflicts["instructor"])
}

func TestService_CreateLecture_access(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateLecture(ctx, f.student, single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0)))
	var authErr *core.AuthorizationError
	assert.True(t, errors.As(err, &authErr))

	_, err = f.svc.CreateLecture(ctx, f.teacher2, single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0)))
	assert.True(t, errors.As(err, &authErr))

	_, err = f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Algebra", at(4, 15, 0), at(4, 14, 0)))
	var valErr *core.ValidationError
	assert.True(t, errors.As(err, &valErr))

	recurring := single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0))
	recurring.IsRecurring = true
	_, err = f.svc.CreateLecture(ctx, f.teacher, recurring)
	assert.True(t, errors.As(err, &valErr))
}

func TestService_UpdateLecture(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0)))
	require.NoError(t, err)
	b, err := f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Biology", at(4, 16, 0), at(4, 17, 0)))
	require.NoError(t, err)

	// moving a lecture over itself is fine
	moved, err := f.svc.UpdateLecture(ctx, f.teacher, a.ID, single(f.g1.ID, "Algebra", at(4, 14, 30), at(4, 15, 30)))
	require.NoError(t, err)
	assert.Equal(t, at(4, 14, 30), moved.StartTime)

	_, err = f.svc.UpdateLecture(ctx, f.teacher, a.ID, single(f.g1.ID, "Algebra", at(4, 16, 30), at(4, 17, 30)))
	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, b.Title, conflict.Title)

	stored, err := f.svc.GetLecture(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, at(4, 14, 30), stored.StartTime, "failed update must not be stored")
}

func TestService_recurringLectureConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	weekly := single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0))
	weekly.IsRecurring = true
	weekly.Recurrence = &calendar.Rule{Frequency: calendar.FrequencyWeekly, ByWeekday: []string{"tuesday"}}
	_, err := f.svc.CreateLecture(ctx, f.teacher, weekly)
	require.NoError(t, err)

	// a single lecture six weeks later collides with the series
	_, err = f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Exam", at(4, 14, 0).AddDate(0, 0, 42), at(4, 16, 0).AddDate(0, 0, 42)))
	var conflict *core.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "Algebra", conflict.Title)

	// but not on another day
	_, err = f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Exam", at(5, 14, 0), at(5, 16, 0)))
	assert.NoError(t, err)
}

func TestService_DeleteLecture_occurrence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	weekly := single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0))
	weekly.IsRecurring = true
	weekly.Recurrence = &calendar.Rule{Frequency: calendar.FrequencyWeekly, ByWeekday: []string{"tuesday"}}
	l, err := f.svc.CreateLecture(ctx, f.teacher, weekly)
	require.NoError(t, err)

	err = f.svc.DeleteLecture(ctx, f.teacher, l.ID, calendar.DeleteEvent{DateString: "2024-06-05"})
	var valErr *core.ValidationError
	assert.True(t, errors.As(err, &valErr), "not an occurrence date")

	require.NoError(t, f.svc.DeleteLecture(ctx, f.teacher, l.ID, calendar.DeleteEvent{DateString: "2024-06-11"}))

	// the cancelled occurrence frees its slot
	_, err = f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Exam", at(11, 14, 0), at(11, 15, 0)))
	require.NoError(t, err)

	items, err := f.svc.MySchedule(ctx, f.student, calendar.Window{Start: at(10, 0, 0), End: at(17, 0, 0)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Exam", items[0].Title)

	require.NoError(t, f.svc.DeleteLecture(ctx, f.teacher, l.ID, calendar.DeleteEvent{DeleteAllRecurring: true}))
	_, err = f.svc.GetLecture(ctx, l.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_DeleteEvent_exceptionIdempotence(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ev, err := f.svc.CreateEvent(ctx, f.student, calendar.NewEvent{
		Kind:               calendar.KindBusy,
		Title:              "Football",
		IsRecurring:        true,
		DayOfWeek:          "monday",
		RecurringStartTime: "10:00",
		RecurringEndTime:   "11:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "Monday", ev.DayOfWeek)

	week := calendar.WeekOf(at(3, 0, 0))
	items, err := f.svc.MySchedule(ctx, f.student, week)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2024-06-03", items[0].Date)
	assert.Equal(t, "10:00", items[0].StartLocal)
	assert.Equal(t, "11:00", items[0].EndLocal)

	del := calendar.DeleteEvent{DateString: "2024-06-03"}
	require.NoError(t, f.svc.DeleteEvent(ctx, f.student, ev.ID, del))
	require.NoError(t, f.svc.DeleteEvent(ctx, f.student, ev.ID, del))

	excs, err := f.repo.ListExceptions(ctx, []string{ev.ID})
	require.NoError(t, err)
	assert.Len(t, excs, 1)

	items, err = f.svc.MySchedule(ctx, f.student, week)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.svc.MySchedule(ctx, f.student, calendar.WeekOf(at(10, 0, 0)))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	err = f.svc.DeleteEvent(ctx, f.student, ev.ID, calendar.DeleteEvent{DateString: "2024-06-04"})
	var valErr *core.ValidationError
	assert.True(t, errors.As(err, &valErr), "2024-06-04 is a Tuesday")

	// deleting the series drops its exceptions too
	require.NoError(t, f.svc.DeleteEvent(ctx, f.student, ev.ID, calendar.DeleteEvent{DeleteAllRecurring: true}))
	excs, err = f.repo.ListExceptions(ctx, []string{ev.ID})
	require.NoError(t, err)
	assert.Empty(t, excs)
}

func TestService_events_ownership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	start, end := at(4, 9, 0), at(4, 10, 0)
	ev, err := f.svc.CreateEvent(ctx, f.student, calendar.NewEvent{Kind: calendar.KindPreferred, StartTime: &start, EndTime: &end})
	require.NoError(t, err)

	var authErr *core.AuthorizationError
	err = f.svc.DeleteEvent(ctx, f.student2, ev.ID, calendar.DeleteEvent{})
	assert.True(t, errors.As(err, &authErr))
	_, err = f.svc.UpdateEvent(ctx, f.student2, ev.ID, calendar.NewEvent{Kind: calendar.KindBusy, StartTime: &start, EndTime: &end})
	assert.True(t, errors.As(err, &authErr))

	// joining a group the actor is not part of
	_, err = f.svc.CreateEvent(ctx, f.student2, calendar.NewEvent{Kind: calendar.KindBusy, GroupID: f.g2.ID, StartTime: &start, EndTime: &end})
	assert.True(t, errors.As(err, &authErr))

	_, err = f.svc.CreateEvent(ctx, f.student, calendar.NewEvent{Kind: calendar.KindBusy, StartTime: &end, EndTime: &start})
	assert.Error(t, err)
	events, err := f.repo.QueryEvents(ctx, calendar.EventFilter{UserIDs: []string{f.student.ID}})
	require.NoError(t, err)
	assert.Len(t, events, 1, "invalid event must not be stored")

	updated, err := f.svc.UpdateEvent(ctx, f.student, ev.ID, calendar.NewEvent{Kind: calendar.KindBusy, Title: "Dentist", StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	assert.Equal(t, calendar.KindBusy, updated.Kind)
	assert.Equal(t, "Dentist", updated.Title)

	require.NoError(t, f.svc.DeleteEvent(ctx, f.student, ev.ID, calendar.DeleteEvent{}))
	_, err = f.repo.GetEvent(ctx, ev.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_MySchedule(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	start, end := at(4, 9, 0), at(4, 10, 0)
	_, err := f.svc.CreateEvent(ctx, f.student, calendar.NewEvent{Kind: calendar.KindBusy, Title: "Dentist", StartTime: &start, EndTime: &end})
	require.NoError(t, err)
	_, err = f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Algebra", at(4, 14, 0), at(4, 15, 0)))
	require.NoError(t, err)
	_, err = f.svc.CreateLecture(ctx, f.teacher2, single(f.g2.ID, "Chemistry", at(3, 8, 0), at(3, 9, 0)))
	require.NoError(t, err)

	week := calendar.WeekOf(at(5, 12, 0))
	items, err := f.svc.MySchedule(ctx, f.student, week)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"Chemistry", "Dentist", "Algebra"}, []string{items[0].Title, items[1].Title, items[2].Title})
	assert.Equal(t, calendar.SourceLecture, items[0].Source)
	assert.Equal(t, calendar.SourceEvent, items[1].Source)

	// teachers see the lectures they teach
	items, err = f.svc.MySchedule(ctx, f.teacher, week)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Algebra", items[0].Title)

	_, err = f.svc.MySchedule(ctx, f.student, calendar.Window{Start: at(5, 0, 0), End: at(4, 0, 0)})
	var valErr *core.ValidationError
	assert.True(t, errors.As(err, &valErr))
	_, err = f.svc.MySchedule(ctx, f.student, calendar.Window{Start: at(1, 0, 0), End: at(1, 0, 0).AddDate(0, 6, 0)})
	assert.True(t, errors.As(err, &valErr))
}

func TestService_ImportICS(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	feed := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:1@test",
		"SUMMARY:Dentist",
		"DTSTART:20240604T090000Z",
		"DTEND:20240604T100000Z",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:2@test",
		"SUMMARY:Holidays",
		"DTSTART;VALUE=DATE:20240610",
		"DTEND;VALUE=DATE:20240611",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	events, res, err := f.svc.ImportICS(ctx, f.student, strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "Dentist", events[0].Title)
	assert.Equal(t, calendar.KindBusy, events[0].Kind)
	assert.Equal(t, f.student.ID, events[0].UserID)

	var out strings.Builder
	require.NoError(t, f.svc.ExportICS(ctx, f.student, calendar.WeekOf(at(4, 0, 0)), &out))
	assert.Contains(t, out.String(), "SUMMARY:Dentist")
}

func TestService_availability(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	mk := func(actor user.User, kind calendar.Kind, day, from, to int) {
		start, end := at(day, from, 0), at(day, to, 0)
		_, err := f.svc.CreateEvent(ctx, actor, calendar.NewEvent{Kind: kind, StartTime: &start, EndTime: &end})
		require.NoError(t, err)
	}
	mk(f.student, calendar.KindPreferred, 4, 9, 11)
	mk(f.student2, calendar.KindPreferred, 4, 9, 10)
	mk(f.student2, calendar.KindBusy, 4, 10, 11)

	avail, err := f.svc.GroupAvailability(ctx, f.student, f.g1.ID, at(5, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 1.0, avail["2024-06-04"][9])
	assert.Equal(t, 0.0, avail["2024-06-04"][10], "busy cancels preferred")
	assert.Equal(t, 0.0, avail["2024-06-05"][9])

	slots, err := f.svc.SuggestLectureSlots(ctx, f.teacher, f.g1.ID, at(5, 0, 0), 1, 3)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, at(4, 9, 0), slots[0].Start)

	// once booked the slot is no longer suggested
	_, err = f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Algebra", at(4, 9, 0), at(4, 10, 0)))
	require.NoError(t, err)
	slots, err = f.svc.SuggestLectureSlots(ctx, f.teacher, f.g1.ID, at(5, 0, 0), 1, 3)
	require.NoError(t, err)
	for _, s := range slots {
		assert.NotEqual(t, at(4, 9, 0), s.Start)
	}

	_, err = f.svc.GroupAvailability(ctx, f.teacher2, f.g1.ID, at(5, 0, 0))
	var authErr *core.AuthorizationError
	assert.True(t, errors.As(err, &authErr))
}

func TestService_SuggestLectureSlots_skipsBookedBlocks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, student := range []user.User{f.student, f.student2} {
		start, end := at(4, 8, 0), at(4, 11, 0)
		_, err := f.svc.CreateEvent(ctx, student, calendar.NewEvent{Kind: calendar.KindPreferred, StartTime: &start, EndTime: &end})
		require.NoError(t, err)
	}
	_, err := f.svc.CreateLecture(ctx, f.teacher, single(f.g1.ID, "Booked", at(4, 8, 0), at(4, 9, 0)))
	require.NoError(t, err)

	slots, err := f.svc.SuggestLectureSlots(ctx, f.teacher, f.g1.ID, at(4, 0, 0), 2, 1)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, at(4, 9, 0), slots[0].Start)
	assert.Equal(t, at(4, 11, 0), slots[0].End)
	assert.Equal(t, 1.0, slots[0].Score)
}
