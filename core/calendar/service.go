package calendar

import (
	"context"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/group"
	"github.com/trezcool/academia/core/user"
)

const maxScheduleSpan = 92 * 24 * time.Hour

var (
	ErrEventNotFound   = core.NewNotFoundError("event")
	ErrLectureNotFound = core.NewNotFoundError("lecture")

	errNotOwner      = core.NewAuthorizationError("you can only modify your own events")
	errNotInstructor = core.NewAuthorizationError("only the group instructor or an admin can manage its lectures")
	errNotMember     = core.NewAuthorizationError("you are not a participant of this group")
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, ev Event, exec ...core.DBExecutor) (Event, error)
		GetEvent(ctx context.Context, id string, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, filter EventFilter, exec ...core.DBExecutor) ([]Event, error)
		UpdateEvent(ctx context.Context, ev Event, exec ...core.DBExecutor) (Event, error)
		// DeleteEvent deletes the event and the exceptions recorded against it.
		DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error

		// RecordException is idempotent.
		RecordException(ctx context.Context, seriesID, date string, exec ...core.DBExecutor) error
		IsExcepted(ctx context.Context, seriesID, date string, exec ...core.DBExecutor) (bool, error)
		ListExceptions(ctx context.Context, seriesIDs []string, exec ...core.DBExecutor) ([]Exception, error)

		CreateLecture(ctx context.Context, l Lecture, exec ...core.DBExecutor) (Lecture, error)
		GetLecture(ctx context.Context, id string, exec ...core.DBExecutor) (Lecture, error)
		// QueryLectures returns the lectures of any of filter.GroupIDs or taught by filter.InstructorID.
		QueryLectures(ctx context.Context, filter LectureFilter, exec ...core.DBExecutor) ([]Lecture, error)
		UpdateLecture(ctx context.Context, l Lecture, exec ...core.DBExecutor) (Lecture, error)
		DeleteLecture(ctx context.Context, id string, exec ...core.DBExecutor) error

		// LockGroup serializes lecture writes of a group until the surrounding transaction ends.
		LockGroup(ctx context.Context, groupID string, exec ...core.DBExecutor) error
	}

	GroupDirectory interface {
		GetByID(ctx context.Context, id string) (group.Group, error)
		QueryForParticipant(ctx context.Context, userID string) ([]group.Group, error)
	}

	// LectureNotifier is told about lectures once they are committed.
	LectureNotifier interface {
		LectureScheduled(ctx context.Context, l Lecture, grp group.Group)
	}

	Service struct {
		repo         Repository
		tx           core.Transactor
		groups       GroupDirectory
		detector     *ConflictDetector
		materializer *Materializer
		notifier     LectureNotifier
		validate     *validator.Validate
		logger       core.Logger
		loc          *time.Location
		dayStart     int
		dayEnd       int
	}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	groups GroupDirectory,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
	metrics core.Metrics,
) *Service {
	loc := conf.Location()
	return &Service{
		repo:         repo,
		tx:           tx,
		groups:       groups,
		detector:     NewConflictDetector(repo, loc, conf.Calendar.ConflictHorizon, metrics),
		materializer: NewMaterializer(loc, logger),
		validate:     validate,
		logger:       logger,
		loc:          loc,
		dayStart:     conf.Calendar.DayStartHour,
		dayEnd:       conf.Calendar.DayEndHour,
	}
}

func (svc *Service) SetLectureNotifier(n LectureNotifier) {
	svc.notifier = n
}

func (svc *Service) Location() *time.Location {
	return svc.loc
}

// Personal events

func (svc *Service) CreateEvent(ctx context.Context, actor user.User, ne NewEvent) (Event, error) {
	ne.Clean()
	if err := svc.validate.Struct(ne); err != nil {
		return Event{}, err
	}
	if err := svc.checkEventGroup(ctx, actor, ne.GroupID); err != nil {
		return Event{}, err
	}

	now := core.NowFunc()
	ev := Event{UserID: actor.ID, CreatedAt: now, UpdatedAt: now}
	ne.apply(&ev)

	ev, err := svc.repo.CreateEvent(ctx, ev)
	return ev, errors.Wrap(err, "creating event")
}

// UpdateEvent replaces the definition of one of the actor's events.
func (svc *Service) UpdateEvent(ctx context.Context, actor user.User, id string, ne NewEvent) (Event, error) {
	ev, err := svc.ownEvent(ctx, actor, id)
	if err != nil {
		return Event{}, err
	}
	ne.Clean()
	if err = svc.validate.Struct(ne); err != nil {
		return Event{}, err
	}
	if err = svc.checkEventGroup(ctx, actor, ne.GroupID); err != nil {
		return Event{}, err
	}

	ne.apply(&ev)
	ev.UpdatedAt = core.NowFunc()
	ev, err = svc.repo.UpdateEvent(ctx, ev)
	return ev, errors.Wrap(err, "updating event")
}

// DeleteEvent deletes the whole event, or records an exception for de.DateString when only one occurrence of a
// recurring event goes away.
func (svc *Service) DeleteEvent(ctx context.Context, actor user.User, id string, de DeleteEvent) error {
	ev, err := svc.ownEvent(ctx, actor, id)
	if err != nil {
		return err
	}
	if err = svc.validate.Struct(de); err != nil {
		return err
	}

	if !ev.IsRecurring || de.DeleteAllRecurring {
		return errors.Wrap(svc.repo.DeleteEvent(ctx, ev.ID), "deleting event")
	}

	wd, _ := ParseWeekday(ev.DayOfWeek)
	if err = svc.checkOccurrenceDate(de.DateString, func(day time.Time) bool { return day.Weekday() == wd }); err != nil {
		return err
	}
	return svc.cancelOccurrence(ctx, ev.ID, de.DateString)
}

// cancelOccurrence records an exception for date unless one already exists.
func (svc *Service) cancelOccurrence(ctx context.Context, seriesID, date string) error {
	done, err := svc.repo.IsExcepted(ctx, seriesID, date)
	if err != nil {
		return errors.Wrap(err, "checking exception")
	}
	if done {
		return nil
	}
	return errors.Wrap(svc.repo.RecordException(ctx, seriesID, date), "recording exception")
}

func (svc *Service) checkOccurrenceDate(date string, isOccurrence func(day time.Time) bool) error {
	if date == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "dateString", Error: "this field is required"})
	}
	day, err := time.ParseInLocation(core.DateLayout, date, svc.loc)
	if err != nil || !isOccurrence(day) {
		return core.NewValidationError(nil, core.FieldError{Field: "dateString", Error: "no occurrence on this date"})
	}
	return nil
}

func (svc *Service) ownEvent(ctx context.Context, actor user.User, id string) (Event, error) {
	ev, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if ev.UserID != actor.ID {
		return Event{}, errNotOwner
	}
	return ev, nil
}

func (svc *Service) checkEventGroup(ctx context.Context, actor user.User, groupID string) error {
	if groupID == "" {
		return nil
	}
	grp, err := svc.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !grp.IsParticipant(actor.ID) {
		return errNotMember
	}
	return nil
}

// Schedules

// MySchedule merges the actor's personal events with the lectures of their groups over w.
func (svc *Service) MySchedule(ctx context.Context, actor user.User, w Window) ([]ScheduleItem, error) {
	if err := checkWindow(w); err != nil {
		return nil, err
	}

	events, err := svc.repo.QueryEvents(ctx, EventFilter{UserIDs: []string{actor.ID}})
	if err != nil {
		return nil, errors.Wrap(err, "querying events")
	}

	groups, err := svc.groups.QueryForParticipant(ctx, actor.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	filter := LectureFilter{InstructorID: actor.ID}
	for _, grp := range groups {
		filter.GroupIDs = append(filter.GroupIDs, grp.ID)
	}
	lectures, err := svc.repo.QueryLectures(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying lectures")
	}

	excs, err := svc.exceptionsFor(ctx, events, lectures)
	if err != nil {
		return nil, err
	}
	return svc.materializer.Materialize(w, events, lectures, excs), nil
}

// Week returns the actor's schedule for the Monday-aligned week containing day.
func (svc *Service) Week(ctx context.Context, actor user.User, day time.Time) ([]ScheduleItem, error) {
	return svc.MySchedule(ctx, actor, WeekOf(day.In(svc.loc)))
}

func (svc *Service) ExportICS(ctx context.Context, actor user.User, w Window, out io.Writer) error {
	items, err := svc.MySchedule(ctx, actor, w)
	if err != nil {
		return err
	}
	return EncodeSchedule(out, items)
}

// ImportICS stores the timed single events of a calendar feed as busy events of the actor, all or nothing.
func (svc *Service) ImportICS(ctx context.Context, actor user.User, r io.Reader) ([]Event, ImportResult, error) {
	res, err := ParseICS(r)
	if err != nil {
		return nil, res, core.NewValidationError(err)
	}

	now := core.NowFunc()
	events := make([]Event, 0, len(res.Events))
	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		events = events[:0]
		for _, ne := range res.Events {
			ne.Clean()
			ev := Event{UserID: actor.ID, CreatedAt: now, UpdatedAt: now}
			ne.apply(&ev)
			ev, err := svc.repo.CreateEvent(ctx, ev, exec)
			if err != nil {
				return errors.Wrap(err, "creating imported event")
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, res, err
	}
	return events, res, nil
}

func (svc *Service) exceptionsFor(ctx context.Context, events []Event, lectures []Lecture) (ExceptionSet, error) {
	var ids []string
	for _, ev := range events {
		if ev.IsRecurring {
			ids = append(ids, ev.ID)
		}
	}
	for _, l := range lectures {
		if l.IsRecurring {
			ids = append(ids, l.ID)
		}
	}
	if len(ids) == 0 {
		return ExceptionSet{}, nil
	}
	list, err := svc.repo.ListExceptions(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "listing exceptions")
	}
	return NewExceptionSet(list...), nil
}

func checkWindow(w Window) error {
	if !w.IsValid() {
		return core.NewValidationError(nil, core.FieldError{Field: "end", Error: errEndBeforeStart.Error()})
	}
	if w.End.Sub(w.Start) > maxScheduleSpan {
		return core.NewValidationError(nil, core.FieldError{Field: "end", Error: "window cannot span more than 92 days"})
	}
	return nil
}

// Availability

// GroupAvailability aggregates the personal events of the group students over the week containing day.
func (svc *Service) GroupAvailability(ctx context.Context, actor user.User, groupID string, day time.Time) (Availability, error) {
	grp, err := svc.participantGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	return svc.availability(ctx, grp, WeekOf(day.In(svc.loc)))
}

func (svc *Service) availability(ctx context.Context, grp group.Group, w Window) (Availability, error) {
	members := make(map[string][]Event, len(grp.StudentIDs))
	for _, id := range grp.StudentIDs {
		members[id] = nil
	}
	if len(members) == 0 {
		return AggregateAvailability(w, svc.loc, members, nil, svc.dayStart, svc.dayEnd), nil
	}

	events, err := svc.repo.QueryEvents(ctx, EventFilter{UserIDs: grp.StudentIDs})
	if err != nil {
		return nil, errors.Wrap(err, "querying member events")
	}
	for _, ev := range events {
		members[ev.UserID] = append(members[ev.UserID], ev)
	}
	excs, err := svc.exceptionsFor(ctx, events, nil)
	if err != nil {
		return nil, err
	}
	return AggregateAvailability(w, svc.loc, members, excs, svc.dayStart, svc.dayEnd), nil
}

// SuggestLectureSlots proposes the best blocks of hours for a new lecture of the group in the week containing day.
// Blocks overlapping a lecture of the group are left out.
func (svc *Service) SuggestLectureSlots(ctx context.Context, actor user.User, groupID string, day time.Time, hours, limit int) ([]Slot, error) {
	if hours < 1 || hours > svc.dayEnd-svc.dayStart {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "duration", Error: "duration is out of the day range"})
	}
	if limit < 1 {
		limit = 5
	}
	grp, err := svc.participantGroup(ctx, actor, groupID)
	if err != nil {
		return nil, err
	}
	w := WeekOf(day.In(svc.loc))

	avail, err := svc.availability(ctx, grp, w)
	if err != nil {
		return nil, err
	}
	lectures, err := svc.repo.QueryLectures(ctx, LectureFilter{GroupIDs: []string{grp.ID}})
	if err != nil {
		return nil, errors.Wrap(err, "querying lectures")
	}
	excs, err := svc.exceptionsFor(ctx, nil, lectures)
	if err != nil {
		return nil, err
	}
	booked := svc.materializer.Materialize(w, nil, lectures, excs)
	blocked := make([]Window, 0, len(booked))
	for _, item := range booked {
		blocked = append(blocked, Window{Start: item.Start, End: item.End})
	}
	return SuggestSlots(avail, svc.loc, hours, limit, blocked...)
}

func (svc *Service) participantGroup(ctx context.Context, actor user.User, groupID string) (group.Group, error) {
	grp, err := svc.groups.GetByID(ctx, groupID)
	if err != nil {
		return group.Group{}, err
	}
	if !(actor.IsAdmin() || grp.IsParticipant(actor.ID)) {
		return group.Group{}, errNotMember
	}
	return grp, nil
}

// Lectures

// CreateLecture commits a lecture once no occurrence of it collides with a lecture of the same group or
// instructor. Check and write run in one transaction holding the group lock.
func (svc *Service) CreateLecture(ctx context.Context, actor user.User, nl NewLecture) (Lecture, error) {
	grp, err := svc.prepareLecture(ctx, actor, &nl)
	if err != nil {
		return Lecture{}, err
	}

	now := core.NowFunc()
	l := Lecture{InstructorID: nl.InstructorID, CreatedAt: now, UpdatedAt: now}
	nl.apply(&l)
	l.Status = l.ComputeStatus(now, svc.loc)

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockGroup(ctx, l.GroupID, exec); err != nil {
			return errors.Wrap(err, "locking group")
		}
		if err := svc.detector.Check(ctx, Scope{GroupID: l.GroupID, InstructorID: l.InstructorID}, l, "", exec); err != nil {
			return err
		}
		created, err := svc.repo.CreateLecture(ctx, l, exec)
		if err != nil {
			return errors.Wrap(err, "creating lecture")
		}
		l = created
		return nil
	})
	if err != nil {
		return Lecture{}, err
	}

	if svc.notifier != nil {
		svc.notifier.LectureScheduled(ctx, l, grp)
	}
	return l, nil
}

// UpdateLecture replaces a lecture definition, checking it against every other committed lecture.
func (svc *Service) UpdateLecture(ctx context.Context, actor user.User, id string, nl NewLecture) (Lecture, error) {
	l, err := svc.repo.GetLecture(ctx, id)
	if err != nil {
		return Lecture{}, err
	}
	if err = svc.canManage(ctx, actor, l.GroupID); err != nil {
		return Lecture{}, err
	}
	if nl.InstructorID == "" {
		nl.InstructorID = l.InstructorID
	}
	grp, err := svc.prepareLecture(ctx, actor, &nl)
	if err != nil {
		return Lecture{}, err
	}

	prevGroupID := l.GroupID
	now := core.NowFunc()
	nl.apply(&l)
	l.InstructorID = nl.InstructorID
	l.UpdatedAt = now
	l.Status = l.ComputeStatus(now, svc.loc)

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		for _, gid := range lockOrder(prevGroupID, l.GroupID) {
			if err := svc.repo.LockGroup(ctx, gid, exec); err != nil {
				return errors.Wrap(err, "locking group")
			}
		}
		if err := svc.detector.Check(ctx, Scope{GroupID: l.GroupID, InstructorID: l.InstructorID}, l, l.ID, exec); err != nil {
			return err
		}
		updated, err := svc.repo.UpdateLecture(ctx, l, exec)
		if err != nil {
			return errors.Wrap(err, "updating lecture")
		}
		l = updated
		return nil
	})
	if err != nil {
		return Lecture{}, err
	}

	if svc.notifier != nil {
		svc.notifier.LectureScheduled(ctx, l, grp)
	}
	return l, nil
}

// lockOrder returns the distinct group ids sorted, so concurrent updates lock in the same order.
func lockOrder(a, b string) []string {
	switch {
	case a == b:
		return []string{a}
	case a < b:
		return []string{a, b}
	default:
		return []string{b, a}
	}
}

// DeleteLecture deletes the lecture, or a single occurrence of a recurring one when de.DateString is set.
func (svc *Service) DeleteLecture(ctx context.Context, actor user.User, id string, de DeleteEvent) error {
	l, err := svc.repo.GetLecture(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.canManage(ctx, actor, l.GroupID); err != nil {
		return err
	}
	if err = svc.validate.Struct(de); err != nil {
		return err
	}

	if !l.IsRecurring || de.DeleteAllRecurring || de.DateString == "" {
		return errors.Wrap(svc.repo.DeleteLecture(ctx, l.ID), "deleting lecture")
	}

	isOccurrence := func(day time.Time) bool {
		occs, err := l.Expand(Window{Start: day, End: day.AddDate(0, 0, 1)}, svc.loc, nil)
		if err != nil {
			return false
		}
		for _, occ := range occs {
			if occ.Date == de.DateString {
				return true
			}
		}
		return false
	}
	if err = svc.checkOccurrenceDate(de.DateString, isOccurrence); err != nil {
		return err
	}
	return svc.cancelOccurrence(ctx, l.ID, de.DateString)
}

func (svc *Service) GetLecture(ctx context.Context, id string) (Lecture, error) {
	l, err := svc.repo.GetLecture(ctx, id)
	if err != nil {
		return Lecture{}, err
	}
	l.Status = l.ComputeStatus(core.NowFunc(), svc.loc)
	return l, nil
}

// GroupLectures returns the committed lectures of a group as stored, with their status recomputed.
func (svc *Service) GroupLectures(ctx context.Context, actor user.User, groupID string) ([]Lecture, error) {
	if _, err := svc.participantGroup(ctx, actor, groupID); err != nil {
		return nil, err
	}
	lectures, err := svc.repo.QueryLectures(ctx, LectureFilter{GroupIDs: []string{groupID}})
	if err != nil {
		return nil, errors.Wrap(err, "querying lectures")
	}
	now := core.NowFunc()
	for i := range lectures {
		lectures[i].Status = lectures[i].ComputeStatus(now, svc.loc)
	}
	return lectures, nil
}

// prepareLecture cleans and validates nl, checks the actor manages the target group and defaults the instructor.
func (svc *Service) prepareLecture(ctx context.Context, actor user.User, nl *NewLecture) (group.Group, error) {
	nl.Clean()
	if err := svc.validate.Struct(nl); err != nil {
		return group.Group{}, err
	}
	if err := nl.Validate(svc.loc); err != nil {
		return group.Group{}, err
	}

	grp, err := svc.groups.GetByID(ctx, nl.GroupID)
	if err != nil {
		return group.Group{}, err
	}
	if !(actor.IsAdmin() || grp.InstructorID == actor.ID) {
		return group.Group{}, errNotInstructor
	}
	if nl.InstructorID == "" {
		nl.InstructorID = grp.InstructorID
	}
	return grp, nil
}

func (svc *Service) canManage(ctx context.Context, actor user.User, groupID string) error {
	if actor.IsAdmin() {
		return nil
	}
	grp, err := svc.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if grp.InstructorID != actor.ID {
		return errNotInstructor
	}
	return nil
}
