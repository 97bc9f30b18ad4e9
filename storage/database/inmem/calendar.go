package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
)

type calendarRepository struct {
	db *DB
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *DB) calendar.Repository {
	return &calendarRepository{db: db}
}

// events

func (repo *calendarRepository) CreateEvent(_ context.Context, ev calendar.Event, _ ...core.DBExecutor) (calendar.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	ev.ID = uuid.New().String()
	repo.db.events[ev.ID] = ev
	return ev, nil
}

func (repo *calendarRepository) GetEvent(_ context.Context, id string, _ ...core.DBExecutor) (calendar.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if ev, ok := repo.db.events[id]; ok {
		return ev, nil
	}
	return calendar.Event{}, calendar.ErrEventNotFound
}

func (repo *calendarRepository) QueryEvents(_ context.Context, filter calendar.EventFilter, _ ...core.DBExecutor) ([]calendar.Event, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	events := make([]calendar.Event, 0)
	for _, ev := range repo.db.events {
		if len(filter.UserIDs) > 0 && !core.ContainsString(filter.UserIDs, ev.UserID) {
			continue
		}
		if filter.Kind != "" && ev.Kind != filter.Kind {
			continue
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (repo *calendarRepository) UpdateEvent(_ context.Context, ev calendar.Event, _ ...core.DBExecutor) (calendar.Event, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.events[ev.ID]; !ok {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	repo.db.events[ev.ID] = ev
	return ev, nil
}

func (repo *calendarRepository) DeleteEvent(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.events[id]; !ok {
		return calendar.ErrEventNotFound
	}
	delete(repo.db.events, id)
	delete(repo.db.exceptions, id)
	return nil
}

// exceptions

func (repo *calendarRepository) RecordException(_ context.Context, seriesID, date string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	dates, ok := repo.db.exceptions[seriesID]
	if !ok {
		dates = make(map[string]calendar.Exception)
		repo.db.exceptions[seriesID] = dates
	}
	if _, ok = dates[date]; !ok {
		dates[date] = calendar.Exception{SeriesID: seriesID, Date: date, CreatedAt: core.NowFunc()}
	}
	return nil
}

func (repo *calendarRepository) IsExcepted(_ context.Context, seriesID, date string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.db.exceptions[seriesID][date]
	return ok, nil
}

func (repo *calendarRepository) ListExceptions(_ context.Context, seriesIDs []string, _ ...core.DBExecutor) ([]calendar.Exception, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var excs []calendar.Exception
	for _, id := range seriesIDs {
		for _, exc := range repo.db.exceptions[id] {
			excs = append(excs, exc)
		}
	}
	sort.Slice(excs, func(i, j int) bool {
		if excs[i].SeriesID == excs[j].SeriesID {
			return excs[i].Date < excs[j].Date
		}
		return excs[i].SeriesID < excs[j].SeriesID
	})
	return excs, nil
}

// lectures

func cloneLecture(l calendar.Lecture) calendar.Lecture {
	if l.Recurrence != nil {
		r := *l.Recurrence
		r.ByWeekday = append([]string(nil), r.ByWeekday...)
		l.Recurrence = &r
	}
	return l
}

func (repo *calendarRepository) CreateLecture(_ context.Context, l calendar.Lecture, _ ...core.DBExecutor) (calendar.Lecture, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	l.ID = uuid.New().String()
	l = cloneLecture(l)
	repo.db.lectures[l.ID] = l
	return cloneLecture(l), nil
}

func (repo *calendarRepository) GetLecture(_ context.Context, id string, _ ...core.DBExecutor) (calendar.Lecture, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.lectures[id]; ok {
		return cloneLecture(l), nil
	}
	return calendar.Lecture{}, calendar.ErrLectureNotFound
}

func (repo *calendarRepository) QueryLectures(_ context.Context, filter calendar.LectureFilter, _ ...core.DBExecutor) ([]calendar.Lecture, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lectures := make([]calendar.Lecture, 0)
	for _, l := range repo.db.lectures {
		if core.ContainsString(filter.GroupIDs, l.GroupID) ||
			(filter.InstructorID != "" && l.InstructorID == filter.InstructorID) {
			lectures = append(lectures, cloneLecture(l))
		}
	}
	sort.Slice(lectures, func(i, j int) bool { return lectures[i].StartTime.Before(lectures[j].StartTime) })
	return lectures, nil
}

func (repo *calendarRepository) UpdateLecture(_ context.Context, l calendar.Lecture, _ ...core.DBExecutor) (calendar.Lecture, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lectures[l.ID]; !ok {
		return calendar.Lecture{}, calendar.ErrLectureNotFound
	}
	l = cloneLecture(l)
	repo.db.lectures[l.ID] = l
	return cloneLecture(l), nil
}

func (repo *calendarRepository) DeleteLecture(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.lectures[id]; !ok {
		return calendar.ErrLectureNotFound
	}
	delete(repo.db.lectures, id)
	delete(repo.db.exceptions, id)
	return nil
}

// LockGroup is a no-op: WithinTx already runs transactions one at a time.
func (repo *calendarRepository) LockGroup(context.Context, string, ...core.DBExecutor) error {
	return nil
}
