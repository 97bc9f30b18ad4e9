package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/calendar"
)

const (
	eventColumns = `id, user_id, group_id, type, title, is_recurring, start_time, end_time,
		day_of_week, recurring_start_time, recurring_end_time, created_at, updated_at`
	lectureColumns = `id, group_id, instructor_id, title, description, location, start_time, end_time,
		is_recurring, recurrence, status, created_at, updated_at`
)

type eventRow struct {
	ID                 string      `db:"id"`
	UserID             string      `db:"user_id"`
	GroupID            null.String `db:"group_id"`
	Kind               string      `db:"type"`
	Title              string      `db:"title"`
	IsRecurring        bool        `db:"is_recurring"`
	StartTime          null.Time   `db:"start_time"`
	EndTime            null.Time   `db:"end_time"`
	DayOfWeek          null.String `db:"day_of_week"`
	RecurringStartTime null.String `db:"recurring_start_time"`
	RecurringEndTime   null.String `db:"recurring_end_time"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func newEventRow(ev calendar.Event) eventRow {
	return eventRow{
		ID:                 ev.ID,
		UserID:             ev.UserID,
		GroupID:            null.NewString(ev.GroupID, ev.GroupID != ""),
		Kind:               string(ev.Kind),
		Title:              ev.Title,
		IsRecurring:        ev.IsRecurring,
		StartTime:          null.TimeFromPtr(ev.StartTime),
		EndTime:            null.TimeFromPtr(ev.EndTime),
		DayOfWeek:          null.NewString(ev.DayOfWeek, ev.DayOfWeek != ""),
		RecurringStartTime: null.NewString(ev.RecurringStartTime, ev.RecurringStartTime != ""),
		RecurringEndTime:   null.NewString(ev.RecurringEndTime, ev.RecurringEndTime != ""),
		CreatedAt:          ev.CreatedAt.UTC(),
		UpdatedAt:          ev.UpdatedAt.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

func (row eventRow) event() calendar.Event {
	return calendar.Event{
		ID:                 row.ID,
		UserID:             row.UserID,
		GroupID:            row.GroupID.String,
		Kind:               calendar.Kind(row.Kind),
		Title:              row.Title,
		IsRecurring:        row.IsRecurring,
		StartTime:          utcPtr(row.StartTime),
		EndTime:            utcPtr(row.EndTime),
		DayOfWeek:          row.DayOfWeek.String,
		RecurringStartTime: row.RecurringStartTime.String,
		RecurringEndTime:   row.RecurringEndTime.String,
		CreatedAt:          row.CreatedAt.UTC(),
		UpdatedAt:          row.UpdatedAt.UTC(),
	}
}

type lectureRow struct {
	ID           string             `db:"id"`
	GroupID      string             `db:"group_id"`
	InstructorID string             `db:"instructor_id"`
	Title        string             `db:"title"`
	Description  string             `db:"description"`
	Location     string             `db:"location"`
	StartTime    time.Time          `db:"start_time"`
	EndTime      time.Time          `db:"end_time"`
	IsRecurring  bool               `db:"is_recurring"`
	Recurrence   types.NullJSONText `db:"recurrence"`
	Status       string             `db:"status"`
	CreatedAt    time.Time          `db:"created_at"`
	UpdatedAt    time.Time          `db:"updated_at"`
}

func newLectureRow(l calendar.Lecture) (lectureRow, error) {
	row := lectureRow{
		ID:           l.ID,
		GroupID:      l.GroupID,
		InstructorID: l.InstructorID,
		Title:        l.Title,
		Description:  l.Description,
		Location:     l.Location,
		StartTime:    l.StartTime.UTC(),
		EndTime:      l.EndTime.UTC(),
		IsRecurring:  l.IsRecurring,
		Status:       string(l.Status),
		CreatedAt:    l.CreatedAt.UTC(),
		UpdatedAt:    l.UpdatedAt.UTC(),
	}
	if row.Status == "" {
		row.Status = string(calendar.LectureScheduled)
	}
	if l.Recurrence != nil {
		b, err := json.Marshal(l.Recurrence)
		if err != nil {
			return lectureRow{}, errors.Wrap(err, "encoding recurrence")
		}
		row.Recurrence = types.NullJSONText{JSONText: b, Valid: true}
	}
	return row, nil
}

func (row lectureRow) lecture() (calendar.Lecture, error) {
	l := calendar.Lecture{
		ID:           row.ID,
		GroupID:      row.GroupID,
		InstructorID: row.InstructorID,
		Title:        row.Title,
		Description:  row.Description,
		Location:     row.Location,
		StartTime:    row.StartTime.UTC(),
		EndTime:      row.EndTime.UTC(),
		IsRecurring:  row.IsRecurring,
		Status:       calendar.LectureStatus(row.Status),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if row.Recurrence.Valid {
		var rule calendar.Rule
		if err := row.Recurrence.Unmarshal(&rule); err != nil {
			return calendar.Lecture{}, errors.Wrapf(err, "decoding recurrence of lecture %s", row.ID)
		}
		l.Recurrence = &rule
	}
	return l, nil
}

type calendarRepository struct {
	base
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(exec core.DBExecutor) calendar.Repository {
	return &calendarRepository{base{exec: exec}}
}

// events

func (repo *calendarRepository) CreateEvent(ctx context.Context, ev calendar.Event, exec ...core.DBExecutor) (calendar.Event, error) {
	exe := repo.getExec(exec)
	ev.ID = uuid.New().String()
	row := newEventRow(ev)
	q := `INSERT INTO calendar_event (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := exe.ExecContext(ctx, exe.Rebind(q),
		row.ID, row.UserID, row.GroupID, row.Kind, row.Title, row.IsRecurring, row.StartTime, row.EndTime,
		row.DayOfWeek, row.RecurringStartTime, row.RecurringEndTime, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return calendar.Event{}, errors.Wrap(err, "inserting event")
	}
	return row.event(), nil
}

func (repo *calendarRepository) GetEvent(ctx context.Context, id string, exec ...core.DBExecutor) (calendar.Event, error) {
	if !isUUID(id) {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	var row eventRow
	if err := get(ctx, repo.getExec(exec), &row, `SELECT `+eventColumns+` FROM calendar_event WHERE id = ?`, id); err != nil {
		return calendar.Event{}, trapNoRowsErr(err, calendar.ErrEventNotFound, "finding event")
	}
	return row.event(), nil
}

func (repo *calendarRepository) QueryEvents(ctx context.Context, filter calendar.EventFilter, exec ...core.DBExecutor) ([]calendar.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM calendar_event WHERE TRUE`
	var args []interface{}
	if len(filter.UserIDs) > 0 {
		q += " AND user_id = ANY(?::uuid[])"
		args = append(args, pq.Array(uuids(filter.UserIDs)))
	}
	if filter.Kind != "" {
		q += " AND type = ?"
		args = append(args, string(filter.Kind))
	}
	q += " ORDER BY created_at"

	var rows []eventRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]calendar.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, row.event())
	}
	return events, nil
}

func (repo *calendarRepository) UpdateEvent(ctx context.Context, ev calendar.Event, exec ...core.DBExecutor) (calendar.Event, error) {
	if !isUUID(ev.ID) {
		return calendar.Event{}, calendar.ErrEventNotFound
	}
	row := newEventRow(ev)
	q := `UPDATE calendar_event SET group_id = ?, type = ?, title = ?, is_recurring = ?, start_time = ?, end_time = ?,
		day_of_week = ?, recurring_start_time = ?, recurring_end_time = ?, updated_at = ? WHERE id = ?`
	err := execAffecting(ctx, repo.getExec(exec), calendar.ErrEventNotFound, "updating event", q,
		row.GroupID, row.Kind, row.Title, row.IsRecurring, row.StartTime, row.EndTime,
		row.DayOfWeek, row.RecurringStartTime, row.RecurringEndTime, row.UpdatedAt, row.ID)
	if err != nil {
		return calendar.Event{}, err
	}
	return row.event(), nil
}

func (repo *calendarRepository) deleteSeries(ctx context.Context, table, id string, notFound error, exec []core.DBExecutor) error {
	if !isUUID(id) {
		return notFound
	}
	exe := repo.getExec(exec)
	if err := execAffecting(ctx, exe, notFound, "deleting "+table, `DELETE FROM `+table+` WHERE id = ?`, id); err != nil {
		return err
	}
	if _, err := exe.ExecContext(ctx, exe.Rebind(`DELETE FROM calendar_exception WHERE series_id = ?`), id); err != nil {
		return errors.Wrap(err, "deleting exceptions")
	}
	return nil
}

func (repo *calendarRepository) DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.deleteSeries(ctx, "calendar_event", id, calendar.ErrEventNotFound, exec)
}

// exceptions

func (repo *calendarRepository) RecordException(ctx context.Context, seriesID, date string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := `INSERT INTO calendar_exception (series_id, date, created_at) VALUES (?, ?::date, ?) ON CONFLICT (series_id, date) DO NOTHING`
	if _, err := exe.ExecContext(ctx, exe.Rebind(q), seriesID, date, core.NowFunc()); err != nil {
		return errors.Wrap(err, "recording exception")
	}
	return nil
}

func (repo *calendarRepository) IsExcepted(ctx context.Context, seriesID, date string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(seriesID) {
		return false, nil
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM calendar_exception WHERE series_id = ? AND date = ?::date)`
	if err := get(ctx, repo.getExec(exec), &exists, q, seriesID, date); err != nil {
		return false, errors.Wrap(err, "checking exception")
	}
	return exists, nil
}

func (repo *calendarRepository) ListExceptions(ctx context.Context, seriesIDs []string, exec ...core.DBExecutor) ([]calendar.Exception, error) {
	var excs []calendar.Exception
	q := `SELECT series_id, to_char(date, 'YYYY-MM-DD') AS date, created_at FROM calendar_exception
		WHERE series_id = ANY(?::uuid[]) ORDER BY series_id, date`
	if err := selectAll(ctx, repo.getExec(exec), &excs, q, pq.Array(uuids(seriesIDs))); err != nil {
		return nil, errors.Wrap(err, "listing exceptions")
	}
	return excs, nil
}

// lectures

func (repo *calendarRepository) CreateLecture(ctx context.Context, l calendar.Lecture, exec ...core.DBExecutor) (calendar.Lecture, error) {
	exe := repo.getExec(exec)
	l.ID = uuid.New().String()
	row, err := newLectureRow(l)
	if err != nil {
		return calendar.Lecture{}, err
	}
	q := `INSERT INTO lecture (` + lectureColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = exe.ExecContext(ctx, exe.Rebind(q),
		row.ID, row.GroupID, row.InstructorID, row.Title, row.Description, row.Location, row.StartTime, row.EndTime,
		row.IsRecurring, row.Recurrence, row.Status, row.CreatedAt, row.UpdatedAt)
	if err != nil {
		return calendar.Lecture{}, errors.Wrap(err, "inserting lecture")
	}
	return row.lecture()
}

func (repo *calendarRepository) GetLecture(ctx context.Context, id string, exec ...core.DBExecutor) (calendar.Lecture, error) {
	if !isUUID(id) {
		return calendar.Lecture{}, calendar.ErrLectureNotFound
	}
	var row lectureRow
	if err := get(ctx, repo.getExec(exec), &row, `SELECT `+lectureColumns+` FROM lecture WHERE id = ?`, id); err != nil {
		return calendar.Lecture{}, trapNoRowsErr(err, calendar.ErrLectureNotFound, "finding lecture")
	}
	return row.lecture()
}

func (repo *calendarRepository) QueryLectures(ctx context.Context, filter calendar.LectureFilter, exec ...core.DBExecutor) ([]calendar.Lecture, error) {
	instructorID := null.NewString(filter.InstructorID, isUUID(filter.InstructorID))
	q := `SELECT ` + lectureColumns + ` FROM lecture
		WHERE group_id = ANY(?::uuid[]) OR instructor_id = ? ORDER BY start_time`

	var rows []lectureRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, pq.Array(uuids(filter.GroupIDs)), instructorID); err != nil {
		return nil, errors.Wrap(err, "querying lectures")
	}
	lectures := make([]calendar.Lecture, 0, len(rows))
	for _, row := range rows {
		l, err := row.lecture()
		if err != nil {
			return nil, err
		}
		lectures = append(lectures, l)
	}
	return lectures, nil
}

func (repo *calendarRepository) UpdateLecture(ctx context.Context, l calendar.Lecture, exec ...core.DBExecutor) (calendar.Lecture, error) {
	if !isUUID(l.ID) {
		return calendar.Lecture{}, calendar.ErrLectureNotFound
	}
	row, err := newLectureRow(l)
	if err != nil {
		return calendar.Lecture{}, err
	}
	q := `UPDATE lecture SET group_id = ?, instructor_id = ?, title = ?, description = ?, location = ?,
		start_time = ?, end_time = ?, is_recurring = ?, recurrence = ?, status = ?, updated_at = ? WHERE id = ?`
	err = execAffecting(ctx, repo.getExec(exec), calendar.ErrLectureNotFound, "updating lecture", q,
		row.GroupID, row.InstructorID, row.Title, row.Description, row.Location,
		row.StartTime, row.EndTime, row.IsRecurring, row.Recurrence, row.Status, row.UpdatedAt, row.ID)
	if err != nil {
		return calendar.Lecture{}, err
	}
	return row.lecture()
}

func (repo *calendarRepository) DeleteLecture(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.deleteSeries(ctx, "lecture", id, calendar.ErrLectureNotFound, exec)
}

// LockGroup takes a transaction scoped advisory lock on the group.
func (repo *calendarRepository) LockGroup(ctx context.Context, groupID string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	if _, err := exe.ExecContext(ctx, exe.Rebind(`SELECT pg_advisory_xact_lock(hashtext(?))`), "lecture:"+groupID); err != nil {
		return errors.Wrap(err, "locking group")
	}
	return nil
}
