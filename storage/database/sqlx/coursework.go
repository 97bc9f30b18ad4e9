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
	"github.com/trezcool/academia/core/coursework"
)

const (
	templateColumns = `id, kind, group_id, author_id, title, description, points, available_from, due_at,
		allow_late, answer_key, created_at`
	itemColumns = `id, template_id, student_id, group_id, kind, title, points, available_from, due_at,
		allow_late, status, started_at, submission, grade, created_at, updated_at`
	retakeColumns = `id, target_type, target_id, student_id, group_id, reason, state, new_due_at, comment,
		decided_by, created_at, decided_at`
)

// nullJSON encodes v, or returns NULL when v is nil.
func nullJSON(v interface{}, isNil bool) (types.NullJSONText, error) {
	if isNil {
		return types.NullJSONText{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return types.NullJSONText{}, err
	}
	return types.NullJSONText{JSONText: b, Valid: true}, nil
}

type templateRow struct {
	ID            string             `db:"id"`
	Kind          string             `db:"kind"`
	GroupID       string             `db:"group_id"`
	AuthorID      string             `db:"author_id"`
	Title         string             `db:"title"`
	Description   string             `db:"description"`
	Points        float64            `db:"points"`
	AvailableFrom time.Time          `db:"available_from"`
	DueAt         time.Time          `db:"due_at"`
	AllowLate     bool               `db:"allow_late"`
	AnswerKey     types.NullJSONText `db:"answer_key"`
	CreatedAt     time.Time          `db:"created_at"`
}

func (row templateRow) template() (coursework.Template, error) {
	tmpl := coursework.Template{
		ID:            row.ID,
		Kind:          coursework.Kind(row.Kind),
		GroupID:       row.GroupID,
		AuthorID:      row.AuthorID,
		Title:         row.Title,
		Description:   row.Description,
		Points:        row.Points,
		AvailableFrom: row.AvailableFrom.UTC(),
		DueAt:         row.DueAt.UTC(),
		AllowLate:     row.AllowLate,
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if row.AnswerKey.Valid {
		if err := row.AnswerKey.Unmarshal(&tmpl.AnswerKey); err != nil {
			return coursework.Template{}, errors.Wrapf(err, "decoding answer key of template %s", row.ID)
		}
	}
	return tmpl, nil
}

type itemRow struct {
	ID            string             `db:"id"`
	TemplateID    string             `db:"template_id"`
	StudentID     string             `db:"student_id"`
	GroupID       string             `db:"group_id"`
	Kind          string             `db:"kind"`
	Title         string             `db:"title"`
	Points        float64            `db:"points"`
	AvailableFrom time.Time          `db:"available_from"`
	DueAt         time.Time          `db:"due_at"`
	AllowLate     bool               `db:"allow_late"`
	Status        string             `db:"status"`
	StartedAt     null.Time          `db:"started_at"`
	Submission    types.NullJSONText `db:"submission"`
	Grade         types.NullJSONText `db:"grade"`
	CreatedAt     time.Time          `db:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at"`
}

func newItemRow(item coursework.WorkItem) (itemRow, error) {
	row := itemRow{
		ID:            item.ID,
		TemplateID:    item.TemplateID,
		StudentID:     item.StudentID,
		GroupID:       item.GroupID,
		Kind:          string(item.Kind),
		Title:         item.Title,
		Points:        item.Points,
		AvailableFrom: item.AvailableFrom.UTC(),
		DueAt:         item.DueAt.UTC(),
		AllowLate:     item.AllowLate,
		Status:        string(item.Status),
		StartedAt:     null.TimeFromPtr(item.StartedAt),
		CreatedAt:     item.CreatedAt.UTC(),
		UpdatedAt:     item.UpdatedAt.UTC(),
	}
	var err error
	if row.Submission, err = nullJSON(item.Submission, item.Submission == nil); err != nil {
		return itemRow{}, errors.Wrap(err, "encoding submission")
	}
	if row.Grade, err = nullJSON(item.Grade, item.Grade == nil); err != nil {
		return itemRow{}, errors.Wrap(err, "encoding grade")
	}
	return row, nil
}

func (row itemRow) item() (coursework.WorkItem, error) {
	item := coursework.WorkItem{
		ID:            row.ID,
		TemplateID:    row.TemplateID,
		StudentID:     row.StudentID,
		GroupID:       row.GroupID,
		Kind:          coursework.Kind(row.Kind),
		Title:         row.Title,
		Points:        row.Points,
		AvailableFrom: row.AvailableFrom.UTC(),
		DueAt:         row.DueAt.UTC(),
		AllowLate:     row.AllowLate,
		Status:        coursework.Status(row.Status),
		StartedAt:     utcPtr(row.StartedAt),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if row.Submission.Valid {
		item.Submission = new(coursework.Submission)
		if err := row.Submission.Unmarshal(item.Submission); err != nil {
			return coursework.WorkItem{}, errors.Wrapf(err, "decoding submission of work item %s", row.ID)
		}
	}
	if row.Grade.Valid {
		item.Grade = new(coursework.Grade)
		if err := row.Grade.Unmarshal(item.Grade); err != nil {
			return coursework.WorkItem{}, errors.Wrapf(err, "decoding grade of work item %s", row.ID)
		}
	}
	return item, nil
}

type retakeRow struct {
	ID         string      `db:"id"`
	TargetType string      `db:"target_type"`
	TargetID   string      `db:"target_id"`
	StudentID  string      `db:"student_id"`
	GroupID    string      `db:"group_id"`
	Reason     string      `db:"reason"`
	State      string      `db:"state"`
	NewDueAt   null.Time   `db:"new_due_at"`
	Comment    string      `db:"comment"`
	DecidedBy  null.String `db:"decided_by"`
	CreatedAt  time.Time   `db:"created_at"`
	DecidedAt  null.Time   `db:"decided_at"`
}

func newRetakeRow(req coursework.RetakeRequest) (retakeRow, error) {
	if req.Target == nil {
		return retakeRow{}, errors.New("retake request without target")
	}
	return retakeRow{
		ID:         req.ID,
		TargetType: string(req.Target.Kind()),
		TargetID:   req.Target.WorkItemID(),
		StudentID:  req.StudentID,
		GroupID:    req.GroupID,
		Reason:     req.Reason,
		State:      string(req.State),
		NewDueAt:   null.TimeFromPtr(req.NewDueAt),
		Comment:    req.Comment,
		DecidedBy:  null.NewString(req.DecidedBy, req.DecidedBy != ""),
		CreatedAt:  req.CreatedAt.UTC(),
		DecidedAt:  null.TimeFromPtr(req.DecidedAt),
	}, nil
}

func (row retakeRow) request() (coursework.RetakeRequest, error) {
	target, err := coursework.NewRetakeTarget(coursework.Kind(row.TargetType), row.TargetID)
	if err != nil {
		return coursework.RetakeRequest{}, err
	}
	return coursework.RetakeRequest{
		ID:        row.ID,
		Target:    target,
		StudentID: row.StudentID,
		GroupID:   row.GroupID,
		Reason:    row.Reason,
		State:     coursework.RetakeState(row.State),
		NewDueAt:  utcPtr(row.NewDueAt),
		Comment:   row.Comment,
		DecidedBy: row.DecidedBy.String,
		CreatedAt: row.CreatedAt.UTC(),
		DecidedAt: utcPtr(row.DecidedAt),
	}, nil
}

type courseworkRepository struct {
	base
}

var (
	_ coursework.Repository = (*courseworkRepository)(nil) // interface compliance check
	_ coursework.Ledger     = (*courseworkRepository)(nil) // interface compliance check
)

// NewCourseworkRepository returns a store implementing both coursework.Repository and coursework.Ledger.
func NewCourseworkRepository(exec core.DBExecutor) interface {
	coursework.Repository
	coursework.Ledger
} {
	return &courseworkRepository{base{exec: exec}}
}

// templates

func (repo *courseworkRepository) CreateTemplate(ctx context.Context, tmpl coursework.Template, exec ...core.DBExecutor) (coursework.Template, error) {
	exe := repo.getExec(exec)
	tmpl.ID = uuid.New().String()
	answerKey, err := nullJSON(tmpl.AnswerKey, tmpl.AnswerKey == nil)
	if err != nil {
		return coursework.Template{}, errors.Wrap(err, "encoding answer key")
	}
	q := `INSERT INTO coursework_template (` + templateColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = exe.ExecContext(ctx, exe.Rebind(q),
		tmpl.ID, string(tmpl.Kind), tmpl.GroupID, tmpl.AuthorID, tmpl.Title, tmpl.Description, tmpl.Points,
		tmpl.AvailableFrom.UTC(), tmpl.DueAt.UTC(), tmpl.AllowLate, answerKey, tmpl.CreatedAt.UTC())
	if err != nil {
		return coursework.Template{}, errors.Wrap(err, "inserting template")
	}
	return tmpl, nil
}

func (repo *courseworkRepository) GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (coursework.Template, error) {
	if !isUUID(id) {
		return coursework.Template{}, coursework.ErrTemplateNotFound
	}
	var row templateRow
	q := `SELECT ` + templateColumns + ` FROM coursework_template WHERE id = ?`
	if err := get(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return coursework.Template{}, trapNoRowsErr(err, coursework.ErrTemplateNotFound, "finding template")
	}
	return row.template()
}

// work items

func (repo *courseworkRepository) CreateWorkItems(ctx context.Context, items []coursework.WorkItem, exec ...core.DBExecutor) ([]coursework.WorkItem, error) {
	exe := repo.getExec(exec)
	q := exe.Rebind(`INSERT INTO work_item (` + itemColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	created := make([]coursework.WorkItem, 0, len(items))
	for _, item := range items {
		item.ID = uuid.New().String()
		row, err := newItemRow(item)
		if err != nil {
			return nil, err
		}
		_, err = exe.ExecContext(ctx, q,
			row.ID, row.TemplateID, row.StudentID, row.GroupID, row.Kind, row.Title, row.Points,
			row.AvailableFrom, row.DueAt, row.AllowLate, row.Status, row.StartedAt, row.Submission, row.Grade,
			row.CreatedAt, row.UpdatedAt)
		if err != nil {
			return nil, errors.Wrapf(err, "inserting work item of student %s", item.StudentID)
		}
		created = append(created, item)
	}
	return created, nil
}

func (repo *courseworkRepository) GetWorkItem(ctx context.Context, id string, exec ...core.DBExecutor) (coursework.WorkItem, error) {
	if !isUUID(id) {
		return coursework.WorkItem{}, coursework.ErrItemNotFound
	}
	var row itemRow
	if err := get(ctx, repo.getExec(exec), &row, `SELECT `+itemColumns+` FROM work_item WHERE id = ?`, id); err != nil {
		return coursework.WorkItem{}, trapNoRowsErr(err, coursework.ErrItemNotFound, "finding work item")
	}
	return row.item()
}

func statusStrings(statuses []coursework.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func (repo *courseworkRepository) QueryWorkItems(ctx context.Context, filter coursework.WorkItemFilter, exec ...core.DBExecutor) ([]coursework.WorkItem, error) {
	q := `SELECT ` + itemColumns + ` FROM work_item WHERE TRUE`
	var args []interface{}
	if filter.StudentID != "" {
		q += " AND student_id = ?"
		args = append(args, null.NewString(filter.StudentID, isUUID(filter.StudentID)))
	}
	if filter.TemplateID != "" {
		q += " AND template_id = ?"
		args = append(args, null.NewString(filter.TemplateID, isUUID(filter.TemplateID)))
	}
	if filter.Kind != "" {
		q += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if len(filter.Statuses) > 0 {
		q += " AND status = ANY(?)"
		args = append(args, pq.Array(statusStrings(filter.Statuses)))
	}
	if len(filter.NotStatuses) > 0 {
		q += " AND NOT (status = ANY(?))"
		args = append(args, pq.Array(statusStrings(filter.NotStatuses)))
	}
	q += " ORDER BY due_at, id"

	var rows []itemRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying work items")
	}
	items := make([]coursework.WorkItem, 0, len(rows))
	for _, row := range rows {
		item, err := row.item()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (repo *courseworkRepository) UpdateWorkItem(ctx context.Context, item coursework.WorkItem, exec ...core.DBExecutor) (coursework.WorkItem, error) {
	if !isUUID(item.ID) {
		return coursework.WorkItem{}, coursework.ErrItemNotFound
	}
	row, err := newItemRow(item)
	if err != nil {
		return coursework.WorkItem{}, err
	}
	q := `UPDATE work_item SET available_from = ?, due_at = ?, status = ?, started_at = ?, submission = ?, grade = ?, updated_at = ?
		WHERE id = ?`
	err = execAffecting(ctx, repo.getExec(exec), coursework.ErrItemNotFound, "updating work item", q,
		row.AvailableFrom, row.DueAt, row.Status, row.StartedAt, row.Submission, row.Grade, row.UpdatedAt, row.ID)
	if err != nil {
		return coursework.WorkItem{}, err
	}
	return item, nil
}

// retake requests

func (repo *courseworkRepository) CreateRetakeRequest(ctx context.Context, req coursework.RetakeRequest, exec ...core.DBExecutor) (coursework.RetakeRequest, error) {
	exe := repo.getExec(exec)
	req.ID = uuid.New().String()
	row, err := newRetakeRow(req)
	if err != nil {
		return coursework.RetakeRequest{}, err
	}
	q := `INSERT INTO retake_request (` + retakeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = exe.ExecContext(ctx, exe.Rebind(q),
		row.ID, row.TargetType, row.TargetID, row.StudentID, row.GroupID, row.Reason, row.State,
		row.NewDueAt, row.Comment, row.DecidedBy, row.CreatedAt, row.DecidedAt)
	if err != nil {
		return coursework.RetakeRequest{}, errors.Wrap(err, "inserting retake request")
	}
	return req, nil
}

func (repo *courseworkRepository) GetRetakeRequest(ctx context.Context, id string, exec ...core.DBExecutor) (coursework.RetakeRequest, error) {
	if !isUUID(id) {
		return coursework.RetakeRequest{}, coursework.ErrRetakeNotFound
	}
	var row retakeRow
	q := `SELECT ` + retakeColumns + ` FROM retake_request WHERE id = ?`
	if err := get(ctx, repo.getExec(exec), &row, q, id); err != nil {
		return coursework.RetakeRequest{}, trapNoRowsErr(err, coursework.ErrRetakeNotFound, "finding retake request")
	}
	return row.request()
}

func (repo *courseworkRepository) UpdateRetakeRequest(ctx context.Context, req coursework.RetakeRequest, exec ...core.DBExecutor) (coursework.RetakeRequest, error) {
	if !isUUID(req.ID) {
		return coursework.RetakeRequest{}, coursework.ErrRetakeNotFound
	}
	row, err := newRetakeRow(req)
	if err != nil {
		return coursework.RetakeRequest{}, err
	}
	q := `UPDATE retake_request SET state = ?, new_due_at = ?, comment = ?, decided_by = ?, decided_at = ? WHERE id = ?`
	err = execAffecting(ctx, repo.getExec(exec), coursework.ErrRetakeNotFound, "updating retake request", q,
		row.State, row.NewDueAt, row.Comment, row.DecidedBy, row.DecidedAt, row.ID)
	if err != nil {
		return coursework.RetakeRequest{}, err
	}
	return req, nil
}

func (repo *courseworkRepository) HasPendingRetake(ctx context.Context, itemID string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(itemID) {
		return false, nil
	}
	var exists bool
	q := `SELECT EXISTS (SELECT 1 FROM retake_request WHERE target_id = ? AND state = ?)`
	if err := get(ctx, repo.getExec(exec), &exists, q, itemID, string(coursework.RetakePending)); err != nil {
		return false, errors.Wrap(err, "checking pending retake")
	}
	return exists, nil
}

// ledger

func (repo *courseworkRepository) UpsertEntry(ctx context.Context, entry coursework.LedgerEntry, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := `INSERT INTO points_ledger (source_id, source_type, student_id, group_id, points, awarded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, source_type) DO UPDATE SET points = EXCLUDED.points, awarded_at = EXCLUDED.awarded_at`
	_, err := exe.ExecContext(ctx, exe.Rebind(q),
		entry.SourceID, string(entry.SourceType), entry.StudentID, entry.GroupID, entry.Points, entry.AwardedAt.UTC())
	return errors.Wrap(err, "upserting ledger entry")
}

func (repo *courseworkRepository) DeleteEntry(ctx context.Context, sourceID string, sourceType coursework.Kind, exec ...core.DBExecutor) error {
	if !isUUID(sourceID) {
		return nil
	}
	exe := repo.getExec(exec)
	q := `DELETE FROM points_ledger WHERE source_id = ? AND source_type = ?`
	_, err := exe.ExecContext(ctx, exe.Rebind(q), sourceID, string(sourceType))
	return errors.Wrap(err, "deleting ledger entry")
}
