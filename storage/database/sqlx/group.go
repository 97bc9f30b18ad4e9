package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/group"
)

const groupColumns = `id, name, description, instructor_id, admin_id, created_at, updated_at`

type groupRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Description  string      `db:"description"`
	InstructorID string      `db:"instructor_id"`
	AdminID      null.String `db:"admin_id"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (row groupRow) group() group.Group {
	return group.Group{
		ID:           row.ID,
		Name:         row.Name,
		Description:  row.Description,
		InstructorID: row.InstructorID,
		AdminID:      row.AdminID.String,
		StudentIDs:   []string{},
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type groupRepository struct {
	base
}

var _ group.Repository = (*groupRepository)(nil) // interface compliance check

func NewGroupRepository(exec core.DBExecutor) group.Repository {
	return &groupRepository{base{exec: exec}}
}

func (repo *groupRepository) insertStudents(ctx context.Context, exec core.DBExecutor, groupID string, studentIDs []string) error {
	q := exec.Rebind(`INSERT INTO group_student (group_id, student_id) VALUES (?, ?) ON CONFLICT DO NOTHING`)
	for _, id := range studentIDs {
		if _, err := exec.ExecContext(ctx, q, groupID, id); err != nil {
			return errors.Wrap(err, "inserting group student")
		}
	}
	return nil
}

// loadStudents fills the StudentIDs of groups in enrollment order.
func (repo *groupRepository) loadStudents(ctx context.Context, exec core.DBExecutor, groups []group.Group) error {
	if len(groups) == 0 {
		return nil
	}
	idx := make(map[string]int, len(groups))
	ids := make([]string, 0, len(groups))
	for i, grp := range groups {
		idx[grp.ID] = i
		ids = append(ids, grp.ID)
	}

	var rows []struct {
		GroupID   string `db:"group_id"`
		StudentID string `db:"student_id"`
	}
	q := `SELECT group_id, student_id FROM group_student WHERE group_id = ANY(?::uuid[]) ORDER BY position`
	if err := selectAll(ctx, exec, &rows, q, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "querying group students")
	}
	for _, row := range rows {
		i := idx[row.GroupID]
		groups[i].StudentIDs = append(groups[i].StudentIDs, row.StudentID)
	}
	return nil
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group, exec ...core.DBExecutor) (group.Group, error) {
	exe := repo.getExec(exec)
	grp.ID = uuid.New().String()
	q := `INSERT INTO "group" (` + groupColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := exe.ExecContext(ctx, exe.Rebind(q),
		grp.ID, grp.Name, grp.Description, grp.InstructorID, null.NewString(grp.AdminID, grp.AdminID != ""),
		grp.CreatedAt.UTC(), grp.UpdatedAt.UTC())
	if err != nil {
		return group.Group{}, errors.Wrap(err, "inserting group")
	}
	if err = repo.insertStudents(ctx, exe, grp.ID, grp.StudentIDs); err != nil {
		return group.Group{}, err
	}
	return repo.GetGroup(ctx, grp.ID, exe)
}

func (repo *groupRepository) GetGroup(ctx context.Context, id string, exec ...core.DBExecutor) (group.Group, error) {
	if !isUUID(id) {
		return group.Group{}, group.ErrNotFound
	}
	exe := repo.getExec(exec)

	var row groupRow
	if err := get(ctx, exe, &row, `SELECT `+groupColumns+` FROM "group" WHERE id = ?`, id); err != nil {
		return group.Group{}, trapNoRowsErr(err, group.ErrNotFound, "finding group")
	}
	groups := []group.Group{row.group()}
	if err := repo.loadStudents(ctx, exe, groups); err != nil {
		return group.Group{}, err
	}
	return groups[0], nil
}

func (repo *groupRepository) QueryGroups(ctx context.Context, filter group.QueryFilter, exec ...core.DBExecutor) ([]group.Group, error) {
	exe := repo.getExec(exec)
	q := `SELECT ` + groupColumns + ` FROM "group"`
	var args []interface{}
	if filter.ParticipantID != "" {
		if !isUUID(filter.ParticipantID) {
			return []group.Group{}, nil
		}
		q += ` WHERE instructor_id = ? OR admin_id = ? OR id IN (SELECT group_id FROM group_student WHERE student_id = ?)`
		args = append(args, filter.ParticipantID, filter.ParticipantID, filter.ParticipantID)
	}
	q += " ORDER BY name"

	var rows []groupRow
	if err := selectAll(ctx, exe, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	groups := make([]group.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, row.group())
	}
	if err := repo.loadStudents(ctx, exe, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (repo *groupRepository) AddStudents(ctx context.Context, groupID string, studentIDs []string, exec ...core.DBExecutor) (group.Group, error) {
	if !isUUID(groupID) {
		return group.Group{}, group.ErrNotFound
	}
	exe := repo.getExec(exec)
	q := `UPDATE "group" SET updated_at = ? WHERE id = ?`
	if err := execAffecting(ctx, exe, group.ErrNotFound, "updating group", q, core.NowFunc(), groupID); err != nil {
		return group.Group{}, err
	}
	if err := repo.insertStudents(ctx, exe, groupID, studentIDs); err != nil {
		return group.Group{}, err
	}
	return repo.GetGroup(ctx, groupID, exe)
}
