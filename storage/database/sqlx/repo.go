package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

// base holds the executor used when the service does not pass its own transaction.
type base struct {
	exec core.DBExecutor
}

func (repo base) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// uuids drops the values that cannot be stored in a uuid column.
func uuids(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// execAffecting runs q and returns notFound when no row was touched.
func execAffecting(ctx context.Context, exec core.DBExecutor, notFound error, msg, q string, args ...interface{}) error {
	res, err := exec.ExecContext(ctx, exec.Rebind(q), args...)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func get(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	return sqlx.GetContext(ctx, exec, dest, exec.Rebind(q), args...)
}

func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(q), args...)
}
