package core

import (
	"context"
	"math/rand"
	"time"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor is satisfied by both *sqlx.DB and *sqlx.Tx so repositories can run inside a transaction.
	DBExecutor interface {
		sqlx.ExtContext
	}

	// Transactor runs fn inside a single database transaction.
	// Any error returned by fn rolls the whole transaction back.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(exec DBExecutor) error) error
	}
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// RetryPolicy bounds how many times a transaction is attempted on transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var sleepFunc = func(ctx context.Context, d time.Duration) error { // mockable
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry calls fn until it succeeds, returns a non transient error or the attempts are exhausted.
// Delays grow exponentially from BaseDelay with up to 50% jitter.
// Exhaustion is reported as a *TransientError wrapping the last failure.
func Retry(ctx context.Context, policy RetryPolicy, isTransient func(error) bool, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		delay := policy.BaseDelay << uint(i)
		if delay > 0 {
			delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
		}
		if sErr := sleepFunc(ctx, delay); sErr != nil {
			return sErr
		}
	}
	return NewTransientError(err)
}
