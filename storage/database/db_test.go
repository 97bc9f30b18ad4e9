package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pq.Error{Code: pqSerializationFailure}, true},
		{"deadlock", &pq.Error{Code: pqDeadlockDetected}, true},
		{"wrapped", errors.Wrap(&pq.Error{Code: pqSerializationFailure}, "updating lecture"), true},
		{"unique violation", &pq.Error{Code: pqUniqueViolation}, false},
		{"other", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
	assert.True(t, IsUniqueViolation(errors.Wrap(&pq.Error{Code: pqUniqueViolation}, "inserting")))
}

func TestRetry_exhaustion(t *testing.T) {
	var calls int
	err := core.Retry(context.Background(), core.RetryPolicy{MaxAttempts: 3}, IsTransient, func() error {
		calls++
		return &pq.Error{Code: pqSerializationFailure}
	})
	assert.Equal(t, 3, calls)
	var transient *core.TransientError
	require.True(t, errors.As(err, &transient))
	assert.True(t, IsTransient(transient.Err))

	calls = 0
	err = core.Retry(context.Background(), core.RetryPolicy{MaxAttempts: 3}, IsTransient, func() error {
		calls++
		if calls < 2 {
			return &pq.Error{Code: pqDeadlockDetected}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMigrate(t *testing.T) {
	var gotCommand, gotDir string
	var gotArgs []string
	gooseRunFunc = func(command string, _ *sql.DB, dir string, args ...string) error {
		gotCommand, gotDir, gotArgs = command, dir, args
		return nil
	}

	require.NoError(t, Migrate(nil, "up-to", "3"))
	assert.Equal(t, "up-to", gotCommand)
	assert.Equal(t, "migrations", gotDir)
	assert.Equal(t, []string{"3"}, gotArgs)

	gooseRunFunc = func(string, *sql.DB, string, ...string) error { return errors.New("no such command") }
	assert.EqualError(t, Migrate(nil, "lol"), "migrating database (lol): no such command")
}
