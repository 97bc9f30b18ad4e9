package logsvc

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/academia/core/user"
)

func TestKeyvals(t *testing.T) {
	err := errors.New("boom")
	got := keyvals([]interface{}{
		user.User{Username: "bob"},
		map[string]interface{}{"b": 2, "a": 1},
		err,
		42,
	})

	assert.Equal(t, []interface{}{"user", "bob", "a", 1, "b", 2}, got[:6])
	assert.Equal(t, "err", got[6])
	assert.Contains(t, got[7], "boom")
	assert.Equal(t, []interface{}{"arg3", 42}, got[8:])
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{log.NewWithOptions(&buf, log.Options{Level: log.InfoLevel})}

	l.Debug("hidden")
	l.Error("sweep failed", errors.New("db down"), map[string]interface{}{"item": "i-1"})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "sweep failed")
	assert.Contains(t, out, "db down")
	assert.Contains(t, out, "item=i-1")
}
