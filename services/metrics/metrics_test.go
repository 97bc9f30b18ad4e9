package metricsvc

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
)

func TestMetrics(t *testing.T) {
	m := New(core.NewTestConfig())

	m.ConflictDetected("group")
	m.ConflictDetected("group")
	m.ConflictDetected("instructor")
	m.SweepCompleted(10, 3, 1, 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.conflicts.WithLabelValues("group")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.conflicts.WithLabelValues("instructor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweeps))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.sweepItems.WithLabelValues("unchanged")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sweepItems.WithLabelValues("changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepItems.WithLabelValues("failed")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `academia_lecture_conflicts_total{env="TEST",scope="group"} 2`)
}
