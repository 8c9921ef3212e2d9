package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()

	a.CacheLookups.WithLabelValues("hit").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheLookups.WithLabelValues("hit")))
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.SideEffectFailures.WithLabelValues("email").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `side_effect_failures_total{kind="email"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
