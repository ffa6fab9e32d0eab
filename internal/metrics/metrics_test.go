package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.Score(KindLocal)
	m.Score(KindLocal)
	m.Score(KindAI)
	m.CacheLookup(CacheHit)
	m.AIRequest("batch", "ok")
	m.RateLimitWait()
	m.ObserveBatch(2 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scores.WithLabelValues(KindLocal)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scores.WithLabelValues(KindAI)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues(CacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aiRequests.WithLabelValues("batch", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rateLimitWaits))
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Score(KindLocal)
		m.CacheLookup(CacheMiss)
		m.AIRequest("single", "error")
		m.RateLimitWait()
		m.ObserveBatch(time.Second)
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New()
	m.Score(KindFallback)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `jobmatch_scores_total{kind="fallback"} 1`)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveBatch(time.Second)

	count, err := testutil.GatherAndCount(m.Registry(), "jobmatch_ai_batch_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
