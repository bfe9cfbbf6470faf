package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ArtifactRequest("card", "issued")
		m.ObserveCompose("card", time.Second)
		m.TemplateCacheHit()
		m.TemplateCacheMiss()
		m.CommitConflict()
		m.BlobDeletion(false)
		m.SetPendingDeletions(3)
		m.TemplateUpdate("card", "updated")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCounters(t *testing.T) {
	m := New()

	m.ArtifactRequest("card", "issued")
	m.ArtifactRequest("card", "issued")
	m.ArtifactRequest("certificate", "not_yet_available")
	m.TemplateCacheHit()
	m.TemplateCacheMiss()
	m.TemplateCacheMiss()
	m.BlobDeletion(true)
	m.BlobDeletion(false)
	m.SetPendingDeletions(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("card", "issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("certificate", "not_yet_available")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.templateCache.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.templateCache.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.blobDeletions.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.pendingDeletions))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.CommitConflict()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "kartei_artifact_commit_conflicts_total 1"))
}
