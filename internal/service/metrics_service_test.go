package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()
	m.RecordValidation(7, 3)
	m.RecordValidation(1, 0)
	m.RecordProvisioning(9, 1, time.Second)
	m.RecordUploadRejected("MISSING_COLUMNS")

	assert.Equal(t, 8.0, testutil.ToFloat64(m.rowsValidated.WithLabelValues(OutcomeAccepted)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.rowsValidated.WithLabelValues(OutcomeRejected)))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.usersProvisioned.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsRejected.WithLabelValues("MISSING_COLUMNS")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "bulk_rows_validated_total")
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordValidation(1, 1)
	m.RecordProvisioning(1, 1, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
