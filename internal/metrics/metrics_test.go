package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRecognition("A_3", OutcomeMatched)
	m.RecordRecognition("", OutcomeUnknown)
	m.RecordRecognition("B_1", OutcomeMatched)
	m.RecordMark("late", "system")
	m.RecordSessionStart(true)
	m.RecordSessionStart(false)
	m.RecordSessionStart(false)
	m.RecordBuild("student", errors.New("no faces"), time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Recognitions.WithLabelValues("students", OutcomeMatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Recognitions.WithLabelValues("teachers", OutcomeUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Marks.WithLabelValues("late", "system")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SessionStarts.WithLabelValues("reused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GalleryBuilds.WithLabelValues("failure")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRecognition("A_3", OutcomeMatched)
	m.RecordMark("present", "manual")
	m.RecordSessionStart(true)
	m.RecordBuild("teacher", nil, time.Second)
	m.ObserveDetect(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	m.RecordMark("present", "system")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `attendance_marks_total{marked_by="system",status="present"} 1`), body)
	assert.Contains(t, body, "go_goroutines")
}
