package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/internal/attendance"
	"campus/internal/logging"
	"campus/internal/metrics"
	"campus/internal/queue"
)

func newTestWorker(t *testing.T) (*worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	// the enrollment and record reads run concurrently
	mock.MatchExpectationsInOrder(false)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	now := func() time.Time { return time.Date(2024, 3, 11, 18, 0, 0, 0, time.UTC) }
	return &worker{
		reconciler: attendance.NewReconciler(attendance.NewRepository(db), now, time.UTC),
		metrics:    metrics.New(prometheus.NewRegistry()),
		log:        logging.Discard(),
	}, mock
}

func runJobs(t *testing.T, w *worker, msgs ...queue.Message) {
	t.Helper()
	ch := make(chan queue.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	w.run(context.Background(), ch)
}

func reconcileMsg(t *testing.T, date string) queue.Message {
	t.Helper()
	msg, err := queue.NewReconcileMessage(queue.ReconcileJob{SubjectID: 2, TeacherID: 11, Date: date})
	require.NoError(t, err)
	return msg
}

func TestWorkerMarksAbsentees(t *testing.T) {
	w, mock := newTestWorker(t)
	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT student_id, subject_id FROM enrollments`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "subject_id"}).
			AddRow(int64(1), int64(2)).AddRow(int64(2), int64(2)).AddRow(int64(3), int64(2)))
	mock.ExpectQuery(`FROM attendance_records WHERE subject_id = \$1 AND date = \$2`).
		WithArgs(int64(2), day).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "subject_id", "date", "status"}).
			AddRow(int64(9), int64(1), int64(2), day, "PRESENT"))
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+attendance_records`).
		WithArgs(int64(2), int64(2), day, "ABSENT").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	mock.ExpectQuery(`INSERT\s+INTO\s+attendance_records`).
		WithArgs(int64(3), int64(2), day, "ABSENT").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectCommit()

	runJobs(t, w, queue.Message{Type: "checkin"}, reconcileMsg(t, ""))

	assert.Equal(t, 2.0, testutil.ToFloat64(w.metrics.AbsencesMarked))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.Reconciliations.WithLabelValues("marked")))
}

func TestWorkerNothingToDo(t *testing.T) {
	w, mock := newTestWorker(t)
	day := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT student_id, subject_id FROM enrollments`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "subject_id"}).AddRow(int64(1), int64(2)))
	mock.ExpectQuery(`FROM attendance_records WHERE subject_id = \$1 AND date = \$2`).
		WithArgs(int64(2), day).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "subject_id", "date", "status"}).
			AddRow(int64(9), int64(1), int64(2), day, "LEAVE"))

	runJobs(t, w, reconcileMsg(t, "2024-03-08"))

	assert.Equal(t, 0.0, testutil.ToFloat64(w.metrics.AbsencesMarked))
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.Reconciliations.WithLabelValues("noop")))
}

func TestWorkerSkipsMalformedJobs(t *testing.T) {
	w, _ := newTestWorker(t)
	runJobs(t, w,
		queue.Message{Type: queue.TypeReconcile, Body: []byte(`{"subjectId":`)},
		reconcileMsg(t, "11/03/2024"),
	)
	assert.Equal(t, 1.0, testutil.ToFloat64(w.metrics.Reconciliations.WithLabelValues("failed")))
}

func TestMetricsServerExposesWorkerCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	w := &worker{
		reconciler: attendance.NewReconciler(nil, nil, time.UTC),
		metrics:    metrics.New(reg),
		log:        logging.Discard(),
	}
	runJobs(t, w, reconcileMsg(t, "not-a-date"))

	srv := metricsServer(":0", reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `campus_attendance_reconciliations_total{outcome="failed"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
