// Package metrics holds the Prometheus collectors of the api and the worker.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups every collector. Use New with a registry; tests pass a fresh one.
type Metrics struct {
	TokensIssued     prometheus.Counter
	RecordsCreated   *prometheus.CounterVec
	CheckinsRejected *prometheus.CounterVec
	AbsencesMarked   prometheus.Counter
	Reconciliations  *prometheus.CounterVec
	RateLimited      prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Name:      "attendance_tokens_issued_total",
			Help:      "Attendance tokens minted for teachers.",
		}),
		RecordsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Name:      "attendance_records_created_total",
			Help:      "Attendance records written, by status.",
		}, []string{"status"}),
		CheckinsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Name:      "attendance_checkins_rejected_total",
			Help:      "Student check-ins refused, by reason.",
		}, []string{"reason"}),
		AbsencesMarked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Name:      "attendance_absences_marked_total",
			Help:      "ABSENT records written by reconciliation.",
		}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "campus",
			Name:      "attendance_reconciliations_total",
			Help:      "Reconciliation runs, by outcome.",
		}, []string{"outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "campus",
			Name:      "http_rate_limited_total",
			Help:      "Requests refused by the rate limiter.",
		}),
	}
	reg.MustRegister(m.TokensIssued, m.RecordsCreated, m.CheckinsRejected, m.AbsencesMarked, m.Reconciliations, m.RateLimited)
	return m
}
