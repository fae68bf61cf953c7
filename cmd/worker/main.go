package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campus/internal/attendance"
	"campus/internal/config"
	"campus/internal/logging"
	"campus/internal/metrics"
	"campus/internal/queue"
	"campus/internal/session"
	"campus/internal/store"
)

// Worker consumes reconcile jobs and writes the missing ABSENT records.
func main() {
	cfg := config.Load()
	log := logging.New(os.Stderr, cfg.Production(), slog.LevelInfo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error(ctx, "db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
		log.Warn(ctx, "memory queue: only jobs published in this process are seen")
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	w := &worker{
		reconciler: attendance.NewReconciler(attendance.NewRepository(db.Client), time.Now, cfg.Location()),
		metrics:    metrics.New(prometheus.DefaultRegisterer),
		log:        log,
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Error(ctx, "queue consume init failed", "err", err)
		os.Exit(1)
	}

	metricsSrv := metricsServer(":"+cfg.MetricsPort, prometheus.DefaultGatherer)
	go func() {
		log.Info(ctx, "serving metrics", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server failed", "err", err)
		}
	}()

	log.Info(ctx, "worker started, waiting for jobs")
	w.run(ctx, messages)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "metrics server forced shutdown", "err", err)
	}
	log.Info(shutdownCtx, "worker stopped")
}

// metricsServer exposes the worker's collectors for scraping.
func metricsServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type worker struct {
	reconciler *attendance.Reconciler
	metrics    *metrics.Metrics
	log        logging.Logger
}

func (w *worker) run(ctx context.Context, messages <-chan queue.Message) {
	for msg := range messages {
		if msg.Type != queue.TypeReconcile {
			w.log.Warn(ctx, "skipping unknown job", "type", msg.Type)
			continue
		}
		job, err := msg.ReconcileJob()
		if err != nil {
			w.log.Warn(ctx, "skipping malformed job", "err", err)
			continue
		}
		w.reconcile(ctx, job)
	}
}

// reconcile runs one job as the teacher who queued it. Failures are logged
// with the attempted ids; the job is not requeued.
func (w *worker) reconcile(ctx context.Context, job queue.ReconcileJob) {
	log := w.log.With("subject", job.SubjectID, "date", job.Date, "teacher", job.TeacherID)
	res, err := w.reconciler.Reconcile(ctx, session.Teacher(job.TeacherID), job.SubjectID, job.Date)
	if err != nil {
		w.metrics.Reconciliations.WithLabelValues("failed").Inc()
		log.Error(ctx, "reconcile failed", "err", err)
		return
	}
	if res.NothingToDo {
		w.metrics.Reconciliations.WithLabelValues("noop").Inc()
		log.Info(ctx, res.Message())
		return
	}
	w.metrics.Reconciliations.WithLabelValues("marked").Inc()
	w.metrics.AbsencesMarked.Add(float64(len(res.Marked)))
	w.metrics.RecordsCreated.WithLabelValues(string(attendance.StatusAbsent)).Add(float64(len(res.Marked)))
	log.Info(ctx, res.Message())
}
