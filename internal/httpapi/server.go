// Package httpapi serves the campus attendance REST contract over gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campus/internal/attendance"
	"campus/internal/auth"
	"campus/internal/httpmiddleware"
	"campus/internal/logging"
	"campus/internal/metrics"
	"campus/internal/queue"
)

// Store is the persistence the handlers need; *attendance.Repository implements it.
type Store interface {
	GetAccount(ctx context.Context, id int64) (attendance.Account, error)
	SaveRefreshToken(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, token string) (int64, error)

	GetSubject(ctx context.Context, id int64) (attendance.Subject, error)
	SubjectsForTeacher(ctx context.Context, teacherID int64) ([]attendance.Subject, error)
	SubjectsForStudent(ctx context.Context, studentID int64) ([]attendance.Subject, error)
	IsEnrolled(ctx context.Context, studentID, subjectID int64) (bool, error)
	Enrollments(ctx context.Context, subjectID int64) ([]attendance.Enrollment, error)

	InsertRecord(ctx context.Context, rec attendance.NewRecord) (attendance.Record, error)
	CreateRecords(ctx context.Context, recs []attendance.NewRecord) ([]attendance.Record, error)
	RecordsBySubjectDate(ctx context.Context, subjectID int64, date string) ([]attendance.Record, error)
	RecordsBySubject(ctx context.Context, subjectID int64) ([]attendance.Record, error)
	RecordsByStudent(ctx context.Context, studentID int64) ([]attendance.Record, error)
	RecordsBySubjectStudent(ctx context.Context, subjectID, studentID int64) ([]attendance.Record, error)
}

// Tokens mints and verifies attendance tokens; *tokens.Minter implements it.
type Tokens interface {
	Mint(ctx context.Context, subjectID, teacherID int64) (attendance.Token, error)
	Verify(ctx context.Context, id string, subjectID int64) (attendance.Token, error)
}

// Options configures a Server.
type Options struct {
	SigningKey      string
	Issuer          string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	Location        *time.Location
	RateLimitPerMin int
	Production      bool
	Now             attendance.Clock
	// Health checks reported by /healthz, by name.
	Health map[string]func(context.Context) bool
}

// Server holds the handler dependencies.
type Server struct {
	opts    Options
	store   Store
	tokens  Tokens
	queue   queue.Queue
	metrics *metrics.Metrics
	log     logging.Logger
}

func New(opts Options, store Store, tokens Tokens, q queue.Queue, m *metrics.Metrics, log logging.Logger) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Server{opts: opts, store: store, tokens: tokens, queue: q, metrics: m, log: log}
}

func (s *Server) today() string {
	return attendance.Day(s.opts.Now(), s.opts.Location)
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders(s.opts.Production))

	limiter := httpmiddleware.NewTokenBucket(s.opts.RateLimitPerMin, s.opts.RateLimitPerMin, s.metrics.RateLimited.Inc)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.POST("/sessions", limiter.Middleware(httpmiddleware.ClientIP), s.login)
	v1.POST("/sessions/refresh", limiter.Middleware(httpmiddleware.ClientIP), s.refresh)

	authed := v1.Group("", auth.Authenticate(s.opts.SigningKey, s.opts.Issuer), limiter.Middleware(sessionKey))
	authed.GET("/subjects", s.listSubjects)
	authed.POST("/attendance", s.createRecord)
	authed.GET("/attendance/subject-date", s.recordsBySubjectDate)
	authed.GET("/attendance/subject/:id", s.recordsBySubject)
	authed.GET("/attendance/subject/:id/student/:studentId", s.recordsBySubjectStudent)
	authed.GET("/attendance/student/:id", s.recordsByStudent)

	teacher := authed.Group("", auth.RequireTeacher())
	teacher.POST("/attendance_token", s.createToken)
	teacher.POST("/attendance/bulk", s.createRecords)
	teacher.GET("/enrollment/subject/:id", s.enrollments)
	teacher.POST("/reconcile", s.enqueueReconcile)

	return r
}

func sessionKey(c *gin.Context) string {
	return auth.Current(c).String()
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.opts.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func securityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
