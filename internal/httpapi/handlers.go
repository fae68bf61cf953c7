package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"campus/internal/attendance"
	"campus/internal/auth"
	"campus/internal/queue"
)

func (s *Server) login(c *gin.Context) {
	var req struct {
		UserID   int64  `json:"userId" binding:"required,gt=0"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	acct, err := s.store.GetAccount(ctx, req.UserID)
	if errors.Is(err, attendance.ErrNotFound) {
		s.writeError(c, auth.ErrBadCredentials)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)) != nil {
		s.writeError(c, auth.ErrBadCredentials)
		return
	}
	s.issueSession(c, acct)
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if _, err := auth.ParseRefresh(req.RefreshToken, s.opts.SigningKey, s.opts.Issuer); err != nil {
		s.writeError(c, auth.ErrBadCredentials)
		return
	}
	ctx := c.Request.Context()
	userID, err := s.store.ConsumeRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, attendance.ErrNotFound) {
		s.writeError(c, auth.ErrBadCredentials)
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.issueSession(c, acct)
}

func (s *Server) issueSession(c *gin.Context, acct attendance.Account) {
	pair, err := auth.Issue(acct.ID, acct.Role, s.opts.Issuer, s.opts.SigningKey, s.opts.AccessTTL, s.opts.RefreshTTL)
	if err != nil {
		s.writeError(c, fmt.Errorf("issue tokens: %w", err))
		return
	}
	if err := s.store.SaveRefreshToken(c.Request.Context(), acct.ID, pair.RefreshToken, pair.RefreshExp); err != nil {
		s.writeError(c, fmt.Errorf("save refresh token: %w", err))
		return
	}
	c.JSON(http.StatusCreated, pair)
}

func (s *Server) listSubjects(c *gin.Context) {
	sess := auth.Current(c)
	var (
		subjects []attendance.Subject
		err      error
	)
	if sess.IsTeacher() {
		subjects, err = s.store.SubjectsForTeacher(c.Request.Context(), sess.ID())
	} else {
		subjects, err = s.store.SubjectsForStudent(c.Request.Context(), sess.ID())
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subjects})
}

// ownSubject fails unless teacherID runs subjectID.
func (s *Server) ownSubject(ctx context.Context, teacherID, subjectID int64) error {
	subj, err := s.store.GetSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	if subj.Teacher != teacherID {
		return fmt.Errorf("%w: subject %d belongs to another teacher", attendance.ErrForbidden, subjectID)
	}
	return nil
}

func (s *Server) createToken(c *gin.Context) {
	var req struct {
		SubjectID int64 `json:"subjectId" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	teacherID := auth.Current(c).ID()
	if err := s.ownSubject(ctx, teacherID, req.SubjectID); err != nil {
		s.writeError(c, err)
		return
	}
	tok, err := s.tokens.Mint(ctx, req.SubjectID, teacherID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.TokensIssued.Inc()
	s.log.Info(ctx, "attendance token issued", "subject", req.SubjectID, "teacher", teacherID, "expiresAt", tok.ExpiresAt)
	c.JSON(http.StatusCreated, tok)
}

func (s *Server) createRecord(c *gin.Context) {
	var req attendance.NewRecord
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	sess := auth.Current(c)
	var (
		rec attendance.Record
		err error
	)
	if sess.IsStudent() {
		rec, err = s.checkin(c.Request.Context(), sess.ID(), req)
	} else {
		rec, err = s.markByTeacher(c.Request.Context(), sess.ID(), req)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.metrics.RecordsCreated.WithLabelValues(string(rec.Status)).Inc()
	c.JSON(http.StatusCreated, rec)
}

// checkin is a student marking themselves present with a live token, today only.
func (s *Server) checkin(ctx context.Context, studentID int64, req attendance.NewRecord) (attendance.Record, error) {
	var rec attendance.Record
	nr, err := s.validateCheckin(ctx, studentID, req)
	if err == nil {
		rec, err = s.store.InsertRecord(ctx, nr)
	}
	if err != nil {
		reason := rejectReason(err)
		s.metrics.CheckinsRejected.WithLabelValues(reason).Inc()
		s.log.Debug(ctx, "check-in rejected", "student", studentID, "subject", req.SubjectID, "reason", reason)
		return attendance.Record{}, err
	}
	s.log.Info(ctx, "student checked in", "student", studentID, "subject", req.SubjectID)
	return rec, nil
}

func (s *Server) validateCheckin(ctx context.Context, studentID int64, req attendance.NewRecord) (attendance.NewRecord, error) {
	if req.StudentID != studentID {
		return req, fmt.Errorf("%w: students can only mark themselves", attendance.ErrForbidden)
	}
	if req.Status != attendance.StatusPresent {
		return req, fmt.Errorf("%w: students can only mark PRESENT", attendance.ErrForbidden)
	}
	today := s.today()
	if req.Date != "" && req.Date != today {
		return req, fmt.Errorf("%w: check-in is only accepted for %s", errBadInput, today)
	}
	req.Date = today
	if _, err := s.tokens.Verify(ctx, req.Token, req.SubjectID); err != nil {
		return req, err
	}
	if err := s.requireEnrolled(ctx, studentID, req.SubjectID); err != nil {
		return req, err
	}
	return req, nil
}

// markByTeacher writes any status for an enrolled student of the teacher's subject.
func (s *Server) markByTeacher(ctx context.Context, teacherID int64, req attendance.NewRecord) (attendance.Record, error) {
	if err := s.ownSubject(ctx, teacherID, req.SubjectID); err != nil {
		return attendance.Record{}, err
	}
	rec, err := s.prepareTeacherRecord(req)
	if err != nil {
		return attendance.Record{}, err
	}
	if err := s.requireEnrolled(ctx, rec.StudentID, rec.SubjectID); err != nil {
		return attendance.Record{}, err
	}
	return s.store.InsertRecord(ctx, rec)
}

func (s *Server) requireEnrolled(ctx context.Context, studentID, subjectID int64) error {
	ok, err := s.store.IsEnrolled(ctx, studentID, subjectID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: student %d in subject %d", attendance.ErrNotEnrolled, studentID, subjectID)
	}
	return nil
}

// prepareTeacherRecord defaults the date to today and drops any token.
func (s *Server) prepareTeacherRecord(req attendance.NewRecord) (attendance.NewRecord, error) {
	if req.Date == "" {
		req.Date = s.today()
	}
	if !attendance.ValidDate(req.Date) {
		return req, errBadDate(req.Date)
	}
	req.Token = ""
	return req, nil
}

func (s *Server) createRecords(c *gin.Context) {
	var req struct {
		Records []attendance.NewRecord `json:"records" binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	teacherID := auth.Current(c).ID()
	owned := map[int64]bool{}
	for i, rec := range req.Records {
		if !owned[rec.SubjectID] {
			if err := s.ownSubject(ctx, teacherID, rec.SubjectID); err != nil {
				s.writeError(c, err)
				return
			}
			owned[rec.SubjectID] = true
		}
		prepared, err := s.prepareTeacherRecord(rec)
		if err != nil {
			s.writeError(c, err)
			return
		}
		if err := s.requireEnrolled(ctx, prepared.StudentID, prepared.SubjectID); err != nil {
			s.writeError(c, err)
			return
		}
		req.Records[i] = prepared
	}
	created, err := s.store.CreateRecords(ctx, req.Records)
	if err != nil {
		s.writeError(c, err)
		return
	}
	for _, rec := range created {
		s.metrics.RecordsCreated.WithLabelValues(string(rec.Status)).Inc()
	}
	c.JSON(http.StatusCreated, gin.H{"records": created})
}

func (s *Server) recordsBySubjectDate(c *gin.Context) {
	subjectID, err := strconv.ParseInt(c.Query("subjectId"), 10, 64)
	if err != nil || subjectID <= 0 {
		badRequest(c, "subjectId query parameter required")
		return
	}
	date := c.Query("date")
	if !attendance.ValidDate(date) {
		badRequest(c, errBadDate(date).Error())
		return
	}
	ctx := c.Request.Context()
	sess := auth.Current(c)
	if sess.IsTeacher() {
		if err := s.ownSubject(ctx, sess.ID(), subjectID); err != nil {
			s.writeError(c, err)
			return
		}
	}
	records, err := s.store.RecordsBySubjectDate(ctx, subjectID, date)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if sess.IsStudent() {
		records = onlyStudent(records, sess.ID())
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) recordsBySubject(c *gin.Context) {
	subjectID, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess := auth.Current(c)
	var (
		records []attendance.Record
		err     error
	)
	if sess.IsStudent() {
		records, err = s.store.RecordsBySubjectStudent(ctx, subjectID, sess.ID())
	} else if err = s.ownSubject(ctx, sess.ID(), subjectID); err == nil {
		records, err = s.store.RecordsBySubject(ctx, subjectID)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) recordsByStudent(c *gin.Context) {
	studentID, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess := auth.Current(c)
	if sess.IsStudent() && sess.ID() != studentID {
		forbidden(c, "students can only read their own records")
		return
	}
	records, err := s.store.RecordsByStudent(ctx, studentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if sess.IsTeacher() {
		subjects, err := s.store.SubjectsForTeacher(ctx, sess.ID())
		if err != nil {
			s.writeError(c, err)
			return
		}
		records = inSubjects(records, subjects)
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) recordsBySubjectStudent(c *gin.Context) {
	subjectID, ok := idParam(c, "id")
	if !ok {
		return
	}
	studentID, ok := idParam(c, "studentId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sess := auth.Current(c)
	if sess.IsStudent() && sess.ID() != studentID {
		forbidden(c, "students can only read their own records")
		return
	}
	if sess.IsTeacher() {
		if err := s.ownSubject(ctx, sess.ID(), subjectID); err != nil {
			s.writeError(c, err)
			return
		}
	}
	records, err := s.store.RecordsBySubjectStudent(ctx, subjectID, studentID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) enrollments(c *gin.Context) {
	subjectID, ok := idParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := s.ownSubject(ctx, auth.Current(c).ID(), subjectID); err != nil {
		s.writeError(c, err)
		return
	}
	list, err := s.store.Enrollments(ctx, subjectID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": list})
}

// enqueueReconcile hands an absence reconciliation to the worker.
func (s *Server) enqueueReconcile(c *gin.Context) {
	var req struct {
		SubjectID int64  `json:"subjectId" binding:"required,gt=0"`
		Date      string `json:"date"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Date == "" {
		req.Date = s.today()
	}
	if !attendance.ValidDate(req.Date) {
		badRequest(c, errBadDate(req.Date).Error())
		return
	}
	ctx := c.Request.Context()
	teacherID := auth.Current(c).ID()
	if err := s.ownSubject(ctx, teacherID, req.SubjectID); err != nil {
		s.writeError(c, err)
		return
	}
	msg, err := queue.NewReconcileMessage(queue.ReconcileJob{SubjectID: req.SubjectID, TeacherID: teacherID, Date: req.Date})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := s.queue.Publish(ctx, msg); err != nil {
		s.writeError(c, fmt.Errorf("queue publish: %w", err))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "subjectId": req.SubjectID, "date": req.Date})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

var errBadInput = errors.New("bad request")

func errBadDate(date string) error {
	return fmt.Errorf("%w: date %q must be YYYY-MM-DD", errBadInput, date)
}

func rejectReason(err error) string {
	if code := attendance.ErrorCode(err); code != "" {
		return code
	}
	if errors.Is(err, errBadInput) {
		return "bad_request"
	}
	return "error"
}

func onlyStudent(records []attendance.Record, studentID int64) []attendance.Record {
	out := []attendance.Record{}
	for _, r := range records {
		if r.Student == studentID {
			out = append(out, r)
		}
	}
	return out
}

func inSubjects(records []attendance.Record, subjects []attendance.Subject) []attendance.Record {
	own := make(map[int64]bool, len(subjects))
	for _, s := range subjects {
		own[s.ID] = true
	}
	out := []attendance.Record{}
	for _, r := range records {
		if own[r.Subject] {
			out = append(out, r)
		}
	}
	return out
}
