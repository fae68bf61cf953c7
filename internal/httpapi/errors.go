package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus/internal/attendance"
	"campus/internal/auth"
)

var codeStatus = map[string]int{
	attendance.CodeInvalidToken:    http.StatusBadRequest,
	attendance.CodeTokenExpired:    http.StatusGone,
	attendance.CodeAlreadyMarked:   http.StatusConflict,
	attendance.CodeConflict:        http.StatusConflict,
	attendance.CodeSubjectMismatch: http.StatusBadRequest,
	attendance.CodeNotEnrolled:     http.StatusForbidden,
	attendance.CodeNotFound:        http.StatusNotFound,
	attendance.CodeForbidden:       http.StatusForbidden,
	attendance.CodeTeacherRequired: http.StatusForbidden,
	attendance.CodeStudentRequired: http.StatusForbidden,
}

// writeError maps domain errors to their status and code; anything else is a
// logged 500 without details.
func (s *Server) writeError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrBadCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "bad_credentials"})
		return
	}
	if errors.Is(err, errBadInput) {
		badRequest(c, err.Error())
		return
	}
	if code := attendance.ErrorCode(err); code != "" {
		c.JSON(codeStatus[code], gin.H{"error": err.Error(), "code": code})
		return
	}
	s.log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "bad_request"})
}

func forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, gin.H{"error": msg, "code": attendance.CodeForbidden})
}
