package attendance

import (
	"errors"
	"fmt"
	"strings"

	"campus/internal/session"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrAlreadyMarked   = errors.New("attendance already marked today")
	ErrSubjectMismatch = errors.New("subject mismatch")
	ErrNotEnrolled     = errors.New("student not enrolled in subject")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflicting attendance record")
	ErrForbidden       = errors.New("access denied")

	ErrNotTeacher = session.ErrNotTeacher
	ErrNotStudent = session.ErrNotStudent
)

// BatchError reports a failed absence batch together with every student id it
// contained, so the same batch can be retried deterministically.
type BatchError struct {
	SubjectID  int64
	Date       string
	StudentIDs []int64
	Err        error
}

func (e *BatchError) Error() string {
	ids := make([]string, len(e.StudentIDs))
	for i, id := range e.StudentIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("marking %d absent for subject %d on %s failed (students %s): %v",
		len(e.StudentIDs), e.SubjectID, e.Date, strings.Join(ids, ","), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Wire codes carried in the "code" field of error responses.
const (
	CodeInvalidToken    = "invalid_token"
	CodeTokenExpired    = "token_expired"
	CodeAlreadyMarked   = "already_marked"
	CodeConflict        = "conflict"
	CodeSubjectMismatch = "subject_mismatch"
	CodeNotEnrolled     = "not_enrolled"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeTeacherRequired = "teacher_required"
	CodeStudentRequired = "student_required"
)

var codeErrors = map[string]error{
	CodeInvalidToken:    ErrInvalidToken,
	CodeTokenExpired:    ErrTokenExpired,
	CodeAlreadyMarked:   ErrAlreadyMarked,
	CodeConflict:        ErrConflict,
	CodeSubjectMismatch: ErrSubjectMismatch,
	CodeNotEnrolled:     ErrNotEnrolled,
	CodeNotFound:        ErrNotFound,
	CodeForbidden:       ErrForbidden,
	CodeTeacherRequired: ErrNotTeacher,
	CodeStudentRequired: ErrNotStudent,
}

// ErrorCode returns the wire code of a domain error, or "" for anything else.
func ErrorCode(err error) string {
	for code, target := range codeErrors {
		if errors.Is(err, target) {
			return code
		}
	}
	return ""
}

// ErrorForCode maps a wire code back to its sentinel; nil when unknown.
func ErrorForCode(code string) error {
	return codeErrors[code]
}
