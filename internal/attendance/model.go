package attendance

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-day format used on the wire and in storage.
const DateLayout = "2006-01-02"

// Status of an attendance record.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLeave   Status = "LEAVE"
)

// ParseStatus accepts any letter case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPresent, StatusAbsent, StatusLeave:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Token is a short-lived, subject-scoped attendance credential minted for a teacher.
// Its JSON form is embedded verbatim in the QR code.
type Token struct {
	Token       string    `json:"token"`
	Subject     int64     `json:"subject"`
	Teacher     int64     `json:"teacher,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether now is strictly after the expiry instant.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Record is one attendance entry for a student, subject and calendar day.
type Record struct {
	ID      int64  `json:"id"`
	Student int64  `json:"studentId"`
	Subject int64  `json:"subjectId"`
	Date    string `json:"date"`
	Status  Status `json:"status"`
}

// NewRecord is the create request for a Record. Date defaults to the server's
// today when empty; Token is required when a student submits for themselves.
type NewRecord struct {
	StudentID int64  `json:"studentId" binding:"required,gt=0"`
	SubjectID int64  `json:"subjectId" binding:"required,gt=0"`
	Status    Status `json:"status" binding:"required,oneof=PRESENT ABSENT LEAVE"`
	Date      string `json:"date,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Enrollment is a static student-subject membership.
type Enrollment struct {
	Student int64 `json:"studentId"`
	Subject int64 `json:"subjectId"`
}

// Subject is read-only reference data.
type Subject struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Code    string `json:"code"`
	Teacher int64  `json:"teacherId"`
}

// Day formats t as a calendar day in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar day.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// Clock returns the current time; swapped in tests.
type Clock func() time.Time
