// Package session models who is using the client: nobody, a student or a teacher.
//
// A Session is passed by value through constructors and calls instead of
// separate role flags, so an unauthenticated caller can never be mistaken for
// user 0.
package session

import (
	"errors"
	"fmt"
	"strconv"
)

// Role names match the "role" JWT claim.
type Role string

const (
	RoleAnonymous Role = ""
	RoleStudent   Role = "student"
	RoleTeacher   Role = "teacher"
)

var (
	ErrAnonymous   = errors.New("not signed in")
	ErrNotTeacher  = errors.New("teacher role required")
	ErrNotStudent  = errors.New("student role required")
	ErrUnknownRole = errors.New("unknown role")
)

// Session is the tagged caller identity. The zero value is Anonymous.
type Session struct {
	role Role
	id   int64
}

func Anonymous() Session { return Session{} }

func Student(id int64) Session { return Session{role: RoleStudent, id: id} }

func Teacher(id int64) Session { return Session{role: RoleTeacher, id: id} }

// FromClaims builds a session from the role and subject claims of an access token.
func FromClaims(role, subject string) (Session, error) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return Anonymous(), fmt.Errorf("invalid subject %q", subject)
	}
	switch Role(role) {
	case RoleStudent:
		return Student(id), nil
	case RoleTeacher:
		return Teacher(id), nil
	default:
		return Anonymous(), fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
}

func (s Session) Role() Role { return s.role }

// ID is the user id; zero for Anonymous.
func (s Session) ID() int64 { return s.id }

func (s Session) IsAnonymous() bool { return s.role == RoleAnonymous }
func (s Session) IsStudent() bool   { return s.role == RoleStudent }
func (s Session) IsTeacher() bool   { return s.role == RoleTeacher }

// RequireTeacher returns the teacher id or an error naming why it is unavailable.
func (s Session) RequireTeacher() (int64, error) {
	switch {
	case s.IsAnonymous():
		return 0, ErrAnonymous
	case !s.IsTeacher():
		return 0, ErrNotTeacher
	}
	return s.id, nil
}

// RequireStudent returns the student id or an error naming why it is unavailable.
func (s Session) RequireStudent() (int64, error) {
	switch {
	case s.IsAnonymous():
		return 0, ErrAnonymous
	case !s.IsStudent():
		return 0, ErrNotStudent
	}
	return s.id, nil
}

func (s Session) String() string {
	if s.IsAnonymous() {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%d", s.role, s.id)
}
