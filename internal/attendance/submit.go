package attendance

import (
	"context"
	"fmt"
	"time"

	"campus/internal/session"
)

// Submitter records a student's presence from a scanned token.
type Submitter struct {
	remote SubmitBackend
	now    Clock
	loc    *time.Location
}

func NewSubmitter(remote SubmitBackend, now Clock, loc *time.Location) *Submitter {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Submitter{remote: remote, now: now, loc: loc}
}

// Submit validates the payload, checks expiry, then reads the student's records
// for the subject and stops with ErrAlreadyMarked if one exists for today.
// Only after that read has been evaluated is the single create call made.
func (s *Submitter) Submit(ctx context.Context, sess session.Session, payload string) (Record, error) {
	studentID, err := sess.RequireStudent()
	if err != nil {
		return Record{}, err
	}
	tok, err := DecodePayload(payload)
	if err != nil {
		return Record{}, err
	}
	now := s.now()
	if tok.Expired(now) {
		return Record{}, fmt.Errorf("%w at %s", ErrTokenExpired, tok.ExpiresAt.Format(time.RFC3339))
	}

	today := Day(now, s.loc)
	existing, err := s.remote.RecordsBySubjectStudent(ctx, tok.Subject, studentID)
	if err != nil {
		return Record{}, fmt.Errorf("check existing attendance: %w", err)
	}
	for _, r := range existing {
		if r.Date == today {
			return Record{}, fmt.Errorf("%w (%s)", ErrAlreadyMarked, r.Status)
		}
	}

	rec, err := s.remote.CreateRecord(ctx, NewRecord{
		StudentID: studentID,
		SubjectID: tok.Subject,
		Status:    StatusPresent,
		Token:     tok.Token,
	})
	if err != nil {
		return Record{}, fmt.Errorf("submit attendance: %w", err)
	}
	return rec, nil
}
