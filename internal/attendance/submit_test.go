package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/internal/session"
)

var checkinNow = time.Date(2024, 3, 11, 9, 2, 0, 0, time.UTC)

func payloadFor(t *testing.T, tok Token) string {
	t.Helper()
	p, err := EncodePayload(tok)
	require.NoError(t, err)
	return p
}

func TestSubmit_CreatesPresentRecord(t *testing.T) {
	remote := &fakeRemote{}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)
	tok := sampleToken()

	rec, err := s.Submit(context.Background(), session.Student(7), payloadFor(t, tok))
	require.NoError(t, err)
	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, []string{"RecordsBySubjectStudent", "CreateRecord"}, remote.calls)
	require.Len(t, remote.created, 1)
	assert.Equal(t, NewRecord{StudentID: 7, SubjectID: 2, Status: StatusPresent, Token: tok.Token}, remote.created[0])
}

func TestSubmit_DuplicateGuardSkipsWrite(t *testing.T) {
	remote := &fakeRemote{records: []Record{
		{ID: 1, Student: 7, Subject: 2, Date: "2024-03-11", Status: StatusPresent},
	}}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)

	_, err := s.Submit(context.Background(), session.Student(7), payloadFor(t, sampleToken()))
	require.ErrorIs(t, err, ErrAlreadyMarked)
	assert.Equal(t, 1, remote.count("RecordsBySubjectStudent"))
	assert.Equal(t, 0, remote.count("CreateRecord"))
}

func TestSubmit_AbsentTodayAlsoBlocks(t *testing.T) {
	remote := &fakeRemote{records: []Record{
		{ID: 1, Student: 7, Subject: 2, Date: "2024-03-11", Status: StatusAbsent},
	}}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)

	_, err := s.Submit(context.Background(), session.Student(7), payloadFor(t, sampleToken()))
	require.ErrorIs(t, err, ErrAlreadyMarked)
	assert.Equal(t, 0, remote.count("CreateRecord"))
}

func TestSubmit_EarlierDaysDoNotBlock(t *testing.T) {
	remote := &fakeRemote{records: []Record{
		{ID: 1, Student: 7, Subject: 2, Date: "2024-03-10", Status: StatusPresent},
		{ID: 2, Student: 8, Subject: 2, Date: "2024-03-11", Status: StatusPresent},
	}}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)

	_, err := s.Submit(context.Background(), session.Student(7), payloadFor(t, sampleToken()))
	require.NoError(t, err)
	assert.Equal(t, 1, remote.count("CreateRecord"))
}

func TestSubmit_TodayFollowsLocation(t *testing.T) {
	// 23:30 UTC on the 10th is already the 11th in Kolkata.
	now := time.Date(2024, 3, 10, 23, 30, 0, 0, time.UTC)
	loc := time.FixedZone("IST", 5*3600+1800)
	tok := sampleToken()
	tok.GeneratedAt = now.Add(-time.Minute)
	tok.ExpiresAt = now.Add(time.Minute)
	remote := &fakeRemote{records: []Record{
		{ID: 1, Student: 7, Subject: 2, Date: "2024-03-11", Status: StatusPresent},
	}}

	_, err := NewSubmitter(remote, fixedClock(now), loc).Submit(context.Background(), session.Student(7), payloadFor(t, tok))
	assert.ErrorIs(t, err, ErrAlreadyMarked)
}

func TestSubmit_ExpiredTokenMakesNoCalls(t *testing.T) {
	tok := sampleToken()
	for _, after := range []time.Duration{time.Nanosecond, time.Second, 24 * time.Hour} {
		remote := &fakeRemote{}
		s := NewSubmitter(remote, fixedClock(tok.ExpiresAt.Add(after)), time.UTC)

		_, err := s.Submit(context.Background(), session.Student(7), payloadFor(t, tok))
		require.ErrorIs(t, err, ErrTokenExpired)
		assert.Empty(t, remote.calls)
	}
}

func TestSubmit_ExactExpiryIsStillValid(t *testing.T) {
	tok := sampleToken()
	remote := &fakeRemote{}
	_, err := NewSubmitter(remote, fixedClock(tok.ExpiresAt), time.UTC).
		Submit(context.Background(), session.Student(7), payloadFor(t, tok))
	require.NoError(t, err)
}

func TestSubmit_InvalidPayloadMakesNoCalls(t *testing.T) {
	remote := &fakeRemote{}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)

	_, err := s.Submit(context.Background(), session.Student(7), "not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, remote.calls)
}

func TestSubmit_RequiresStudent(t *testing.T) {
	remote := &fakeRemote{}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)
	payload := payloadFor(t, sampleToken())

	_, err := s.Submit(context.Background(), session.Teacher(11), payload)
	assert.ErrorIs(t, err, ErrNotStudent)
	_, err = s.Submit(context.Background(), session.Anonymous(), payload)
	assert.ErrorIs(t, err, session.ErrAnonymous)
	assert.Empty(t, remote.calls)
}

func TestSubmit_ReadFailureStopsBeforeWrite(t *testing.T) {
	remote := &fakeRemote{listErr: errors.New("connection reset")}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)

	_, err := s.Submit(context.Background(), session.Student(7), payloadFor(t, sampleToken()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 0, remote.count("CreateRecord"))
}

func TestSubmit_WriteFailureIsReturned(t *testing.T) {
	remote := &fakeRemote{createErr: ErrAlreadyMarked}
	s := NewSubmitter(remote, fixedClock(checkinNow), time.UTC)

	_, err := s.Submit(context.Background(), session.Student(7), payloadFor(t, sampleToken()))
	assert.ErrorIs(t, err, ErrAlreadyMarked)
	assert.Equal(t, 1, remote.count("CreateRecord"))
}
