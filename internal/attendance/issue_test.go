package attendance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/internal/session"
)

func TestIssue_ReturnsTokenAndPayload(t *testing.T) {
	remote := &fakeRemote{token: sampleToken()}
	tok, payload, err := NewIssuer(remote).Issue(context.Background(), session.Teacher(11), 2)
	require.NoError(t, err)
	assert.Equal(t, sampleToken(), tok)

	decoded, err := DecodePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, tok.Token, decoded.Token)
}

func TestIssue_RequiresTeacher(t *testing.T) {
	remote := &fakeRemote{token: sampleToken()}
	_, _, err := NewIssuer(remote).Issue(context.Background(), session.Student(7), 2)
	assert.ErrorIs(t, err, ErrNotTeacher)
	assert.Empty(t, remote.calls)
}

func TestIssue_RemoteErrorNotRetried(t *testing.T) {
	remote := &fakeRemote{tokenErr: errors.New("502 bad gateway")}
	_, _, err := NewIssuer(remote).Issue(context.Background(), session.Teacher(11), 2)
	require.Error(t, err)
	assert.Equal(t, 1, remote.count("CreateToken"))
}

func TestIssue_SubjectMismatch(t *testing.T) {
	remote := &fakeRemote{token: sampleToken()}
	_, _, err := NewIssuer(remote).Issue(context.Background(), session.Teacher(11), 3)
	assert.ErrorIs(t, err, ErrSubjectMismatch)
}
