package attendance

import (
	"context"
	"fmt"

	"campus/internal/session"
)

// Issuer mints attendance tokens for a teacher and serializes them for the QR code.
type Issuer struct {
	remote TokenMinter
}

func NewIssuer(remote TokenMinter) *Issuer {
	return &Issuer{remote: remote}
}

// Issue requires a teacher session. The remote service decides the validity
// window; failures are returned as-is and never retried.
func (i *Issuer) Issue(ctx context.Context, sess session.Session, subjectID int64) (Token, string, error) {
	if _, err := sess.RequireTeacher(); err != nil {
		return Token{}, "", err
	}
	if subjectID <= 0 {
		return Token{}, "", fmt.Errorf("subject id required")
	}
	tok, err := i.remote.CreateToken(ctx, subjectID)
	if err != nil {
		return Token{}, "", fmt.Errorf("create token: %w", err)
	}
	if tok.Subject != subjectID {
		return Token{}, "", fmt.Errorf("%w: asked for %d, got %d", ErrSubjectMismatch, subjectID, tok.Subject)
	}
	payload, err := EncodePayload(tok)
	if err != nil {
		return Token{}, "", err
	}
	return tok, payload, nil
}
