package attendance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncodePayload serializes a token into the string carried by the QR code.
func EncodePayload(t Token) (string, error) {
	if err := validateToken(t); err != nil {
		return "", err
	}
	b, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return string(b), nil
}

// DecodePayload parses a scanned QR string back into a token. Anything that is
// not a well-formed token yields an error wrapping ErrInvalidToken.
func DecodePayload(payload string) (Token, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Token{}, fmt.Errorf("%w: empty payload", ErrInvalidToken)
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	var t Token
	if err := dec.Decode(&t); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return Token{}, fmt.Errorf("%w: trailing data", ErrInvalidToken)
	}
	if err := validateToken(t); err != nil {
		return Token{}, err
	}
	return t, nil
}

func validateToken(t Token) error {
	switch {
	case strings.TrimSpace(t.Token) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidToken)
	case t.Subject <= 0:
		return fmt.Errorf("%w: missing subject", ErrInvalidToken)
	case t.GeneratedAt.IsZero() || t.ExpiresAt.IsZero():
		return fmt.Errorf("%w: missing timestamps", ErrInvalidToken)
	case !t.ExpiresAt.After(t.GeneratedAt):
		return fmt.Errorf("%w: expires before it was generated", ErrInvalidToken)
	}
	return nil
}
