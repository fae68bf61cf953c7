// Package qr renders attendance payloads as QR codes and reads them back from
// camera frames.
package qr

import (
	"errors"
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
)

// DefaultSize is the rendered edge length in pixels.
const DefaultSize = 320

// ErrRender is returned for payloads that cannot be encoded.
var ErrRender = errors.New("qr render failed")

// level is fixed so every rendered code has the same error correction.
const level = qrcode.Medium

func encoder(payload string) (*qrcode.QRCode, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrRender)
	}
	q, err := qrcode.New(payload, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return q, nil
}

// Render encodes payload verbatim into a size x size image.
func Render(payload string, size int) (image.Image, error) {
	q, err := encoder(payload)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultSize
	}
	return q.Image(size), nil
}

// RenderPNG is Render encoded as PNG bytes.
func RenderPNG(payload string, size int) ([]byte, error) {
	q, err := encoder(payload)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultSize
	}
	b, err := q.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return b, nil
}

// RenderText draws the code with half-block characters for a terminal.
func RenderText(payload string) (string, error) {
	q, err := encoder(payload)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
