package qr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode means the frame holds no readable QR code.
var ErrNoCode = errors.New("no qr code in frame")

// DecodeImage reads the text of the single QR code in img.
func DecodeImage(img image.Image) (string, error) {
	if img == nil {
		return "", ErrNoCode
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	res, err := zxqr.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return res.GetText(), nil
}

// Scanner turns a stream of frames into at most one decoded payload until
// Reset is called.
type Scanner struct {
	latched atomic.Bool
	decode  func(image.Image) (string, error)
}

func NewScanner() *Scanner {
	return &Scanner{decode: DecodeImage}
}

// Start decodes frames on one goroutine. The first successful decode is sent
// on the returned channel and latches the scanner; later frames are dropped
// without decoding until Reset. The channel closes when ctx is done or frames
// is closed.
func (s *Scanner) Start(ctx context.Context, frames <-chan image.Image) <-chan string {
	out := make(chan string, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case img, ok := <-frames:
				if !ok {
					return
				}
				if s.latched.Load() {
					continue
				}
				text, err := s.decode(img)
				if err != nil {
					continue
				}
				if !s.latched.CompareAndSwap(false, true) {
					continue
				}
				select {
				case out <- text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Reset re-arms the scanner after the previous payload has been handled.
func (s *Scanner) Reset() { s.latched.Store(false) }

// Latched reports whether a payload was emitted since the last Reset.
func (s *Scanner) Latched() bool { return s.latched.Load() }
