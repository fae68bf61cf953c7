package cli

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/spf13/cobra"

	"campus/internal/attendance"
	"campus/internal/qr"
)

func (a *app) checkinCmd() *cobra.Command {
	var (
		images  []string
		payload string
	)
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Scan a QR code and mark yourself present",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if payload == "" {
				if len(images) == 0 {
					return errors.New("--image or --payload is required")
				}
				var err error
				payload, err = scanFiles(ctx, images)
				if err != nil {
					return err
				}
			}
			a.log.Debug(ctx, "scanned payload", "bytes", len(payload))

			submitter := attendance.NewSubmitter(a.client, a.opts.Now, a.cfg.Location())
			screen := attendance.NewSubmissionScreen(ctx, submitter, a.sess)
			defer screen.Close()
			screen.OnScanned(payload)
			final, err := screen.State.WaitFor(ctx, attendance.State.Terminal)
			if err != nil {
				return err
			}
			if final.Phase == attendance.PhaseError {
				return errors.New(final.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), final.Message)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&images, "image", nil, "camera frames to scan, in order")
	cmd.Flags().StringVar(&payload, "payload", "", "raw QR content, skipping the scan")
	return cmd
}

// scanFiles feeds the image files to a Scanner as consecutive frames and
// returns the first payload it decodes.
func scanFiles(ctx context.Context, paths []string) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan image.Image)
	found := qr.NewScanner().Start(ctx, frames)

	feedErr := make(chan error, 1)
	go func() {
		defer close(frames)
		for _, p := range paths {
			img, err := loadImage(p)
			if err != nil {
				feedErr <- err
				return
			}
			select {
			case frames <- img:
			case <-ctx.Done():
				return
			}
		}
	}()

	text, ok := <-found
	if ok {
		return text, nil
	}
	select {
	case err := <-feedErr:
		return "", err
	default:
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%w in %d image(s)", qr.ErrNoCode, len(paths))
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
