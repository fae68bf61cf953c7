package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"campus/internal/attendance"
	"campus/internal/qr"
)

func (a *app) loginCmd() *cobra.Command {
	var (
		userID   int64
		password string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("CAMPUS_PASSWORD")
			}
			if userID <= 0 || password == "" {
				return errors.New("--user and --password (or $CAMPUS_PASSWORD) are required")
			}
			pair, err := a.client.Login(cmd.Context(), userID, password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export CAMPUS_TOKEN=%s\n", pair.AccessToken)
			fmt.Fprintf(out, "# expires %s\n", pair.AccessExp.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&password, "password", "", "password")
	return cmd
}

func (a *app) subjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subjects",
		Short: "List your subjects",
		RunE: func(cmd *cobra.Command, args []string) error {
			subjects, err := a.client.Subjects(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME")
			for _, s := range subjects {
				fmt.Fprintf(w, "%d\t%s\t%s\n", s.ID, s.Code, s.Name)
			}
			return w.Flush()
		},
	}
}

func (a *app) issueCmd() *cobra.Command {
	var (
		subjectID int64
		outFile   string
		size      int
		publish   bool
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint an attendance token and render it as a QR code",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tok, payload, err := attendance.NewIssuer(a.client).Issue(ctx, a.sess, subjectID)
			if err != nil {
				return errors.New(attendance.UserMessage(err))
			}
			out := cmd.OutOrStdout()

			if outFile == "" && !publish {
				art, err := qr.RenderText(payload)
				if err != nil {
					return err
				}
				fmt.Fprint(out, art)
			} else {
				png, err := qr.RenderPNG(payload, size)
				if err != nil {
					return err
				}
				if outFile != "" {
					if err := os.WriteFile(outFile, png, 0o644); err != nil {
						return fmt.Errorf("write qr: %w", err)
					}
					fmt.Fprintf(out, "qr written to %s\n", outFile)
				}
				if publish {
					if a.opts.Publisher == nil {
						return errors.New("publishing needs CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
					}
					res, err := a.opts.Publisher.PublishPNG(ctx, png, fmt.Sprintf("subject-%d", subjectID))
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "qr published at %s\n", res.SecureURL)
				}
			}
			loc := a.cfg.Location()
			fmt.Fprintf(out, "token for subject %d valid until %s\n", tok.Subject, tok.ExpiresAt.In(loc).Format("15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "subject id")
	cmd.Flags().StringVar(&outFile, "out", "", "write the QR code as PNG to this file")
	cmd.Flags().IntVar(&size, "size", a.cfg.QRSize, "PNG edge length in pixels")
	cmd.Flags().BoolVar(&publish, "publish", false, "upload the PNG to Cloudinary")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (a *app) reconcileCmd() *cobra.Command {
	var (
		subjectID int64
		date      string
		async     bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mark every enrolled student without a record as absent",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if async {
				if _, err := a.sess.RequireTeacher(); err != nil {
					return errors.New(attendance.UserMessage(err))
				}
				if err := a.client.EnqueueReconcile(ctx, subjectID, date); err != nil {
					return err
				}
				fmt.Fprintln(out, "reconciliation queued")
				return nil
			}

			rec := attendance.NewReconciler(a.client, a.opts.Now, a.cfg.Location())
			screen := attendance.NewReconcileScreen(ctx, rec, a.sess, 0)
			defer screen.Close()
			screen.OnReconcile(subjectID, date)
			final, err := screen.State.WaitFor(ctx, attendance.State.Terminal)
			if err != nil {
				return err
			}
			if final.Phase == attendance.PhaseError {
				return errors.New(final.Message)
			}
			fmt.Fprintln(out, final.Message)
			for _, r := range screen.Last().Marked {
				fmt.Fprintf(out, "  student %d ABSENT\n", r.Student)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&subjectID, "subject", 0, "subject id")
	cmd.Flags().StringVar(&date, "date", "", "calendar day YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&async, "async", false, "queue the job on the server instead of running it here")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
