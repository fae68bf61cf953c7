// Package cli implements the campus command: teachers issue QR tokens and
// reconcile absences, students scan and check in.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"campus/internal/apiclient"
	"campus/internal/attendance"
	"campus/internal/auth"
	"campus/internal/cloudinary"
	"campus/internal/config"
	"campus/internal/logging"
	"campus/internal/session"
)

// Client is the remote surface the commands use; *apiclient.Client implements it.
type Client interface {
	attendance.Remote
	Login(ctx context.Context, userID int64, password string) (auth.TokenPair, error)
	EnqueueReconcile(ctx context.Context, subjectID int64, date string) error
}

// Publisher uploads rendered QR codes; *cloudinary.Client implements it.
type Publisher interface {
	PublishPNG(ctx context.Context, png []byte, publicID string) (*cloudinary.UploadResult, error)
}

// Options overrides collaborators, mostly for tests.
type Options struct {
	NewClient func(baseURL, token string) Client
	Publisher Publisher
	Now       attendance.Clock
}

type app struct {
	cfg  config.App
	opts Options

	apiURL  string
	token   string
	verbose bool

	log    logging.Logger
	client Client
	sess   session.Session
}

// NewRoot builds the campus command tree.
func NewRoot(cfg config.App, opts Options) *cobra.Command {
	if opts.NewClient == nil {
		opts.NewClient = func(baseURL, token string) Client {
			return apiclient.New(baseURL, token, cfg.ClientTimeout)
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Publisher == nil && cfg.CloudinaryConfigured() {
		opts.Publisher = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	}
	a := &app{cfg: cfg, opts: opts}

	root := &cobra.Command{
		Use:           "campus",
		Short:         "Campus attendance with QR tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api", cfg.APIURL, "campus API base URL")
	root.PersistentFlags().StringVar(&a.token, "token", cfg.APIToken, "access token (defaults to $CAMPUS_TOKEN)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(
		a.loginCmd(),
		a.subjectsCmd(),
		a.issueCmd(),
		a.checkinCmd(),
		a.reconcileCmd(),
		a.statsCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.log = logging.New(cmd.ErrOrStderr(), false, level)
	a.client = a.opts.NewClient(a.apiURL, a.token)

	sess, err := auth.SessionFromToken(a.token)
	if err != nil {
		a.log.Warn(cmd.Context(), "ignoring unreadable access token", "err", err)
		sess = session.Anonymous()
	}
	a.sess = sess
	a.log.Debug(cmd.Context(), "session", "caller", sess.String(), "api", a.apiURL)
	return nil
}

func (a *app) today() string {
	return attendance.Day(a.opts.Now(), a.cfg.Location())
}

// Execute runs the command tree with ctx and prints a failure on stderr.
func Execute(ctx context.Context, cfg config.App) int {
	root := NewRoot(cfg, Options{})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
