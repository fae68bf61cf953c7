package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"campus/internal/session"
)

// screen owns the tasks launched for one UI surface. Close cancels them all.
type screen struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newScreen(parent context.Context) screen {
	ctx, cancel := context.WithCancel(parent)
	return screen{ctx: ctx, cancel: cancel}
}

func (s *screen) launch(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Close cancels in-flight calls and waits for their tasks to return. A write
// that reached the server before cancellation is not rolled back.
func (s *screen) Close() {
	s.cancel()
	s.wg.Wait()
}

// SubmissionScreen drives the student check-in: Idle → Loading → Success|Error.
type SubmissionScreen struct {
	screen
	submitter *Submitter
	sess      session.Session
	State     *Holder[State]
}

func NewSubmissionScreen(parent context.Context, submitter *Submitter, sess session.Session) *SubmissionScreen {
	return &SubmissionScreen{
		screen:    newScreen(parent),
		submitter: submitter,
		sess:      sess,
		State:     NewHolder(Idle()),
	}
}

// OnScanned starts a submission for payload. It is ignored unless the screen
// is Idle; a new scan requires Reset first.
func (s *SubmissionScreen) OnScanned(payload string) bool {
	if !s.State.CompareAndSet(Idle(), Loading()) {
		return false
	}
	s.launch(func(ctx context.Context) {
		rec, err := s.submitter.Submit(ctx, s.sess, payload)
		if err != nil {
			s.State.Set(Failure(UserMessage(err)))
			return
		}
		s.State.Set(Success("attendance marked present for " + rec.Date))
	})
	return true
}

// Reset returns a finished screen to Idle. Loading is left alone.
func (s *SubmissionScreen) Reset() {
	s.State.Update(func(cur State) State {
		if cur.Phase == PhaseLoading {
			return cur
		}
		return Idle()
	})
}

// ReconcileScreen drives the teacher's "mark remaining absent" action. Its
// terminal messages clear back to Idle after messageTTL when it is positive.
type ReconcileScreen struct {
	screen
	reconciler *Reconciler
	sess       session.Session
	messageTTL time.Duration
	State      *Holder[State]

	mu   sync.Mutex
	last ReconcileResult
}

func NewReconcileScreen(parent context.Context, reconciler *Reconciler, sess session.Session, messageTTL time.Duration) *ReconcileScreen {
	return &ReconcileScreen{
		screen:     newScreen(parent),
		reconciler: reconciler,
		sess:       sess,
		messageTTL: messageTTL,
		State:      NewHolder(Idle()),
	}
}

// OnReconcile starts reconciliation unless one is already running.
func (s *ReconcileScreen) OnReconcile(subjectID int64, date string) bool {
	started := false
	s.State.Update(func(cur State) State {
		if cur.Phase == PhaseLoading {
			return cur
		}
		started = true
		return Loading()
	})
	if !started {
		return false
	}
	s.launch(func(ctx context.Context) {
		res, err := s.reconciler.Reconcile(ctx, s.sess, subjectID, date)
		s.mu.Lock()
		s.last = res
		s.mu.Unlock()
		var final State
		if err != nil {
			final = Failure(UserMessage(err))
		} else {
			final = Success(res.Message())
		}
		s.State.Set(final)
		s.clearLater(final)
	})
	return true
}

// Reset clears a shown message without waiting for the delay.
func (s *ReconcileScreen) Reset() {
	s.State.Update(func(cur State) State {
		if cur.Phase == PhaseLoading {
			return cur
		}
		return Idle()
	})
}

// Last returns the most recent reconciliation result.
func (s *ReconcileScreen) Last() ReconcileResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *ReconcileScreen) clearLater(shown State) {
	if s.messageTTL <= 0 {
		return
	}
	time.AfterFunc(s.messageTTL, func() {
		s.State.CompareAndSet(shown, Idle())
	})
}

// UserMessage turns an error into the text shown on screen.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidToken):
		return "invalid token"
	case errors.Is(err, ErrTokenExpired):
		return "token expired"
	case errors.Is(err, ErrAlreadyMarked):
		return "attendance already marked today"
	case errors.Is(err, ErrNotStudent):
		return "only students can check in"
	case errors.Is(err, ErrNotTeacher):
		return "only teachers can do this"
	case errors.Is(err, session.ErrAnonymous):
		return "please sign in first"
	case errors.Is(err, ErrSubjectMismatch):
		return "token belongs to another subject"
	case errors.Is(err, ErrNotEnrolled):
		return "you are not enrolled in this subject"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	return err.Error()
}
