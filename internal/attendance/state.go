package attendance

import (
	"context"
	"sync"
)

// Phase of a screen-level operation.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoading
	PhaseSuccess
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseSuccess:
		return "success"
	case PhaseError:
		return "error"
	}
	return "unknown"
}

// State is what a screen renders: a phase plus a user-facing message.
type State struct {
	Phase   Phase
	Message string
}

func (s State) Terminal() bool { return s.Phase == PhaseSuccess || s.Phase == PhaseError }

func Idle() State              { return State{Phase: PhaseIdle} }
func Loading() State           { return State{Phase: PhaseLoading} }
func Success(msg string) State { return State{Phase: PhaseSuccess, Message: msg} }
func Failure(msg string) State { return State{Phase: PhaseError, Message: msg} }

// Holder is an observable state cell. Every change replaces the whole value
// under one lock, and subscribers always see the latest value.
type Holder[S comparable] struct {
	mu   sync.Mutex
	cur  S
	subs map[int]chan S
	next int
}

func NewHolder[S comparable](initial S) *Holder[S] {
	return &Holder[S]{cur: initial, subs: make(map[int]chan S)}
}

func (h *Holder[S]) Get() S {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

func (h *Holder[S]) Set(s S) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setLocked(s)
}

// Update applies fn to the current value and stores the result.
func (h *Holder[S]) Update(fn func(S) S) S {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.setLocked(fn(h.cur))
	return h.cur
}

// CompareAndSet stores next only if the current value equals old.
func (h *Holder[S]) CompareAndSet(old, next S) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cur != old {
		return false
	}
	h.setLocked(next)
	return true
}

// Subscribe returns a channel that receives the current value immediately and
// then every later one; intermediate values may be skipped by a slow reader.
func (h *Holder[S]) Subscribe() (<-chan S, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan S, 1)
	ch <- h.cur
	id := h.next
	h.next++
	h.subs[id] = ch
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// WaitFor blocks until pred holds for the current value or ctx ends.
func (h *Holder[S]) WaitFor(ctx context.Context, pred func(S) bool) (S, error) {
	ch, cancel := h.Subscribe()
	defer cancel()
	for {
		select {
		case s := <-ch:
			if pred(s) {
				return s, nil
			}
		case <-ctx.Done():
			var zero S
			return zero, ctx.Err()
		}
	}
}

func (h *Holder[S]) setLocked(s S) {
	h.cur = s
	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- s
		}
	}
}
