// Package session tracks the per-chat "waiting for a reply" state used by
// multi-turn commands.
//
// A chat has at most one pending session. Begin supersedes any earlier one,
// Resolve hands it the next text message, and Await blocks until that text
// arrives, the deadline passes or the wait is canceled.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Await when the deadline passes with no reply.
	ErrTimeout = errors.New("session timed out")
	// ErrCanceled is returned by Await when the wait is abandoned: the
	// caller's context ended or the engine stopped.
	ErrCanceled = errors.New("session canceled")
	// ErrSuperseded is returned by Await when a newer session for the same
	// chat replaced this one. errors.Is(ErrSuperseded, ErrCanceled) holds.
	ErrSuperseded = &supersededError{}
)

type supersededError struct{}

func (*supersededError) Error() string        { return "session superseded" }
func (*supersededError) Is(target error) bool { return target == ErrCanceled }

// Pending is one outstanding wait for a chat.
type Pending struct {
	ChatID    int64
	CreatedAt time.Time
	Deadline  time.Time

	done  chan struct{}
	text  string
	err   error
	timer *time.Timer
}

// Done is closed once the session has an outcome.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Engine owns the pending sessions of all chats.
type Engine struct {
	mu       sync.Mutex
	sessions map[int64]*Pending
	stopped  bool

	now func() time.Time
}

// NewEngine creates an empty engine.
func NewEngine() *Engine {
	return &Engine{
		sessions: make(map[int64]*Pending),
		now:      time.Now,
	}
}

// Begin starts a new pending session for chatID that times out after
// timeout. Any session already pending for the chat ends with ErrSuperseded.
// On a stopped engine the returned session has already ended with ErrCanceled.
func (e *Engine) Begin(chatID int64, timeout time.Duration) *Pending {
	now := e.now()
	p := &Pending{
		ChatID:    chatID,
		CreatedAt: now,
		Deadline:  now.Add(timeout),
		done:      make(chan struct{}),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		p.err = ErrCanceled
		close(p.done)
		return p
	}
	if prev, ok := e.sessions[chatID]; ok {
		e.finishLocked(prev, "", ErrSuperseded)
	}
	e.sessions[chatID] = p
	p.timer = time.AfterFunc(timeout, func() { e.expire(p) })
	return p
}

// Await blocks until p has an outcome and returns the reply text, or one of
// ErrTimeout, ErrCanceled or ErrSuperseded. If ctx ends first the session is
// canceled and removed.
func (e *Engine) Await(ctx context.Context, p *Pending) (string, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		e.mu.Lock()
		if e.sessions[p.ChatID] == p {
			e.finishLocked(p, "", ErrCanceled)
		}
		e.mu.Unlock()
		<-p.done
	}
	return p.text, p.err
}

// Resolve delivers text to the chat's pending session. It reports whether a
// session consumed the text.
func (e *Engine) Resolve(chatID int64, text string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.sessions[chatID]
	if !ok {
		return false
	}
	e.finishLocked(p, text, nil)
	return true
}

// Cancel ends the chat's pending session, if any, with ErrCanceled.
func (e *Engine) Cancel(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.sessions[chatID]
	if !ok {
		return false
	}
	e.finishLocked(p, "", ErrCanceled)
	return true
}

// HasPending reports whether chatID is waiting for a reply.
func (e *Engine) HasPending(chatID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[chatID]
	return ok
}

// Len returns the number of pending sessions.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// Stop cancels every pending session. Later Begin calls return sessions
// that are already canceled.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	for _, p := range e.sessions {
		e.finishLocked(p, "", ErrCanceled)
	}
}

func (e *Engine) expire(p *Pending) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[p.ChatID] == p {
		e.finishLocked(p, "", ErrTimeout)
	}
}

// finishLocked records the outcome of p and removes it. Caller holds e.mu
// and p must be the chat's current session.
func (e *Engine) finishLocked(p *Pending, text string, err error) {
	delete(e.sessions, p.ChatID)
	if p.timer != nil {
		p.timer.Stop()
	}
	p.text = text
	p.err = err
	close(p.done)
}
