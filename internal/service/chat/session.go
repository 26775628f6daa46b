package chat

import (
	"sync"

	"github.com/zjregee/alterchat/internal/utils"
)

type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateSubmitting SessionState = "submitting"
	StateStreaming  SessionState = "streaming"
	StateComplete   SessionState = "complete"
	StateErrored    SessionState = "errored"
	StateAborted    SessionState = "aborted"
)

func (s SessionState) Terminal() bool {
	return s == StateComplete || s == StateErrored || s == StateAborted
}

// Session is one in-flight submission. It lives from submit until the stream
// completes, errors or is aborted.
type Session struct {
	id    string
	token *CancelToken

	// turnBase is the transcript length when the session started; only
	// messages at or past it count as this turn's reply.
	turnBase int

	mu                 sync.Mutex
	state              SessionState
	err                error
	firstTokenReceived bool
	optimistic         []string
	confirmed          map[string]bool
	done               chan struct{}
}

func newSession(token *CancelToken, turnBase int, optimisticIDs []string) *Session {
	confirmed := make(map[string]bool, len(optimisticIDs))
	for _, id := range optimisticIDs {
		confirmed[id] = false
	}

	return &Session{
		id:         "session-" + utils.GenerateUUID(),
		token:      token,
		turnBase:   turnBase,
		state:      StateIdle,
		optimistic: optimisticIDs,
		confirmed:  confirmed,
		done:       make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) FirstTokenReceived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstTokenReceived
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Pending lists optimistic message ids the runtime has not echoed back yet.
func (s *Session) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]string, 0, len(s.optimistic))
	for _, id := range s.optimistic {
		if !s.confirmed[id] {
			pending = append(pending, id)
		}
	}
	return pending
}

func (s *Session) Confirmed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed[id]
}

func (s *Session) confirm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.confirmed[id]; ok {
		s.confirmed[id] = true
	}
}

func (s *Session) terminal() bool {
	return s.State().Terminal()
}

func (s *Session) advance(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Terminal() {
		s.state = state
	}
}

func (s *Session) markFirstToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firstTokenReceived = true
}

// finish moves the session to a terminal state once; later calls are no-ops.
func (s *Session) finish(state SessionState, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return false
	}
	s.state = state
	s.err = err
	close(s.done)
	return true
}
