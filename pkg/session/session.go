// Package session guards one capture-and-analyze cycle at a time.
//
// Every Begin, Start or Reset opens a new generation. An outcome is only
// accepted when it carries the current generation's token, so a slow reply
// for a photo the user already abandoned can never overwrite newer state.
package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/pool-coach/pkg/types"
)

// Token identifies one generation. The zero Token is never current.
type Token uint64

// State of the current generation
type State string

const (
	StateIdle    State = "idle"
	StatePending State = "pending"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Outcome is the result of one analysis run tagged with the generation it
// was started under.
type Outcome struct {
	Token  Token
	Result *types.AnalysisResult
	Err    error
}

// Snapshot is a copy of the session state
type Snapshot struct {
	Token  Token                 `json:"token"`
	State  State                 `json:"state"`
	Result *types.AnalysisResult `json:"result,omitempty"`
	Err    error                 `json:"-"`
}

// RunFunc performs one analysis under ctx
type RunFunc func(ctx context.Context) (*types.AnalysisResult, error)

// Session tracks the latest generation and its outcome. The zero value is
// not usable; call New.
type Session struct {
	// deliverMu is taken before mu by every call that opens a generation
	// and by Deliver, so OnDeliver never overlaps a new generation.
	deliverMu sync.Mutex

	mu     sync.Mutex
	token  Token
	state  State
	result *types.AnalysisResult
	err    error
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger

	// OnDeliver, if set, is called after a current outcome is stored and
	// before any later generation can open. It runs on the delivering
	// goroutine and must not call Begin, Start, Reset or Deliver.
	OnDeliver func(Outcome)
}

// New creates an idle session. A nil logger disables logging.
func New(logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{state: StateIdle, logger: logger}
}

// Begin opens a new pending generation and cancels the previous one
func (s *Session) Begin() Token {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance(StatePending, nil)
}

// advance must be called with mu held
func (s *Session) advance(state State, cancel context.CancelFunc) Token {
	if s.cancel != nil {
		s.cancel()
	}
	s.token++
	s.state = state
	s.result = nil
	s.err = nil
	s.cancel = cancel
	return s.token
}

// Start runs fn in a new generation. The context passed to fn is
// cancelled when the generation is superseded.
func (s *Session) Start(ctx context.Context, fn RunFunc) Token {
	runCtx, cancel := context.WithCancel(ctx)

	s.deliverMu.Lock()
	s.mu.Lock()
	token := s.advance(StatePending, cancel)
	s.wg.Add(1)
	s.mu.Unlock()
	s.deliverMu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		result, err := fn(runCtx)
		s.Deliver(Outcome{Token: token, Result: result, Err: err})
	}()
	return token
}

// Deliver stores an outcome if it belongs to the current generation and
// reports whether it was accepted.
func (s *Session) Deliver(o Outcome) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if o.Token == 0 || o.Token != s.token {
		current := s.token
		s.mu.Unlock()
		s.logger.Debug("dropping stale outcome",
			zap.Uint64("token", uint64(o.Token)),
			zap.Uint64("current", uint64(current)),
		)
		return false
	}
	if o.Err != nil {
		s.state = StateFailed
		s.result = nil
	} else {
		s.state = StateDone
		s.result = o.Result
	}
	s.err = o.Err
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	cb := s.OnDeliver
	s.mu.Unlock()

	if cb != nil {
		cb(o)
	}
	return true
}

// Reset discards any result and supersedes in-flight work
func (s *Session) Reset() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(StateIdle, nil)
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Token: s.token, State: s.state, Result: s.result, Err: s.err}
}

// Current returns the current generation's token
func (s *Session) Current() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Wait blocks until every goroutine started by Start has delivered
func (s *Session) Wait() {
	s.wg.Wait()
}
