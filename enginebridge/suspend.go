package enginebridge

import (
	"sync"

	"github.com/prism-engine/editor-host/logger"
)

// Freezer is the slice of the process layer the suspend controller needs.
type Freezer interface {
	Suspend() error
	Resume() error
}

// SuspendController freezes and unfreezes engine execution, orthogonal to
// the session mode. It owns the ordering contract with input forwarding:
// input stops before the process is frozen, and resumes only after the
// process is running again, so no queued input is ever delivered into a
// half-frozen target.
//
// Both operations are best-effort and never propagate a failure to the UI
// caller; they log and keep the flags consistent instead.
type SuspendController struct {
	input  *InputForwarder
	target func() Freezer

	mu     sync.Mutex
	paused bool
}

// NewSuspendController wires the controller to the input forwarder and a
// target accessor. target may return nil while no engine is attached; the
// pause flag still tracks operator intent so a later resume stays coherent.
func NewSuspendController(input *InputForwarder, target func() Freezer) *SuspendController {
	return &SuspendController{input: input, target: target}
}

// Paused reports the current pause flag.
func (s *SuspendController) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Pause disables input forwarding, then suspends the whole engine process.
// On suspend failure the previous input-enable state is restored and the
// session stays unpaused.
func (s *SuspendController) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}

	wasEnabled := s.input.Enabled()
	s.input.SetEnabled(false)

	if t := s.target(); t != nil {
		if err := t.Suspend(); err != nil {
			logger.Warn("engine suspend failed", "error", err)
			s.input.SetEnabled(wasEnabled)
			return
		}
	}
	s.paused = true
}

// Resume unfreezes the engine process first, then re-enables input
// forwarding. A failed resume still clears the paused flag but leaves input
// disabled: the UI must not offer interaction toward a process that may be
// frozen.
func (s *SuspendController) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.paused = false

	if t := s.target(); t != nil {
		if err := t.Resume(); err != nil {
			logger.Warn("engine resume failed", "error", err)
			return
		}
	}
	s.input.SetEnabled(true)
}

// Reset clears the pause flag without touching the process, as part of
// session cleanup after the engine is gone.
func (s *SuspendController) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}
