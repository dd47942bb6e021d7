// Package engineproc launches and supervises the external engine runtime
// process. It owns the process handle exclusively: spawn, line-oriented
// capture of stdout/stderr, exit tracking, forced kill, and whole-process
// suspend/resume. Everything above it (graceful-close protocol, state
// machine, UI-thread marshaling) lives in enginebridge.
package engineproc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a supervised process.
type State int

const (
	// StateCreated means the process wrapper exists but has not started.
	StateCreated State = iota
	// StateRunning means the process is currently running.
	StateRunning
	// StateExited means the process exited on its own.
	StateExited
	// StateKilled means the process was terminated by the host or a signal.
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

var (
	ErrLaunch         = errors.New("engine launch failed")
	ErrNotRunning     = errors.New("engine process not running")
	ErrAlreadyStarted = errors.New("engine process already started")
)

// Process is one supervised engine runtime. Safe for concurrent use.
type Process struct {
	// ID uniquely identifies this launch, distinguishing a restarted engine
	// from its predecessor in logs and events.
	ID string

	// Path is the executable that was launched.
	Path string

	// Started is the launch time.
	Started time.Time

	cmd      *exec.Cmd
	done     chan struct{}
	state    atomic.Int32
	killed   atomic.Bool
	exitCode atomic.Int32

	mu      sync.RWMutex
	exitErr error

	waitOnce sync.Once
}

func newProcess(cmd *exec.Cmd) *Process {
	p := &Process{
		ID:   uuid.New().String(),
		Path: cmd.Path,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	return State(p.state.Load())
}

// PID returns the OS process id, or -1 before start.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// ExitCode returns the exit code, or -1 while the process has not exited.
func (p *Process) ExitCode() int {
	return int(p.exitCode.Load())
}

// ExitError returns the error from waiting on the process, nil if it exited
// cleanly or has not exited yet.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// Done returns a channel closed when the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// IsRunning reports whether the process is currently running.
func (p *Process) IsRunning() bool {
	return p.State() == StateRunning
}

// HasExited reports whether the process has exited, cleanly or not.
func (p *Process) HasExited() bool {
	s := p.State()
	return s == StateExited || s == StateKilled
}

// WaitExit blocks until the process exits or the timeout elapses, reporting
// whether it exited in time.
func (p *Process) WaitExit(timeout time.Duration) bool {
	select {
	case <-p.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Kill force-terminates the process. Killing an already-exited process is a
// no-op.
func (p *Process) Kill() error {
	if !p.IsRunning() {
		return nil
	}
	p.killed.Store(true)
	return p.cmd.Process.Kill()
}

// Signal delivers sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() {
		return ErrNotRunning
	}
	return p.cmd.Process.Signal(sig)
}

// Suspend freezes the whole process as one atomic unit.
func (p *Process) Suspend() error {
	if !p.IsRunning() {
		return ErrNotRunning
	}
	return suspendProcess(p.PID())
}

// Resume unfreezes a suspended process.
func (p *Process) Resume() error {
	if !p.IsRunning() {
		return ErrNotRunning
	}
	return resumeProcess(p.PID())
}

func (p *Process) start() error {
	if p.State() != StateCreated {
		return ErrAlreadyStarted
	}
	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	p.Started = time.Now()
	p.state.Store(int32(StateRunning))
	go p.waitLoop()
	return nil
}

// waitLoop reaps the process and records its terminal state.
func (p *Process) waitLoop() {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()

		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()

		exitCode := 0
		state := StateExited
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				exitCode = exitErr.ExitCode()
				if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
					state = StateKilled
				}
			} else {
				exitCode = -1
			}
		}
		if p.killed.Load() {
			state = StateKilled
		}

		p.exitCode.Store(int32(exitCode))
		p.state.Store(int32(state))
		close(p.done)
	})
}
