// Package enginebridge is the engine-embedding and inter-process control
// bridge: it launches and supervises the prism-runtime process, splices its
// rendered output window into the editor's window tree, forwards input,
// exchanges text commands over the copy-data channel, and freezes/unfreezes
// the runtime without terminating it. UI collaborators (console widgets,
// toolbars, scene views) interact with it only through the event surface and
// the command entry points on Session.
package enginebridge

import (
	"errors"
	"fmt"
	"time"
)

// Mode is the session's engine mode. Paused is tracked separately and can be
// combined with Editing or Playing.
type Mode int

const (
	// ModeStopped means no engine process is attached.
	ModeStopped Mode = iota
	// ModeEditing means the engine is running in edit mode.
	ModeEditing
	// ModePlaying means the engine is running the game simulation.
	ModePlaying
)

func (m Mode) String() string {
	switch m {
	case ModeStopped:
		return "stopped"
	case ModeEditing:
		return "editing"
	case ModePlaying:
		return "playing"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMode maps a mode name back to its Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "stopped":
		return ModeStopped, true
	case "editing":
		return ModeEditing, true
	case "playing":
		return ModePlaying, true
	default:
		return ModeStopped, false
	}
}

// ConsoleLine is one captured line of engine output.
type ConsoleLine struct {
	Text   string    `json:"text"`
	Stderr bool      `json:"stderr"`
	At     time.Time `json:"at"`
}

// Snapshot is a point-in-time view of the session, safe to read from any
// goroutine. Collaborators re-query it after every state-changed event.
type Snapshot struct {
	Mode              Mode   `json:"-"`
	ModeName          string `json:"mode"`
	Paused            bool   `json:"paused"`
	LaunchID          string `json:"launchId,omitempty"`
	PID               int    `json:"pid,omitempty"`
	SurfaceAttached   bool   `json:"surfaceAttached"`
	ChannelReady      bool   `json:"channelReady"`
	PendingCommands   int    `json:"pendingCommands"`
	DiscoveryAttempts int    `json:"discoveryAttempts"`
	DiscoveryFailed   bool   `json:"discoveryFailed"`
}

var (
	// ErrDiscoveryTimeout is reported when the engine's output window was not
	// found within the attempt budget. The session stays partially started.
	ErrDiscoveryTimeout = errors.New("engine surface discovery timed out")
	// ErrAlreadyStarted is returned by Start while an engine is attached.
	ErrAlreadyStarted = errors.New("engine session already started")
	// ErrNotRunning is returned by operations that need a live engine.
	ErrNotRunning = errors.New("engine not running")
)
