package actions

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/prism-engine/editor-host/enginebridge"
	"github.com/prism-engine/editor-host/protocol"
)

// notRunningError is the shared failure for actions that need a live engine.
func notRunningError(action string) *SemanticError {
	return NewNotAvailableError("Engine is not running", map[string]any{
		"reason": "engine_not_running",
		"action": action,
	})
}

// StartEngineAction launches the engine process and begins surface discovery.
type StartEngineAction struct {
	session *enginebridge.Session
}

func NewStartEngineAction(session *enginebridge.Session) *StartEngineAction {
	return &StartEngineAction{session: session}
}

func (a *StartEngineAction) Name() string { return "start-engine" }

func (a *StartEngineAction) Description() string {
	return "Launches the engine runtime and embeds its output surface"
}

func (a *StartEngineAction) Execute(args json.RawMessage) (any, error) {
	err := a.session.Start()
	if errors.Is(err, enginebridge.ErrAlreadyStarted) {
		return nil, NewNotAvailableError("Engine already running", map[string]any{
			"reason": "already_running",
			"action": a.Name(),
		})
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"started": true,
		"state":   a.session.Snapshot(),
	}, nil
}

// StopEngineAction stops the engine, escalating to kill after the grace
// period.
type StopEngineAction struct {
	session *enginebridge.Session
}

func NewStopEngineAction(session *enginebridge.Session) *StopEngineAction {
	return &StopEngineAction{session: session}
}

func (a *StopEngineAction) Name() string { return "stop-engine" }

func (a *StopEngineAction) Description() string {
	return "Stops the engine runtime, force-killing it after the grace period"
}

func (a *StopEngineAction) Execute(args json.RawMessage) (any, error) {
	if err := a.session.Stop(); err != nil {
		return nil, err
	}
	return map[string]any{
		"stopped": true,
		"state":   a.session.Snapshot(),
	}, nil
}

// PlayAction switches the engine into play mode.
type PlayAction struct {
	session *enginebridge.Session
}

func NewPlayAction(session *enginebridge.Session) *PlayAction {
	return &PlayAction{session: session}
}

func (a *PlayAction) Name() string { return "play" }

func (a *PlayAction) Description() string {
	return "Switches the engine into play mode"
}

func (a *PlayAction) Execute(args json.RawMessage) (any, error) {
	err := a.session.Play()
	if errors.Is(err, enginebridge.ErrNotRunning) {
		return nil, notRunningError(a.Name())
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": a.session.Snapshot()}, nil
}

// StopPlayAction returns the engine from play mode to edit mode.
type StopPlayAction struct {
	session *enginebridge.Session
}

func NewStopPlayAction(session *enginebridge.Session) *StopPlayAction {
	return &StopPlayAction{session: session}
}

func (a *StopPlayAction) Name() string { return "stop-play" }

func (a *StopPlayAction) Description() string {
	return "Returns the engine from play mode to edit mode"
}

func (a *StopPlayAction) Execute(args json.RawMessage) (any, error) {
	err := a.session.StopPlay()
	if errors.Is(err, enginebridge.ErrNotRunning) {
		return nil, notRunningError(a.Name())
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"state": a.session.Snapshot()}, nil
}

// PauseAction freezes engine execution.
type PauseAction struct {
	session *enginebridge.Session
}

func NewPauseAction(session *enginebridge.Session) *PauseAction {
	return &PauseAction{session: session}
}

func (a *PauseAction) Name() string { return "pause" }

func (a *PauseAction) Description() string {
	return "Freezes engine execution without terminating the process"
}

func (a *PauseAction) Execute(args json.RawMessage) (any, error) {
	a.session.Pause()
	return map[string]any{"state": a.session.Snapshot()}, nil
}

// ResumeAction unfreezes engine execution.
type ResumeAction struct {
	session *enginebridge.Session
}

func NewResumeAction(session *enginebridge.Session) *ResumeAction {
	return &ResumeAction{session: session}
}

func (a *ResumeAction) Name() string { return "resume" }

func (a *ResumeAction) Description() string {
	return "Resumes frozen engine execution"
}

func (a *ResumeAction) Execute(args json.RawMessage) (any, error) {
	a.session.Resume()
	return map[string]any{"state": a.session.Snapshot()}, nil
}

type setModePayload struct {
	Mode string `json:"mode"`
}

// SetModeAction drives the session toward a requested mode.
type SetModeAction struct {
	session *enginebridge.Session
}

func NewSetModeAction(session *enginebridge.Session) *SetModeAction {
	return &SetModeAction{session: session}
}

func (a *SetModeAction) Name() string { return "set-mode" }

func (a *SetModeAction) Description() string {
	return "Drives the session toward a mode: stopped, editing or playing"
}

func (a *SetModeAction) Execute(args json.RawMessage) (any, error) {
	var payload setModePayload
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, NewInvalidParamsError("Invalid set-mode payload", map[string]any{
			"field":   "mode",
			"problem": "malformed_payload",
		})
	}

	mode, ok := enginebridge.ParseMode(strings.TrimSpace(payload.Mode))
	if !ok {
		return nil, NewInvalidParamsError("Unknown mode", map[string]any{
			"field":   "mode",
			"problem": "unknown_mode",
			"value":   payload.Mode,
		})
	}

	if err := a.session.SetMode(mode); err != nil {
		if errors.Is(err, enginebridge.ErrNotRunning) {
			return nil, notRunningError(a.Name())
		}
		return nil, err
	}
	return map[string]any{"state": a.session.Snapshot()}, nil
}

type sendCommandPayload struct {
	Text string `json:"text"`
}

// SendCommandAction forwards one free-form command line to the engine.
type SendCommandAction struct {
	session *enginebridge.Session
}

func NewSendCommandAction(session *enginebridge.Session) *SendCommandAction {
	return &SendCommandAction{session: session}
}

func (a *SendCommandAction) Name() string { return "send-command" }

func (a *SendCommandAction) Description() string {
	return "Sends one command line over the engine message channel"
}

func (a *SendCommandAction) Execute(args json.RawMessage) (any, error) {
	var payload sendCommandPayload
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, NewInvalidParamsError("Invalid send-command payload", map[string]any{
			"field":   "text",
			"problem": "malformed_payload",
		})
	}

	if err := protocol.ValidateCommand(payload.Text); err != nil {
		return nil, NewInvalidParamsError("Invalid command text", map[string]any{
			"field":   "text",
			"problem": err.Error(),
		})
	}

	snap := a.session.Snapshot()
	if snap.Mode == enginebridge.ModeStopped {
		return nil, notRunningError(a.Name())
	}

	sent := a.session.SendCommand(payload.Text)
	snap = a.session.Snapshot()
	if !sent && snap.Mode == enginebridge.ModeStopped {
		return nil, notRunningError(a.Name())
	}
	return map[string]any{
		"sent":    sent,
		"queued":  !sent,
		"pending": snap.PendingCommands,
	}, nil
}

// GetStateAction reports the session snapshot.
type GetStateAction struct {
	session *enginebridge.Session
}

func NewGetStateAction(session *enginebridge.Session) *GetStateAction {
	return &GetStateAction{session: session}
}

func (a *GetStateAction) Name() string { return "get-state" }

func (a *GetStateAction) Description() string {
	return "Returns the current session state snapshot"
}

func (a *GetStateAction) Execute(args json.RawMessage) (any, error) {
	return map[string]any{"state": a.session.Snapshot()}, nil
}

type tailConsolePayload struct {
	Lines int `json:"lines"`
}

const defaultTailLines = 50

// TailConsoleAction returns the most recent captured console lines.
type TailConsoleAction struct {
	session *enginebridge.Session
}

func NewTailConsoleAction(session *enginebridge.Session) *TailConsoleAction {
	return &TailConsoleAction{session: session}
}

func (a *TailConsoleAction) Name() string { return "tail-console" }

func (a *TailConsoleAction) Description() string {
	return "Returns the most recent engine console lines"
}

func (a *TailConsoleAction) Execute(args json.RawMessage) (any, error) {
	lines := defaultTailLines
	if len(args) > 0 {
		var payload tailConsolePayload
		if err := json.Unmarshal(args, &payload); err != nil {
			return nil, NewInvalidParamsError("Invalid tail-console payload", map[string]any{
				"field":   "lines",
				"problem": "malformed_payload",
			})
		}
		if payload.Lines > 0 {
			lines = payload.Lines
		}
	}

	tail := a.session.Console().Tail(lines)
	return map[string]any{
		"lines": tail,
		"count": len(tail),
	}, nil
}
