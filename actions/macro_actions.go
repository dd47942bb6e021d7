package actions

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/prism-engine/editor-host/enginebridge"
	"github.com/prism-engine/editor-host/macrocatalog"
)

type runMacroPayload struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// RunMacroAction expands a catalog macro and plays its command lines through
// the session's command path, preserving order.
type RunMacroAction struct {
	session       *enginebridge.Session
	macros        *macrocatalog.Registry
	rejectUnknown bool
}

func NewRunMacroAction(session *enginebridge.Session, macros *macrocatalog.Registry, rejectUnknown bool) *RunMacroAction {
	return &RunMacroAction{session: session, macros: macros, rejectUnknown: rejectUnknown}
}

func (a *RunMacroAction) Name() string { return "run-macro" }

func (a *RunMacroAction) Description() string {
	return "Expands a named macro and sends its command lines to the engine"
}

func (a *RunMacroAction) Execute(args json.RawMessage) (any, error) {
	if !a.macros.Enabled() {
		return nil, NewNotAvailableError("Macro catalog is disabled", map[string]any{
			"feature": "macro_catalog",
			"reason":  "disabled",
		})
	}

	var payload runMacroPayload
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, NewInvalidParamsError("Invalid run-macro payload", map[string]any{
			"field":   "name",
			"problem": "malformed_payload",
		})
	}
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Name == "" {
		return nil, NewInvalidParamsError("Macro name is required", map[string]any{
			"field":   "name",
			"problem": "missing",
		})
	}

	macro, found := a.macros.GetMacro(payload.Name)
	if !found {
		return nil, NewNotFoundError("Unknown macro", map[string]any{
			"field": "name",
			"value": payload.Name,
		})
	}

	lines, err := macrocatalog.Expand(macro, payload.Arguments, macrocatalog.ExpandOptions{
		RejectUnknownArguments: a.rejectUnknown,
	})
	if err != nil {
		if errors.Is(err, macrocatalog.ErrMissingArgument) || errors.Is(err, macrocatalog.ErrUnknownArgument) {
			return nil, NewInvalidParamsError(err.Error(), map[string]any{
				"field": "arguments",
				"macro": macro.Name,
			})
		}
		return nil, err
	}

	snap := a.session.Snapshot()
	if snap.Mode == enginebridge.ModeStopped {
		return nil, notRunningError(a.Name())
	}

	sent := 0
	for _, line := range lines {
		if a.session.SendCommand(line) {
			sent++
		}
	}
	snap = a.session.Snapshot()
	return map[string]any{
		"macro":    macro.Name,
		"commands": lines,
		"sent":     sent,
		"queued":   len(lines) - sent,
		"pending":  snap.PendingCommands,
	}, nil
}

// ListMacrosAction reports the loaded macro catalog.
type ListMacrosAction struct {
	macros *macrocatalog.Registry
}

func NewListMacrosAction(macros *macrocatalog.Registry) *ListMacrosAction {
	return &ListMacrosAction{macros: macros}
}

func (a *ListMacrosAction) Name() string { return "list-macros" }

func (a *ListMacrosAction) Description() string {
	return "Lists the loaded command macros"
}

func (a *ListMacrosAction) Execute(args json.RawMessage) (any, error) {
	if !a.macros.Enabled() {
		return nil, NewNotAvailableError("Macro catalog is disabled", map[string]any{
			"feature": "macro_catalog",
			"reason":  "disabled",
		})
	}
	return map[string]any{
		"macros":     a.macros.ListMacros(),
		"count":      a.macros.MacroCount(),
		"loadErrors": a.macros.LoadErrors(),
	}, nil
}

// MacroCatalogReloader executes a macro catalog reload and returns structured
// metadata.
type MacroCatalogReloader func() map[string]any

// ReloadMacrosAction re-reads macro definitions from the configured paths.
type ReloadMacrosAction struct {
	reload MacroCatalogReloader
}

func NewReloadMacrosAction(reload MacroCatalogReloader) *ReloadMacrosAction {
	return &ReloadMacrosAction{reload: reload}
}

func (a *ReloadMacrosAction) Name() string { return "reload-macros" }

func (a *ReloadMacrosAction) Description() string {
	return "Reloads macro definitions from the configured catalog paths"
}

func (a *ReloadMacrosAction) Execute(args json.RawMessage) (any, error) {
	result := map[string]any{
		"macroCount":     0,
		"loadErrorCount": 0,
		"status":         "disabled",
	}
	if a.reload != nil {
		result = a.reload()
	}
	return result, nil
}
