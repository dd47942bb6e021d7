package actions

import (
	"github.com/prism-engine/editor-host/enginebridge"
	"github.com/prism-engine/editor-host/logger"
	"github.com/prism-engine/editor-host/macrocatalog"
)

// Deps carries the collaborators the default actions are bound to.
type Deps struct {
	Session *enginebridge.Session
	Macros  *macrocatalog.Registry
	// ReloadMacros re-reads the catalog from its configured paths. Nil when
	// the catalog is disabled.
	ReloadMacros MacroCatalogReloader
	// RejectUnknownMacroArguments fails macro invocations that supply
	// undeclared arguments.
	RejectUnknownMacroArguments bool
}

// RegisterDefaults registers the built-in action set.
func (m *Manager) RegisterDefaults(deps Deps) {
	all := []Action{
		NewStartEngineAction(deps.Session),
		NewStopEngineAction(deps.Session),
		NewPlayAction(deps.Session),
		NewStopPlayAction(deps.Session),
		NewPauseAction(deps.Session),
		NewResumeAction(deps.Session),
		NewSetModeAction(deps.Session),
		NewSendCommandAction(deps.Session),
		NewGetStateAction(deps.Session),
		NewTailConsoleAction(deps.Session),
		NewRunMacroAction(deps.Session, deps.Macros, deps.RejectUnknownMacroArguments),
		NewListMacrosAction(deps.Macros),
		NewReloadMacrosAction(deps.ReloadMacros),
	}
	for _, action := range all {
		if err := m.Register(action); err != nil {
			logger.Error("Failed to register action", "name", action.Name(), "error", err)
		}
	}
	logger.Info("Default actions registered", "count", len(all))
}
