package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prism-engine/editor-host/logger"
)

var ErrActionNotFound = errors.New("action not found")

func IsActionNotFound(err error) bool {
	return errors.Is(err, ErrActionNotFound)
}

// Manager holds the registered actions.
type Manager struct {
	actions map[string]Action
	mutex   sync.RWMutex
}

// NewManager creates an empty action manager.
func NewManager() *Manager {
	return &Manager{
		actions: make(map[string]Action),
	}
}

// Register registers one action.
func (m *Manager) Register(action Action) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if action == nil {
		return errors.New("action cannot be nil")
	}

	name := action.Name()
	if name == "" {
		return errors.New("action name cannot be empty")
	}

	m.actions[name] = action
	logger.Debug("Action registered", "name", name)
	return nil
}

// Get retrieves an action by name.
func (m *Manager) Get(name string) (Action, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	action, exists := m.actions[name]
	return action, exists
}

// List returns all registered actions sorted by name.
func (m *Manager) List() []Action {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	actions := make([]Action, 0, len(m.actions))
	for _, action := range m.actions {
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Name() < actions[j].Name()
	})
	return actions
}

// Execute runs an action by name with the given arguments.
func (m *Manager) Execute(name string, args json.RawMessage) (any, error) {
	action, exists := m.Get(name)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}

	logger.Debug("Executing action", "name", name, "args", string(args))
	return action.Execute(args)
}
