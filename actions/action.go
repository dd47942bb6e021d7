// Package actions is the operator action registry shared by every control
// surface. Each action is a named operation with JSON arguments; the HTTP
// control server and the stdio console both resolve operator requests through
// the same manager, so behavior cannot drift between surfaces.
package actions

import "encoding/json"

// Action is one named operator action.
type Action interface {
	Name() string
	Description() string
	Execute(args json.RawMessage) (any, error)
}
