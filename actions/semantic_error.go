package actions

import (
	"errors"
	"fmt"
)

const (
	SemanticKindNotAvailable  = "not_available"
	SemanticKindInvalidParams = "invalid_params"
	SemanticKindNotFound      = "not_found"
)

// SemanticError marks action failures that should be surfaced as structured
// payloads rather than transport faults.
type SemanticError struct {
	Kind    string
	Message string
	Data    map[string]any
}

func (e *SemanticError) Error() string {
	if e == nil {
		return "action semantic error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind != "" {
		return fmt.Sprintf("action semantic error: %s", e.Kind)
	}
	return "action semantic error"
}

func NewSemanticError(kind, message string, data map[string]any) *SemanticError {
	return &SemanticError{Kind: kind, Message: message, Data: data}
}

func NewNotAvailableError(message string, data map[string]any) *SemanticError {
	if message == "" {
		message = "Action is temporarily unavailable"
	}
	return NewSemanticError(SemanticKindNotAvailable, message, data)
}

func NewInvalidParamsError(message string, data map[string]any) *SemanticError {
	if message == "" {
		message = "Invalid action arguments"
	}
	return NewSemanticError(SemanticKindInvalidParams, message, data)
}

func NewNotFoundError(message string, data map[string]any) *SemanticError {
	if message == "" {
		message = "Not found"
	}
	return NewSemanticError(SemanticKindNotFound, message, data)
}

func AsSemanticError(err error) (*SemanticError, bool) {
	if err == nil {
		return nil, false
	}
	var semanticErr *SemanticError
	if errors.As(err, &semanticErr) {
		return semanticErr, true
	}
	return nil, false
}
