package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prism-engine/editor-host/actions"
	"github.com/prism-engine/editor-host/enginebridge"
	"github.com/prism-engine/editor-host/logger"
	"github.com/prism-engine/editor-host/protocol"
)

const maxActionBodyBytes = 1 << 20

const headerSessionID = "Prism-Session-Id"

func RegisterRoutes(e *echo.Echo, s *Server) {
	e.GET("/", s.handleInfo)
	e.GET("/state", s.handleState)
	e.GET("/actions", s.handleListActions)
	e.POST("/actions/:name", s.handleInvokeAction)
	e.OPTIONS("/actions/:name", s.handleOptions)
	e.POST("/command", s.handleSendCommand)
	e.GET("/console", s.handleConsoleTail)
	e.GET("/macros", s.handleListMacros)
	e.POST("/macros/reload", s.handleReloadMacros)
	e.POST("/macros/:name/run", s.handleRunMacro)
	e.GET("/events", s.handleEventStream)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.bridge.Metrics().Registry(), promhttp.HandlerOpts{})))
}

func (s *Server) handleInfo(c echo.Context) error {
	logger.Debug("Control server info requested", "remote_addr", c.RealIP())
	info := map[string]any{
		"name":     s.config.Name,
		"version":  s.config.Version,
		"protocol": protocol.ProtocolVersion,
		"capabilities": map[string]any{
			"actions": true,
			"events":  true,
			"macros":  true,
			"metrics": true,
		},
		"events_endpoint": "/events",
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) handleOptions(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleState(c echo.Context) error {
	return s.invoke(c, "get-state", nil)
}

func (s *Server) handleListActions(c echo.Context) error {
	list := make([]map[string]any, 0)
	for _, action := range s.manager.List() {
		list = append(list, map[string]any{
			"name":        action.Name(),
			"description": action.Description(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"actions": list})
}

func (s *Server) handleInvokeAction(c echo.Context) error {
	name := c.Param("name")
	body, err := s.readActionBody(c)
	if err != nil {
		return err
	}
	return s.invoke(c, name, body)
}

func (s *Server) handleSendCommand(c echo.Context) error {
	body, err := s.readActionBody(c)
	if err != nil {
		return err
	}
	return s.invoke(c, "send-command", body)
}

func (s *Server) handleConsoleTail(c echo.Context) error {
	var args json.RawMessage
	if raw := strings.TrimSpace(c.QueryParam("lines")); raw != "" {
		lines, err := strconv.Atoi(raw)
		if err != nil || lines <= 0 {
			return c.JSON(http.StatusBadRequest, errorBody("invalid_params", "lines must be a positive integer", map[string]any{
				"field": "lines",
				"value": raw,
			}))
		}
		args, _ = json.Marshal(map[string]int{"lines": lines})
	}
	return s.invoke(c, "tail-console", args)
}

func (s *Server) handleListMacros(c echo.Context) error {
	return s.invoke(c, "list-macros", nil)
}

func (s *Server) handleReloadMacros(c echo.Context) error {
	return s.invoke(c, "reload-macros", nil)
}

func (s *Server) handleRunMacro(c echo.Context) error {
	body, err := s.readActionBody(c)
	if err != nil {
		return err
	}

	var payload struct {
		Arguments map[string]string `json:"arguments,omitempty"`
	}
	if len(body) > 0 {
		if unmarshalErr := json.Unmarshal(body, &payload); unmarshalErr != nil {
			return c.JSON(http.StatusBadRequest, errorBody("invalid_params", "Invalid run-macro payload", map[string]any{
				"field":   "arguments",
				"problem": "malformed_payload",
			}))
		}
	}

	args, _ := json.Marshal(map[string]any{
		"name":      c.Param("name"),
		"arguments": payload.Arguments,
	})
	return s.invoke(c, "run-macro", args)
}

// readActionBody reads the request body under the action size cap. A missing
// body is returned as nil, letting argument-free actions run without one.
func (s *Server) readActionBody(c echo.Context) (json.RawMessage, error) {
	limitedBody := http.MaxBytesReader(c.Response(), c.Request().Body, maxActionBodyBytes)
	defer limitedBody.Close()

	body, err := io.ReadAll(limitedBody)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			logger.Warn("Request body too large", "limit_bytes", maxActionBodyBytes, "remote_addr", c.RealIP())
			return nil, c.JSON(http.StatusRequestEntityTooLarge, errorBody("invalid_params", "Request body too large", map[string]any{
				"limitBytes": maxActionBodyBytes,
			}))
		}
		logger.Error("Failed to read request body", "error", err)
		return nil, c.JSON(http.StatusBadRequest, errorBody("invalid_params", "Unreadable request body", nil))
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// invoke runs one action and writes its outcome, mapping semantic failures
// onto HTTP statuses.
func (s *Server) invoke(c echo.Context, name string, args json.RawMessage) error {
	result, err := s.manager.Execute(name, args)
	if err == nil {
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "result": result})
	}

	if actions.IsActionNotFound(err) {
		return c.JSON(http.StatusNotFound, errorBody("not_found", "Unknown action", map[string]any{
			"action": name,
		}))
	}
	if semanticErr, ok := actions.AsSemanticError(err); ok {
		return c.JSON(semanticStatus(semanticErr.Kind), errorBody(semanticErr.Kind, semanticErr.Message, semanticErr.Data))
	}

	logger.Error("Action failed", "name", name, "error", err)
	return c.JSON(http.StatusInternalServerError, errorBody("internal", err.Error(), nil))
}

func semanticStatus(kind string) int {
	switch kind {
	case actions.SemanticKindInvalidParams:
		return http.StatusBadRequest
	case actions.SemanticKindNotFound:
		return http.StatusNotFound
	case actions.SemanticKindNotAvailable:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func errorBody(kind, message string, data map[string]any) map[string]any {
	errPayload := map[string]any{
		"kind":    kind,
		"message": message,
	}
	if len(data) > 0 {
		errPayload["data"] = data
	}
	return map[string]any{"ok": false, "error": errPayload}
}

func (s *Server) handleEventStream(c echo.Context) error {
	logger.Info("Event stream request", "remote_addr", c.RealIP())

	if !acceptsEventStream(c.Request().Header.Get(echo.HeaderAccept)) {
		return c.JSON(http.StatusBadRequest, errorBody("invalid_params", "Accept header must include text/event-stream", nil))
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusMethodNotAllowed, errorBody("not_available", "Event stream is not available", nil))
	}

	sessionID, err := generateSessionID()
	if err != nil {
		logger.Error("Failed to generate session ID", "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("internal", "Internal error", nil))
	}

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set(headerSessionID, sessionID)
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	streamCtx, stopStream := context.WithCancel(c.Request().Context())
	defer stopStream()

	stream := NewEventStream(c.Response().Writer, flusher, stopStream)
	if err := stream.SendComment("stream opened"); err != nil {
		logger.Warn("Failed to write initial SSE comment", "session_id", sessionID, "error", err)
		return nil
	}

	s.sessionManager.CreateSession(sessionID, stream)
	defer s.sessionManager.RemoveSession(sessionID)
	stream.OnWrite(func() { s.sessionManager.TouchSession(sessionID) })

	// Event callbacks run on the bridge's UI thread; TrySend never blocks
	// there, it enqueues for the stream's writer loop and drops when the
	// client cannot keep up.
	bus := s.bridge.Events()
	consoleID := bus.SubscribeConsole(func(line enginebridge.ConsoleLine) {
		stream.TrySend("console", line)
	})
	rawID := bus.SubscribeRaw(func(channel int, text string) {
		stream.TrySend("message", map[string]any{"channel": channel, "text": text})
	})
	stateID := bus.SubscribeStateChanged(func() {
		stream.TrySend("state", s.bridge.Snapshot())
	})
	defer bus.Unsubscribe(consoleID)
	defer bus.Unsubscribe(rawID)
	defer bus.Unsubscribe(stateID)

	stream.TrySend("session", map[string]any{
		"sessionId": sessionID,
		"state":     s.bridge.Snapshot(),
	})

	stream.Run(streamCtx)
	return nil
}

func generateSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read cryptographic random bytes: %w", err)
	}
	return "session_" + hex.EncodeToString(buf), nil
}

func acceptsEventStream(acceptHeader string) bool {
	for _, part := range strings.Split(acceptHeader, ",") {
		mime := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if strings.EqualFold(mime, "text/event-stream") {
			return true
		}
	}
	return false
}
