// Package stdio is the host's line-oriented operator console. Slash-prefixed
// lines drive the host itself, @macro lines expand command macros, and
// anything else is forwarded to the engine as a protocol command. Engine
// console output is echoed back interleaved with the operator's own input.
package stdio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/prism-engine/editor-host/actions"
	"github.com/prism-engine/editor-host/enginebridge"
	"github.com/prism-engine/editor-host/logger"
	"github.com/prism-engine/editor-host/macrocatalog"
)

// ErrQuit distinguishes an operator /quit from plain EOF, so the caller can
// shut the host down for the former and keep running for the latter.
var ErrQuit = errors.New("operator quit requested")

// Console reads operator input line by line and dispatches it through the
// shared action registry.
type Console struct {
	manager *actions.Manager
	bridge  *enginebridge.Session
	in      io.Reader
	out     io.Writer
	mu      sync.Mutex
}

func NewConsole(manager *actions.Manager, bridge *enginebridge.Session) *Console {
	return &Console{
		manager: manager,
		bridge:  bridge,
		in:      os.Stdin,
		out:     os.Stdout,
	}
}

// Start runs the read loop until EOF (returns nil) or /quit (returns
// ErrQuit). Engine console lines arrive on the bridge's UI thread and are
// interleaved under the output mutex.
func (c *Console) Start() error {
	consoleID := c.bridge.Events().SubscribeConsole(func(line enginebridge.ConsoleLine) {
		c.printConsoleLine(line)
	})
	defer c.bridge.Events().Unsubscribe(consoleID)

	logger.Debug("Operator console started and waiting for input")
	c.printf("Prism operator console. /help lists commands.")

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if !c.handleLine(scanner.Text()) {
			logger.Debug("Operator console quit requested")
			return ErrQuit
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Error reading operator input", "error", err)
		return err
	}

	logger.Debug("Operator console EOF received, terminating")
	return nil
}

// handleLine dispatches one input line, reporting false when the console
// should stop.
func (c *Console) handleLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true
	}

	switch {
	case strings.HasPrefix(trimmed, "/"):
		return c.handleHostCommand(trimmed)
	case strings.HasPrefix(trimmed, "@"):
		c.handleMacro(trimmed)
		return true
	default:
		c.invoke("send-command", map[string]string{"text": trimmed})
		return true
	}
}

func (c *Console) handleHostCommand(line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/help":
		c.printHelp()
	case "/quit", "/exit":
		return false
	case "/state":
		c.invoke("get-state", nil)
	case "/start":
		c.invoke("start-engine", nil)
	case "/stop":
		c.invoke("stop-engine", nil)
	case "/play":
		c.invoke("play", nil)
	case "/stopplay":
		c.invoke("stop-play", nil)
	case "/pause":
		c.invoke("pause", nil)
	case "/resume":
		c.invoke("resume", nil)
	case "/mode":
		if len(fields) != 2 {
			c.printf("usage: /mode <editing|playing|stopped>")
			return true
		}
		c.invoke("set-mode", map[string]string{"mode": fields[1]})
	case "/tail":
		lines := 0
		if len(fields) > 1 {
			parsed, err := strconv.Atoi(fields[1])
			if err != nil || parsed <= 0 {
				c.printf("usage: /tail [count]")
				return true
			}
			lines = parsed
		}
		if lines > 0 {
			c.invoke("tail-console", map[string]int{"lines": lines})
		} else {
			c.invoke("tail-console", nil)
		}
	case "/actions":
		c.printActions()
	case "/macros":
		c.invoke("list-macros", nil)
	case "/reload":
		c.invoke("reload-macros", nil)
	default:
		c.printf("unknown command %s; /help lists commands", fields[0])
	}
	return true
}

// handleMacro parses "@name key=value ..." and runs the named macro.
// Argument values cannot contain spaces in this surface; use the control
// server for anything richer.
func (c *Console) handleMacro(line string) {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "@")
	if name == "" {
		c.printf("usage: @<macro> [key=value ...]")
		return
	}

	arguments := make(map[string]string)
	for _, field := range fields[1:] {
		key, value, found := strings.Cut(field, "=")
		if !found || key == "" {
			c.printf("macro arguments must look like key=value, got %q", field)
			return
		}
		arguments[key] = value
	}

	c.invoke("run-macro", map[string]any{
		"name":      name,
		"arguments": arguments,
	})
}

func (c *Console) invoke(name string, args any) {
	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			c.printf("error: %v", err)
			return
		}
		raw = data
	}

	result, err := c.manager.Execute(name, raw)
	if err != nil {
		if semanticErr, ok := actions.AsSemanticError(err); ok {
			c.printf("error (%s): %s", semanticErr.Kind, semanticErr.Message)
			return
		}
		c.printf("error: %v", err)
		return
	}
	c.printResult(name, result)
}

func (c *Console) printResult(name string, result any) {
	payload, ok := result.(map[string]any)
	if !ok {
		data, _ := json.Marshal(result)
		c.printf("%s", data)
		return
	}

	switch name {
	case "tail-console":
		lines, _ := payload["lines"].([]enginebridge.ConsoleLine)
		if len(lines) == 0 {
			c.printf("(console empty)")
			return
		}
		for _, line := range lines {
			c.printConsoleLine(line)
		}
		return
	case "list-macros":
		macros, _ := payload["macros"].([]macrocatalog.Macro)
		if len(macros) == 0 {
			c.printf("(no macros loaded)")
			return
		}
		for _, macro := range macros {
			c.printf("@%s%s  %s", macro.Name, formatMacroArguments(macro), macro.Description)
		}
		return
	}

	if state, ok := payload["state"].(enginebridge.Snapshot); ok {
		c.printf("%s", formatSnapshot(state))
		return
	}

	data, _ := json.Marshal(payload)
	c.printf("%s", data)
}

func (c *Console) printActions() {
	for _, action := range c.manager.List() {
		c.printf("%-16s %s", action.Name(), action.Description())
	}
}

func (c *Console) printHelp() {
	c.printf(strings.TrimSpace(`
/state                           show session state
/start, /stop                    launch or stop the engine
/play, /stopplay                 enter or leave play mode
/pause, /resume                  suspend or resume execution
/mode <editing|playing|stopped>  request a mode
/tail [count]                    show recent console lines
/actions                         list available actions
/macros                          list command macros
/reload                          reload the macro catalog
/quit                            exit the console
@<macro> [key=value ...]         run a macro
anything else                    sent to the engine as a command`))
}

func (c *Console) printConsoleLine(line enginebridge.ConsoleLine) {
	if line.Stderr {
		c.printf("[stderr] %s", line.Text)
		return
	}
	c.printf("%s", line.Text)
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func formatSnapshot(snap enginebridge.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "mode=%s paused=%v", snap.ModeName, snap.Paused)
	if snap.PID != 0 {
		fmt.Fprintf(&b, " pid=%d", snap.PID)
	}
	fmt.Fprintf(&b, " surface=%v channel=%v pending=%d", snap.SurfaceAttached, snap.ChannelReady, snap.PendingCommands)
	if snap.DiscoveryFailed {
		fmt.Fprintf(&b, " discovery=failed(%d attempts)", snap.DiscoveryAttempts)
	}
	return b.String()
}

func formatMacroArguments(macro macrocatalog.Macro) string {
	if len(macro.Arguments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(macro.Arguments))
	for _, arg := range macro.Arguments {
		if arg.Required {
			parts = append(parts, arg.Name+"=<required>")
		} else {
			parts = append(parts, arg.Name+"=<optional>")
		}
	}
	return " " + strings.Join(parts, " ")
}
