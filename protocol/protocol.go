// Package protocol pins the wire-level contract between the editor host and a
// running prism-runtime process: channel tags, the command vocabulary, and the
// wide-character payload encoding both sides must agree on bit-exactly.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ProtocolVersion is reported by the host over its control surfaces.
const ProtocolVersion = "0.1.0"

// Channel tags carried alongside every copy-data payload. The runtime silently
// ignores channels it does not know.
const (
	// ChannelCommand carries generic command text, one command per message.
	ChannelCommand = 1
)

// Commands understood by the runtime's console dispatcher. Free-form commands
// (for example "(scene.entity.move e42 1 0 0)") pass through untouched; the
// runtime tolerates unknown commands silently.
const (
	CmdResume = "resume"
	CmdPause  = "pause"
	CmdStop   = "stop"
	CmdPlay   = "play"
	CmdEdit   = "edit"
	CmdGame   = "game"
)

// SurfaceClassName is the window class the runtime registers for its rendered
// output window. Discovery polls for exactly this class under the embedding
// region's native handle.
const SurfaceClassName = "PrismRuntimeOutput"

// Launch argument names the runtime parses at startup.
const (
	ArgParentHandle = "--parent-hwnd"
	ArgInitialState = "--state"
)

// Initial mode values accepted by ArgInitialState.
const (
	ModeEditing = "editing"
	ModePlaying = "playing"
)

// MaxCommandLen bounds a single command's rune count. The transport carries an
// explicit byte count, so this is a sanity guard rather than a frame limit.
const MaxCommandLen = 1 << 16

var (
	ErrEmptyCommand    = errors.New("empty command")
	ErrCommandTooLong  = errors.New("command too long")
	ErrEmbeddedNUL     = errors.New("command contains NUL")
	ErrControlNewlines = errors.New("command contains newline")
)

// ValidateCommand rejects text that cannot survive the NUL-terminated
// wide-character transport: one command per message, no embedded terminators,
// no newlines (the runtime console is message-framed, not line-framed).
func ValidateCommand(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyCommand
	}
	if len(trimmed) > MaxCommandLen {
		return fmt.Errorf("%w: %d runes", ErrCommandTooLong, len(trimmed))
	}
	if strings.ContainsRune(trimmed, 0) {
		return ErrEmbeddedNUL
	}
	if strings.ContainsAny(trimmed, "\r\n") {
		return ErrControlNewlines
	}
	return nil
}

// NormalizeCommand trims surrounding whitespace. Validation is the caller's
// responsibility; Normalize never fails.
func NormalizeCommand(text string) string {
	return strings.TrimSpace(text)
}
