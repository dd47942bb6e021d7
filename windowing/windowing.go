// Package windowing abstracts the native windowing substrate the editor host
// and the engine runtime share. The bridge only needs a narrow slice of it:
// locate a window by class, reparent and place it, hand it focus, exchange
// tagged copy-data payloads, forward raw window messages, and schedule work
// onto the UI thread. On Windows the System is backed by user32/kernel32; on
// every other platform (and in tests) the in-memory Sim stands in.
package windowing

import (
	"context"
	"errors"
	"time"
)

// Handle identifies a native window. The zero Handle means "no window".
// Handles owned by another process are weak references: they are looked up,
// never destroyed, and go stale when the owning process exits.
type Handle uintptr

// None is the absent window handle.
const None Handle = 0

// Rect is a window placement in parent client coordinates.
type Rect struct {
	X, Y          int
	Width, Height int
}

// Window message identifiers used for input forwarding. Values match the
// Win32 vocabulary so the native System passes them through untranslated.
const (
	MsgKeyDown     = 0x0100
	MsgKeyUp       = 0x0101
	MsgChar        = 0x0102
	MsgSysKeyDown  = 0x0104
	MsgSysKeyUp    = 0x0105
	MsgMouseMove   = 0x0200
	MsgLButtonDown = 0x0201
	MsgLButtonUp   = 0x0202
	MsgRButtonDown = 0x0204
	MsgRButtonUp   = 0x0205
	MsgMButtonDown = 0x0207
	MsgMButtonUp   = 0x0208
	MsgMouseWheel  = 0x020A
)

// InputMessage is one pointer or keyboard message intercepted at the
// embedding region, in the substrate's native encoding.
type InputMessage struct {
	Msg    uint32
	WParam uintptr
	LParam uintptr
}

// IsKeyboard reports whether the message is a keyboard message.
func (m InputMessage) IsKeyboard() bool {
	return m.Msg >= MsgKeyDown && m.Msg <= MsgSysKeyUp
}

// IsPointer reports whether the message is a pointer message.
func (m InputMessage) IsPointer() bool {
	return m.Msg >= MsgMouseMove && m.Msg <= MsgMouseWheel
}

// CopyDataHandler receives one inbound tagged payload addressed to a host
// window. Payload is the declared-length transfer buffer; the handler must
// not retain it past the call.
type CopyDataHandler func(source Handle, channel int, payload []byte)

var (
	ErrNoWindow     = errors.New("no such window")
	ErrNotOwned     = errors.New("window not owned by this system")
	ErrLoopStopped  = errors.New("ui loop stopped")
	ErrNotSupported = errors.New("not supported on this platform")
)

// System is the host-side view of the windowing substrate.
//
// Every method that mutates the window tree must be called on the UI thread;
// Invoke is the one safe entry point from other goroutines.
type System interface {
	// CreateHostWindow creates an editor-owned native window, hidden unless
	// visible is set. Used for the parking surface and for message-only
	// windows that receive copy-data.
	CreateHostWindow(name string, visible bool) (Handle, error)
	// DestroyWindow destroys a window created by CreateHostWindow.
	DestroyWindow(h Handle) error
	// IsWindow reports whether h still refers to a live window, owned or not.
	IsWindow(h Handle) bool

	// FindChildByClass searches the direct children of parent for a window
	// whose class name equals class.
	FindChildByClass(parent Handle, class string) (Handle, bool)
	// SetParent reparents child under parent. Reparenting a foreign window is
	// allowed; the substrate transfers ownership of placement, not lifetime.
	SetParent(child, parent Handle) error
	// Move positions and sizes h within its parent's client area.
	Move(h Handle, r Rect) error
	// Show makes h visible.
	Show(h Handle) error
	// BringToFront raises h in its sibling z-order.
	BringToFront(h Handle) error
	// FocusWindow transfers keyboard focus to h.
	FocusWindow(h Handle) error
	// WindowRect returns h's current placement in parent client coordinates.
	WindowRect(h Handle) (Rect, error)

	// SendCopyData synchronously transmits a tagged payload to target,
	// identifying source as the sender. Returns false when target is gone or
	// the transmission primitive reports failure. Never panics.
	SendCopyData(target, source Handle, channel int, payload []byte) bool
	// SetCopyDataHandler registers the inbound handler for a window owned by
	// this system. A nil handler unregisters.
	SetCopyDataHandler(h Handle, fn CopyDataHandler) error
	// SendWindowMessage synchronously delivers one raw window message.
	SendWindowMessage(target Handle, msg uint32, wparam, lparam uintptr) bool

	// PostQuit posts a quit request to the message queue of every thread of
	// the identified process. It does not require a window handle.
	PostQuit(pid int) bool
	// RequestClose asks the window to close, waiting at most timeout for the
	// owning thread to acknowledge. Best effort.
	RequestClose(h Handle, timeout time.Duration) bool

	// Invoke schedules fn onto the UI thread. Calls run in submission order.
	Invoke(fn func())

	// Run enters the UI loop on the calling goroutine, dispatching Invoke
	// callbacks and window messages until ctx is done.
	Run(ctx context.Context) error
}
