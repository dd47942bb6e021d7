package enginebridge

import (
	"sync"
	"sync/atomic"

	"github.com/prism-engine/editor-host/windowing"
)

// InputForwarder relays pointer and keyboard messages arriving at the
// embedding region to the embedded surface. Forwarding is gated on the
// enabled flag, which the suspend controller drops before freezing the
// engine and restores only after it is running again.
type InputForwarder struct {
	sys windowing.System

	mu      sync.Mutex
	surface windowing.Handle
	enabled atomic.Bool
}

func NewInputForwarder(sys windowing.System) *InputForwarder {
	return &InputForwarder{sys: sys}
}

// SetSurface points the forwarder at the embedded surface. None detaches.
func (f *InputForwarder) SetSurface(surface windowing.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surface = surface
}

// SetEnabled switches forwarding on or off.
func (f *InputForwarder) SetEnabled(enabled bool) {
	f.enabled.Store(enabled)
}

// Enabled reports whether forwarding is currently on.
func (f *InputForwarder) Enabled() bool {
	return f.enabled.Load()
}

// Forward relays one intercepted message to the surface and reports whether
// the region should consume it. Keyboard messages are consumed once
// forwarded; pointer messages always continue to the region's own handling
// so it can keep tracking focus and activation.
func (f *InputForwarder) Forward(m windowing.InputMessage) (consumed bool) {
	if !f.enabled.Load() {
		return false
	}
	f.mu.Lock()
	surface := f.surface
	f.mu.Unlock()
	if surface == windowing.None {
		return false
	}
	if !f.sys.SendWindowMessage(surface, m.Msg, m.WParam, m.LParam) {
		return false
	}
	return m.IsKeyboard()
}

// ClickActivate applies the activation rule when the region is clicked:
// while forwarding is disabled (engine frozen) the host region claims
// activation so keystrokes cannot head toward a suspended process; while
// enabled, activation is granted and focus is explicitly handed to the
// surface. Reports whether the host kept activation.
func (f *InputForwarder) ClickActivate() (hostKeeps bool) {
	if !f.enabled.Load() {
		return true
	}
	f.mu.Lock()
	surface := f.surface
	f.mu.Unlock()
	if surface == windowing.None {
		return true
	}
	_ = f.sys.FocusWindow(surface)
	return false
}
