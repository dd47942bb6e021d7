package windowing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// HostWindowClass is the class the Sim assigns to editor-owned windows.
const HostWindowClass = "PrismEditorHost"

// Sim is an in-memory windowing substrate. It models the parts of the native
// system the bridge depends on, including the hazard that makes parking
// necessary: destroying a window destroys its children, foreign-owned or not.
//
// The Sim doubles as the System on platforms without native embedding and as
// the deterministic substrate for tests, which drive the UI loop explicitly
// through Pump.
type Sim struct {
	mu         sync.Mutex
	nextHandle Handle
	windows    map[Handle]*simWindow
	handlers   map[Handle]CopyDataHandler
	closers    map[Handle]func() bool
	raised     map[Handle]Handle // parent -> child most recently raised
	focused    Handle
	quits      map[int]bool
	failSends  bool

	invokeMu sync.Mutex
	invokes  []func()
	wake     chan struct{}
}

type simWindow struct {
	handle   Handle
	class    string
	name     string
	parent   Handle
	rect     Rect
	visible  bool
	pid      int // 0 = the editor process itself
	messages []InputMessage
}

// NewSim creates an empty simulated substrate.
func NewSim() *Sim {
	return &Sim{
		nextHandle: 0x1000,
		windows:    make(map[Handle]*simWindow),
		handlers:   make(map[Handle]CopyDataHandler),
		closers:    make(map[Handle]func() bool),
		raised:     make(map[Handle]Handle),
		quits:      make(map[int]bool),
		wake:       make(chan struct{}, 1),
	}
}

func (s *Sim) allocLocked() Handle {
	s.nextHandle += 0x10
	return s.nextHandle
}

// CreateHostWindow implements System.
func (s *Sim) CreateHostWindow(name string, visible bool) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.allocLocked()
	s.windows[h] = &simWindow{
		handle:  h,
		class:   HostWindowClass,
		name:    name,
		visible: visible,
	}
	return h, nil
}

// CreateForeignWindow creates a window owned by another (simulated) process.
// Tests and the simulated runtime use it to stand in for the engine's output
// window.
func (s *Sim) CreateForeignWindow(pid int, parent Handle, class string) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.allocLocked()
	s.windows[h] = &simWindow{
		handle: h,
		class:  class,
		parent: parent,
		pid:    pid,
	}
	return h
}

// DestroyWindow implements System. Children are destroyed with their parent,
// regardless of which process owns them.
func (s *Sim) DestroyWindow(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[h]; !ok {
		return ErrNoWindow
	}
	s.destroyTreeLocked(h)
	return nil
}

func (s *Sim) destroyTreeLocked(h Handle) {
	for _, w := range s.windows {
		if w.parent == h {
			s.destroyTreeLocked(w.handle)
		}
	}
	delete(s.windows, h)
	delete(s.handlers, h)
	delete(s.closers, h)
	delete(s.raised, h)
	if s.focused == h {
		s.focused = None
	}
}

// DestroyProcessWindows removes every window owned by pid, modeling process
// exit. Editor-owned windows (pid 0) are unaffected.
func (s *Sim) DestroyProcessWindows(pid int) {
	if pid == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		destroyed := false
		for h, w := range s.windows {
			if w.pid == pid {
				s.destroyTreeLocked(h)
				destroyed = true
				break
			}
		}
		if !destroyed {
			return
		}
	}
}

// IsWindow implements System.
func (s *Sim) IsWindow(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.windows[h]
	return ok
}

// FindChildByClass implements System. Among several matches the lowest handle
// wins, keeping discovery deterministic.
func (s *Sim) FindChildByClass(parent Handle, class string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []Handle
	for h, w := range s.windows {
		if w.parent == parent && w.class == class {
			matches = append(matches, h)
		}
	}
	if len(matches) == 0 {
		return None, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	return matches[0], true
}

// SetParent implements System.
func (s *Sim) SetParent(child, parent Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[child]
	if !ok {
		return ErrNoWindow
	}
	if parent != None {
		if _, ok := s.windows[parent]; !ok {
			return ErrNoWindow
		}
	}
	w.parent = parent
	return nil
}

// Move implements System.
func (s *Sim) Move(h Handle, r Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[h]
	if !ok {
		return ErrNoWindow
	}
	w.rect = r
	return nil
}

// Show implements System.
func (s *Sim) Show(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[h]
	if !ok {
		return ErrNoWindow
	}
	w.visible = true
	return nil
}

// BringToFront implements System.
func (s *Sim) BringToFront(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[h]
	if !ok {
		return ErrNoWindow
	}
	s.raised[w.parent] = h
	return nil
}

// FocusWindow implements System.
func (s *Sim) FocusWindow(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[h]; !ok {
		return ErrNoWindow
	}
	s.focused = h
	return nil
}

// WindowRect implements System.
func (s *Sim) WindowRect(h Handle) (Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[h]
	if !ok {
		return Rect{}, ErrNoWindow
	}
	return w.rect, nil
}

// Parent reports h's current parent. Test helper.
func (s *Sim) Parent(h Handle) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[h]; ok {
		return w.parent
	}
	return None
}

// Focused reports the window holding keyboard focus. Test helper.
func (s *Sim) Focused() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused
}

// RaisedUnder reports the child most recently raised under parent.
func (s *Sim) RaisedUnder(parent Handle) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raised[parent]
}

// SendCopyData implements System. Delivery is synchronous: the handler runs
// on the caller's goroutine before SendCopyData returns, mirroring the native
// primitive's blocking semantics.
func (s *Sim) SendCopyData(target, source Handle, channel int, payload []byte) bool {
	s.mu.Lock()
	if s.failSends {
		s.mu.Unlock()
		return false
	}
	if _, ok := s.windows[target]; !ok {
		s.mu.Unlock()
		return false
	}
	fn := s.handlers[target]
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(source, channel, payload)
	return true
}

// SetCopyDataHandler implements System.
func (s *Sim) SetCopyDataHandler(h Handle, fn CopyDataHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[h]; !ok {
		return ErrNoWindow
	}
	if fn == nil {
		delete(s.handlers, h)
	} else {
		s.handlers[h] = fn
	}
	return nil
}

// FailSends forces every subsequent SendCopyData to report failure. Test
// helper for wedged-transport scenarios.
func (s *Sim) FailSends(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSends = fail
}

// SendWindowMessage implements System. Messages are appended to the target's
// delivery log.
func (s *Sim) SendWindowMessage(target Handle, msg uint32, wparam, lparam uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[target]
	if !ok {
		return false
	}
	w.messages = append(w.messages, InputMessage{Msg: msg, WParam: wparam, LParam: lparam})
	return true
}

// DeliveredMessages returns the raw messages delivered to h. Test helper.
func (s *Sim) DeliveredMessages(h Handle) []InputMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[h]
	if !ok {
		return nil
	}
	out := make([]InputMessage, len(w.messages))
	copy(out, w.messages)
	return out
}

// PostQuit implements System.
func (s *Sim) PostQuit(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quits[pid] = true
	return true
}

// QuitRequested reports whether a quit was posted to pid. Test helper.
func (s *Sim) QuitRequested(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quits[pid]
}

// SetCloseHandler installs the responder RequestClose consults for h.
func (s *Sim) SetCloseHandler(h Handle, fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[h]; ok {
		s.closers[h] = fn
	}
}

// RequestClose implements System. Without an installed responder a live
// window counts as having acknowledged the close.
func (s *Sim) RequestClose(h Handle, timeout time.Duration) bool {
	s.mu.Lock()
	w, ok := s.windows[h]
	fn := s.closers[h]
	s.mu.Unlock()
	if !ok || w == nil {
		return false
	}
	if fn != nil {
		return fn()
	}
	return true
}

// Invoke implements System. Work runs when the UI loop next pumps.
func (s *Sim) Invoke(fn func()) {
	s.invokeMu.Lock()
	s.invokes = append(s.invokes, fn)
	s.invokeMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pump drains the invoke queue on the calling goroutine, which acts as the
// UI thread. Work queued by the drained work itself runs too.
func (s *Sim) Pump() {
	for {
		s.invokeMu.Lock()
		if len(s.invokes) == 0 {
			s.invokeMu.Unlock()
			return
		}
		fn := s.invokes[0]
		s.invokes = s.invokes[1:]
		s.invokeMu.Unlock()
		fn()
	}
}

// Run services the invoke queue until ctx is done. The calling goroutine is
// the UI thread for the duration.
func (s *Sim) Run(ctx context.Context) error {
	for {
		s.Pump()
		select {
		case <-ctx.Done():
			s.Pump()
			return ctx.Err()
		case <-s.wake:
		}
	}
}

var _ System = (*Sim)(nil)
