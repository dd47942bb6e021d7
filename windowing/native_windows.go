//go:build windows

package windowing

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// Native backs System with user32/kernel32. One instance per process; the
// goroutine that calls Run is locked to an OS thread and becomes the UI
// thread for every window the host creates.
type Native struct {
	mu       sync.Mutex
	handlers map[Handle]CopyDataHandler
	owned    map[Handle]struct{}

	invokeMu  sync.Mutex
	invokes   []func()
	msgWindow Handle
}

var (
	nativeOnce sync.Once
	nativeInst *Native
)

// NewNative returns the process-wide native substrate.
func NewNative() *Native {
	nativeOnce.Do(func() {
		nativeInst = &Native{
			handlers: make(map[Handle]CopyDataHandler),
			owned:    make(map[Handle]struct{}),
		}
	})
	return nativeInst
}

const (
	wmDestroy  = 0x0002
	wmClose    = 0x0010
	wmQuit     = 0x0012
	wmCopyData = 0x004A
	wmInvoke   = 0x8000 + 1 // WM_APP + 1

	wsPopup   = 0x80000000
	wsVisible = 0x10000000

	swShowNoActivate = 8

	smtoBlock       = 0x0001
	smtoAbortIfHung = 0x0002
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procCreateWindowExW     = user32.NewProc("CreateWindowExW")
	procRegisterClassExW    = user32.NewProc("RegisterClassExW")
	procDefWindowProcW      = user32.NewProc("DefWindowProcW")
	procDestroyWindow       = user32.NewProc("DestroyWindow")
	procFindWindowExW       = user32.NewProc("FindWindowExW")
	procSetParent           = user32.NewProc("SetParent")
	procMoveWindow          = user32.NewProc("MoveWindow")
	procShowWindow          = user32.NewProc("ShowWindow")
	procBringWindowToTop    = user32.NewProc("BringWindowToTop")
	procSetFocus            = user32.NewProc("SetFocus")
	procIsWindow            = user32.NewProc("IsWindow")
	procGetWindowRect       = user32.NewProc("GetWindowRect")
	procGetParent           = user32.NewProc("GetParent")
	procScreenToClient      = user32.NewProc("ScreenToClient")
	procSendMessageW        = user32.NewProc("SendMessageW")
	procSendMessageTimeoutW = user32.NewProc("SendMessageTimeoutW")
	procPostMessageW        = user32.NewProc("PostMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
)

type wndClassEx struct {
	cbSize        uint32
	style         uint32
	lpfnWndProc   uintptr
	cbClsExtra    int32
	cbWndExtra    int32
	hInstance     windows.Handle
	hIcon         uintptr
	hCursor       uintptr
	hbrBackground uintptr
	lpszMenuName  *uint16
	lpszClassName *uint16
	hIconSm       uintptr
}

type copyDataStruct struct {
	dwData uintptr
	cbData uint32
	lpData unsafe.Pointer
}

type point struct{ x, y int32 }

type nativeRect struct{ left, top, right, bottom int32 }

type msg struct {
	hwnd    windows.Handle
	message uint32
	wparam  uintptr
	lparam  uintptr
	time    uint32
	pt      point
}

var (
	classOnce    sync.Once
	classErr     error
	wndProcCB    = syscall.NewCallback(hostWndProc)
	hostClassPtr *uint16
)

func registerHostClass() error {
	classOnce.Do(func() {
		hostClassPtr, classErr = windows.UTF16PtrFromString(HostWindowClass)
		if classErr != nil {
			return
		}
		hinst, err := windows.GetModuleHandle(nil)
		if err != nil {
			classErr = err
			return
		}
		wc := wndClassEx{
			cbSize:        uint32(unsafe.Sizeof(wndClassEx{})),
			lpfnWndProc:   wndProcCB,
			hInstance:     hinst,
			lpszClassName: hostClassPtr,
		}
		if r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
			classErr = err
		}
	})
	return classErr
}

// hostWndProc handles messages for every editor-owned window: inbound
// copy-data is decoded and dispatched, the invoke message drains the UI work
// queue, everything else falls through to the default procedure.
func hostWndProc(hwnd uintptr, message uint32, wparam, lparam uintptr) uintptr {
	n := NewNative()
	switch message {
	case wmCopyData:
		n.mu.Lock()
		fn := n.handlers[Handle(hwnd)]
		n.mu.Unlock()
		if fn != nil {
			cds := (*copyDataStruct)(unsafe.Pointer(lparam))
			payload := make([]byte, cds.cbData)
			if cds.cbData > 0 && cds.lpData != nil {
				copy(payload, unsafe.Slice((*byte)(cds.lpData), cds.cbData))
			}
			fn(Handle(wparam), int(cds.dwData), payload)
			return 1
		}
	case wmInvoke:
		n.drainInvokes()
		return 0
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, uintptr(message), wparam, lparam)
	return r
}

func (n *Native) drainInvokes() {
	for {
		n.invokeMu.Lock()
		if len(n.invokes) == 0 {
			n.invokeMu.Unlock()
			return
		}
		fn := n.invokes[0]
		n.invokes = n.invokes[1:]
		n.invokeMu.Unlock()
		fn()
	}
}

// Run pumps the native message loop until ctx is done. Must be the first
// call made on the goroutine that will own all host windows.
func (n *Native) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := registerHostClass(); err != nil {
		return err
	}
	h, err := n.CreateHostWindow("prism-host-messages", false)
	if err != nil {
		return err
	}
	uiThread := windows.GetCurrentThreadId()
	n.mu.Lock()
	n.msgWindow = h
	n.mu.Unlock()
	// Kick the queue once in case work was invoked before the loop existed.
	procPostMessageW.Call(uintptr(h), wmInvoke, 0, 0)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			procPostThreadMessageW.Call(uintptr(uiThread), wmQuit, 0, 0)
		case <-stop:
		}
	}()
	defer close(stop)

	var m msg
	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case 0, -1:
			n.DestroyWindow(h)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrLoopStopped
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

// CreateHostWindow implements System.
func (n *Native) CreateHostWindow(name string, visible bool) (Handle, error) {
	if err := registerHostClass(); err != nil {
		return None, err
	}
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return None, err
	}
	style := uintptr(wsPopup)
	if visible {
		style |= wsVisible
	}
	hinst, err := windows.GetModuleHandle(nil)
	if err != nil {
		return None, err
	}
	r, _, callErr := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(hostClassPtr)),
		uintptr(unsafe.Pointer(namePtr)),
		style,
		0, 0, 0, 0,
		0, 0,
		uintptr(hinst),
		0,
	)
	if r == 0 {
		return None, callErr
	}
	h := Handle(r)
	n.mu.Lock()
	n.owned[h] = struct{}{}
	n.mu.Unlock()
	return h, nil
}

// DestroyWindow implements System.
func (n *Native) DestroyWindow(h Handle) error {
	n.mu.Lock()
	_, owned := n.owned[h]
	delete(n.owned, h)
	delete(n.handlers, h)
	n.mu.Unlock()
	if !owned {
		return ErrNotOwned
	}
	if r, _, err := procDestroyWindow.Call(uintptr(h)); r == 0 {
		return err
	}
	return nil
}

// IsWindow implements System.
func (n *Native) IsWindow(h Handle) bool {
	r, _, _ := procIsWindow.Call(uintptr(h))
	return r != 0
}

// FindChildByClass implements System.
func (n *Native) FindChildByClass(parent Handle, class string) (Handle, bool) {
	classPtr, err := windows.UTF16PtrFromString(class)
	if err != nil {
		return None, false
	}
	r, _, _ := procFindWindowExW.Call(uintptr(parent), 0, uintptr(unsafe.Pointer(classPtr)), 0)
	if r == 0 {
		return None, false
	}
	return Handle(r), true
}

// SetParent implements System.
func (n *Native) SetParent(child, parent Handle) error {
	if r, _, err := procSetParent.Call(uintptr(child), uintptr(parent)); r == 0 {
		return err
	}
	return nil
}

// Move implements System.
func (n *Native) Move(h Handle, rect Rect) error {
	r, _, err := procMoveWindow.Call(
		uintptr(h),
		uintptr(rect.X), uintptr(rect.Y),
		uintptr(rect.Width), uintptr(rect.Height),
		1,
	)
	if r == 0 {
		return err
	}
	return nil
}

// Show implements System. The surface is shown without stealing activation;
// focus hand-off is a separate, explicit step.
func (n *Native) Show(h Handle) error {
	procShowWindow.Call(uintptr(h), swShowNoActivate)
	return nil
}

// BringToFront implements System.
func (n *Native) BringToFront(h Handle) error {
	if r, _, err := procBringWindowToTop.Call(uintptr(h)); r == 0 {
		return err
	}
	return nil
}

// FocusWindow implements System.
func (n *Native) FocusWindow(h Handle) error {
	r, _, err := procSetFocus.Call(uintptr(h))
	if r == 0 && !errors.Is(err, windows.ERROR_SUCCESS) {
		return err
	}
	return nil
}

// WindowRect implements System.
func (n *Native) WindowRect(h Handle) (Rect, error) {
	var nr nativeRect
	if r, _, err := procGetWindowRect.Call(uintptr(h), uintptr(unsafe.Pointer(&nr))); r == 0 {
		return Rect{}, err
	}
	topLeft := point{nr.left, nr.top}
	bottomRight := point{nr.right, nr.bottom}
	parent, _, _ := procGetParent.Call(uintptr(h))
	if parent != 0 {
		procScreenToClient.Call(parent, uintptr(unsafe.Pointer(&topLeft)))
		procScreenToClient.Call(parent, uintptr(unsafe.Pointer(&bottomRight)))
	}
	return Rect{
		X:      int(topLeft.x),
		Y:      int(topLeft.y),
		Width:  int(bottomRight.x - topLeft.x),
		Height: int(bottomRight.y - topLeft.y),
	}, nil
}

// SendCopyData implements System. The transfer buffer is only referenced for
// the duration of the synchronous call.
func (n *Native) SendCopyData(target, source Handle, channel int, payload []byte) bool {
	var data unsafe.Pointer
	if len(payload) > 0 {
		data = unsafe.Pointer(&payload[0])
	}
	cds := copyDataStruct{
		dwData: uintptr(channel),
		cbData: uint32(len(payload)),
		lpData: data,
	}
	r, _, _ := procSendMessageW.Call(uintptr(target), wmCopyData, uintptr(source), uintptr(unsafe.Pointer(&cds)))
	runtime.KeepAlive(payload)
	return r != 0
}

// SetCopyDataHandler implements System.
func (n *Native) SetCopyDataHandler(h Handle, fn CopyDataHandler) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, owned := n.owned[h]; !owned {
		return ErrNotOwned
	}
	if fn == nil {
		delete(n.handlers, h)
	} else {
		n.handlers[h] = fn
	}
	return nil
}

// SendWindowMessage implements System.
func (n *Native) SendWindowMessage(target Handle, message uint32, wparam, lparam uintptr) bool {
	r, _, _ := procSendMessageW.Call(uintptr(target), uintptr(message), wparam, lparam)
	_ = r
	return n.IsWindow(target)
}

// PostQuit implements System. The quit request goes to every thread of the
// process; threads without a message queue simply drop it.
func (n *Native) PostQuit(pid int) bool {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return false
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	posted := false
	if err := windows.Thread32First(snapshot, &entry); err != nil {
		return false
	}
	for {
		if int(entry.OwnerProcessID) == pid {
			if r, _, _ := procPostThreadMessageW.Call(uintptr(entry.ThreadID), wmQuit, 0, 0); r != 0 {
				posted = true
			}
		}
		if err := windows.Thread32Next(snapshot, &entry); err != nil {
			break
		}
	}
	return posted
}

// RequestClose implements System.
func (n *Native) RequestClose(h Handle, timeout time.Duration) bool {
	var result uintptr
	r, _, _ := procSendMessageTimeoutW.Call(
		uintptr(h),
		wmClose,
		0, 0,
		smtoBlock|smtoAbortIfHung,
		uintptr(timeout.Milliseconds()),
		uintptr(unsafe.Pointer(&result)),
	)
	return r != 0
}

// Invoke implements System.
func (n *Native) Invoke(fn func()) {
	n.invokeMu.Lock()
	n.invokes = append(n.invokes, fn)
	n.invokeMu.Unlock()

	n.mu.Lock()
	target := n.msgWindow
	n.mu.Unlock()
	if target != None {
		procPostMessageW.Call(uintptr(target), wmInvoke, 0, 0)
	}
}

var _ System = (*Native)(nil)
