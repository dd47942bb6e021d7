package windowing

import (
	"errors"
	"testing"
	"time"
)

func TestDestroyCascadesToForeignChildren(t *testing.T) {
	sim := NewSim()
	host, err := sim.CreateHostWindow("region", true)
	if err != nil {
		t.Fatalf("create host window: %v", err)
	}
	child := sim.CreateForeignWindow(4242, host, "PrismRuntimeOutput")

	if err := sim.DestroyWindow(host); err != nil {
		t.Fatalf("destroy host window: %v", err)
	}
	if sim.IsWindow(child) {
		t.Fatal("expected foreign child to be destroyed with its parent")
	}
}

func TestParkingSurvivesRegionDestroy(t *testing.T) {
	sim := NewSim()
	region, _ := sim.CreateHostWindow("region", true)
	park, _ := sim.CreateHostWindow("park", false)
	child := sim.CreateForeignWindow(4242, region, "PrismRuntimeOutput")

	if err := sim.SetParent(child, park); err != nil {
		t.Fatalf("reparent to park: %v", err)
	}
	if err := sim.DestroyWindow(region); err != nil {
		t.Fatalf("destroy region: %v", err)
	}
	if !sim.IsWindow(child) {
		t.Fatal("expected parked child to survive region destroy")
	}
	if got := sim.Parent(child); got != park {
		t.Fatalf("expected parent %#x, got %#x", park, got)
	}
}

func TestDestroyProcessWindowsModelsExit(t *testing.T) {
	sim := NewSim()
	region, _ := sim.CreateHostWindow("region", true)
	child := sim.CreateForeignWindow(4242, region, "PrismRuntimeOutput")
	other := sim.CreateForeignWindow(9999, None, "SomeOtherClass")

	sim.DestroyProcessWindows(4242)
	if sim.IsWindow(child) {
		t.Fatal("expected process windows to be destroyed")
	}
	if !sim.IsWindow(region) {
		t.Fatal("expected editor-owned window to survive")
	}
	if !sim.IsWindow(other) {
		t.Fatal("expected unrelated process window to survive")
	}
}

func TestFindChildByClassPicksLowestHandle(t *testing.T) {
	sim := NewSim()
	parent, _ := sim.CreateHostWindow("region", true)
	first := sim.CreateForeignWindow(1, parent, "PrismRuntimeOutput")
	sim.CreateForeignWindow(1, parent, "PrismRuntimeOutput")
	sim.CreateForeignWindow(1, parent, "UnrelatedClass")

	got, ok := sim.FindChildByClass(parent, "PrismRuntimeOutput")
	if !ok {
		t.Fatal("expected a match")
	}
	if got != first {
		t.Fatalf("expected lowest handle %#x, got %#x", first, got)
	}

	if _, ok := sim.FindChildByClass(parent, "NoSuchClass"); ok {
		t.Fatal("expected no match for unknown class")
	}
}

func TestSetParentValidatesWindows(t *testing.T) {
	sim := NewSim()
	w, _ := sim.CreateHostWindow("w", false)

	if err := sim.SetParent(Handle(0xdead), w); !errors.Is(err, ErrNoWindow) {
		t.Fatalf("expected ErrNoWindow for missing child, got %v", err)
	}
	if err := sim.SetParent(w, Handle(0xdead)); !errors.Is(err, ErrNoWindow) {
		t.Fatalf("expected ErrNoWindow for missing parent, got %v", err)
	}
	if err := sim.SetParent(w, None); err != nil {
		t.Fatalf("expected detach to top level to succeed, got %v", err)
	}
}

func TestSendCopyDataIsSynchronous(t *testing.T) {
	sim := NewSim()
	receiver, _ := sim.CreateHostWindow("receiver", false)
	sender, _ := sim.CreateHostWindow("sender", false)

	var gotSource Handle
	var gotChannel int
	var gotPayload []byte
	if err := sim.SetCopyDataHandler(receiver, func(source Handle, channel int, payload []byte) {
		gotSource = source
		gotChannel = channel
		gotPayload = payload
	}); err != nil {
		t.Fatalf("set handler: %v", err)
	}

	if !sim.SendCopyData(receiver, sender, 1, []byte{0x68, 0x00}) {
		t.Fatal("expected send to succeed")
	}
	if gotSource != sender || gotChannel != 1 || len(gotPayload) != 2 {
		t.Fatalf("handler saw source=%#x channel=%d payload=%v", gotSource, gotChannel, gotPayload)
	}
}

func TestSendCopyDataFailureModes(t *testing.T) {
	sim := NewSim()
	receiver, _ := sim.CreateHostWindow("receiver", false)

	if sim.SendCopyData(Handle(0xdead), receiver, 1, nil) {
		t.Fatal("expected send to a missing window to fail")
	}
	if sim.SendCopyData(receiver, None, 1, nil) {
		t.Fatal("expected send without a handler to fail")
	}

	sim.SetCopyDataHandler(receiver, func(Handle, int, []byte) {})
	sim.FailSends(true)
	if sim.SendCopyData(receiver, None, 1, nil) {
		t.Fatal("expected forced failure")
	}
	sim.FailSends(false)
	if !sim.SendCopyData(receiver, None, 1, nil) {
		t.Fatal("expected send to succeed after clearing forced failure")
	}
}

func TestSetCopyDataHandlerUnregisters(t *testing.T) {
	sim := NewSim()
	receiver, _ := sim.CreateHostWindow("receiver", false)

	if err := sim.SetCopyDataHandler(Handle(0xdead), func(Handle, int, []byte) {}); !errors.Is(err, ErrNoWindow) {
		t.Fatalf("expected ErrNoWindow, got %v", err)
	}

	sim.SetCopyDataHandler(receiver, func(Handle, int, []byte) {})
	sim.SetCopyDataHandler(receiver, nil)
	if sim.SendCopyData(receiver, None, 1, nil) {
		t.Fatal("expected send to fail after handler removal")
	}
}

func TestSendWindowMessageAppendsToDeliveryLog(t *testing.T) {
	sim := NewSim()
	target, _ := sim.CreateHostWindow("target", true)

	if !sim.SendWindowMessage(target, MsgKeyDown, 0x41, 0) {
		t.Fatal("expected delivery to succeed")
	}
	if sim.SendWindowMessage(Handle(0xdead), MsgKeyDown, 0x41, 0) {
		t.Fatal("expected delivery to a missing window to fail")
	}

	msgs := sim.DeliveredMessages(target)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Msg != MsgKeyDown || msgs[0].WParam != 0x41 {
		t.Fatalf("unexpected message %+v", msgs[0])
	}
}

func TestInputMessageClassification(t *testing.T) {
	cases := []struct {
		msg      uint32
		keyboard bool
		pointer  bool
	}{
		{MsgKeyDown, true, false},
		{MsgChar, true, false},
		{MsgSysKeyUp, true, false},
		{MsgMouseMove, false, true},
		{MsgLButtonDown, false, true},
		{MsgMouseWheel, false, true},
		{0x0001, false, false},
	}
	for _, tc := range cases {
		m := InputMessage{Msg: tc.msg}
		if m.IsKeyboard() != tc.keyboard {
			t.Fatalf("msg %#04x: IsKeyboard=%v, want %v", tc.msg, m.IsKeyboard(), tc.keyboard)
		}
		if m.IsPointer() != tc.pointer {
			t.Fatalf("msg %#04x: IsPointer=%v, want %v", tc.msg, m.IsPointer(), tc.pointer)
		}
	}
}

func TestRequestCloseConsultsResponder(t *testing.T) {
	sim := NewSim()
	w, _ := sim.CreateHostWindow("w", true)

	if !sim.RequestClose(w, time.Second) {
		t.Fatal("expected live window without responder to acknowledge close")
	}
	sim.SetCloseHandler(w, func() bool { return false })
	if sim.RequestClose(w, time.Second) {
		t.Fatal("expected responder refusal to propagate")
	}
	if sim.RequestClose(Handle(0xdead), time.Second) {
		t.Fatal("expected close request to a missing window to fail")
	}
}

func TestPostQuitIsRecorded(t *testing.T) {
	sim := NewSim()
	if sim.QuitRequested(4242) {
		t.Fatal("expected no quit before post")
	}
	if !sim.PostQuit(4242) {
		t.Fatal("expected post to succeed")
	}
	if !sim.QuitRequested(4242) {
		t.Fatal("expected quit to be recorded")
	}
}

func TestPumpRunsInvokesInOrder(t *testing.T) {
	sim := NewSim()
	var order []int
	sim.Invoke(func() { order = append(order, 1) })
	sim.Invoke(func() {
		order = append(order, 2)
		sim.Invoke(func() { order = append(order, 3) })
	})
	sim.Pump()

	if len(order) != 3 {
		t.Fatalf("expected 3 invocations, got %d", len(order))
	}
	for i, v := range order {
		if v != i+1 {
			t.Fatalf("expected invocation order 1,2,3, got %v", order)
		}
	}
}

func TestFocusAndRaiseTracking(t *testing.T) {
	sim := NewSim()
	parent, _ := sim.CreateHostWindow("region", true)
	child := sim.CreateForeignWindow(1, parent, "PrismRuntimeOutput")

	if err := sim.BringToFront(child); err != nil {
		t.Fatalf("bring to front: %v", err)
	}
	if got := sim.RaisedUnder(parent); got != child {
		t.Fatalf("expected raised child %#x, got %#x", child, got)
	}
	if err := sim.FocusWindow(child); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if got := sim.Focused(); got != child {
		t.Fatalf("expected focus on %#x, got %#x", child, got)
	}

	sim.DestroyProcessWindows(1)
	if got := sim.Focused(); got != None {
		t.Fatalf("expected focus cleared after owner exit, got %#x", got)
	}
}
