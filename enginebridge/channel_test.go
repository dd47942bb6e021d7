package enginebridge

import (
	"testing"

	"github.com/prism-engine/editor-host/protocol"
	"github.com/prism-engine/editor-host/windowing"
)

func newChannelFixture(t *testing.T) (*windowing.Sim, *MessageChannel, windowing.Handle) {
	t.Helper()
	sim := windowing.NewSim()
	source, err := sim.CreateHostWindow("region", true)
	if err != nil {
		t.Fatalf("create source window: %v", err)
	}
	return sim, NewMessageChannel(sim, source), source
}

func TestChannelSendUnattached(t *testing.T) {
	_, ch, _ := newChannelFixture(t)
	if ch.Ready() {
		t.Fatal("fresh channel must not be ready")
	}
	if ch.Send(protocol.ChannelCommand, "pause") {
		t.Fatal("send on an unattached channel must report false")
	}
}

func TestChannelSendDeliversPayload(t *testing.T) {
	sim, ch, source := newChannelFixture(t)
	target := sim.CreateForeignWindow(42, windowing.None, protocol.SurfaceClassName)

	var gotSource windowing.Handle
	var gotChannel int
	var gotText string
	if err := sim.SetCopyDataHandler(target, func(src windowing.Handle, channel int, payload []byte) {
		text, err := protocol.DecodeWideZ(payload)
		if err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		gotSource, gotChannel, gotText = src, channel, text
	}); err != nil {
		t.Fatalf("set handler: %v", err)
	}

	ch.Attach(target)
	if !ch.Ready() {
		t.Fatal("expected channel ready after attach")
	}
	if !ch.Send(protocol.ChannelCommand, "scene.löschen ünïcode") {
		t.Fatal("send failed")
	}
	if gotSource != source {
		t.Errorf("handler saw source %v, want %v", gotSource, source)
	}
	if gotChannel != protocol.ChannelCommand {
		t.Errorf("handler saw channel %d, want %d", gotChannel, protocol.ChannelCommand)
	}
	if gotText != "scene.löschen ünïcode" {
		t.Errorf("handler saw %q", gotText)
	}
}

func TestChannelSendAfterTargetDestroyed(t *testing.T) {
	sim, ch, _ := newChannelFixture(t)
	target := sim.CreateForeignWindow(42, windowing.None, protocol.SurfaceClassName)
	ch.Attach(target)

	if err := sim.DestroyWindow(target); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if ch.Ready() {
		t.Fatal("channel must not be ready once the target window is gone")
	}
	if ch.Send(protocol.ChannelCommand, "pause") {
		t.Fatal("send to a dead window must report false, not panic")
	}
}

func TestChannelSendTransportFailure(t *testing.T) {
	sim, ch, _ := newChannelFixture(t)
	target := sim.CreateForeignWindow(42, windowing.None, protocol.SurfaceClassName)
	ch.Attach(target)

	sim.FailSends(true)
	if ch.Send(protocol.ChannelCommand, "pause") {
		t.Fatal("send must report transport failure")
	}
	sim.FailSends(false)
	// No handler registered on target: still a failed delivery.
	if ch.Send(protocol.ChannelCommand, "pause") {
		t.Fatal("send without a receiving handler must report false")
	}
}

func TestChannelDetach(t *testing.T) {
	sim, ch, _ := newChannelFixture(t)
	target := sim.CreateForeignWindow(42, windowing.None, protocol.SurfaceClassName)
	ch.Attach(target)
	ch.Detach()
	if ch.Ready() {
		t.Fatal("detached channel must not be ready")
	}
	if ch.Target() != windowing.None {
		t.Fatalf("expected None target after detach, got %v", ch.Target())
	}
}

func TestChannelInboundDelivery(t *testing.T) {
	sim, ch, source := newChannelFixture(t)

	var gotChannel int
	var gotText string
	calls := 0
	if err := ch.BindInbound(source, func(channel int, text string) {
		calls++
		gotChannel, gotText = channel, text
	}); err != nil {
		t.Fatalf("bind inbound: %v", err)
	}

	peer := sim.CreateForeignWindow(42, windowing.None, protocol.SurfaceClassName)
	if !sim.SendCopyData(source, peer, 5, protocol.EncodeWideZ("engine ready")) {
		t.Fatal("simulated engine send failed")
	}
	if calls != 1 || gotChannel != 5 || gotText != "engine ready" {
		t.Fatalf("inbound delivery: calls=%d channel=%d text=%q", calls, gotChannel, gotText)
	}
}

func TestChannelInboundMalformedPayloadDropped(t *testing.T) {
	sim, ch, source := newChannelFixture(t)

	calls := 0
	if err := ch.BindInbound(source, func(int, string) { calls++ }); err != nil {
		t.Fatalf("bind inbound: %v", err)
	}

	peer := sim.CreateForeignWindow(42, windowing.None, protocol.SurfaceClassName)
	// Odd byte count cannot be UTF-16; the handler must swallow it.
	if !sim.SendCopyData(source, peer, 1, []byte{0x41}) {
		t.Fatal("delivery of the malformed payload should still complete")
	}
	if calls != 0 {
		t.Fatalf("malformed payload must not reach the message callback, calls=%d", calls)
	}

	if !sim.SendCopyData(source, peer, 1, protocol.EncodeWideZ("ok")) {
		t.Fatal("well-formed send failed")
	}
	if calls != 1 {
		t.Fatalf("well-formed payload must reach the callback, calls=%d", calls)
	}
}

func TestChannelUnbindInbound(t *testing.T) {
	sim, ch, source := newChannelFixture(t)
	calls := 0
	if err := ch.BindInbound(source, func(int, string) { calls++ }); err != nil {
		t.Fatalf("bind inbound: %v", err)
	}
	ch.UnbindInbound(source)

	peer := sim.CreateForeignWindow(42, windowing.None, protocol.SurfaceClassName)
	if sim.SendCopyData(source, peer, 1, protocol.EncodeWideZ("ignored")) {
		t.Fatal("send should fail once the handler is unbound")
	}
	if calls != 0 {
		t.Fatalf("unbound handler must not fire, calls=%d", calls)
	}
}

func TestChannelPanickingCallbackReportsFalse(t *testing.T) {
	sim, ch, _ := newChannelFixture(t)
	target, err := sim.CreateHostWindow("echo", false)
	if err != nil {
		t.Fatalf("create window: %v", err)
	}
	if err := sim.SetCopyDataHandler(target, func(windowing.Handle, int, []byte) {
		panic("receiver bug")
	}); err != nil {
		t.Fatalf("set handler: %v", err)
	}
	ch.Attach(target)

	if ch.Send(protocol.ChannelCommand, "pause") {
		t.Fatal("send must report false when delivery panics")
	}
}
