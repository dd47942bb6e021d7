package enginebridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/prism-engine/editor-host/engineproc"
	"github.com/prism-engine/editor-host/protocol"
	"github.com/prism-engine/editor-host/windowing"
)

// idleEngine stands in for a healthy runtime: it stays alive until killed.
// exec matters, both so signals reach the process directly and so the script
// file is closed and can be rewritten while running.
const idleEngine = "exec sleep 30"

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prism-runtime")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write engine script: %v", err)
	}
	return path
}

type testBridge struct {
	sim     *windowing.Sim
	region  windowing.Handle
	session *Session
}

// newTestBridge builds a session on the Sim substrate with timings tightened
// for tests. The test goroutine is the UI thread: queued invokes run only
// when a helper pumps.
func newTestBridge(t *testing.T, executable string, mod func(*Options)) *testBridge {
	t.Helper()
	sim := windowing.NewSim()
	region, err := sim.CreateHostWindow("embedding-region", true)
	if err != nil {
		t.Fatalf("create region: %v", err)
	}
	if err := sim.Move(region, windowing.Rect{Width: 800, Height: 600}); err != nil {
		t.Fatalf("size region: %v", err)
	}

	opts := Options{
		System:               sim,
		Region:               region,
		Executable:           executable,
		DiscoveryInterval:    5 * time.Millisecond,
		MaxDiscoveryAttempts: 400,
		StopGrace:            150 * time.Millisecond,
		CloseTimeout:         50 * time.Millisecond,
	}
	if mod != nil {
		mod(&opts)
	}
	s, err := NewSession(opts)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	b := &testBridge{sim: sim, region: region, session: s}
	t.Cleanup(func() {
		s.Close()
		sim.Pump()
	})
	return b
}

func (b *testBridge) start(t *testing.T) {
	t.Helper()
	if err := b.session.Start(); err != nil {
		t.Fatalf("start session: %v", err)
	}
}

// spawnSurface models the engine creating its output window under the region.
func (b *testBridge) spawnSurface(t *testing.T) windowing.Handle {
	t.Helper()
	proc := b.session.Process()
	if proc == nil {
		t.Fatal("engine not running")
	}
	return b.sim.CreateForeignWindow(proc.PID(), b.region, protocol.SurfaceClassName)
}

// record installs a decoding copy-data handler on the surface and returns an
// accessor for the commands it received, in arrival order.
func (b *testBridge) record(t *testing.T, surface windowing.Handle) func() []string {
	t.Helper()
	var mu sync.Mutex
	var got []string
	err := b.sim.SetCopyDataHandler(surface, func(_ windowing.Handle, _ int, payload []byte) {
		text, err := protocol.DecodeWideZ(payload)
		if err != nil {
			t.Errorf("surface received malformed payload: %v", err)
			return
		}
		mu.Lock()
		got = append(got, text)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("install surface handler: %v", err)
	}
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), got...)
	}
}

func (b *testBridge) waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b.sim.Pump()
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (b *testBridge) waitAttached(t *testing.T) {
	t.Helper()
	b.waitFor(t, "surface adoption", func() bool {
		return b.session.Snapshot().SurfaceAttached
	})
}

func TestStartLaunchFailure(t *testing.T) {
	b := newTestBridge(t, "/no/such/prism-runtime", nil)

	err := b.session.Start()
	if !errors.Is(err, engineproc.ErrLaunch) {
		t.Fatalf("expected launch error, got %v", err)
	}
	snap := b.session.Snapshot()
	if snap.Mode != ModeStopped {
		t.Errorf("failed launch must leave the session stopped, got %v", snap.Mode)
	}

	lines := b.session.Console().Tail(0)
	if len(lines) != 1 || !lines[0].Stderr || !strings.Contains(lines[0].Text, "failed to launch") {
		t.Errorf("expected a stderr console notice about the failure, got %v", lines)
	}
}

func TestStartTwiceReturnsAlreadyStarted(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)
	if err := b.session.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStartPassesEmbeddingArguments(t *testing.T) {
	script := writeScript(t, `echo "args:$@"`+"\n"+idleEngine)
	b := newTestBridge(t, script, nil)
	b.start(t)

	b.waitFor(t, "argument echo", func() bool { return b.session.Console().Len() >= 1 })
	got := b.session.Console().Tail(0)[0].Text
	want := fmt.Sprintf("args:%s %d %s %s",
		protocol.ArgParentHandle, uint64(b.region), protocol.ArgInitialState, protocol.ModeEditing)
	if got != want {
		t.Fatalf("engine argv = %q, want %q", got, want)
	}
}

func TestDiscoveryAdoptsSurface(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)

	surface := b.spawnSurface(t)
	b.waitAttached(t)

	snap := b.session.Snapshot()
	if snap.Mode != ModeEditing || !snap.SurfaceAttached || !snap.ChannelReady {
		t.Fatalf("snapshot after adoption: %+v", snap)
	}
	if snap.PID <= 0 || snap.LaunchID == "" {
		t.Errorf("snapshot must identify the launch: %+v", snap)
	}
	if b.sim.Parent(surface) != b.region {
		t.Errorf("surface parent = %v, want region %v", b.sim.Parent(surface), b.region)
	}
	rect, _ := b.sim.WindowRect(surface)
	if rect.Width != 800 || rect.Height != 600 {
		t.Errorf("surface must fill the region, got %+v", rect)
	}
	if b.sim.Focused() != surface {
		t.Error("surface must hold focus after adoption")
	}
}

func TestCommandsQueueUntilChannelReady(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)

	if b.session.SendCommand("pause") {
		t.Fatal("send before discovery must report queued, not sent")
	}
	if snap := b.session.Snapshot(); snap.PendingCommands != 1 {
		t.Fatalf("expected 1 pending command, got %d", snap.PendingCommands)
	}

	surface := b.spawnSurface(t)
	got := b.record(t, surface)
	b.waitAttached(t)

	// Adoption flushes the backlog before anything new is sent.
	if cmds := got(); len(cmds) != 1 || cmds[0] != "pause" {
		t.Fatalf("expected queued command flushed on adoption, got %v", cmds)
	}
	if !b.session.SendCommand("resume") {
		t.Fatal("send on a ready channel must be immediate")
	}
	cmds := got()
	if len(cmds) != 2 || cmds[0] != "pause" || cmds[1] != "resume" {
		t.Fatalf("issue order must be preserved, got %v", cmds)
	}
	if snap := b.session.Snapshot(); snap.PendingCommands != 0 {
		t.Fatalf("expected empty queue, got %d", snap.PendingCommands)
	}

	m := b.session.Metrics()
	if sent := testutil.ToFloat64(m.CommandsSent); sent != 2 {
		t.Errorf("commands_sent = %v, want 2", sent)
	}
	if queued := testutil.ToFloat64(m.CommandsQueued); queued != 1 {
		t.Errorf("commands_queued = %v, want 1", queued)
	}
}

func TestSendCommandWhileStoppedIsDropped(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)

	if b.session.SendCommand("pause") {
		t.Fatal("send on a stopped session must report false")
	}
	snap := b.session.Snapshot()
	if snap.PendingCommands != 0 {
		t.Fatalf("stopped session must keep an empty queue, got %d", snap.PendingCommands)
	}
	if snap.Mode != ModeStopped || snap.ModeName != "stopped" || snap.PID != 0 || snap.LaunchID != "" {
		t.Fatalf("stopped snapshot: %+v", snap)
	}
}

func TestSendCommandValidation(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)
	surface := b.spawnSurface(t)
	got := b.record(t, surface)
	b.waitAttached(t)

	if b.session.SendCommand("") {
		t.Error("empty command must be rejected")
	}
	if b.session.SendCommand("   ") {
		t.Error("whitespace-only command must be rejected")
	}
	if b.session.SendCommand("two\nlines") {
		t.Error("embedded newline must be rejected")
	}
	if len(got()) != 0 {
		t.Fatalf("rejected commands must not reach the engine, got %v", got())
	}

	if !b.session.SendCommand("  scene.save  ") {
		t.Fatal("valid command failed")
	}
	if cmds := got(); len(cmds) != 1 || cmds[0] != "scene.save" {
		t.Fatalf("expected trimmed command, got %v", cmds)
	}
}

func TestDiscoveryTimeoutKeepsEngineRunning(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), func(o *Options) {
		o.DiscoveryInterval = 3 * time.Millisecond
		o.MaxDiscoveryAttempts = 3
	})
	b.start(t)

	b.waitFor(t, "discovery failure", func() bool {
		return b.session.Snapshot().DiscoveryFailed
	})

	snap := b.session.Snapshot()
	if snap.Mode != ModeEditing {
		t.Errorf("discovery failure must not stop the session, mode %v", snap.Mode)
	}
	if snap.SurfaceAttached {
		t.Error("no surface should be attached")
	}
	if snap.DiscoveryAttempts != 3 {
		t.Errorf("attempts = %d, want 3", snap.DiscoveryAttempts)
	}
	proc := b.session.Process()
	if proc == nil || !proc.IsRunning() {
		t.Fatal("engine process must survive discovery failure")
	}

	var notices int
	for _, line := range b.session.Console().Tail(0) {
		if strings.Contains(line.Text, "discovery timed out") {
			notices++
			if !line.Stderr {
				t.Error("timeout notice must be tagged stderr")
			}
			if !strings.Contains(line.Text, "after 3 attempts") {
				t.Errorf("notice should carry the attempt count: %q", line.Text)
			}
		}
	}
	if notices != 1 {
		t.Fatalf("expected exactly one timeout notice, got %d", notices)
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)
	surface := b.spawnSurface(t)
	b.waitAttached(t)

	closeRequested := false
	b.sim.SetCloseHandler(surface, func() bool {
		closeRequested = true
		return true
	})

	proc := b.session.Process()
	pid := proc.PID()
	if err := b.session.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if !b.sim.QuitRequested(pid) {
		t.Error("stop must post a quit to the engine's message queue first")
	}
	if !closeRequested {
		t.Error("stop must ask the surface window to close")
	}
	if !proc.WaitExit(2 * time.Second) {
		t.Fatal("engine still alive after stop")
	}
	if proc.State() != engineproc.StateKilled {
		t.Errorf("an unresponsive engine must be force-killed, state %v", proc.State())
	}

	snap := b.session.Snapshot()
	if snap.Mode != ModeStopped || snap.SurfaceAttached || snap.ChannelReady || snap.PendingCommands != 0 {
		t.Fatalf("snapshot after stop: %+v", snap)
	}
	if b.session.Process() != nil {
		t.Error("process reference must be cleared")
	}

	// Stop again: nothing to do, no error.
	if err := b.session.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStopGracefulWhenEngineExitsInTime(t *testing.T) {
	b := newTestBridge(t, writeScript(t, "exec sleep 0.2"), func(o *Options) {
		o.StopGrace = 2 * time.Second
	})
	b.start(t)

	proc := b.session.Process()
	if err := b.session.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if proc.State() != engineproc.StateExited {
		t.Errorf("engine exiting within the grace period must not be killed, state %v", proc.State())
	}
	if proc.ExitCode() != 0 {
		t.Errorf("exit code = %d, want 0", proc.ExitCode())
	}
	if snap := b.session.Snapshot(); snap.Mode != ModeStopped {
		t.Fatalf("expected stopped, got %+v", snap)
	}
}

func TestEngineExitTriggersCleanup(t *testing.T) {
	b := newTestBridge(t, writeScript(t, "exit 3"), nil)
	b.start(t)

	b.waitFor(t, "session cleanup after exit", func() bool {
		return b.session.Snapshot().Mode == ModeStopped && b.session.Process() == nil
	})

	var exitNotice *ConsoleLine
	for _, line := range b.session.Console().Tail(0) {
		if strings.Contains(line.Text, "engine exited") {
			l := line
			exitNotice = &l
		}
	}
	if exitNotice == nil {
		t.Fatal("expected an exit notice in the console")
	}
	if !strings.Contains(exitNotice.Text, "code 3") || !exitNotice.Stderr {
		t.Errorf("exit notice = %+v", *exitNotice)
	}

	if b.session.SendCommand("pause") {
		t.Fatal("send after exit must be dropped")
	}
	if snap := b.session.Snapshot(); snap.PendingCommands != 0 {
		t.Fatalf("queue must stay empty after cleanup, got %d", snap.PendingCommands)
	}
}

func TestExternalKillCleansUp(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)
	b.spawnSurface(t)
	b.waitAttached(t)

	proc := b.session.Process()
	if err := proc.Signal(os.Kill); err != nil {
		t.Fatalf("kill engine: %v", err)
	}
	b.sim.DestroyProcessWindows(proc.PID())

	b.waitFor(t, "session cleanup after kill", func() bool {
		return b.session.Snapshot().Mode == ModeStopped && b.session.Process() == nil
	})

	snap := b.session.Snapshot()
	if snap.SurfaceAttached || snap.ChannelReady {
		t.Fatalf("no stale attachment may survive the kill: %+v", snap)
	}
	if b.session.SendCommand("pause") {
		t.Fatal("send after external kill must be dropped")
	}
	if b.session.HandleInput(windowing.InputMessage{Msg: windowing.MsgKeyDown}) {
		t.Fatal("input forwarding must be off after cleanup")
	}

	found := false
	for _, line := range b.session.Console().Tail(0) {
		if strings.Contains(line.Text, "engine exited (killed") {
			found = true
		}
	}
	if !found {
		t.Error("expected a killed-exit notice in the console")
	}
}

func TestPauseSurvivesRedock(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)
	surface := b.spawnSurface(t)
	b.waitAttached(t)

	b.session.Pause()
	if !b.session.Paused() {
		t.Fatal("expected paused")
	}
	if b.session.HandleInput(windowing.InputMessage{Msg: windowing.MsgKeyDown}) {
		t.Fatal("input must not be forwarded while paused")
	}

	// Re-dock: the region handle is destroyed and recreated around the
	// still-running, still-frozen engine.
	b.session.RegionWillBeDestroyed()
	if err := b.sim.DestroyWindow(b.region); err != nil {
		t.Fatalf("destroy region: %v", err)
	}
	if !b.sim.IsWindow(surface) {
		t.Fatal("surface must survive the region teardown")
	}
	newRegion, err := b.sim.CreateHostWindow("embedding-region-2", true)
	if err != nil {
		t.Fatalf("create new region: %v", err)
	}
	if err := b.sim.Move(newRegion, windowing.Rect{Width: 640, Height: 480}); err != nil {
		t.Fatalf("size new region: %v", err)
	}
	b.session.RegionRecreated(newRegion)

	if b.sim.Parent(surface) != newRegion {
		t.Fatalf("surface parent = %v, want new region %v", b.sim.Parent(surface), newRegion)
	}
	if !b.session.Paused() {
		t.Fatal("pause must survive the re-dock")
	}
	if b.session.HandleInput(windowing.InputMessage{Msg: windowing.MsgKeyDown}) {
		t.Fatal("input must stay off across the re-dock while paused")
	}

	b.session.Resume()
	if b.session.Paused() {
		t.Fatal("expected resumed")
	}
	if !b.session.HandleInput(windowing.InputMessage{Msg: windowing.MsgKeyDown}) {
		t.Fatal("keyboard forwarding must work again after resume")
	}
}

func TestPlaySequences(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)

	if err := b.session.Play(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("play while stopped: %v", err)
	}

	b.start(t)
	surface := b.spawnSurface(t)
	got := b.record(t, surface)
	b.waitAttached(t)

	if err := b.session.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if b.session.Snapshot().Mode != ModePlaying {
		t.Fatal("expected playing mode")
	}
	want := []string{protocol.CmdResume, protocol.CmdGame, protocol.CmdPlay}
	cmds := got()
	if len(cmds) != len(want) {
		t.Fatalf("enter-playing sequence = %v, want %v", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Fatalf("enter-playing sequence = %v, want %v", cmds, want)
		}
	}

	// Already playing: no repeat.
	if err := b.session.Play(); err != nil {
		t.Fatalf("second play: %v", err)
	}
	if len(got()) != len(want) {
		t.Fatalf("repeated play must not resend, got %v", got())
	}

	if err := b.session.StopPlay(); err != nil {
		t.Fatalf("stop play: %v", err)
	}
	if b.session.Snapshot().Mode != ModeEditing {
		t.Fatal("expected editing mode")
	}
	all := got()
	tail := all[len(want):]
	wantExit := []string{protocol.CmdStop, protocol.CmdResume, protocol.CmdEdit}
	if len(tail) != len(wantExit) {
		t.Fatalf("exit-playing sequence = %v, want %v", tail, wantExit)
	}
	for i := range wantExit {
		if tail[i] != wantExit[i] {
			t.Fatalf("exit-playing sequence = %v, want %v", tail, wantExit)
		}
	}
}

func TestCustomTransitionTable(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), func(o *Options) {
		o.Transitions = TransitionTable{
			EnterPlaying: []string{"sim.start"},
			ExitPlaying:  []string{"sim.halt", "sim.rewind"},
		}
	})
	b.start(t)
	surface := b.spawnSurface(t)
	got := b.record(t, surface)
	b.waitAttached(t)

	if err := b.session.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := b.session.StopPlay(); err != nil {
		t.Fatalf("stop play: %v", err)
	}
	want := []string{"sim.start", "sim.halt", "sim.rewind"}
	cmds := got()
	if len(cmds) != len(want) {
		t.Fatalf("custom sequences = %v, want %v", cmds, want)
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Fatalf("custom sequences = %v, want %v", cmds, want)
		}
	}
}

func TestSetModeDrivesSession(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)

	changes := 0
	b.session.Events().SubscribeStateChanged(func() { changes++ })

	if err := b.session.SetMode(ModePlaying); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("playing while stopped: %v", err)
	}
	if err := b.session.SetMode(ModeEditing); err != nil {
		t.Fatalf("set editing from stopped must start the engine: %v", err)
	}
	if b.session.Process() == nil {
		t.Fatal("expected a running engine")
	}

	b.spawnSurface(t)
	b.waitAttached(t)

	if err := b.session.SetMode(ModePlaying); err != nil {
		t.Fatalf("set playing: %v", err)
	}
	if b.session.Snapshot().Mode != ModePlaying {
		t.Fatal("expected playing")
	}
	if err := b.session.SetMode(ModeEditing); err != nil {
		t.Fatalf("set editing: %v", err)
	}
	if b.session.Snapshot().Mode != ModeEditing {
		t.Fatal("expected editing")
	}
	if err := b.session.SetMode(ModeStopped); err != nil {
		t.Fatalf("set stopped: %v", err)
	}
	if b.session.Snapshot().Mode != ModeStopped {
		t.Fatal("expected stopped")
	}

	// Start, adoption, enter playing, exit playing, stop.
	if changes < 5 {
		t.Errorf("expected at least 5 state-changed events, got %d", changes)
	}
}

func TestConsoleCaptureTagsStreams(t *testing.T) {
	script := writeScript(t, strings.Join([]string{
		`echo out-first`,
		`echo err-line 1>&2`,
		`echo out-second`,
		idleEngine,
	}, "\n"))
	b := newTestBridge(t, script, nil)

	var eventLines int
	b.session.Events().SubscribeConsole(func(ConsoleLine) { eventLines++ })
	b.start(t)

	b.waitFor(t, "console lines", func() bool { return b.session.Console().Len() >= 3 })

	outFirst, outSecond := -1, -1
	for i, line := range b.session.Console().Tail(0) {
		if line.At.IsZero() {
			t.Error("console line must carry a timestamp")
		}
		switch line.Text {
		case "out-first":
			outFirst = i
			if line.Stderr {
				t.Error("stdout line tagged as stderr")
			}
		case "out-second":
			outSecond = i
		case "err-line":
			if !line.Stderr {
				t.Error("stderr line not tagged")
			}
		}
	}
	if outFirst < 0 || outSecond < 0 || outFirst > outSecond {
		t.Errorf("per-stream order lost: out-first at %d, out-second at %d", outFirst, outSecond)
	}
	if eventLines < 3 {
		t.Errorf("console events delivered = %d, want >= 3", eventLines)
	}
}

func TestInboundMessagesPublished(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)
	surface := b.spawnSurface(t)
	b.waitAttached(t)

	type raw struct {
		channel int
		text    string
	}
	var got []raw
	b.session.Events().SubscribeRaw(func(channel int, text string) {
		got = append(got, raw{channel, text})
	})

	if !b.sim.SendCopyData(b.region, surface, 9, protocol.EncodeWideZ("scene-dirty")) {
		t.Fatal("simulated engine send failed")
	}
	if len(got) != 1 || got[0].channel != 9 || got[0].text != "scene-dirty" {
		t.Fatalf("raw events = %v", got)
	}

	// Malformed payloads are swallowed before the event surface.
	if !b.sim.SendCopyData(b.region, surface, 9, []byte{0x7f}) {
		t.Fatal("malformed delivery should still complete")
	}
	if len(got) != 1 {
		t.Fatalf("malformed payload must not produce an event, got %v", got)
	}
}

func TestBinaryRebuildNotice(t *testing.T) {
	script := writeScript(t, idleEngine)
	b := newTestBridge(t, script, func(o *Options) {
		o.WatchBinary = true
	})
	b.start(t)

	// Simulate a rebuild replacing the binary on disk.
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+idleEngine+"\n# v2\n"), 0o755); err != nil {
		t.Fatalf("rewrite binary: %v", err)
	}

	b.waitFor(t, "rebuild notice", func() bool {
		for _, line := range b.session.Console().Tail(0) {
			if strings.Contains(line.Text, "binary changed") {
				return true
			}
		}
		return false
	})
}

func TestSendFailureQueuesForRetry(t *testing.T) {
	b := newTestBridge(t, writeScript(t, idleEngine), nil)
	b.start(t)
	surface := b.spawnSurface(t)
	got := b.record(t, surface)
	b.waitAttached(t)

	b.sim.FailSends(true)
	if b.session.SendCommand("pause") {
		t.Fatal("send into a wedged transport must not report success")
	}
	if snap := b.session.Snapshot(); snap.PendingCommands != 1 {
		t.Fatalf("failed send must stay queued, got %d pending", snap.PendingCommands)
	}

	b.sim.FailSends(false)
	if !b.session.SendCommand("resume") {
		t.Fatal("send must succeed once the transport recovers and the backlog drains")
	}
	cmds := got()
	if len(cmds) != 2 || cmds[0] != "pause" || cmds[1] != "resume" {
		t.Fatalf("retry order = %v, want [pause resume]", cmds)
	}
	if failures := testutil.ToFloat64(b.session.Metrics().SendFailures); failures < 1 {
		t.Errorf("send_failures = %v, want >= 1", failures)
	}
}
