package enginebridge

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prism-engine/editor-host/engineproc"
	"github.com/prism-engine/editor-host/logger"
	"github.com/prism-engine/editor-host/protocol"
	"github.com/prism-engine/editor-host/windowing"
)

const (
	defaultDiscoveryInterval = 250 * time.Millisecond
	defaultMaxDiscovery      = 120
	defaultStopGrace         = 3 * time.Second
	defaultCloseTimeout      = 2 * time.Second
)

// TransitionTable is the ordered protocol command sequences emitted on mode
// transitions. The ordering is a contract with the engine process; it is
// kept configurable because the engine-side protocol owner may revise it.
type TransitionTable struct {
	EnterPlaying []string
	ExitPlaying  []string
}

// DefaultTransitions returns the sequences the current runtime expects.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		EnterPlaying: []string{protocol.CmdResume, protocol.CmdGame, protocol.CmdPlay},
		ExitPlaying:  []string{protocol.CmdStop, protocol.CmdResume, protocol.CmdEdit},
	}
}

// Options configures a Session.
type Options struct {
	// System is the windowing substrate. Required.
	System windowing.System
	// Region is the embedding region's native handle. Required.
	Region windowing.Handle

	// Executable is the engine runtime binary launched by Start.
	Executable string
	// ExtraArgs are appended after the handle and mode arguments.
	ExtraArgs []string
	// WorkDir overrides the working directory (default: the executable's).
	WorkDir string
	// Env entries are appended to the host environment.
	Env []string

	// DiscoveryInterval is the surface polling period (default 250ms).
	DiscoveryInterval time.Duration
	// MaxDiscoveryAttempts bounds polling before discovery is declared
	// failed (default 120).
	MaxDiscoveryAttempts int
	// StopGrace is how long Stop waits after the graceful close request
	// before force-killing (default 3s).
	StopGrace time.Duration
	// CloseTimeout bounds the best-effort close request to the surface
	// window (default 2s).
	CloseTimeout time.Duration

	// Transitions overrides the mode transition command sequences.
	Transitions TransitionTable
	// HistorySize bounds the console tail (default 500 lines).
	HistorySize int
	// WatchBinary enables the rebuild notice for the executable.
	WatchBinary bool
}

// Session is the aggregate root of the bridge: one engine process, its
// embedded surface, the message channel to it, and the composite
// stopped/editing/playing-with-pause state.
//
// Exported methods are safe from any goroutine: internal state is
// mutex-guarded and substrate calls are legal cross-thread. Surface
// discovery ticks and inbound channel messages always arrive on the UI
// thread via System.Invoke.
type Session struct {
	sys  windowing.System
	opts Options

	bus     *Broadcaster
	history *ConsoleHistory
	metrics *Metrics
	queue   *PendingCommandQueue
	channel *MessageChannel
	embed   *EmbedController
	input   *InputForwarder
	suspend *SuspendController

	mu              sync.Mutex
	mode            Mode
	proc            *engineproc.Process
	surfaceAttached bool
	attempts        int
	discoveryFailed bool
	cleaned         bool

	discoverStop chan struct{}
	binWatch     *BinaryWatcher
}

// NewSession builds the bridge around an existing embedding region. The
// parking window and the inbound message binding are created immediately;
// the engine itself starts only on Start.
func NewSession(opts Options) (*Session, error) {
	if opts.System == nil {
		return nil, fmt.Errorf("windowing system is required")
	}
	if opts.Region == windowing.None {
		return nil, fmt.Errorf("embedding region is required")
	}
	if opts.DiscoveryInterval <= 0 {
		opts.DiscoveryInterval = defaultDiscoveryInterval
	}
	if opts.MaxDiscoveryAttempts <= 0 {
		opts.MaxDiscoveryAttempts = defaultMaxDiscovery
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}
	if len(opts.Transitions.EnterPlaying) == 0 && len(opts.Transitions.ExitPlaying) == 0 {
		opts.Transitions = DefaultTransitions()
	}

	embed, err := NewEmbedController(opts.System, opts.Region)
	if err != nil {
		return nil, err
	}

	s := &Session{
		sys:     opts.System,
		opts:    opts,
		bus:     NewBroadcaster(),
		history: NewConsoleHistory(opts.HistorySize),
		metrics: NewMetrics(),
		queue:   NewPendingCommandQueue(),
		embed:   embed,
	}
	s.channel = NewMessageChannel(opts.System, opts.Region)
	s.input = NewInputForwarder(opts.System)
	s.suspend = NewSuspendController(s.input, s.freezer)

	if err := s.channel.BindInbound(opts.Region, s.handleInbound); err != nil {
		embed.Close()
		return nil, fmt.Errorf("bind inbound channel: %w", err)
	}
	return s, nil
}

// Events is the bridge's notification surface.
func (s *Session) Events() *Broadcaster { return s.bus }

// Console is the bounded tail of recent console lines.
func (s *Session) Console() *ConsoleHistory { return s.history }

// Metrics exposes the bridge-owned metrics.
func (s *Session) Metrics() *Metrics { return s.metrics }

// Process returns the current engine process, nil when stopped.
func (s *Session) Process() *engineproc.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

func (s *Session) freezer() Freezer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return nil
	}
	return s.proc
}

// Start launches the engine process and begins surface discovery. The
// session moves to Editing; a launch failure leaves it Stopped and is
// reported as an error wrapping engineproc.ErrLaunch, never a panic.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.proc != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	args := []string{
		protocol.ArgParentHandle, strconv.FormatUint(uint64(s.embed.Region()), 10),
		protocol.ArgInitialState, protocol.ModeEditing,
	}
	args = append(args, s.opts.ExtraArgs...)

	proc, err := engineproc.Launch(engineproc.LaunchSpec{
		Executable: s.opts.Executable,
		Args:       args,
		Dir:        s.opts.WorkDir,
		Env:        s.opts.Env,
		OnLine:     s.onProcessLine,
		OnExit:     s.onProcessExit,
	})
	if err != nil {
		logger.Error("engine launch failed", "executable", s.opts.Executable, "error", err)
		s.publishConsole(ConsoleLine{
			Text:   fmt.Sprintf("failed to launch engine: %v", err),
			Stderr: true,
			At:     time.Now(),
		})
		return err
	}

	s.mu.Lock()
	s.proc = proc
	s.mode = ModeEditing
	s.surfaceAttached = false
	s.attempts = 0
	s.discoveryFailed = false
	s.cleaned = false
	s.mu.Unlock()

	s.metrics.EngineStarts.Inc()
	logger.Info("engine launched", "pid", proc.PID(), "launch_id", proc.ID)
	s.startDiscovery()
	if s.opts.WatchBinary {
		s.startBinaryWatch()
	}
	s.bus.PublishStateChanged()
	return nil
}

// Stop shuts the engine down: post a quit to its message queue, ask the
// surface window to close with a bounded wait, give the process the grace
// period, then force-kill. Cleanup runs exactly once per launch whichever
// branch terminated the process. Stop on an already-stopped session is a
// no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return nil
	}

	logger.Info("stopping engine", "pid", proc.PID())
	s.embed.BeginShutdown()

	if pid := proc.PID(); pid > 0 {
		s.sys.PostQuit(pid)
	}
	if surface := s.embed.Surface(); surface != windowing.None {
		s.sys.RequestClose(surface, s.opts.CloseTimeout)
	}

	if !proc.WaitExit(s.opts.StopGrace) {
		logger.Warn("engine did not exit within grace period, killing", "pid", proc.PID())
		if err := proc.Kill(); err != nil {
			logger.Error("engine kill failed", "error", err)
		}
		proc.WaitExit(s.opts.StopGrace)
	}

	s.cleanup()
	return nil
}

// Close stops the engine and tears down the bridge's own windows. The
// session is unusable afterwards.
func (s *Session) Close() {
	_ = s.Stop()
	s.channel.UnbindInbound(s.embed.Region())
	s.embed.Close()
}

// SendCommand validates and delivers one protocol command: sent immediately
// when the channel is ready (after flushing anything already queued, so
// overall issue order is preserved), queued when it is not. Returns true
// only for an immediate confirmed send. While no engine is attached the
// command is dropped, keeping the stopped-session queue empty.
func (s *Session) SendCommand(text string) bool {
	if err := protocol.ValidateCommand(text); err != nil {
		logger.Warn("rejecting command", "error", err)
		return false
	}
	text = protocol.NormalizeCommand(text)

	s.mu.Lock()
	running := s.proc != nil
	s.mu.Unlock()
	if !running {
		logger.Debug("dropping command, engine not running", "command", text)
		return false
	}
	return s.sendOrQueue(text)
}

func (s *Session) sendOrQueue(text string) bool {
	if s.channel.Ready() {
		s.flushQueue()
		if s.queue.Len() == 0 {
			if s.channel.Send(protocol.ChannelCommand, text) {
				s.metrics.CommandsSent.Inc()
				return true
			}
			s.metrics.SendFailures.Inc()
		}
	}
	s.queue.Enqueue(text)
	s.metrics.CommandsQueued.Inc()
	return false
}

func (s *Session) flushQueue() {
	sent := s.queue.TryFlush(func(text string) bool {
		if s.channel.Send(protocol.ChannelCommand, text) {
			s.metrics.CommandsSent.Inc()
			return true
		}
		s.metrics.SendFailures.Inc()
		return false
	})
	if sent > 0 {
		logger.Debug("flushed pending commands", "count", sent)
	}
}

// Play transitions Editing -> Playing, emitting the configured command
// sequence in order. Commands that cannot be sent yet are queued.
func (s *Session) Play() error {
	s.mu.Lock()
	if s.proc == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.mode == ModePlaying {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	for _, cmd := range s.opts.Transitions.EnterPlaying {
		s.sendOrQueue(cmd)
	}
	s.mu.Lock()
	s.mode = ModePlaying
	s.mu.Unlock()
	logger.Info("entering play mode")
	s.bus.PublishStateChanged()
	return nil
}

// StopPlay transitions Playing -> Editing with the configured sequence.
func (s *Session) StopPlay() error {
	s.mu.Lock()
	if s.proc == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.mode != ModePlaying {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	for _, cmd := range s.opts.Transitions.ExitPlaying {
		s.sendOrQueue(cmd)
	}
	s.mu.Lock()
	s.mode = ModeEditing
	s.mu.Unlock()
	logger.Info("returning to edit mode")
	s.bus.PublishStateChanged()
	return nil
}

// SetMode drives the session toward the requested mode using the matching
// transition or stop path.
func (s *Session) SetMode(target Mode) error {
	switch target {
	case ModePlaying:
		return s.Play()
	case ModeEditing:
		s.mu.Lock()
		mode := s.mode
		proc := s.proc
		s.mu.Unlock()
		if proc == nil {
			return s.Start()
		}
		if mode == ModePlaying {
			return s.StopPlay()
		}
		return nil
	case ModeStopped:
		return s.Stop()
	default:
		return fmt.Errorf("unknown mode %v", target)
	}
}

// Pause freezes engine execution; input routing stops first. Best-effort.
func (s *Session) Pause() {
	was := s.suspend.Paused()
	s.suspend.Pause()
	if s.suspend.Paused() != was {
		s.metrics.Paused.Set(1)
		s.bus.PublishStateChanged()
	}
}

// Resume unfreezes engine execution; input routing returns last.
func (s *Session) Resume() {
	was := s.suspend.Paused()
	s.suspend.Resume()
	if s.suspend.Paused() != was {
		s.metrics.Paused.Set(0)
		s.bus.PublishStateChanged()
	}
}

// Paused reports the pause flag.
func (s *Session) Paused() bool { return s.suspend.Paused() }

// Snapshot returns a point-in-time view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Mode:              s.mode,
		ModeName:          s.mode.String(),
		SurfaceAttached:   s.surfaceAttached,
		DiscoveryAttempts: s.attempts,
		DiscoveryFailed:   s.discoveryFailed,
	}
	if s.proc != nil {
		snap.LaunchID = s.proc.ID
		snap.PID = s.proc.PID()
	}
	s.mu.Unlock()

	snap.Paused = s.suspend.Paused()
	snap.ChannelReady = s.channel.Ready()
	snap.PendingCommands = s.queue.Len()
	return snap
}

// HandleInput relays one intercepted region message, reporting whether the
// region should consume it.
func (s *Session) HandleInput(m windowing.InputMessage) bool {
	return s.input.Forward(m)
}

// ClickActivate applies the activation rule on region click.
func (s *Session) ClickActivate() bool {
	return s.input.ClickActivate()
}

// RegionWillBeDestroyed parks the surface ahead of region handle teardown.
func (s *Session) RegionWillBeDestroyed() {
	s.embed.RegionWillBeDestroyed()
}

// RegionRecreated rebinds the bridge to the region's new native handle and
// restores the parked surface.
func (s *Session) RegionRecreated(region windowing.Handle) {
	s.embed.RegionRecreated(region)
	s.channel.SetSource(region)
	if err := s.channel.BindInbound(region, s.handleInbound); err != nil {
		logger.Warn("rebinding inbound channel failed", "error", err)
	}
}

// RegionMoved follows a logical container change of the region.
func (s *Session) RegionMoved(region windowing.Handle) {
	s.embed.RegionMoved(region)
	s.channel.SetSource(region)
}

// ResizeSurface re-fits the embedded surface to the region client area.
func (s *Session) ResizeSurface() {
	if err := s.embed.Resize(); err != nil {
		logger.Warn("resizing surface failed", "error", err)
	}
}

// onProcessLine runs on a pipe-reader goroutine; the line crosses to the UI
// thread before touching any bridge state.
func (s *Session) onProcessLine(line string, stderr bool) {
	at := time.Now()
	s.sys.Invoke(func() {
		s.publishConsole(ConsoleLine{Text: line, Stderr: stderr, At: at})
	})
}

// onProcessExit runs on the exit-watcher goroutine.
func (s *Session) onProcessExit(p *engineproc.Process) {
	s.sys.Invoke(func() { s.handleExit(p) })
}

func (s *Session) handleExit(p *engineproc.Process) {
	s.mu.Lock()
	current := s.proc
	s.mu.Unlock()
	if current == nil || current.ID != p.ID {
		return
	}

	logger.Info("engine exited", "state", p.State().String(), "code", p.ExitCode())
	s.publishConsole(ConsoleLine{
		Text:   fmt.Sprintf("engine exited (%s, code %d)", p.State(), p.ExitCode()),
		Stderr: p.ExitCode() != 0,
		At:     time.Now(),
	})
	s.metrics.EngineExits.Inc()
	s.cleanup()
}

// cleanup releases everything tied to the current launch: discovery, binary
// watch, channel, input routing, pause flag, surface reference, queue. It
// runs exactly once per launch and every step is guarded so one failure
// cannot strand a stale handle in a later step.
func (s *Session) cleanup() {
	s.mu.Lock()
	if s.cleaned {
		s.mu.Unlock()
		return
	}
	s.cleaned = true
	s.mu.Unlock()

	runStep("stop discovery", s.stopDiscovery)
	runStep("stop binary watch", s.stopBinaryWatch)
	runStep("detach channel", s.channel.Detach)
	runStep("disable input", func() {
		s.input.SetEnabled(false)
		s.input.SetSurface(windowing.None)
	})
	runStep("reset pause", func() {
		s.suspend.Reset()
		s.metrics.Paused.Set(0)
	})
	runStep("release surface", s.embed.Release)
	runStep("clear queue", s.queue.Clear)

	s.mu.Lock()
	s.proc = nil
	s.mode = ModeStopped
	s.surfaceAttached = false
	s.mu.Unlock()

	s.bus.PublishStateChanged()
}

func runStep(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cleanup step failed", "step", name, "recovered", r)
		}
	}()
	fn()
}

func (s *Session) publishConsole(line ConsoleLine) {
	s.history.Append(line)
	stream := "stdout"
	if line.Stderr {
		stream = "stderr"
	}
	s.metrics.ConsoleLines.WithLabelValues(stream).Inc()
	s.bus.PublishConsole(line)
}

func (s *Session) handleInbound(channel int, text string) {
	logger.Debug("engine message", "channel", channel, "text", text)
	s.bus.PublishRaw(channel, text)
}

// startDiscovery begins the polling timer. Ticks run on the UI thread; the
// goroutine only schedules them.
func (s *Session) startDiscovery() {
	stop := make(chan struct{})
	s.mu.Lock()
	prev := s.discoverStop
	s.discoverStop = stop
	s.mu.Unlock()
	if prev != nil {
		close(prev)
	}

	interval := s.opts.DiscoveryInterval
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sys.Invoke(s.discoverTick)
			case <-stop:
				return
			}
		}
	}()
}

// stopDiscovery is safe from any goroutine and tolerates repeat calls; the
// channel is swapped out under the lock so it closes at most once.
func (s *Session) stopDiscovery() {
	s.mu.Lock()
	stop := s.discoverStop
	s.discoverStop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// discoverTick is one polling attempt, on the UI thread. Ticks scheduled
// before the poll ended can still arrive afterwards; they bail out here.
func (s *Session) discoverTick() {
	s.mu.Lock()
	if s.proc == nil || s.surfaceAttached || s.discoveryFailed {
		s.mu.Unlock()
		s.stopDiscovery()
		return
	}
	s.attempts++
	attempts := s.attempts
	s.mu.Unlock()

	s.metrics.DiscoveryAttempts.Inc()
	if surface, ok := s.embed.Discover(); ok {
		s.adoptSurface(surface)
		return
	}

	if attempts >= s.opts.MaxDiscoveryAttempts {
		s.stopDiscovery()
		s.mu.Lock()
		s.discoveryFailed = true
		s.mu.Unlock()
		s.metrics.DiscoveryFailures.Inc()
		logger.Error("engine surface not found", "attempts", attempts, "class", protocol.SurfaceClassName)
		s.publishConsole(ConsoleLine{
			Text:   fmt.Sprintf("%v after %d attempts; check engine output above", ErrDiscoveryTimeout, attempts),
			Stderr: true,
			At:     time.Now(),
		})
		s.bus.PublishStateChanged()
	}
}

func (s *Session) adoptSurface(surface windowing.Handle) {
	if err := s.embed.Adopt(surface); err != nil {
		logger.Error("adopting engine surface failed", "error", err)
		return
	}
	s.stopDiscovery()

	s.input.SetSurface(surface)
	if !s.suspend.Paused() {
		s.input.SetEnabled(true)
	}
	s.channel.Attach(surface)

	s.mu.Lock()
	s.surfaceAttached = true
	s.mu.Unlock()

	s.flushQueue()
	logger.Info("engine surface embedded", "surface", uint64(surface))
	s.bus.PublishStateChanged()
}

func (s *Session) startBinaryWatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.binWatch != nil {
		return
	}
	w, err := WatchBinary(s.opts.Executable, func() {
		s.sys.Invoke(func() {
			s.publishConsole(ConsoleLine{
				Text: "engine binary changed on disk; restart the engine to pick up the new build",
				At:   time.Now(),
			})
			s.bus.PublishStateChanged()
		})
	})
	if err != nil {
		logger.Warn("binary watch unavailable", "error", err)
		return
	}
	s.binWatch = w
}

func (s *Session) stopBinaryWatch() {
	s.mu.Lock()
	w := s.binWatch
	s.binWatch = nil
	s.mu.Unlock()
	if w != nil {
		_ = w.Close()
	}
}
