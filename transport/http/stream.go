package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prism-engine/editor-host/logger"
)

const (
	streamQueueSize   = 256
	keepaliveInterval = 30 * time.Second
)

type frame struct {
	event string
	data  string
}

// EventStream writes server-sent events for one connected client. Bridge
// callbacks enqueue frames with TrySend, which never blocks; Run drains the
// queue on its own goroutine so a stalled client slows nobody else down.
type EventStream struct {
	writer  http.ResponseWriter
	flusher http.Flusher

	mu      sync.Mutex
	closed  bool
	onWrite func()

	frames  chan frame
	dropped int

	closeOnce sync.Once
	onClose   func()
}

func NewEventStream(w http.ResponseWriter, f http.Flusher, onClose func()) *EventStream {
	return &EventStream{
		writer:  w,
		flusher: f,
		frames:  make(chan frame, streamQueueSize),
		onClose: onClose,
	}
}

// OnWrite registers a hook invoked after each successful frame write. Set it
// before Run starts.
func (s *EventStream) OnWrite(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

// SendComment writes an SSE comment frame immediately. Comments keep the
// connection alive without disturbing client-side event handlers.
func (s *EventStream) SendComment(comment string) error {
	normalized := strings.ReplaceAll(comment, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	normalized = strings.ReplaceAll(normalized, "\n", "\n: ")
	return s.writeLocked(fmt.Sprintf(": %s\n\n", normalized))
}

// TrySend marshals data and enqueues it as an SSE event. It reports false
// when the stream is closed, marshalling fails, or the queue is full; a full
// queue drops the frame rather than stall the publisher.
func (s *EventStream) TrySend(event string, data any) bool {
	if s.IsClosed() {
		return false
	}
	payload, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal SSE event", "event", event, "error", err)
		return false
	}
	select {
	case s.frames <- frame{event: event, data: string(payload)}:
		return true
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		logger.Warn("SSE queue full, dropping event", "event", event, "dropped_total", dropped)
		return false
	}
}

// Run drains the frame queue until ctx is done or a write fails, emitting a
// keepalive comment during idle stretches. It closes the stream on return.
func (s *EventStream) Run(ctx context.Context) {
	defer s.Close()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.frames:
			if err := s.writeLocked(fmt.Sprintf("event: %s\ndata: %s\n\n", f.event, f.data)); err != nil {
				logger.Debug("SSE write failed, closing stream", "error", err)
				return
			}
		case <-keepalive.C:
			if err := s.SendComment("keepalive"); err != nil {
				logger.Debug("SSE keepalive failed, closing stream", "error", err)
				return
			}
		}
	}
}

func (s *EventStream) writeLocked(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	if _, err := fmt.Fprint(s.writer, text); err != nil {
		return fmt.Errorf("failed to write to stream: %w", err)
	}
	s.flusher.Flush()
	if s.onWrite != nil {
		s.onWrite()
	}
	return nil
}

// Close marks the stream closed and fires the close hook once. Pending
// queued frames are discarded.
func (s *EventStream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *EventStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
