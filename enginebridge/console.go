package enginebridge

import "sync"

const defaultHistorySize = 500

// ConsoleHistory keeps a bounded tail of recent console lines so
// collaborators attaching late (a reconnecting control client, a freshly
// opened console widget) can catch up without having observed every event.
type ConsoleHistory struct {
	mu    sync.Mutex
	lines []ConsoleLine
	max   int
}

func NewConsoleHistory(max int) *ConsoleHistory {
	if max <= 0 {
		max = defaultHistorySize
	}
	return &ConsoleHistory{max: max}
}

// Append records one line, discarding the oldest once the bound is reached.
func (h *ConsoleHistory) Append(line ConsoleLine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
	if len(h.lines) > h.max {
		h.lines = h.lines[len(h.lines)-h.max:]
	}
}

// Tail returns up to n of the most recent lines, oldest first. n <= 0 means
// everything retained.
func (h *ConsoleHistory) Tail(n int) []ConsoleLine {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.lines) {
		n = len(h.lines)
	}
	out := make([]ConsoleLine, n)
	copy(out, h.lines[len(h.lines)-n:])
	return out
}

// Len reports the number of retained lines.
func (h *ConsoleHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lines)
}

// Clear drops all retained lines.
func (h *ConsoleHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = nil
}
