package enginebridge

import "sync"

// maxFlushPerCall bounds one TryFlush pass so a persistently failing channel
// cannot hang the caller.
const maxFlushPerCall = 256

// PendingCommandQueue buffers outbound commands issued before the channel is
// ready. Insertion order is send order; entries leave the queue only on
// confirmed send.
type PendingCommandQueue struct {
	mu    sync.Mutex
	items []string
}

func NewPendingCommandQueue() *PendingCommandQueue {
	return &PendingCommandQueue{}
}

// Enqueue appends text to the back of the queue.
func (q *PendingCommandQueue) Enqueue(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, text)
}

// Len reports the number of queued commands.
func (q *PendingCommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued command.
func (q *PendingCommandQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// TryFlush sends queued commands front-to-back through send, removing each
// only after it reports success and stopping at the first failure so the
// remaining order is preserved for the next flush trigger. At most
// maxFlushPerCall commands are attempted per call. Returns the number
// actually delivered.
//
// send runs outside the queue lock; it may safely re-enter Enqueue.
func (q *PendingCommandQueue) TryFlush(send func(text string) bool) int {
	sent := 0
	for i := 0; i < maxFlushPerCall; i++ {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return sent
		}
		text := q.items[0]
		q.mu.Unlock()

		if !send(text) {
			return sent
		}

		q.mu.Lock()
		if len(q.items) > 0 && q.items[0] == text {
			q.items = q.items[1:]
		}
		q.mu.Unlock()
		sent++
	}
	return sent
}
