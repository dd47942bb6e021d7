package enginebridge

import "sync"

// Broadcaster fans bridge events out to registered collaborators: console
// lines, raw inbound messages, and payload-free state-changed notifications.
// Delivery is synchronous on the publisher's goroutine, in subscription
// order; a panicking subscriber is dropped from that delivery but does not
// disturb the others. Cancellation is Unsubscribe.
type Broadcaster struct {
	mu      sync.Mutex
	nextID  uint64
	console []consoleSub
	raw     []rawSub
	state   []stateSub
}

type consoleSub struct {
	id uint64
	fn func(ConsoleLine)
}

type rawSub struct {
	id uint64
	fn func(channel int, text string)
}

type stateSub struct {
	id uint64
	fn func()
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// SubscribeConsole registers fn for console lines and returns the
// subscription id.
func (b *Broadcaster) SubscribeConsole(fn func(ConsoleLine)) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.console = append(b.console, consoleSub{id: b.nextID, fn: fn})
	return b.nextID
}

// SubscribeRaw registers fn for inbound channel messages.
func (b *Broadcaster) SubscribeRaw(fn func(channel int, text string)) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.raw = append(b.raw, rawSub{id: b.nextID, fn: fn})
	return b.nextID
}

// SubscribeStateChanged registers fn for state-changed notifications.
func (b *Broadcaster) SubscribeStateChanged(fn func()) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.state = append(b.state, stateSub{id: b.nextID, fn: fn})
	return b.nextID
}

// Unsubscribe removes the subscription with the given id, whatever its kind.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.console {
		if s.id == id {
			b.console = append(b.console[:i:i], b.console[i+1:]...)
			return
		}
	}
	for i, s := range b.raw {
		if s.id == id {
			b.raw = append(b.raw[:i:i], b.raw[i+1:]...)
			return
		}
	}
	for i, s := range b.state {
		if s.id == id {
			b.state = append(b.state[:i:i], b.state[i+1:]...)
			return
		}
	}
}

// PublishConsole delivers one console line to all console subscribers.
func (b *Broadcaster) PublishConsole(line ConsoleLine) {
	b.mu.Lock()
	subs := make([]consoleSub, len(b.console))
	copy(subs, b.console)
	b.mu.Unlock()
	for _, s := range subs {
		deliver(func() { s.fn(line) })
	}
}

// PublishRaw delivers one inbound message to all raw subscribers.
func (b *Broadcaster) PublishRaw(channel int, text string) {
	b.mu.Lock()
	subs := make([]rawSub, len(b.raw))
	copy(subs, b.raw)
	b.mu.Unlock()
	for _, s := range subs {
		deliver(func() { s.fn(channel, text) })
	}
}

// PublishStateChanged notifies all state subscribers. The notification
// carries no payload; subscribers re-query the session snapshot.
func (b *Broadcaster) PublishStateChanged() {
	b.mu.Lock()
	subs := make([]stateSub, len(b.state))
	copy(subs, b.state)
	b.mu.Unlock()
	for _, s := range subs {
		deliver(s.fn)
	}
}

func deliver(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
