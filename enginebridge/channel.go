package enginebridge

import (
	"sync"

	"github.com/prism-engine/editor-host/logger"
	"github.com/prism-engine/editor-host/protocol"
	"github.com/prism-engine/editor-host/windowing"
)

// MessageChannel is the synchronous tagged text transport to the engine's
// surface window. It is unattached until discovery finds the surface and
// after the engine exits; Send reports false the whole time.
type MessageChannel struct {
	sys windowing.System

	mu     sync.Mutex
	source windowing.Handle
	target windowing.Handle
}

func NewMessageChannel(sys windowing.System, source windowing.Handle) *MessageChannel {
	return &MessageChannel{sys: sys, source: source}
}

// Attach points the channel at the engine surface window.
func (c *MessageChannel) Attach(target windowing.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = target
}

// Detach disconnects the channel. Subsequent sends fail cleanly.
func (c *MessageChannel) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = windowing.None
}

// SetSource updates the window identified as the sender, after the embedding
// region's native handle is recreated.
func (c *MessageChannel) SetSource(source windowing.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = source
}

// Ready reports whether the channel has a live target.
func (c *MessageChannel) Ready() bool {
	c.mu.Lock()
	target := c.target
	c.mu.Unlock()
	return target != windowing.None && c.sys.IsWindow(target)
}

// Target returns the current target handle, None when unattached.
func (c *MessageChannel) Target() windowing.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Send encodes text and transmits it synchronously on the given channel id.
// It returns false, never panicking, when the channel is unattached, the
// target window is gone, or the transmission primitive reports failure. The
// transfer buffer is built per call and never reused.
func (c *MessageChannel) Send(channel int, text string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("channel send panic", "recovered", r)
			ok = false
		}
	}()

	c.mu.Lock()
	source, target := c.source, c.target
	c.mu.Unlock()
	if target == windowing.None {
		return false
	}

	payload := protocol.EncodeWideZ(text)
	if !c.sys.SendCopyData(target, source, channel, payload) {
		logger.Debug("channel send failed", "channel", channel, "target", uint64(target))
		return false
	}
	return true
}

// BindInbound registers the copy-data handler on the host-side window the
// engine addresses. Malformed buffers are swallowed as "no message" so a bad
// peer cannot take down the message loop; well-formed ones are handed to
// onMessage.
func (c *MessageChannel) BindInbound(host windowing.Handle, onMessage func(channel int, text string)) error {
	return c.sys.SetCopyDataHandler(host, func(source windowing.Handle, channel int, payload []byte) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("inbound message handler panic", "recovered", r)
			}
		}()
		text, err := protocol.DecodeWideZ(payload)
		if err != nil {
			logger.Debug("dropping malformed inbound payload", "error", err, "bytes", len(payload))
			return
		}
		onMessage(channel, text)
	})
}

// UnbindInbound removes the copy-data handler from host.
func (c *MessageChannel) UnbindInbound(host windowing.Handle) {
	_ = c.sys.SetCopyDataHandler(host, nil)
}
