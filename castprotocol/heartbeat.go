package castprotocol

import (
	"context"
	"sync"
	"time"

	"go2tv.app/castlink/castprotocol/cast"
)

// DefaultHeartbeatTimeout is the silence window after which the device is
// presumed gone. Devices ping every 5s and give up after 8s themselves.
const DefaultHeartbeatTimeout = 10 * time.Second

// HeartbeatChannel answers device PINGs and watches for silence.
//
// Idle -> Armed on Start. Every PING answered with a successful PONG re-arms
// the window. When the window expires the expire callback runs once and the
// monitor goes back to Idle. A PONG that could not be sent does not re-arm.
type HeartbeatChannel struct {
	sender Sender
	window time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	gen      uint64
	armed    bool
	onExpire func()
}

func newHeartbeatChannel(sender Sender, window time.Duration) *HeartbeatChannel {
	if window <= 0 {
		window = DefaultHeartbeatTimeout
	}
	return &HeartbeatChannel{sender: sender, window: window}
}

func (h *HeartbeatChannel) Namespace() string { return NamespaceHeartbeat }

// Start arms the monitor. onExpire runs on the timer goroutine.
func (h *HeartbeatChannel) Start(onExpire func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onExpire = onExpire
	h.armed = true
	h.armLocked()
}

// Stop disarms the monitor. It is safe to call from any goroutine and after
// the timer already fired.
func (h *HeartbeatChannel) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.armed = false
	h.gen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// Reset restarts the window if the monitor is armed.
func (h *HeartbeatChannel) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.armed {
		h.armLocked()
	}
}

// Armed reports whether the window is running.
func (h *HeartbeatChannel) Armed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.armed
}

func (h *HeartbeatChannel) armLocked() {
	if h.timer != nil {
		h.timer.Stop()
	}
	h.gen++
	gen := h.gen
	h.timer = time.AfterFunc(h.window, func() { h.expire(gen) })
}

func (h *HeartbeatChannel) expire(gen uint64) {
	h.mu.Lock()
	// A Stop or Reset after this timer fired bumped gen.
	if !h.armed || gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.armed = false
	h.timer = nil
	fn := h.onExpire
	h.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (h *HeartbeatChannel) OnMessage(msg cast.Message) {
	switch msg.MessageType() {
	case cast.TypePing:
		ctx, cancel := context.WithTimeout(context.Background(), h.window)
		defer cancel()
		if err := h.sender.Send(ctx, NamespaceHeartbeat, cast.NewPong(), cast.DefaultReceiverID); err != nil {
			return
		}
		h.Reset()
	case cast.TypePong:
		h.Reset()
	}
}
