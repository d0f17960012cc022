package castprotocol

import (
	"context"
	"sync"

	"go2tv.app/castlink/castprotocol/cast"
)

// CustomChannel carries an application-defined namespace. Its payloads are
// usually unknown to the codec and arrive as *cast.RawMessage.
type CustomChannel struct {
	namespace string
	handler   func(cast.Message)

	mu     sync.RWMutex
	sender Sender
}

// NewCustomChannel returns a channel for the full namespace ns (for example
// "urn:x-cast:com.example.app"). handler runs on the read loop.
func NewCustomChannel(ns string, handler func(cast.Message)) *CustomChannel {
	return &CustomChannel{namespace: ns, handler: handler}
}

func (ch *CustomChannel) Namespace() string { return ch.namespace }

func (ch *CustomChannel) bindSender(s Sender) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.sender = s
}

func (ch *CustomChannel) boundSender(op string) (Sender, error) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	if ch.sender == nil {
		return nil, cast.NewStateError(op, cast.ErrNotConnected)
	}
	return ch.sender, nil
}

// Send delivers a fire-and-forget message to destination.
func (ch *CustomChannel) Send(ctx context.Context, msg cast.Message, destination string) error {
	s, err := ch.boundSender("CustomChannel.Send")
	if err != nil {
		return err
	}
	return s.Send(ctx, ch.namespace, msg, destination)
}

// Request sends msg and waits for the reply with its request id.
func (ch *CustomChannel) Request(ctx context.Context, msg cast.Correlatable, destination string) (cast.Message, error) {
	s, err := ch.boundSender("CustomChannel.Request")
	if err != nil {
		return nil, err
	}
	return s.SendAndAwait(ctx, ch.namespace, msg, destination)
}

func (ch *CustomChannel) OnMessage(msg cast.Message) {
	if ch.handler != nil {
		ch.handler(msg)
	}
}
