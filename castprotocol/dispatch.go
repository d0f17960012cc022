package castprotocol

import (
	"fmt"

	"go2tv.app/castlink/castprotocol/cast"
)

// RegisterChannel adds ch. Only one channel may own a namespace.
//
// Status tracking is internal to this package: only the built-in receiver
// and media channels are listed by Statuses and cleared on teardown. A
// channel defined elsewhere keeps any state of its own and must reset it on
// the disconnected event.
func (c *Client) RegisterChannel(ch Channel) error {
	ns := ch.Namespace()
	if ns == "" {
		return cast.ErrEmptyNamespace
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[ns]; ok {
		return fmt.Errorf("RegisterChannel: namespace %s already registered", ns)
	}
	c.channels[ns] = ch
	if sc, ok := ch.(statusChannel); ok {
		c.statusChannels = append(append([]statusChannel(nil), c.statusChannels...), sc)
	}
	if b, ok := ch.(senderBinder); ok {
		b.bindSender(c)
	}
	return nil
}

// Channel returns the channel registered for namespace, or nil.
func (c *Client) Channel(namespace string) Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[namespace]
}

// GetChannel returns the registered channel of type T. With several channels
// of the same type, use Client.Channel with the namespace instead.
func GetChannel[T Channel](c *Client) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.channels {
		if typed, ok := ch.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

// dispatch runs on the read loop. Order per message: status swap and
// notification, then either the pending request or the channel, never both.
func (c *Client) dispatch(f *cast.Frame) {
	c.metrics.frameIn()
	log := c.Log()

	if f.Binary {
		log.Debug().Str("Method", "dispatch").Str("Namespace", f.Namespace).Int("Bytes", len(f.PayloadBinary)).Msg("binary payload dropped")
		return
	}

	msg, err := c.registry.Decode(f.Namespace, []byte(f.PayloadUTF8))
	if err != nil {
		c.metrics.decodeError()
		log.Warn().Str("Method", "dispatch").Str("Namespace", f.Namespace).Err(err).Msg("dropping undecodable message")
		return
	}

	log.Trace().Str("Method", "dispatch").Str("Namespace", f.Namespace).Str("Source", f.SourceID).Str("Type", msg.MessageType()).Msg("received")

	ch := c.Channel(f.Namespace)

	if sc, ok := ch.(statusChannel); ok && sc.applyStatus(msg) {
		c.events.publish(Event{Topic: sc.statusTopic(), Namespace: f.Namespace, Status: sc.statusSnapshot()})
	}

	if cm, ok := msg.(cast.Correlatable); ok && cm.GetRequestID() > 0 {
		if c.pending.resolve(cm.GetRequestID(), msg) {
			return
		}
	}

	if ch == nil {
		c.metrics.unhandledMessage()
		c.unhandledLog.Do(func() {
			log.Debug().Str("Method", "dispatch").Str("Namespace", f.Namespace).Str("Type", msg.MessageType()).Msg("no channel for namespace, discarding")
		})
		return
	}
	ch.OnMessage(msg)
}
