package castprotocol

import (
	"sync"
	"time"

	"github.com/cskr/pubsub"
)

// Event topics.
const (
	TopicDeviceStatus = "device-status"
	TopicMediaStatus  = "media-status"
	TopicDisconnected = "disconnected"
)

// Event is delivered to subscribers. Status holds the fully replaced status
// value (*cast.DeviceStatus or *cast.MediaStatus, nil when cleared). Err is
// the teardown cause on disconnected events, nil for a requested disconnect.
type Event struct {
	Topic     string
	Namespace string
	Status    any
	Err       error
	At        time.Time
}

// Subscription is a stream of events. When the subscriber falls behind, the
// oldest status events are dropped so at most eventBuffer stay queued.
// Disconnected events are never dropped.
type Subscription struct {
	C <-chan Event

	raw  chan interface{}
	done chan struct{}
	once sync.Once
}

const eventBuffer = 16

// events fans events out to subscribers. Status publishing never blocks the
// read loop; every subscription keeps draining its pubsub channel into a
// local queue, so the blocking publish of disconnected events returns
// promptly.
type events struct {
	mu     sync.RWMutex
	ps     *pubsub.PubSub
	closed bool
}

func newEvents() *events {
	return &events{ps: pubsub.New(eventBuffer)}
}

func (e *events) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	if ev.Topic == TopicDisconnected {
		e.ps.Pub(ev, ev.Topic)
		return
	}
	e.ps.TryPub(ev, ev.Topic)
}

func (e *events) subscribe(topics ...string) *Subscription {
	if len(topics) == 0 {
		topics = []string{TopicDeviceStatus, TopicMediaStatus, TopicDisconnected}
	}
	out := make(chan Event)
	sub := &Subscription{C: out, done: make(chan struct{})}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		close(out)
		return sub
	}
	sub.raw = e.ps.Sub(topics...)
	e.mu.RUnlock()

	go sub.forward(out)
	return sub
}

func (s *Subscription) forward(out chan<- Event) {
	defer close(out)
	var queue []Event
	raw := s.raw
	for raw != nil || len(queue) > 0 {
		var send chan<- Event
		var next Event
		if len(queue) > 0 {
			send, next = out, queue[0]
		}
		select {
		case v, ok := <-raw:
			if !ok {
				raw = nil
				continue
			}
			if ev, ok := v.(Event); ok {
				queue = enqueue(queue, ev)
			}
		case send <- next:
			queue = queue[1:]
		case <-s.done:
			return
		}
	}
}

// enqueue appends ev and, past eventBuffer, drops the oldest status event.
func enqueue(queue []Event, ev Event) []Event {
	queue = append(queue, ev)
	if len(queue) <= eventBuffer {
		return queue
	}
	for i := range queue {
		if queue[i].Topic != TopicDisconnected {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}

func (e *events) unsubscribe(sub *Subscription) {
	if sub == nil || sub.raw == nil {
		return
	}
	sub.once.Do(func() {
		close(sub.done)
		// Keep the pubsub goroutine unblocked until Unsub closes raw.
		go func() {
			for range sub.raw {
			}
		}()
		e.mu.RLock()
		defer e.mu.RUnlock()
		if !e.closed {
			e.ps.Unsub(sub.raw)
		}
	})
}

func (e *events) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.ps.Shutdown()
}
