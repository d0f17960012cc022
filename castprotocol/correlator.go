package castprotocol

import (
	"context"
	"sync"
	"time"

	"go2tv.app/castlink/castprotocol/cast"
)

type result struct {
	msg cast.Message
	err error
}

type pendingRequest struct {
	id      int
	typ     string
	created time.Time
	done    chan result
}

// correlator is the in-flight table. An entry leaves the table exactly once,
// through resolve, remove or failAll, and only the remover may complete it.
type correlator struct {
	mu      sync.Mutex
	pending map[int]*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[int]*pendingRequest)}
}

// register must run before the request frame is written.
func (c *correlator) register(id int, typ string) *pendingRequest {
	p := &pendingRequest{id: id, typ: typ, created: time.Now(), done: make(chan result, 1)}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()
	return p
}

func (c *correlator) take(id int) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return p
}

// resolve completes the request id with msg. It reports false when nothing
// was waiting for id.
func (c *correlator) resolve(id int, msg cast.Message) bool {
	p := c.take(id)
	if p == nil {
		return false
	}
	p.done <- result{msg: msg}
	return true
}

// remove drops id without completing it.
func (c *correlator) remove(id int) bool {
	return c.take(id) != nil
}

// failAll completes every pending request with err and returns how many
// there were.
func (c *correlator) failAll(err error) int {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.done <- result{err: err}
	}
	return len(pending)
}

func (c *correlator) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// await blocks until p completes, timeout elapses or ctx is done. When the
// deadline loses the race against a reply, the reply wins.
func (c *correlator) await(ctx context.Context, p *pendingRequest, timeout time.Duration) (cast.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-p.done:
		return r.msg, r.err
	case <-timer.C:
		if c.remove(p.id) {
			return nil, &cast.TimeoutError{RequestID: p.id, Type: p.typ, After: timeout}
		}
	case <-ctx.Done():
		if c.remove(p.id) {
			return nil, ctx.Err()
		}
	}
	r := <-p.done
	return r.msg, r.err
}
