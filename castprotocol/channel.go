package castprotocol

import (
	"context"
	"strings"
	"sync/atomic"

	"go2tv.app/castlink/castprotocol/cast"
)

// BaseNamespace prefixes every platform namespace.
const BaseNamespace = "urn:x-cast:com.google.cast"

// Platform namespaces.
const (
	NamespaceConnection = BaseNamespace + ".tp.connection"
	NamespaceHeartbeat  = BaseNamespace + ".tp.heartbeat"
	NamespaceReceiver   = BaseNamespace + ".receiver"
	NamespaceMedia      = BaseNamespace + ".media"
)

// Namespace expands a suffix such as "media" into a full platform namespace.
// Values that already are full namespaces are returned unchanged.
func Namespace(suffix string) string {
	if strings.HasPrefix(suffix, "urn:") {
		return suffix
	}
	return BaseNamespace + "." + suffix
}

// Channel is a namespace-scoped protocol sub-client. OnMessage is called
// from the read loop, in wire order, for every message on the namespace that
// was not a reply to a pending request.
type Channel interface {
	Namespace() string
	OnMessage(msg cast.Message)
}

// Sender is what channels use to talk to the device. *Client implements it.
type Sender interface {
	Send(ctx context.Context, namespace string, msg cast.Message, destination string) error
	SendAndAwait(ctx context.Context, namespace string, msg cast.Correlatable, destination string) (cast.Message, error)
}

// statusChannel is a channel with a last-known status. applyStatus runs on the
// read loop only; the snapshot is swapped, never patched.
type statusChannel interface {
	Channel
	applyStatus(msg cast.Message) bool
	resetStatus()
	statusSnapshot() any
	statusTopic() string
}

// senderBinder is implemented by channels that get their Sender on
// registration.
type senderBinder interface {
	bindSender(s Sender)
}

type statusHolder[T any] struct {
	p atomic.Pointer[T]
}

func (h *statusHolder[T]) load() *T { return h.p.Load() }

func (h *statusHolder[T]) store(v *T) { h.p.Store(v) }

func (h *statusHolder[T]) reset() { h.p.Store(nil) }

// snapshot returns the current value as an untyped nil when unset.
func (h *statusHolder[T]) snapshot() any {
	if v := h.p.Load(); v != nil {
		return v
	}
	return nil
}

// Request sends msg and waits for its correlated reply, converted to T. Failure
// replies (LAUNCH_ERROR, LOAD_FAILED, ...) are returned as *cast.ReplyError.
func Request[T cast.Message](ctx context.Context, s Sender, namespace string, msg cast.Correlatable, destination string) (T, error) {
	var zero T
	reply, err := s.SendAndAwait(ctx, namespace, msg, destination)
	if err != nil {
		return zero, err
	}
	if er, ok := reply.(*cast.ErrorReplyMessage); ok {
		return zero, er.Err()
	}
	typed, ok := reply.(T)
	if !ok {
		return zero, &cast.ReplyError{
			RequestID: msg.GetRequestID(),
			Type:      reply.MessageType(),
			Reason:    "unexpected reply to " + msg.MessageType(),
		}
	}
	return typed, nil
}
