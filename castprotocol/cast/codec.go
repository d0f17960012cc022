package cast

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
)

// Entry maps one incoming type discriminator to a fresh concrete message.
type Entry struct {
	// Namespace restricts the entry to one namespace. Empty matches any.
	Namespace string
	Type      string
	New       func() Message
}

// Registry is the type-string to message-shape table used by Decode.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns a registry holding every built-in receiver message.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]Entry)}
	for _, e := range builtinEntries() {
		r.Register(e)
	}
	return r
}

func builtinEntries() []Entry {
	errorReply := func() Message { return &ErrorReplyMessage{} }
	return []Entry{
		{Type: TypeConnect, New: func() Message { return &ConnectMessage{} }},
		{Type: TypeClose, New: func() Message { return &CloseMessage{} }},
		{Type: TypePing, New: func() Message { return &PingMessage{} }},
		{Type: TypePong, New: func() Message { return &PongMessage{} }},
		{Type: TypeReceiverStatus, New: func() Message { return &ReceiverStatusMessage{} }},
		{Type: TypeMediaStatus, New: func() Message { return &MediaStatusMessage{} }},
		{Type: TypeLaunchError, New: errorReply},
		{Type: TypeInvalidRequest, New: errorReply},
		{Type: TypeLoadFailed, New: errorReply},
		{Type: TypeLoadCancelled, New: errorReply},
		{Type: TypeInvalidPlayerState, New: errorReply},
	}
}

func registryKey(namespace, typ string) string {
	return namespace + "\x00" + typ
}

// Register adds or replaces an entry.
func (r *Registry) Register(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[registryKey(e.Namespace, e.Type)] = e
}

func (r *Registry) lookup(namespace, typ string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[registryKey(namespace, typ)]; ok {
		return e, true
	}
	e, ok := r.entries[registryKey("", typ)]
	return e, ok
}

// Decode turns a JSON payload into a typed message. Unknown types come back
// as *RawMessage. Malformed payloads return a *DecodeError.
func (r *Registry) Decode(namespace string, payload []byte) (Message, error) {
	var probe struct {
		Type      string `json:"type"`
		RequestID int    `json:"requestId"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, &DecodeError{Namespace: namespace, Err: err}
	}

	e, ok := r.lookup(namespace, probe.Type)
	if !ok {
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return &RawMessage{Type: probe.Type, RequestID: probe.RequestID, Payload: raw}, nil
	}

	msg := e.New()
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, &DecodeError{Namespace: namespace, Type: probe.Type, Err: err}
	}
	return msg, nil
}

// Encode serializes an outgoing message.
func Encode(msg Message) ([]byte, error) {
	if msg == nil || msg.MessageType() == "" {
		return nil, errors.New("cast encode: message without type")
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "cast encode %s", msg.MessageType())
	}
	return b, nil
}
