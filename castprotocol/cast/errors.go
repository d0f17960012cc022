package cast

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrEndOfStream is returned by ReadFrame when the device closed the stream
	// on a frame boundary.
	ErrEndOfStream = errors.New("cast: end of stream")
	// ErrFrameTooLarge is returned for length prefixes above MaxFrameSize.
	ErrFrameTooLarge = errors.New("cast: frame too large")
	// ErrEmptyNamespace is returned when encoding a frame without a namespace.
	ErrEmptyNamespace = errors.New("cast: empty namespace")

	// ErrNotConnected is wrapped by ProtocolStateError when an operation needs
	// a live connection.
	ErrNotConnected = errors.New("cast: not connected")
	// ErrNoApplication is wrapped by ProtocolStateError when an operation needs
	// a launched or joined application session.
	ErrNoApplication = errors.New("cast: no application session")
	// ErrNoMediaSession is returned by media commands issued before any media
	// status reported a media session id.
	ErrNoMediaSession = errors.New("cast: no media session")
	// ErrConnectionClosed fails every request still pending when a connection
	// is torn down.
	ErrConnectionClosed = errors.New("cast: connection closed")
	// ErrClosedByDevice is the teardown cause when the device sends CLOSE on
	// the connection namespace.
	ErrClosedByDevice = errors.New("cast: connection closed by device")
	// ErrHeartbeatTimeout is the teardown cause when no PING arrived inside
	// the heartbeat window.
	ErrHeartbeatTimeout = errors.New("cast: heartbeat timeout")
)

// TransportError is a socket or TLS failure. It is always fatal to the
// connection that produced it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cast transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a single payload that could not be turned into a Message.
type DecodeError struct {
	Namespace string
	Type      string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("cast decode (%s): %v", e.Namespace, e.Err)
	}
	return fmt.Sprintf("cast decode %s (%s): %v", e.Type, e.Namespace, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TimeoutError is returned when a correlated request got no reply in time.
// It unwraps to context.DeadlineExceeded.
type TimeoutError struct {
	RequestID int
	Type      string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("cast: request %d (%s) timed out after %s", e.RequestID, e.Type, e.After)
}

func (e *TimeoutError) Timeout() bool { return true }

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ProtocolStateError rejects an operation attempted in the wrong lifecycle
// state, e.g. sending while disconnected.
type ProtocolStateError struct {
	Op  string
	Err error
}

func (e *ProtocolStateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProtocolStateError) Unwrap() error { return e.Err }

// NewStateError wraps one of the state sentinels for operation op.
func NewStateError(op string, err error) error {
	return &ProtocolStateError{Op: op, Err: err}
}

// ReplyError is a correlated reply that reports a failure, such as
// LAUNCH_ERROR or LOAD_FAILED.
type ReplyError struct {
	RequestID int
	Type      string
	Reason    string
}

func (e *ReplyError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("cast: request %d failed: %s", e.RequestID, e.Type)
	}
	return fmt.Sprintf("cast: request %d failed: %s (%s)", e.RequestID, e.Type, e.Reason)
}
