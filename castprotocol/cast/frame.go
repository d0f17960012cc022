package cast

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
	pb "github.com/vishen/go-chromecast/cast/proto"
)

const (
	// DefaultSenderID is the well-known sender id; clients normally use a
	// per-instance id instead.
	DefaultSenderID = "sender-0"
	// DefaultReceiverID addresses the receiver platform itself.
	DefaultReceiverID = "receiver-0"

	// MaxFrameSize bounds the length prefix accepted from a device.
	MaxFrameSize = 1 << 20
)

// Frame is one wire-level unit. A frame carries either UTF-8 JSON text or
// raw bytes, never both.
type Frame struct {
	SourceID      string
	DestinationID string
	Namespace     string
	Binary        bool
	PayloadUTF8   string
	PayloadBinary []byte
}

// NewTextFrame builds a JSON frame.
func NewTextFrame(source, destination, namespace string, payload []byte) *Frame {
	return &Frame{
		SourceID:      source,
		DestinationID: destination,
		Namespace:     namespace,
		PayloadUTF8:   string(payload),
	}
}

// Payload returns the frame payload bytes regardless of kind.
func (f *Frame) Payload() []byte {
	if f.Binary {
		return f.PayloadBinary
	}
	return []byte(f.PayloadUTF8)
}

// Marshal encodes the frame envelope (without the length prefix).
func (f *Frame) Marshal() ([]byte, error) {
	if f.Namespace == "" {
		return nil, ErrEmptyNamespace
	}

	version := pb.CastMessage_CASTV2_1_0
	msg := &pb.CastMessage{
		ProtocolVersion: &version,
		SourceId:        proto.String(f.SourceID),
		DestinationId:   proto.String(f.DestinationID),
		Namespace:       proto.String(f.Namespace),
	}

	if f.Binary {
		payloadType := pb.CastMessage_BINARY
		msg.PayloadType = &payloadType
		msg.PayloadBinary = f.PayloadBinary
	} else {
		payloadType := pb.CastMessage_STRING
		msg.PayloadType = &payloadType
		msg.PayloadUtf8 = proto.String(f.PayloadUTF8)
	}

	b, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("frame marshal: %w", err)
	}
	return b, nil
}

// UnmarshalFrame decodes a frame envelope.
func UnmarshalFrame(b []byte) (*Frame, error) {
	msg := &pb.CastMessage{}
	if err := proto.Unmarshal(b, msg); err != nil {
		return nil, fmt.Errorf("frame unmarshal: %w", err)
	}
	if msg.GetNamespace() == "" {
		return nil, ErrEmptyNamespace
	}

	f := &Frame{
		SourceID:      msg.GetSourceId(),
		DestinationID: msg.GetDestinationId(),
		Namespace:     msg.GetNamespace(),
	}
	if msg.GetPayloadType() == pb.CastMessage_BINARY {
		f.Binary = true
		f.PayloadBinary = msg.GetPayloadBinary()
	} else {
		f.PayloadUTF8 = msg.GetPayloadUtf8()
	}
	return f, nil
}
