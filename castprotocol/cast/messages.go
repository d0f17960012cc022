package cast

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Message types exchanged with receivers.
const (
	TypeConnect            = "CONNECT"
	TypeClose              = "CLOSE"
	TypePing               = "PING"
	TypePong               = "PONG"
	TypeGetStatus          = "GET_STATUS"
	TypeLaunch             = "LAUNCH"
	TypeStop               = "STOP"
	TypeSetVolume          = "SET_VOLUME"
	TypeReceiverStatus     = "RECEIVER_STATUS"
	TypeLaunchError        = "LAUNCH_ERROR"
	TypeInvalidRequest     = "INVALID_REQUEST"
	TypeLoad               = "LOAD"
	TypePlay               = "PLAY"
	TypePause              = "PAUSE"
	TypeSeek               = "SEEK"
	TypeMediaStatus        = "MEDIA_STATUS"
	TypeLoadFailed         = "LOAD_FAILED"
	TypeLoadCancelled      = "LOAD_CANCELLED"
	TypeInvalidPlayerState = "INVALID_PLAYER_STATE"
)

// Message is a decoded application-level unit.
type Message interface {
	MessageType() string
}

// Correlatable is a message that carries a request id and expects exactly
// one reply with the same id.
type Correlatable interface {
	Message
	GetRequestID() int
	SetRequestID(id int)
}

// StatusBearer is implemented by replies that carry a status snapshot.
type StatusBearer interface {
	Message
	StatusSnapshot() any
}

// Header is the fire-and-forget message header.
type Header struct {
	Type string `json:"type"`
}

func (h Header) MessageType() string { return h.Type }

// RequestHeader is the header of correlatable messages.
type RequestHeader struct {
	Type      string `json:"type"`
	RequestID int    `json:"requestId"`
}

func (h RequestHeader) MessageType() string { return h.Type }

func (h RequestHeader) GetRequestID() int { return h.RequestID }

func (h *RequestHeader) SetRequestID(id int) { h.RequestID = id }

// Origin identifies the sender platform in CONNECT.
type Origin struct {
	Platform         string `json:"platform,omitempty"`
	SenderPlatformID string `json:"senderPlatformId,omitempty"`
}

// ConnectMessage opens a virtual connection to a destination.
type ConnectMessage struct {
	Header
	Origin    Origin `json:"origin"`
	UserAgent string `json:"userAgent,omitempty"`
}

// NewConnect builds a CONNECT with a fresh sender platform id.
func NewConnect(userAgent string) *ConnectMessage {
	return &ConnectMessage{
		Header:    Header{Type: TypeConnect},
		Origin:    Origin{Platform: "GO", SenderPlatformID: uuid.NewString()},
		UserAgent: userAgent,
	}
}

// CloseMessage closes a virtual connection. Devices send it too.
type CloseMessage struct{ Header }

func NewClose() *CloseMessage { return &CloseMessage{Header{Type: TypeClose}} }

type PingMessage struct{ Header }

func NewPing() *PingMessage { return &PingMessage{Header{Type: TypePing}} }

type PongMessage struct{ Header }

func NewPong() *PongMessage { return &PongMessage{Header{Type: TypePong}} }

// GetStatusMessage queries receiver or media status, depending on the
// namespace it is sent on.
type GetStatusMessage struct {
	RequestHeader
	MediaSessionID int `json:"mediaSessionId,omitempty"`
}

func NewGetStatus() *GetStatusMessage {
	return &GetStatusMessage{RequestHeader: RequestHeader{Type: TypeGetStatus}}
}

// LaunchMessage starts an application.
type LaunchMessage struct {
	RequestHeader
	AppID string `json:"appId"`
}

func NewLaunch(appID string) *LaunchMessage {
	return &LaunchMessage{RequestHeader: RequestHeader{Type: TypeLaunch}, AppID: appID}
}

// StopMessage stops an application session.
type StopMessage struct {
	RequestHeader
	SessionID string `json:"sessionId"`
}

func NewStop(sessionID string) *StopMessage {
	return &StopMessage{RequestHeader: RequestHeader{Type: TypeStop}, SessionID: sessionID}
}

// VolumeRequest sets level, mute state, or both. Nil fields are omitted.
type VolumeRequest struct {
	Level *float64 `json:"level,omitempty"`
	Muted *bool    `json:"muted,omitempty"`
}

// SetVolumeMessage changes the receiver volume.
type SetVolumeMessage struct {
	RequestHeader
	Volume VolumeRequest `json:"volume"`
}

// NewSetVolume sets the level and leaves the mute state untouched.
func NewSetVolume(level float64) *SetVolumeMessage {
	return &SetVolumeMessage{
		RequestHeader: RequestHeader{Type: TypeSetVolume},
		Volume:        VolumeRequest{Level: &level},
	}
}

// NewSetMuted changes only the mute state.
func NewSetMuted(muted bool) *SetVolumeMessage {
	return &SetVolumeMessage{
		RequestHeader: RequestHeader{Type: TypeSetVolume},
		Volume:        VolumeRequest{Muted: &muted},
	}
}

// ReceiverStatusMessage is the receiver's status reply and broadcast.
type ReceiverStatusMessage struct {
	RequestHeader
	Status DeviceStatus `json:"status"`
}

// DeviceStatus returns a fresh copy of the reported status.
func (m *ReceiverStatusMessage) DeviceStatus() *DeviceStatus {
	s := m.Status
	s.Applications = append([]Application(nil), m.Status.Applications...)
	return &s
}

func (m *ReceiverStatusMessage) StatusSnapshot() any { return m.DeviceStatus() }

// ErrorReplyMessage covers the failure replies (LAUNCH_ERROR, LOAD_FAILED, ...).
type ErrorReplyMessage struct {
	RequestHeader
	Reason string `json:"reason,omitempty"`
}

// Err converts the reply into a ReplyError.
func (m *ErrorReplyMessage) Err() error {
	return &ReplyError{RequestID: m.RequestID, Type: m.Type, Reason: m.Reason}
}

// LoadMessage loads media into a media session.
type LoadMessage struct {
	RequestHeader
	SessionID      string           `json:"sessionId,omitempty"`
	Media          MediaInformation `json:"media"`
	Autoplay       bool             `json:"autoplay"`
	CurrentTime    float64          `json:"currentTime"`
	ActiveTrackIDs []int            `json:"activeTrackIds,omitempty"`
}

func NewLoad(media MediaInformation, autoplay bool, currentTime float64) *LoadMessage {
	return &LoadMessage{
		RequestHeader: RequestHeader{Type: TypeLoad},
		Media:         media,
		Autoplay:      autoplay,
		CurrentTime:   currentTime,
	}
}

// MediaCommandMessage is PLAY, PAUSE, STOP or SEEK on a media session.
type MediaCommandMessage struct {
	RequestHeader
	MediaSessionID int      `json:"mediaSessionId"`
	CurrentTime    *float64 `json:"currentTime,omitempty"`
}

func NewMediaCommand(typ string, mediaSessionID int) *MediaCommandMessage {
	return &MediaCommandMessage{
		RequestHeader:  RequestHeader{Type: typ},
		MediaSessionID: mediaSessionID,
	}
}

func NewSeek(mediaSessionID int, seconds float64) *MediaCommandMessage {
	m := NewMediaCommand(TypeSeek, mediaSessionID)
	m.CurrentTime = &seconds
	return m
}

// MediaStatusMessage reports media sessions. The first entry is the current
// one; an empty list means no media is loaded.
type MediaStatusMessage struct {
	RequestHeader
	Status []MediaStatus `json:"status"`
}

// MediaStatus returns a copy of the current media status, or nil.
func (m *MediaStatusMessage) MediaStatus() *MediaStatus {
	if len(m.Status) == 0 {
		return nil
	}
	s := m.Status[0]
	return &s
}

func (m *MediaStatusMessage) StatusSnapshot() any { return m.MediaStatus() }

// RawMessage is an unrecognized message passed through with its JSON intact.
type RawMessage struct {
	Type      string
	RequestID int
	Payload   json.RawMessage
}

func (m *RawMessage) MessageType() string { return m.Type }

func (m *RawMessage) GetRequestID() int { return m.RequestID }

func (m *RawMessage) SetRequestID(id int) { m.RequestID = id }

// MarshalJSON emits the original payload with the current type and request id.
func (m *RawMessage) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &fields); err != nil {
			return nil, err
		}
	}

	typ, err := json.Marshal(m.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ

	if m.RequestID != 0 {
		id, err := json.Marshal(m.RequestID)
		if err != nil {
			return nil, err
		}
		fields["requestId"] = id
	}
	return json.Marshal(fields)
}
