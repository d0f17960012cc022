package castprotocol

import (
	"context"
	"fmt"

	"go2tv.app/castlink/castprotocol/cast"
)

// ReceiverChannel talks to the receiver platform (receiver-0). It keeps the
// last RECEIVER_STATUS, replies and broadcasts alike.
type ReceiverChannel struct {
	sender Sender
	status statusHolder[cast.DeviceStatus]
}

func (ch *ReceiverChannel) Namespace() string { return NamespaceReceiver }

// Status returns the last-known device status, or nil.
func (ch *ReceiverChannel) Status() *cast.DeviceStatus { return ch.status.load() }

// GetStatus asks the receiver for a fresh status.
func (ch *ReceiverChannel) GetStatus(ctx context.Context) (*cast.DeviceStatus, error) {
	return ch.request(ctx, cast.NewGetStatus())
}

// Launch starts appID. The reply status lists the new session.
func (ch *ReceiverChannel) Launch(ctx context.Context, appID string) (*cast.DeviceStatus, error) {
	return ch.request(ctx, cast.NewLaunch(appID))
}

// Stop ends the application session sessionID.
func (ch *ReceiverChannel) Stop(ctx context.Context, sessionID string) (*cast.DeviceStatus, error) {
	return ch.request(ctx, cast.NewStop(sessionID))
}

// SetVolume sets the receiver level, 0.0 to 1.0.
func (ch *ReceiverChannel) SetVolume(ctx context.Context, level float64) (*cast.DeviceStatus, error) {
	if level < 0 || level > 1 {
		return nil, fmt.Errorf("SetVolume: level %v out of range [0,1]", level)
	}
	return ch.request(ctx, cast.NewSetVolume(level))
}

// SetMuted mutes or unmutes the receiver.
func (ch *ReceiverChannel) SetMuted(ctx context.Context, muted bool) (*cast.DeviceStatus, error) {
	return ch.request(ctx, cast.NewSetMuted(muted))
}

func (ch *ReceiverChannel) request(ctx context.Context, msg cast.Correlatable) (*cast.DeviceStatus, error) {
	reply, err := Request[*cast.ReceiverStatusMessage](ctx, ch.sender, NamespaceReceiver, msg, cast.DefaultReceiverID)
	if err != nil {
		return nil, err
	}
	return reply.DeviceStatus(), nil
}

// OnMessage receives receiver messages that were not replies. Status
// broadcasts are already applied by the time it runs.
func (ch *ReceiverChannel) OnMessage(cast.Message) {}

func (ch *ReceiverChannel) applyStatus(msg cast.Message) bool {
	rs, ok := msg.(*cast.ReceiverStatusMessage)
	if !ok {
		return false
	}
	ch.status.store(rs.DeviceStatus())
	return true
}

func (ch *ReceiverChannel) resetStatus() { ch.status.reset() }

func (ch *ReceiverChannel) statusSnapshot() any { return ch.status.snapshot() }

func (ch *ReceiverChannel) statusTopic() string { return TopicDeviceStatus }
