package castprotocol

import (
	"context"

	"go2tv.app/castlink/castprotocol/cast"
)

// ConnectionChannel opens and closes virtual connections.
type ConnectionChannel struct {
	sender    Sender
	userAgent string
	onClose   func()
}

func (ch *ConnectionChannel) Namespace() string { return NamespaceConnection }

// Connect opens a virtual connection to destination, either the receiver or
// an application transport id.
func (ch *ConnectionChannel) Connect(ctx context.Context, destination string) error {
	return ch.sender.Send(ctx, NamespaceConnection, cast.NewConnect(ch.userAgent), destination)
}

// Close closes the virtual connection to destination.
func (ch *ConnectionChannel) Close(ctx context.Context, destination string) error {
	return ch.sender.Send(ctx, NamespaceConnection, cast.NewClose(), destination)
}

// OnMessage handles CLOSE sent by the device, which ends the connection.
func (ch *ConnectionChannel) OnMessage(msg cast.Message) {
	if msg.MessageType() == cast.TypeClose && ch.onClose != nil {
		ch.onClose()
	}
}
