package castprotocol

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"go2tv.app/castlink/castprotocol/cast"
	"go2tv.app/castlink/devices"
)

const (
	// DefaultRequestTimeout bounds a correlated request.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultDialTimeout bounds the TCP connect and TLS handshake.
	DefaultDialTimeout = 10 * time.Second

	tracerName = "go2tv.app/castlink/castprotocol"
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAppLaunching
	StateAppConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateAppLaunching:
		return "AppLaunching"
	case StateAppConnected:
		return "AppConnected"
	case StateDisconnecting:
		return "Disconnecting"
	}
	return "Unknown"
}

// Client is a sender for one Cast device at a time.
type Client struct {
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	dialer           cast.Dialer
	requestTimeout   time.Duration
	heartbeatTimeout time.Duration
	senderID         string
	userAgent        string
	registry         *cast.Registry
	metrics          *Metrics
	tracer           trace.Tracer
	events           *events
	pending          *correlator
	requestID        atomic.Int64
	unhandledLog     rate.Sometimes

	// lifecycleMu serializes Connect and LaunchApplication. Disconnect does not
	// take it, so a teardown can always interrupt them.
	lifecycleMu sync.Mutex

	mu             sync.RWMutex
	conn           *connection
	last           *connection
	state          State
	device         devices.Device
	app            *cast.Application
	channels       map[string]Channel
	statusChannels []statusChannel

	connCh    *ConnectionChannel
	heartbeat *HeartbeatChannel
	receiver  *ReceiverChannel
	media     *MediaChannel
}

// NewClient builds a disconnected client with the platform channels
// registered.
func NewClient(opts ...Option) *Client {
	c := &Client{
		Logger:           zerolog.Nop(),
		dialer:           cast.TLSDialer{Timeout: DefaultDialTimeout},
		requestTimeout:   DefaultRequestTimeout,
		heartbeatTimeout: DefaultHeartbeatTimeout,
		senderID:         "sender-" + uuid.NewString(),
		userAgent:        "castlink",
		registry:         cast.NewRegistry(),
		events:           newEvents(),
		pending:          newCorrelator(),
		unhandledLog:     rate.Sometimes{First: 3, Interval: time.Minute},
		channels:         make(map[string]Channel),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}

	c.connCh = &ConnectionChannel{sender: c, userAgent: c.userAgent, onClose: c.closedByDevice}
	c.heartbeat = newHeartbeatChannel(c, c.heartbeatTimeout)
	c.receiver = &ReceiverChannel{sender: c}
	c.media = &MediaChannel{sender: c, destination: c.mediaDestination}

	for _, ch := range []Channel{c.connCh, c.heartbeat, c.receiver, c.media} {
		c.channels[ch.Namespace()] = ch
	}
	// Reset on every teardown.
	c.statusChannels = []statusChannel{c.receiver, c.media}
	return c
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *Client) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// SenderID is the source id stamped on every frame this client sends.
func (c *Client) SenderID() string { return c.senderID }

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Device returns the descriptor of the current or last device.
func (c *Client) Device() devices.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.device
}

// FriendlyName is the display name of the current or last device.
func (c *Client) FriendlyName() string {
	return c.Device().Name
}

// Application returns the launched or joined application session, or nil.
func (c *Client) Application() *cast.Application {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.app == nil {
		return nil
	}
	app := *c.app
	return &app
}

func (c *Client) Receiver() *ReceiverChannel { return c.receiver }

func (c *Client) Media() *MediaChannel { return c.media }

func (c *Client) Heartbeat() *HeartbeatChannel { return c.heartbeat }

func (c *Client) Connection() *ConnectionChannel { return c.connCh }

// GetDeviceStatus returns the last-known receiver status, nil when
// disconnected.
func (c *Client) GetDeviceStatus() *cast.DeviceStatus { return c.receiver.Status() }

// GetMediaStatus returns the last-known media status, nil when no media is
// loaded or when disconnected.
func (c *Client) GetMediaStatus() *cast.MediaStatus { return c.media.Status() }

// Statuses maps the namespace of every status channel to its current
// status. Unset statuses are nil.
func (c *Client) Statuses() map[string]any {
	c.mu.RLock()
	list := c.statusChannels
	c.mu.RUnlock()

	out := make(map[string]any, len(list))
	for _, sc := range list {
		out[sc.Namespace()] = sc.statusSnapshot()
	}
	return out
}

// Subscribe streams events for topics, or all topics when none are given.
func (c *Client) Subscribe(topics ...string) *Subscription { return c.events.subscribe(topics...) }

func (c *Client) Unsubscribe(sub *Subscription) { c.events.unsubscribe(sub) }

// Close disconnects and releases the event bus. The client is unusable
// afterwards.
func (c *Client) Close() error {
	err := c.Disconnect(context.Background())
	c.events.close()
	return err
}

func (c *Client) current() *connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Send writes a fire-and-forget message.
func (c *Client) Send(ctx context.Context, namespace string, msg cast.Message, destination string) error {
	cn := c.current()
	if cn == nil {
		return cast.NewStateError("Send", cast.ErrNotConnected)
	}
	return c.write(ctx, cn, namespace, msg, destination)
}

// SendAndAwait assigns msg the next request id, registers it, writes it and
// waits for the reply with the same id. It returns a *cast.TimeoutError when
// no reply arrives within the request timeout.
func (c *Client) SendAndAwait(ctx context.Context, namespace string, msg cast.Correlatable, destination string) (cast.Message, error) {
	cn := c.current()
	if cn == nil {
		return nil, cast.NewStateError("SendAndAwait", cast.ErrNotConnected)
	}

	id := int(c.requestID.Add(1))
	msg.SetRequestID(id)
	typ := msg.MessageType()

	ctx, span := c.tracer.Start(ctx, "cast."+typ,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cast.namespace", namespace),
			attribute.String("cast.destination", destination),
			attribute.Int("cast.request_id", id),
		))
	defer span.End()

	start := time.Now()
	p := c.pending.register(id, typ)
	c.metrics.setPending(c.pending.len())

	reply, err := func() (cast.Message, error) {
		if err := c.write(ctx, cn, namespace, msg, destination); err != nil {
			c.pending.remove(id)
			return nil, err
		}
		return c.pending.await(ctx, p, c.requestTimeout)
	}()
	c.metrics.setPending(c.pending.len())

	if err != nil {
		outcome := "error"
		var terr *cast.TimeoutError
		if errors.As(err, &terr) {
			outcome = "timeout"
		}
		c.metrics.request(typ, outcome, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.Log().Debug().Str("Method", "SendAndAwait").Str("Type", typ).Int("RequestID", id).Err(err).Msg("request failed")
		return nil, err
	}

	c.metrics.request(typ, "ok", time.Since(start))
	span.SetAttributes(attribute.String("cast.reply_type", reply.MessageType()))
	span.SetStatus(codes.Ok, "")
	return reply, nil
}

func (c *Client) write(ctx context.Context, cn *connection, namespace string, msg cast.Message, destination string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := cast.Encode(msg)
	if err != nil {
		return err
	}
	frame := cast.NewTextFrame(c.senderID, destination, namespace, payload)

	cn.sendMu.Lock()
	err = cn.conn.WriteFrame(frame)
	cn.sendMu.Unlock()

	if err != nil {
		var terr *cast.TransportError
		if errors.As(err, &terr) {
			c.Log().Error().Str("Method", "write").Str("Namespace", namespace).Err(err).Msg("write failed, closing connection")
			// The caller may be the read loop, which teardown must not wait on.
			go c.teardown(cn, err, true)
		}
		return err
	}

	c.metrics.frameOut()
	c.Log().Trace().Str("Method", "write").Str("Namespace", namespace).Str("Destination", destination).Str("Type", msg.MessageType()).Msg("sent")
	return nil
}
