package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go2tv.app/castlink/castprotocol/cast"
	"go2tv.app/castlink/devices"
)

// readLoopJoinTimeout bounds how long teardown waits for the read loop to
// notice the cancellation.
const readLoopJoinTimeout = 5 * time.Second

// connection is one live transport session. It is replaced, never reused.
type connection struct {
	conn   cast.Conn
	sendMu sync.Mutex

	// ctx is cancelled by teardown; the read loop stops on it.
	ctx    context.Context
	cancel context.CancelFunc

	done   chan struct{} // read loop exited
	closed chan struct{} // teardown finished
}

func newConnection(conn cast.Conn) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// ConnectChromecast connects to device: any previous connection is torn down
// first, then the transport is opened, the read loop and heartbeat start, a
// virtual connection to the receiver is opened and the receiver status is
// fetched. On failure nothing stays connected.
func (c *Client) ConnectChromecast(ctx context.Context, device devices.Device) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if err := c.Disconnect(ctx); err != nil {
		return fmt.Errorf("ConnectChromecast: %w", err)
	}

	port := device.Port
	if port == 0 {
		port = cast.DefaultPort
	}

	c.mu.Lock()
	c.state = StateConnecting
	c.device = device
	c.app = nil
	c.mu.Unlock()

	log := c.Log()
	log.Debug().Str("Method", "ConnectChromecast").Str("Host", device.Host).Int("Port", port).Msg("connecting")

	conn, err := c.dialer.Dial(ctx, device.Host, port)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		log.Error().Str("Method", "ConnectChromecast").Err(err).Msg("dial failed")
		return fmt.Errorf("ConnectChromecast: %w", err)
	}

	cn := newConnection(conn)
	c.mu.Lock()
	c.conn = cn
	c.last = cn
	c.mu.Unlock()

	go c.readLoop(cn)
	c.heartbeat.Start(func() { c.heartbeatExpired(cn) })

	if err := c.connCh.Connect(ctx, cast.DefaultReceiverID); err != nil {
		c.teardown(cn, err, true)
		return fmt.Errorf("ConnectChromecast: virtual connection: %w", err)
	}
	if _, err := c.receiver.GetStatus(ctx); err != nil {
		c.teardown(cn, err, true)
		return fmt.Errorf("ConnectChromecast: receiver status: %w", err)
	}

	c.setState(cn, StateConnected)
	log.Debug().Str("Method", "ConnectChromecast").Str("SenderID", c.senderID).Msg("connected")
	return nil
}

// waitTeardown waits for the teardown of the last connection, which may have
// been started elsewhere (heartbeat, read loop).
func (c *Client) waitTeardown(ctx context.Context) error {
	c.mu.RLock()
	last := c.last
	c.mu.RUnlock()
	if last == nil {
		return nil
	}
	select {
	case <-last.closed:
		return nil
	default:
	}
	select {
	case <-last.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the current connection. Statuses are cleared, pending
// requests fail with cast.ErrConnectionClosed and one disconnected event is
// published. If a concurrent teardown is already running, Disconnect waits
// for it. Without a connection it does nothing.
func (c *Client) Disconnect(ctx context.Context) error {
	cn := c.current()
	if cn == nil {
		if err := c.waitTeardown(ctx); err != nil {
			return fmt.Errorf("Disconnect: %w", err)
		}
		return nil
	}

	c.mu.Lock()
	if c.conn == cn {
		c.state = StateDisconnecting
	}
	app := c.app
	c.mu.Unlock()

	// Best effort, the device drops virtual connections with the socket anyway.
	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if app != nil {
		_ = c.connCh.Close(closeCtx, app.TransportID)
	}
	_ = c.connCh.Close(closeCtx, cast.DefaultReceiverID)

	if c.teardown(cn, nil, true) {
		return nil
	}
	// Another teardown (read loop, heartbeat, failed write) won; it still
	// owns the status reset and the pending failures.
	select {
	case <-cn.closed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("Disconnect: %w", ctx.Err())
	}
}

// teardown destroys target if it is still the current connection and
// reports whether it did. join waits for the read loop to exit, so it must be
// false when called from the read loop itself.
func (c *Client) teardown(target *connection, cause error, join bool) bool {
	c.mu.Lock()
	cn := c.conn
	if cn == nil || cn != target {
		c.mu.Unlock()
		return false
	}
	c.conn = nil
	c.app = nil
	c.state = StateDisconnecting
	c.mu.Unlock()
	defer close(cn.closed)

	log := c.Log()

	c.heartbeat.Stop()
	cn.cancel()
	if err := cn.conn.Close(); err != nil {
		log.Debug().Str("Method", "teardown").Err(err).Msg("transport close")
	}

	if join {
		select {
		case <-cn.done:
		case <-time.After(readLoopJoinTimeout):
			log.Warn().Str("Method", "teardown").Msg("read loop did not stop in time")
		}
	}

	// Statuses are reset after the read loop stopped, so no late status
	// message can repopulate them.
	c.mu.RLock()
	statusChannels := c.statusChannels
	c.mu.RUnlock()
	for _, sc := range statusChannels {
		sc.resetStatus()
	}

	failErr := cast.ErrConnectionClosed
	if cause != nil {
		failErr = fmt.Errorf("%w: %w", cast.ErrConnectionClosed, cause)
	}
	failed := c.pending.failAll(failErr)
	c.metrics.setPending(c.pending.len())

	c.mu.Lock()
	if c.conn == nil {
		c.state = StateDisconnected
	}
	c.mu.Unlock()

	reason := disconnectReason(cause)
	c.metrics.disconnect(reason)
	log.Info().Str("Method", "teardown").Str("Reason", reason).Int("FailedRequests", failed).AnErr("Cause", cause).Msg("disconnected")

	c.events.publish(Event{Topic: TopicDisconnected, Err: cause})
	return true
}

func disconnectReason(cause error) string {
	var terr *cast.TransportError
	switch {
	case cause == nil:
		return "requested"
	case errors.Is(cause, cast.ErrHeartbeatTimeout):
		return "heartbeat"
	case errors.Is(cause, cast.ErrClosedByDevice):
		return "closed_by_device"
	case errors.As(cause, &terr):
		return "transport"
	}
	return "error"
}

func (c *Client) readLoop(cn *connection) {
	defer close(cn.done)
	log := c.Log()

	for {
		f, err := cn.conn.ReadFrame()
		// Cancellation is the only clean stop; whatever the read returned after
		// it is ignored.
		if cn.ctx.Err() != nil {
			return
		}
		if err != nil {
			var derr *cast.DecodeError
			if errors.As(err, &derr) {
				c.metrics.decodeError()
				log.Warn().Str("Method", "readLoop").Err(err).Msg("dropping bad frame")
				continue
			}
			log.Error().Str("Method", "readLoop").Err(err).Msg("read failed")
			c.teardown(cn, err, false)
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) heartbeatExpired(cn *connection) {
	c.Log().Warn().Str("Method", "heartbeatExpired").Dur("Window", c.heartbeatTimeout).Msg("no ping from device")
	if c.teardown(cn, cast.ErrHeartbeatTimeout, true) {
		c.metrics.heartbeatTimeout()
	}
}

// closedByDevice runs on the read loop, which teardown must not wait on.
func (c *Client) closedByDevice() {
	cn := c.current()
	if cn == nil {
		return
	}
	c.Log().Debug().Str("Method", "closedByDevice").Msg("device sent CLOSE")
	go c.teardown(cn, cast.ErrClosedByDevice, true)
}

func (c *Client) setState(cn *connection, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == cn {
		c.state = s
	}
}

// LaunchApplication makes appID the active application session.
//
// With joinExisting and appID already running, the running session is
// joined: a virtual connection is opened to its transport id, media status is
// re-queried if the application speaks the media namespace, and no LAUNCH is
// sent. Otherwise LAUNCH is always sent and the transport id is taken from
// its reply. Transport ids are never assumed stable across either path.
func (c *Client) LaunchApplication(ctx context.Context, appID string, joinExisting bool) (*cast.DeviceStatus, error) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	cn := c.current()
	if cn == nil {
		return nil, cast.NewStateError("LaunchApplication", cast.ErrNotConnected)
	}
	c.setState(cn, StateAppLaunching)
	log := c.Log()

	if joinExisting {
		if app := c.receiver.Status().Application(appID); app != nil {
			log.Debug().Str("Method", "LaunchApplication").Str("AppID", appID).Str("TransportID", app.TransportID).Msg("joining running application")
			status, err := c.join(ctx, cn, app)
			if err != nil {
				c.setState(cn, StateConnected)
				return nil, fmt.Errorf("LaunchApplication: join %s: %w", appID, err)
			}
			return status, nil
		}
	}

	log.Debug().Str("Method", "LaunchApplication").Str("AppID", appID).Msg("launching")
	launched, err := c.receiver.Launch(ctx, appID)
	if err != nil {
		c.setState(cn, StateConnected)
		return nil, fmt.Errorf("LaunchApplication: %w", err)
	}
	app := launched.Application(appID)
	if app == nil || app.TransportID == "" {
		c.setState(cn, StateConnected)
		return nil, cast.NewStateError("LaunchApplication", cast.ErrNoApplication)
	}
	if err := c.connectApp(ctx, cn, app); err != nil {
		c.setState(cn, StateConnected)
		return nil, fmt.Errorf("LaunchApplication: %w", err)
	}
	return c.refresh(ctx, cn, appID)
}

func (c *Client) join(ctx context.Context, cn *connection, app *cast.Application) (*cast.DeviceStatus, error) {
	if err := c.connectApp(ctx, cn, app); err != nil {
		return nil, err
	}
	if app.HasNamespace(NamespaceMedia) {
		if _, err := c.media.GetStatus(ctx); err != nil {
			c.Log().Warn().Str("Method", "join").Str("AppID", app.AppID).Err(err).Msg("media status re-query failed")
		}
	}
	return c.refresh(ctx, cn, app.AppID)
}

func (c *Client) connectApp(ctx context.Context, cn *connection, app *cast.Application) error {
	if err := c.connCh.Connect(ctx, app.TransportID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != cn {
		return cast.NewStateError("connectApp", cast.ErrNotConnected)
	}
	c.app = app
	c.state = StateAppConnected
	return nil
}

// refresh re-reads the receiver status and follows the application to a new
// transport id if the device moved it. Media status is then re-queried at the
// new id, since the old session's status no longer applies.
func (c *Client) refresh(ctx context.Context, cn *connection, appID string) (*cast.DeviceStatus, error) {
	status, err := c.receiver.GetStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh status: %w", err)
	}

	app := status.Application(appID)
	cur := c.Application()
	if app == nil || cur == nil || app.TransportID == "" || app.TransportID == cur.TransportID {
		return status, nil
	}

	log := c.Log()
	log.Debug().Str("Method", "refresh").Str("AppID", appID).Str("From", cur.TransportID).Str("To", app.TransportID).Msg("transport id changed")
	if err := c.connectApp(ctx, cn, app); err != nil {
		return nil, err
	}
	c.media.resetStatus()
	if app.HasNamespace(NamespaceMedia) {
		if _, err := c.media.GetStatus(ctx); err != nil {
			log.Warn().Str("Method", "refresh").Str("AppID", appID).Err(err).Msg("media status re-query failed")
		}
	}
	return status, nil
}

// StopApplication stops the active application session.
func (c *Client) StopApplication(ctx context.Context) (*cast.DeviceStatus, error) {
	cn := c.current()
	if cn == nil {
		return nil, cast.NewStateError("StopApplication", cast.ErrNotConnected)
	}
	app := c.Application()
	if app == nil {
		return nil, cast.NewStateError("StopApplication", cast.ErrNoApplication)
	}

	status, err := c.receiver.Stop(ctx, app.SessionID)
	if err != nil {
		return nil, fmt.Errorf("StopApplication: %w", err)
	}

	c.mu.Lock()
	if c.conn == cn {
		c.app = nil
		c.state = StateConnected
	}
	c.mu.Unlock()
	c.media.resetStatus()
	return status, nil
}

// SetVolume sets the receiver volume level, 0.0 to 1.0.
func (c *Client) SetVolume(ctx context.Context, level float64) (*cast.DeviceStatus, error) {
	return c.receiver.SetVolume(ctx, level)
}

// SetMuted mutes or unmutes the receiver.
func (c *Client) SetMuted(ctx context.Context, muted bool) (*cast.DeviceStatus, error) {
	return c.receiver.SetMuted(ctx, muted)
}

func (c *Client) mediaDestination() (string, error) {
	app := c.Application()
	if app == nil {
		return "", cast.NewStateError("media", cast.ErrNoApplication)
	}
	return app.TransportID, nil
}
