package castprotocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"go2tv.app/castlink/castprotocol/cast"
)

const testAppID = "APPX"

func runningApp(transportID string) cast.Application {
	return cast.Application{
		AppID:       testAppID,
		DisplayName: "App X",
		SessionID:   "session-0",
		TransportID: transportID,
		Namespaces:  []cast.Namespace{{Name: NamespaceMedia}},
	}
}

func TestConnectHandshake(t *testing.T) {
	c, dialer := newTestClient(t, nil)
	sub := c.Subscribe(TopicDeviceStatus)

	require.NoError(t, c.ConnectChromecast(context.Background(), testDevice))
	require.Equal(t, StateConnected, c.State())
	require.True(t, c.IsConnected())
	require.Equal(t, "Test TV", c.FriendlyName())
	require.Equal(t, []string{"192.0.2.10:8009"}, dialer.hosts)

	frames := dialer.device(0).seen()
	require.GreaterOrEqual(t, len(frames), 2)

	require.Equal(t, NamespaceConnection, frames[0].Frame.Namespace)
	require.Equal(t, cast.TypeConnect, frames[0].Type)
	require.Equal(t, cast.DefaultReceiverID, frames[0].Frame.DestinationID)
	require.Equal(t, c.SenderID(), frames[0].Frame.SourceID)

	require.Equal(t, NamespaceReceiver, frames[1].Frame.Namespace)
	require.Equal(t, cast.TypeGetStatus, frames[1].Type)
	require.Positive(t, frames[1].RequestID)

	require.NotNil(t, c.GetDeviceStatus())
	require.Equal(t, 1.0, c.GetDeviceStatus().Volume.Level)

	ev := nextEvent(t, sub)
	require.Equal(t, TopicDeviceStatus, ev.Topic)
	require.IsType(t, &cast.DeviceStatus{}, ev.Status)
}

func TestConnectDialFailure(t *testing.T) {
	c, dialer := newTestClient(t, nil)
	dialer.err = &cast.TransportError{Op: "dial", Err: errors.New("connection refused")}

	err := c.ConnectChromecast(context.Background(), testDevice)
	var terr *cast.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, StateDisconnected, c.State())
	require.False(t, c.IsConnected())
}

func TestConnectRollsBackWhenStatusTimesOut(t *testing.T) {
	c, dialer := newTestClient(t, func(d *fakeDevice) {
		d.setSilent(cast.TypeGetStatus)
	}, WithRequestTimeout(100*time.Millisecond))

	err := c.ConnectChromecast(context.Background(), testDevice)
	var terr *cast.TimeoutError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, cast.TypeGetStatus, terr.Type)
	require.False(t, c.IsConnected())
	require.Equal(t, StateDisconnected, c.State())
	require.Nil(t, c.GetDeviceStatus())
	require.Equal(t, 1, dialer.dials())
}

func TestReconnectReplacesConnection(t *testing.T) {
	c, dialer := newTestClient(t, nil)
	sub := c.Subscribe(TopicDisconnected)

	require.NoError(t, c.ConnectChromecast(context.Background(), testDevice))
	require.NoError(t, c.ConnectChromecast(context.Background(), testDevice))
	require.Equal(t, 2, dialer.dials())

	ev := nextEvent(t, sub)
	require.NoError(t, ev.Err)
	noEvent(t, sub)

	require.True(t, c.IsConnected())
	require.NotNil(t, c.GetDeviceStatus())
	require.Len(t, dialer.device(1).seenOf(NamespaceConnection, cast.TypeConnect), 1)
}

func TestLaunchJoinsRunningApplication(t *testing.T) {
	c, d := connectTestClient(t, func(d *fakeDevice) {
		d.setApps(runningApp("T1"))
	})

	status, err := c.LaunchApplication(context.Background(), testAppID, true)
	require.NoError(t, err)
	require.NotNil(t, status.Application(testAppID))

	require.Empty(t, d.seenOf(NamespaceReceiver, cast.TypeLaunch), "join must not send LAUNCH")

	connects := d.seenOf(NamespaceConnection, cast.TypeConnect)
	require.Len(t, connects, 2)
	require.Equal(t, "T1", connects[1].Frame.DestinationID)

	mediaStatus := d.seenOf(NamespaceMedia, cast.TypeGetStatus)
	require.Len(t, mediaStatus, 1)
	require.Equal(t, "T1", mediaStatus[0].Frame.DestinationID)

	require.Equal(t, "T1", c.Application().TransportID)
	require.Equal(t, StateAppConnected, c.State())
}

func TestJoinFollowsMovedTransportID(t *testing.T) {
	c, d := connectTestClient(t, func(d *fakeDevice) {
		d.setApps(runningApp("T1"))
		d.moveOnConnect = map[string]string{"T1": "T2"}
	})

	status, err := c.LaunchApplication(context.Background(), testAppID, true)
	require.NoError(t, err)
	require.Equal(t, "T2", status.Application(testAppID).TransportID)
	require.Empty(t, d.seenOf(NamespaceReceiver, cast.TypeLaunch))

	connects := d.seenOf(NamespaceConnection, cast.TypeConnect)
	require.Len(t, connects, 3)
	require.Equal(t, "T1", connects[1].Frame.DestinationID)
	require.Equal(t, "T2", connects[2].Frame.DestinationID)

	mediaStatus := d.seenOf(NamespaceMedia, cast.TypeGetStatus)
	require.Len(t, mediaStatus, 2)
	require.Equal(t, "T1", mediaStatus[0].Frame.DestinationID)
	require.Equal(t, "T2", mediaStatus[1].Frame.DestinationID)

	require.Equal(t, "T2", c.Application().TransportID)
	require.Equal(t, StateAppConnected, c.State())
}

func TestLaunchWithoutJoinAlwaysLaunches(t *testing.T) {
	c, d := connectTestClient(t, func(d *fakeDevice) {
		d.setApps(runningApp("T1"))
	})

	_, err := c.LaunchApplication(context.Background(), testAppID, false)
	require.NoError(t, err)

	launches := d.seenOf(NamespaceReceiver, cast.TypeLaunch)
	require.Len(t, launches, 1)
	require.Equal(t, testAppID, launches[0].Body["appId"])

	connects := d.seenOf(NamespaceConnection, cast.TypeConnect)
	require.Equal(t, "T1", connects[len(connects)-1].Frame.DestinationID)
	require.Equal(t, "T1", c.Application().TransportID)
}

func TestRelaunchFollowsNewTransportID(t *testing.T) {
	c, d := connectTestClient(t, func(d *fakeDevice) {
		d.setApps(runningApp("T1"))
		d.launchTID = func(string, int) string { return "T2" }
	})

	_, err := c.LaunchApplication(context.Background(), testAppID, false)
	require.NoError(t, err)

	require.Len(t, d.seenOf(NamespaceReceiver, cast.TypeLaunch), 1)
	connects := d.seenOf(NamespaceConnection, cast.TypeConnect)
	require.Equal(t, "T2", connects[len(connects)-1].Frame.DestinationID)
	for _, f := range connects {
		require.NotEqual(t, "T1", f.Frame.DestinationID)
	}
	require.Equal(t, "T2", c.Application().TransportID)
}

func TestLaunchWhenNotRunning(t *testing.T) {
	c, d := connectTestClient(t, nil)

	status, err := c.LaunchApplication(context.Background(), testAppID, true)
	require.NoError(t, err)
	require.Len(t, d.seenOf(NamespaceReceiver, cast.TypeLaunch), 1)
	require.Equal(t, "T1", status.Application(testAppID).TransportID)
}

func TestLaunchError(t *testing.T) {
	c, _ := connectTestClient(t, nil)

	_, err := c.LaunchApplication(context.Background(), "BAD", false)
	var rerr *cast.ReplyError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, cast.TypeLaunchError, rerr.Type)
	require.Equal(t, "NOT_FOUND", rerr.Reason)
	require.Nil(t, c.Application())
	require.Equal(t, StateConnected, c.State())
}

func TestOperationsRequireConnection(t *testing.T) {
	c, _ := newTestClient(t, nil)

	_, err := c.LaunchApplication(context.Background(), testAppID, true)
	var serr *cast.ProtocolStateError
	require.ErrorAs(t, err, &serr)
	require.ErrorIs(t, err, cast.ErrNotConnected)

	require.ErrorIs(t, c.Send(context.Background(), NamespaceReceiver, cast.NewPing(), cast.DefaultReceiverID), cast.ErrNotConnected)

	_, err = c.SetVolume(context.Background(), 0.5)
	require.ErrorIs(t, err, cast.ErrNotConnected)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c, _ := connectTestClient(t, nil)
	_, err := c.LaunchApplication(context.Background(), testAppID, true)
	require.NoError(t, err)
	_, err = c.Media().Load(context.Background(), LoadOptions{URL: "http://example.com/a.mp4", ContentType: "video/mp4"})
	require.NoError(t, err)
	require.NotNil(t, c.GetMediaStatus())

	sub := c.Subscribe(TopicDisconnected)

	require.NoError(t, c.Disconnect(context.Background()))
	ev := nextEvent(t, sub)
	require.Equal(t, TopicDisconnected, ev.Topic)
	require.NoError(t, ev.Err)

	require.NoError(t, c.Disconnect(context.Background()))
	noEvent(t, sub)

	require.Equal(t, StateDisconnected, c.State())
	require.Nil(t, c.Application())
	for ns, st := range c.Statuses() {
		require.Nil(t, st, "status of %s after disconnect", ns)
	}
	require.Nil(t, c.GetDeviceStatus())
	require.Nil(t, c.GetMediaStatus())
	require.False(t, c.Heartbeat().Armed())
}

func TestDisconnectFailsPendingRequests(t *testing.T) {
	c, d := connectTestClient(t, nil)
	d.setSilent(cast.TypeSetVolume)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SetVolume(context.Background(), 0.3)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return c.pending.len() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Disconnect(context.Background()))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, cast.ErrConnectionClosed)
	case <-time.After(3 * time.Second):
		t.Fatalf("pending request was not failed")
	}
	require.Zero(t, c.pending.len())
}

// brokenConn fails writes and closes slowly once broken is set.
type brokenConn struct {
	cast.Conn
	broken     atomic.Bool
	closeDelay time.Duration
}

func (b *brokenConn) WriteFrame(f *cast.Frame) error {
	if b.broken.Load() {
		return &cast.TransportError{Op: "write", Err: io.ErrClosedPipe}
	}
	return b.Conn.WriteFrame(f)
}

func (b *brokenConn) Close() error {
	if b.broken.Load() {
		time.Sleep(b.closeDelay)
	}
	return b.Conn.Close()
}

type brokenDialer struct {
	pipes *pipeDialer
	conn  *brokenConn
}

func (b *brokenDialer) Dial(ctx context.Context, host string, port int) (cast.Conn, error) {
	conn, err := b.pipes.Dial(ctx, host, port)
	if err != nil {
		return nil, err
	}
	b.conn = &brokenConn{Conn: conn, closeDelay: 300 * time.Millisecond}
	return b.conn, nil
}

func TestDisconnectWaitsForConcurrentTeardown(t *testing.T) {
	dialer := &brokenDialer{pipes: &pipeDialer{t: t}}
	c := NewClient(WithDialer(dialer), WithRequestTimeout(5*time.Second))
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.ConnectChromecast(context.Background(), testDevice))
	require.NotNil(t, c.GetDeviceStatus())

	dialer.pipes.device(0).setSilent(cast.TypeSetVolume)
	errCh := make(chan error, 1)
	go func() {
		_, err := c.SetVolume(context.Background(), 0.3)
		errCh <- err
	}()
	require.Eventually(t, func() bool { return c.pending.len() == 1 }, 2*time.Second, 5*time.Millisecond)

	// The best-effort CLOSE now fails and starts its own teardown.
	dialer.conn.broken.Store(true)
	require.NoError(t, c.Disconnect(context.Background()))

	require.Nil(t, c.GetDeviceStatus())
	require.Zero(t, c.pending.len())
	require.Equal(t, StateDisconnected, c.State())
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, cast.ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatalf("pending request was not failed")
	}
}

func TestDisconnectWaitsWhileTeardownRuns(t *testing.T) {
	dialer := &brokenDialer{pipes: &pipeDialer{t: t}}
	c := NewClient(WithDialer(dialer))
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.ConnectChromecast(context.Background(), testDevice))

	dialer.conn.broken.Store(true)
	cn := c.current()
	go c.teardown(cn, &cast.TransportError{Op: "read", Err: io.EOF}, true)
	require.Eventually(t, func() bool { return c.current() == nil }, time.Second, time.Millisecond)

	require.NoError(t, c.Disconnect(context.Background()))
	require.Nil(t, c.GetDeviceStatus())
	require.Equal(t, StateDisconnected, c.State())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Disconnect(ctx), "finished teardown needs no waiting")
}

func TestRequestTimeoutKeepsConnection(t *testing.T) {
	c, d := connectTestClient(t, nil, WithRequestTimeout(100*time.Millisecond))
	d.setSilent(cast.TypeSetVolume)

	_, err := c.SetVolume(context.Background(), 0.3)
	var terr *cast.TimeoutError
	require.ErrorAs(t, err, &terr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, cast.TypeSetVolume, terr.Type)
	require.Equal(t, d.seenOf(NamespaceReceiver, cast.TypeSetVolume)[0].RequestID, terr.RequestID)

	require.True(t, c.IsConnected())
	require.Zero(t, c.pending.len())

	// A late reply for the timed-out id is dropped.
	d.broadcast(NamespaceReceiver, map[string]any{"type": cast.TypeReceiverStatus, "requestId": terr.RequestID, "status": map[string]any{}})
	_, err = c.Receiver().GetStatus(context.Background())
	require.NoError(t, err)
}

func TestRequestIDsAreUniqueUnderConcurrency(t *testing.T) {
	c, d := connectTestClient(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Receiver().GetStatus(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	ids := make(map[int]bool)
	for _, f := range d.seenOf(NamespaceReceiver, cast.TypeGetStatus) {
		require.False(t, ids[f.RequestID], "duplicate request id %d", f.RequestID)
		ids[f.RequestID] = true
	}
	require.Len(t, ids, 21)
}

func TestCorrelatedReplyIsNotDeliveredToChannel(t *testing.T) {
	const ns = "urn:x-cast:com.example.echo"

	c, d := connectTestClient(t, func(d *fakeDevice) {
		d.setCustom(func(d *fakeDevice, sf seenFrame) {
			d.reply(sf, map[string]any{"type": "ECHO_REPLY", "requestId": sf.RequestID, "value": sf.Body["value"]})
		})
	})

	delivered := make(chan cast.Message, 4)
	ch := NewCustomChannel(ns, func(m cast.Message) { delivered <- m })
	require.NoError(t, c.RegisterChannel(ch))

	got, ok := GetChannel[*CustomChannel](c)
	require.True(t, ok)
	require.Same(t, ch, got)

	req := &cast.RawMessage{Type: "ECHO", Payload: json.RawMessage(`{"type":"ECHO","value":42}`)}
	reply, err := Request[*cast.RawMessage](context.Background(), c, ns, req, "T9")
	require.NoError(t, err)
	require.Equal(t, "ECHO_REPLY", reply.Type)
	require.JSONEq(t, `{"type":"ECHO_REPLY","requestId":`+jsonInt(req.RequestID)+`,"value":42}`, string(reply.Payload))

	sent := d.seenOf(ns, "ECHO")
	require.Len(t, sent, 1)
	require.Equal(t, "T9", sent[0].Frame.DestinationID)

	select {
	case m := <-delivered:
		t.Fatalf("correlated reply delivered to channel: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}

	d.broadcast(ns, map[string]any{"type": "NOTICE"})
	select {
	case m := <-delivered:
		require.Equal(t, "NOTICE", m.MessageType())
	case <-time.After(2 * time.Second):
		t.Fatalf("unsolicited message not delivered")
	}
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRegisterChannelRejectsDuplicateNamespace(t *testing.T) {
	c, _ := newTestClient(t, nil)

	require.Error(t, c.RegisterChannel(NewCustomChannel(NamespaceMedia, nil)))
	require.NoError(t, c.RegisterChannel(NewCustomChannel(Namespace("com.example"), nil)))
	require.Error(t, c.RegisterChannel(NewCustomChannel("urn:x-cast:com.google.cast.com.example", nil)))
}

func TestStatusesListOnlyBuiltinChannels(t *testing.T) {
	c, _ := newTestClient(t, nil)
	custom := Namespace("com.example")
	require.NoError(t, c.RegisterChannel(NewCustomChannel(custom, nil)))

	statuses := c.Statuses()
	require.Len(t, statuses, 2)
	require.Contains(t, statuses, NamespaceReceiver)
	require.Contains(t, statuses, NamespaceMedia)
	require.NotContains(t, statuses, custom)
}

func TestUnknownNamespaceIsDiscarded(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, d := connectTestClient(t, nil, WithMetrics(reg))

	d.broadcast("urn:x-cast:com.google.cast.multizone", map[string]any{"type": "DEVICE_UPDATED"})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.metrics.unhandled) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, c.IsConnected())
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, d := connectTestClient(t, nil, WithMetrics(reg))

	d.push(NamespaceReceiver, cast.DefaultReceiverID, "*", map[string]any{"type": cast.TypeReceiverStatus, "status": "broken"})
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.metrics.decodeErrors) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.True(t, c.IsConnected())
	require.NotNil(t, c.GetDeviceStatus())
	_, err := c.Receiver().GetStatus(context.Background())
	require.NoError(t, err)
}

func TestDeviceCloseTearsDown(t *testing.T) {
	c, d := connectTestClient(t, nil)
	sub := c.Subscribe(TopicDisconnected)

	d.push(NamespaceConnection, cast.DefaultReceiverID, c.SenderID(), map[string]any{"type": cast.TypeClose})

	ev := nextEvent(t, sub)
	require.ErrorIs(t, ev.Err, cast.ErrClosedByDevice)
	noEvent(t, sub)
	require.False(t, c.IsConnected())
	require.Nil(t, c.GetDeviceStatus())
}

func TestTransportFailureTearsDown(t *testing.T) {
	c, d := connectTestClient(t, nil)
	sub := c.Subscribe(TopicDisconnected)

	d.close()

	ev := nextEvent(t, sub)
	var terr *cast.TransportError
	require.ErrorAs(t, ev.Err, &terr)
	require.ErrorIs(t, ev.Err, cast.ErrEndOfStream)
	noEvent(t, sub)

	err := c.Send(context.Background(), NamespaceReceiver, cast.NewPing(), cast.DefaultReceiverID)
	var serr *cast.ProtocolStateError
	require.ErrorAs(t, err, &serr)
}

func TestHeartbeatTimeoutTearsDown(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := connectTestClient(t, nil, WithHeartbeatTimeout(300*time.Millisecond), WithMetrics(reg))
	sub := c.Subscribe(TopicDisconnected)

	ev := nextEvent(t, sub)
	require.ErrorIs(t, ev.Err, cast.ErrHeartbeatTimeout)
	noEvent(t, sub)

	require.False(t, c.IsConnected())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(c.metrics.heartbeatTimeouts) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(c.metrics.disconnects.WithLabelValues("heartbeat")))
}

func TestPingKeepsConnectionAlive(t *testing.T) {
	c, d := connectTestClient(t, nil, WithHeartbeatTimeout(400*time.Millisecond))

	deadline := time.Now().Add(1200 * time.Millisecond)
	for time.Now().Before(deadline) {
		d.push(NamespaceHeartbeat, cast.DefaultReceiverID, c.SenderID(), map[string]any{"type": cast.TypePing})
		time.Sleep(50 * time.Millisecond)
	}

	require.True(t, c.IsConnected())
	require.True(t, c.Heartbeat().Armed())
	pongs := d.seenOf(NamespaceHeartbeat, cast.TypePong)
	require.NotEmpty(t, pongs)
	require.Equal(t, cast.DefaultReceiverID, pongs[0].Frame.DestinationID)
}

func TestSetVolumeRoundTrip(t *testing.T) {
	c, d := connectTestClient(t, nil)
	sub := c.Subscribe(TopicDeviceStatus)

	status, err := c.SetVolume(context.Background(), 0.5)
	require.NoError(t, err)
	require.Equal(t, 0.5, status.Volume.Level)
	require.False(t, status.Volume.Muted)
	require.Equal(t, 0.5, c.GetDeviceStatus().Volume.Level)

	ev := nextEvent(t, sub)
	require.Equal(t, 0.5, ev.Status.(*cast.DeviceStatus).Volume.Level)

	sent := d.seenOf(NamespaceReceiver, cast.TypeSetVolume)
	require.Len(t, sent, 1)
	require.Equal(t, map[string]any{"level": 0.5}, sent[0].Body["volume"])

	status, err = c.SetMuted(context.Background(), true)
	require.NoError(t, err)
	require.True(t, status.Volume.Muted)
	require.Equal(t, 0.5, status.Volume.Level)

	_, err = c.SetVolume(context.Background(), 1.5)
	require.Error(t, err)
}

func TestStatusBroadcastUpdatesStatus(t *testing.T) {
	c, d := connectTestClient(t, nil)
	sub := c.Subscribe(TopicDeviceStatus)

	d.broadcast(NamespaceReceiver, map[string]any{
		"type":      cast.TypeReceiverStatus,
		"requestId": 0,
		"status": cast.DeviceStatus{
			Applications: []cast.Application{runningApp("T7")},
			Volume:       cast.Volume{Level: 0.2},
		},
	})

	ev := nextEvent(t, sub)
	st := ev.Status.(*cast.DeviceStatus)
	require.Equal(t, "T7", st.Application(testAppID).TransportID)
	require.Equal(t, st, c.GetDeviceStatus())
}

func TestMediaLoadAndControl(t *testing.T) {
	c, d := connectTestClient(t, nil)

	_, err := c.Media().Play(context.Background())
	require.ErrorIs(t, err, cast.ErrNoMediaSession)

	_, err = c.Media().GetStatus(context.Background())
	require.ErrorIs(t, err, cast.ErrNoApplication)

	_, err = c.LaunchApplication(context.Background(), DefaultMediaReceiverAppID, true)
	require.NoError(t, err)

	status, err := c.Media().Load(context.Background(), LoadOptions{
		URL:         "http://192.0.2.1:3500/movie.mp4",
		ContentType: "video/mp4",
		Title:       "Movie",
		SubtitleURL: "http://192.0.2.1:3500/movie.vtt",
	})
	require.NoError(t, err)
	require.Equal(t, "PLAYING", status.PlayerState)
	require.Equal(t, 1, status.MediaSessionID)

	loads := d.seenOf(NamespaceMedia, cast.TypeLoad)
	require.Len(t, loads, 1)
	require.Equal(t, "T1", loads[0].Frame.DestinationID)
	require.Equal(t, []any{1.0}, loads[0].Body["activeTrackIds"])
	media := loads[0].Body["media"].(map[string]any)
	require.Equal(t, cast.StreamTypeBuffered, media["streamType"])
	require.Len(t, media["tracks"], 1)

	status, err = c.Media().Pause(context.Background())
	require.NoError(t, err)
	require.Equal(t, "PAUSED", status.PlayerState)
	require.Equal(t, 1.0, d.seenOf(NamespaceMedia, cast.TypePause)[0].Body["mediaSessionId"])

	status, err = c.Media().Seek(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, 42.0, status.CurrentTime)
	require.Equal(t, "PAUSED", c.GetMediaStatus().PlayerState)

	status, err = c.Media().Stop(context.Background())
	require.NoError(t, err)
	require.Nil(t, status)
	require.Nil(t, c.GetMediaStatus())
}

func TestMediaLoadLiveSendsPlay(t *testing.T) {
	c, d := connectTestClient(t, nil)
	_, err := c.LaunchApplication(context.Background(), DefaultMediaReceiverAppID, true)
	require.NoError(t, err)

	status, err := c.Media().Load(context.Background(), LoadOptions{URL: "http://192.0.2.1/live.m3u8", ContentType: "application/x-mpegurl", Live: true})
	require.NoError(t, err)
	require.Equal(t, "PLAYING", status.PlayerState)

	loads := d.seenOf(NamespaceMedia, cast.TypeLoad)
	require.Len(t, loads, 1)
	require.Equal(t, false, loads[0].Body["autoplay"])
	require.Equal(t, cast.StreamTypeLive, loads[0].Body["media"].(map[string]any)["streamType"])
	require.Len(t, d.seenOf(NamespaceMedia, cast.TypePlay), 1)
}

func TestStopApplication(t *testing.T) {
	c, d := connectTestClient(t, nil)

	_, err := c.StopApplication(context.Background())
	require.ErrorIs(t, err, cast.ErrNoApplication)

	_, err = c.LaunchApplication(context.Background(), testAppID, true)
	require.NoError(t, err)

	status, err := c.StopApplication(context.Background())
	require.NoError(t, err)
	require.Empty(t, status.Applications)
	require.Nil(t, c.Application())
	require.Equal(t, StateConnected, c.State())
	require.Equal(t, "session-1", d.seenOf(NamespaceReceiver, cast.TypeStop)[0].Body["sessionId"])
}

func TestRequestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := connectTestClient(t, nil, WithMetrics(reg))

	require.Equal(t, 1.0, testutil.ToFloat64(c.metrics.requests.WithLabelValues(cast.TypeGetStatus, "ok")))
	require.GreaterOrEqual(t, testutil.ToFloat64(c.metrics.framesOut), 2.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(c.metrics.framesIn), 1.0)
	require.Zero(t, testutil.ToFloat64(c.metrics.pending))
}
