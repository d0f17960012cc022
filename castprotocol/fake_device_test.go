package castprotocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go2tv.app/castlink/castprotocol/cast"
	"go2tv.app/castlink/devices"
)

// seenFrame is a frame the fake device received, with its JSON decoded.
type seenFrame struct {
	Frame     *cast.Frame
	Type      string
	RequestID int
	Body      map[string]any
}

// fakeDevice plays the receiver end of a net.Pipe. Writes go through a queue
// so the read side never blocks on the client.
type fakeDevice struct {
	t    *testing.T
	conn cast.Conn
	out  chan *cast.Frame
	done chan struct{}

	mu      sync.Mutex
	frames  []seenFrame
	apps    []cast.Application
	volume  cast.Volume
	media   []cast.MediaStatus
	silent  map[string]bool
	launchN int
	// launchTID picks the transport id of a launched app.
	launchTID func(appID string, n int) string
	// moveOnConnect reassigns a transport id once a sender connects to it.
	moveOnConnect map[string]string
	onCustom      func(d *fakeDevice, f seenFrame)
}

func newFakeDevice(t *testing.T, conn cast.Conn) *fakeDevice {
	return &fakeDevice{
		t:      t,
		conn:   conn,
		out:    make(chan *cast.Frame, 64),
		done:   make(chan struct{}),
		volume: cast.Volume{Level: 1, ControlType: "attenuation", StepInterval: 0.05},
		silent: make(map[string]bool),
		launchTID: func(appID string, n int) string {
			return fmt.Sprintf("T%d", n)
		},
	}
}

func (d *fakeDevice) start() {
	go d.serve()
	go d.writer()
}

func (d *fakeDevice) writer() {
	for {
		select {
		case f := <-d.out:
			if err := d.conn.WriteFrame(f); err != nil {
				return
			}
		case <-d.done:
			return
		}
	}
}

func (d *fakeDevice) serve() {
	defer close(d.done)
	for {
		f, err := d.conn.ReadFrame()
		if err != nil {
			return
		}
		sf := seenFrame{Frame: f, Body: map[string]any{}}
		if err := json.Unmarshal([]byte(f.PayloadUTF8), &sf.Body); err != nil {
			d.t.Errorf("fake device: bad payload %q: %v", f.PayloadUTF8, err)
			continue
		}
		sf.Type, _ = sf.Body["type"].(string)
		if id, ok := sf.Body["requestId"].(float64); ok {
			sf.RequestID = int(id)
		}

		d.mu.Lock()
		d.frames = append(d.frames, sf)
		silent := d.silent[sf.Type]
		d.mu.Unlock()

		if !silent {
			d.handle(sf)
		}
	}
}

// close drops the connection from the device side.
func (d *fakeDevice) close() { d.conn.Close() }

func (d *fakeDevice) handle(sf seenFrame) {
	f := sf.Frame
	switch f.Namespace {
	case NamespaceReceiver:
		d.handleReceiver(sf)
	case NamespaceMedia:
		d.handleMedia(sf)
	case NamespaceConnection:
		d.handleConnection(sf)
	case NamespaceHeartbeat:
	default:
		d.mu.Lock()
		fn := d.onCustom
		d.mu.Unlock()
		if fn != nil {
			fn(d, sf)
		}
	}
}

func (d *fakeDevice) handleConnection(sf seenFrame) {
	if sf.Type != cast.TypeConnect {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	to, ok := d.moveOnConnect[sf.Frame.DestinationID]
	if !ok {
		return
	}
	for i := range d.apps {
		if d.apps[i].TransportID == sf.Frame.DestinationID {
			d.apps[i].TransportID = to
		}
	}
}

func (d *fakeDevice) handleReceiver(sf seenFrame) {
	d.mu.Lock()
	switch sf.Type {
	case cast.TypeLaunch:
		appID, _ := sf.Body["appId"].(string)
		if appID == "BAD" {
			d.mu.Unlock()
			d.reply(sf, map[string]any{"type": cast.TypeLaunchError, "requestId": sf.RequestID, "reason": "NOT_FOUND"})
			return
		}
		d.launchN++
		app := cast.Application{
			AppID:       appID,
			DisplayName: "App " + appID,
			SessionID:   fmt.Sprintf("session-%d", d.launchN),
			TransportID: d.launchTID(appID, d.launchN),
			Namespaces:  []cast.Namespace{{Name: NamespaceMedia}},
		}
		d.apps = []cast.Application{app}
		d.media = nil
	case cast.TypeStop:
		d.apps = nil
		d.media = nil
	case cast.TypeSetVolume:
		vol, _ := sf.Body["volume"].(map[string]any)
		if level, ok := vol["level"].(float64); ok {
			d.volume.Level = level
		}
		if muted, ok := vol["muted"].(bool); ok {
			d.volume.Muted = muted
		}
	}
	status := d.statusLocked()
	d.mu.Unlock()

	d.reply(sf, map[string]any{"type": cast.TypeReceiverStatus, "requestId": sf.RequestID, "status": status})
}

func (d *fakeDevice) handleMedia(sf seenFrame) {
	d.mu.Lock()
	switch sf.Type {
	case cast.TypeLoad:
		var load cast.LoadMessage
		b, _ := json.Marshal(sf.Body)
		_ = json.Unmarshal(b, &load)
		state := "PLAYING"
		if !load.Autoplay {
			state = "PAUSED"
		}
		d.media = []cast.MediaStatus{{MediaSessionID: 1, PlayerState: state, CurrentTime: load.CurrentTime, Media: &load.Media}}
	case cast.TypePlay, cast.TypePause, cast.TypeSeek:
		if len(d.media) > 0 {
			switch sf.Type {
			case cast.TypePlay:
				d.media[0].PlayerState = "PLAYING"
			case cast.TypePause:
				d.media[0].PlayerState = "PAUSED"
			case cast.TypeSeek:
				d.media[0].CurrentTime, _ = sf.Body["currentTime"].(float64)
			}
		}
	case cast.TypeStop:
		d.media = nil
	}
	media := append([]cast.MediaStatus{}, d.media...)
	d.mu.Unlock()

	d.reply(sf, map[string]any{"type": cast.TypeMediaStatus, "requestId": sf.RequestID, "status": media})
}

func (d *fakeDevice) statusLocked() cast.DeviceStatus {
	return cast.DeviceStatus{
		Applications:  append([]cast.Application(nil), d.apps...),
		IsActiveInput: true,
		Volume:        d.volume,
	}
}

func (d *fakeDevice) setApps(apps ...cast.Application) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.apps = apps
}

func (d *fakeDevice) setSilent(types ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, typ := range types {
		d.silent[typ] = true
	}
}

func (d *fakeDevice) setCustom(fn func(d *fakeDevice, f seenFrame)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCustom = fn
}

// reply answers sf from the address it was sent to.
func (d *fakeDevice) reply(sf seenFrame, payload any) {
	d.push(sf.Frame.Namespace, sf.Frame.DestinationID, sf.Frame.SourceID, payload)
}

// push sends an unsolicited message.
func (d *fakeDevice) push(namespace, source, destination string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		d.t.Errorf("fake device: marshal: %v", err)
		return
	}
	select {
	case d.out <- cast.NewTextFrame(source, destination, namespace, b):
	case <-d.done:
	}
}

func (d *fakeDevice) broadcast(namespace string, payload any) {
	d.push(namespace, cast.DefaultReceiverID, "*", payload)
}

func (d *fakeDevice) seen() []seenFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]seenFrame(nil), d.frames...)
}

// seenOf returns the frames of one namespace, optionally filtered by type.
func (d *fakeDevice) seenOf(namespace, typ string) []seenFrame {
	var out []seenFrame
	for _, sf := range d.seen() {
		if sf.Frame.Namespace == namespace && (typ == "" || sf.Type == typ) {
			out = append(out, sf)
		}
	}
	return out
}

// pipeDialer hands out the client end of a net.Pipe and serves the other end
// with a fakeDevice.
type pipeDialer struct {
	t     *testing.T
	setup func(d *fakeDevice)

	mu      sync.Mutex
	devices []*fakeDevice
	hosts   []string
	err     error
}

func (p *pipeDialer) Dial(ctx context.Context, host string, port int) (cast.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}

	client, server := net.Pipe()
	d := newFakeDevice(p.t, cast.NewConn(server))
	if p.setup != nil {
		p.setup(d)
	}
	d.start()
	p.devices = append(p.devices, d)
	p.hosts = append(p.hosts, net.JoinHostPort(host, fmt.Sprint(port)))
	return cast.NewConn(client), nil
}

func (p *pipeDialer) device(i int) *fakeDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	require.Greater(p.t, len(p.devices), i, "device %d was never dialed", i)
	return p.devices[i]
}

func (p *pipeDialer) dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.devices)
}

var testDevice = devices.Device{Name: "Test TV", Host: "192.0.2.10", Port: 8009}

func newTestClient(t *testing.T, setup func(d *fakeDevice), opts ...Option) (*Client, *pipeDialer) {
	t.Helper()
	dialer := &pipeDialer{t: t, setup: setup}
	c := NewClient(append([]Option{WithDialer(dialer), WithRequestTimeout(2 * time.Second)}, opts...)...)
	t.Cleanup(func() { c.Close() })
	return c, dialer
}

func connectTestClient(t *testing.T, setup func(d *fakeDevice), opts ...Option) (*Client, *fakeDevice) {
	t.Helper()
	c, dialer := newTestClient(t, setup, opts...)
	require.NoError(t, c.ConnectChromecast(context.Background(), testDevice))
	return c, dialer.device(0)
}

// nextEvent waits for one event on sub.
func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("no event within 3s")
	}
	return Event{}
}

// noEvent asserts nothing arrives on sub for a short while.
func noEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(200 * time.Millisecond):
	}
}
