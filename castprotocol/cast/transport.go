package cast

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// DefaultPort is the port receivers listen on unless they advertise another.
const DefaultPort = 8009

// Conn is a framed stream to one device.
type Conn interface {
	// ReadFrame blocks until a full frame is available. It never returns a
	// short frame.
	ReadFrame() (*Frame, error)
	// WriteFrame writes one length-prefixed frame. Callers serialize writes.
	WriteFrame(*Frame) error
	Close() error
}

// Dialer opens a Conn to a device.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (Conn, error)
}

// TLSDialer dials devices over TLS.
//
// Receivers present self-signed certificates, so server certificate
// verification is disabled. Anyone able to intercept the LAN connection can
// impersonate the device; this is the trust model of the protocol.
type TLSDialer struct {
	Timeout time.Duration
}

func (d TLSDialer) Dial(ctx context.Context, host string, port int) (Conn, error) {
	if port == 0 {
		port = DefaultPort
	}

	td := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: true, //nolint:gosec // receivers self-sign
		},
	}

	c, err := td.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return NewConn(c), nil
}

type streamConn struct {
	rwc io.ReadWriteCloser
	hdr [4]byte
}

// NewConn frames an established byte stream.
func NewConn(rwc io.ReadWriteCloser) Conn {
	return &streamConn{rwc: rwc}
}

func (c *streamConn) ReadFrame() (*Frame, error) {
	if _, err := io.ReadFull(c.rwc, c.hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &TransportError{Op: "read", Err: ErrEndOfStream}
		}
		return nil, &TransportError{Op: "read", Err: err}
	}

	n := binary.BigEndian.Uint32(c.hdr[:])
	if n > MaxFrameSize {
		return nil, &TransportError{Op: "read", Err: errors.Wrapf(ErrFrameTooLarge, "length %d", n)}
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(c.rwc, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = ErrEndOfStream
		}
		return nil, &TransportError{Op: "read", Err: err}
	}

	// The stream stays aligned on a bad envelope, so it is not fatal.
	f, err := UnmarshalFrame(body)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return f, nil
}

func (c *streamConn) WriteFrame(f *Frame) error {
	body, err := f.Marshal()
	if err != nil {
		return err
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf, uint32(len(body)))
	copy(buf[4:], body)

	if _, err := c.rwc.Write(buf); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

func (c *streamConn) Close() error {
	return c.rwc.Close()
}
