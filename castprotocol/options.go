package castprotocol

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"go2tv.app/castlink/castprotocol/cast"
)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the TLS dialer, mostly for tests.
func WithDialer(d cast.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithRequestTimeout bounds every reply-awaiting call.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithHeartbeatTimeout sets the device silence window.
func WithHeartbeatTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.heartbeatTimeout = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.Logger = l
	}
}

// WithLogOutput builds a timestamped JSON logger on w on first use.
func WithLogOutput(w io.Writer) Option {
	return func(c *Client) {
		c.LogOutput = w
	}
}

// WithMetrics registers the client collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) {
		if reg != nil {
			c.metrics = NewMetrics(reg)
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithSenderID overrides the generated per-client sender id.
func WithSenderID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.senderID = id
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithRegistry replaces the message registry, for example to add typed
// messages for a custom namespace.
func WithRegistry(r *cast.Registry) Option {
	return func(c *Client) {
		if r != nil {
			c.registry = r
		}
	}
}
