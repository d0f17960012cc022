package devices

import (
	"context"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/rs/zerolog"
)

const (
	// CapabilityVideoOut is the bitmask for video output capability (bit 0)
	CapabilityVideoOut = 1

	googlecastService = "_googlecast._tcp"
	// DefaultDiscoveryTimeout is the per-interface mDNS query window.
	DefaultDiscoveryTimeout = 3 * time.Second
)

// Replaced in tests.
var (
	mdnsQuery        = mdns.Query
	activeInterfaces = getActiveNetworkInterfaces
)

// MDNSLocator browses _googlecast._tcp on every active interface.
type MDNSLocator struct {
	// Info, when set, enriches each result from the device's eureka_info.
	Info *InfoClient

	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (l *MDNSLocator) Log() *zerolog.Logger {
	if l.LogOutput != nil {
		l.initLogOnce.Do(func() {
			l.Logger = zerolog.New(l.LogOutput).With().Timestamp().Logger()
		})
	}
	return &l.Logger
}

// FindDevices queries mDNS for timeout and returns the devices found, sorted
// by name. It returns ErrNoDeviceAvailable when nothing answered.
func (l *MDNSLocator) FindDevices(ctx context.Context, timeout time.Duration) ([]Device, error) {
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}

	entriesCh := make(chan *mdns.ServiceEntry, 256)
	found := make(map[string]Device)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for entry := range entriesCh {
			if d, ok := deviceFromEntry(entry); ok {
				found[d.Address()] = d
			}
		}
	}()

	queryIface := func(iface *net.Interface) {
		params := mdns.DefaultParams(googlecastService)
		params.Entries = entriesCh
		params.Timeout = timeout
		params.DisableIPv6 = true
		params.WantUnicastResponse = true
		params.Logger = log.New(io.Discard, "", 0)
		params.Interface = iface
		if err := mdnsQuery(params); err != nil {
			l.Log().Debug().Str("Method", "FindDevices").Err(err).Msg("mdns query failed")
		}
	}

	go func() {
		interfaces := activeInterfaces()
		if len(interfaces) == 0 {
			queryIface(nil)
		} else {
			var wg sync.WaitGroup
			for _, iface := range interfaces {
				wg.Add(1)
				go func(iface net.Interface) {
					defer wg.Done()
					queryIface(&iface)
				}(iface)
			}
			wg.Wait()
		}
		close(entriesCh)
	}()

	select {
	case <-collected:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if len(found) == 0 {
		return nil, ErrNoDeviceAvailable
	}

	result := make([]Device, 0, len(found))
	for _, d := range found {
		if l.Info != nil {
			if err := l.Info.Enrich(ctx, &d); err != nil {
				l.Log().Debug().Str("Method", "FindDevices").Str("Address", d.Address()).Err(err).Msg("eureka_info unavailable")
			}
		}
		result = append(result, d)
	}
	SortDevices(result)
	return result, nil
}

// deviceFromEntry converts a _googlecast answer. TXT keys: fn friendly name,
// md model, id uuid, ve protocol version, ca capability bitmask.
func deviceFromEntry(entry *mdns.ServiceEntry) (Device, bool) {
	if entry == nil || entry.AddrV4 == nil {
		return Device{}, false
	}
	if !strings.Contains(entry.Name, "_googlecast") {
		return Device{}, false
	}

	d := Device{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
	if d.Port == 0 {
		d.Port = DefaultPort
	}

	for _, txt := range entry.InfoFields {
		key, value, ok := strings.Cut(txt, "=")
		if !ok {
			continue
		}
		switch key {
		case "fn":
			d.Name = value
		case "md":
			d.Model = value
		case "id":
			d.UUID = value
		case "ve":
			d.Version = value
		case "ca":
			d.IsAudioOnly = isChromecastAudioOnly(value)
		}
	}

	if idx := strings.Index(d.Name, "._googlecast"); idx > 0 {
		d.Name = d.Name[:idx]
	}
	return d, true
}

// getActiveNetworkInterfaces returns all network interfaces that are up,
// multicast-capable, not loopback, and have an IPv4 address. Querying each
// of them finds devices behind hosts with several adapters (VPN, Docker).
func getActiveNetworkInterfaces() []net.Interface {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var active []net.Interface
	for _, iface := range interfaces {
		// Skip down, loopback, or non-multicast interfaces.
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				active = append(active, iface)
				break
			}
		}
	}

	return active
}

// isChromecastAudioOnly reports whether the ca bitmask lacks video out. An
// unparsable value counts as a video device.
func isChromecastAudioOnly(caField string) bool {
	ca, err := strconv.Atoi(caField)
	if err != nil {
		return false
	}
	return (ca & CapabilityVideoOut) == 0
}
