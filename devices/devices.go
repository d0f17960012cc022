package devices

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultPort is the Cast control port.
const DefaultPort = 8009

var (
	ErrNoDeviceAvailable  = errors.New("FindDevices: No available Cast devices")
	ErrDeviceNotAvailable = errors.New("DevicePicker: Requested device not available")
	ErrInvalidAddress     = errors.New("ParseAddress: invalid device address")
)

// Device describes a reachable receiver. Host and Port identify it.
type Device struct {
	Name        string
	Host        string
	Port        int
	Model       string
	Version     string
	UUID        string
	IsAudioOnly bool
}

// Address returns host:port.
func (d Device) Address() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

func (d Device) String() string {
	if d.Name == "" {
		return d.Address()
	}
	return fmt.Sprintf("%s (%s)", d.Name, d.Address())
}

// Locator finds devices on the network.
type Locator interface {
	FindDevices(ctx context.Context, timeout time.Duration) ([]Device, error)
}

// ParseAddress builds a Device from "host", "host:port" or a URL such as
// "http://host:port". The port defaults to DefaultPort.
func ParseAddress(addr string) (Device, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Device{}, ErrInvalidAddress
	}

	if strings.Contains(addr, "://") {
		u, err := url.Parse(addr)
		if err != nil {
			return Device{}, errors.Wrap(ErrInvalidAddress, err.Error())
		}
		addr = u.Host
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port given.
		host, portStr = strings.Trim(addr, "[]"), ""
	}
	if host == "" {
		return Device{}, ErrInvalidAddress
	}

	port := DefaultPort
	if portStr != "" {
		port, err = strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return Device{}, errors.Wrapf(ErrInvalidAddress, "port %q", portStr)
		}
	}
	return Device{Host: host, Port: port}, nil
}

// SortDevices orders devices by name, then address.
func SortDevices(devs []Device) {
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Name != devs[j].Name {
			return devs[i].Name < devs[j].Name
		}
		return devs[i].Address() < devs[j].Address()
	})
}

// DevicePicker will pick the nth device (1-based) of the sorted list.
func DevicePicker(devs []Device, n int) (Device, error) {
	if n > len(devs) || len(devs) == 0 || n <= 0 {
		return Device{}, ErrDeviceNotAvailable
	}

	sorted := append([]Device(nil), devs...)
	SortDevices(sorted)
	return sorted[n-1], nil
}

// HostPortIsAlive checks if a device at the given address is reachable via TCP connection.
// Returns true if the connection succeeds within 2 seconds.
func HostPortIsAlive(address string) bool {
	conn, err := net.DialTimeout("tcp", address, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
