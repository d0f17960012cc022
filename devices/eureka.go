package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// InfoPort is the plain HTTP setup port of Cast devices.
const InfoPort = 8008

const eurekaPath = "/setup/eureka_info?params=name,device_info,build_info"

// Info is the subset of eureka_info used to describe a device. Older
// firmware reports the fields at the top level, newer firmware nests them.
type Info struct {
	Name         string `json:"name"`
	BuildVersion string `json:"build_version"`
	ModelName    string `json:"model_name"`
	SSDPUDN      string `json:"ssdp_udn"`

	DeviceInfo struct {
		ModelName    string `json:"model_name"`
		Manufacturer string `json:"manufacturer"`
		SSDPUDN      string `json:"ssdp_udn"`
	} `json:"device_info"`

	BuildInfo struct {
		CastBuildRevision string `json:"cast_build_revision"`
		SystemBuild       string `json:"system_build_number"`
	} `json:"build_info"`
}

// Model returns the model name from either layout.
func (i *Info) Model() string {
	if i.DeviceInfo.ModelName != "" {
		return i.DeviceInfo.ModelName
	}
	return i.ModelName
}

// Version returns the firmware version from either layout.
func (i *Info) Version() string {
	if i.BuildInfo.CastBuildRevision != "" {
		return i.BuildInfo.CastBuildRevision
	}
	return i.BuildVersion
}

// UUID returns the device UDN from either layout.
func (i *Info) UUID() string {
	if i.DeviceInfo.SSDPUDN != "" {
		return i.DeviceInfo.SSDPUDN
	}
	return i.SSDPUDN
}

// InfoClient fetches eureka_info with retries.
type InfoClient struct {
	http *http.Client
	// Port overrides InfoPort.
	Port int
}

// NewInfoClient returns a client whose calls give up after timeout.
func NewInfoClient(timeout time.Duration, retryMax int) *InfoClient {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = timeout

	return &InfoClient{http: retryClient.StandardClient()}
}

// FetchInfo reads eureka_info from host.
func (c *InfoClient) FetchInfo(ctx context.Context, host string) (*Info, error) {
	port := c.Port
	if port == 0 {
		port = InfoPort
	}
	u := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + eurekaPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("FetchInfo request error: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("FetchInfo GET error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FetchInfo: unexpected status %s", resp.Status)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("FetchInfo decode error: %w", err)
	}
	return &info, nil
}

// Enrich fills the descriptor fields mDNS left empty. The firmware version
// always comes from eureka_info.
func (c *InfoClient) Enrich(ctx context.Context, d *Device) error {
	info, err := c.FetchInfo(ctx, d.Host)
	if err != nil {
		return err
	}
	if d.Name == "" {
		d.Name = info.Name
	}
	if d.Model == "" {
		d.Model = info.Model()
	}
	if v := info.Version(); v != "" {
		d.Version = v
	}
	if d.UUID == "" {
		d.UUID = info.UUID()
	}
	return nil
}
