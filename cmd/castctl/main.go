package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go2tv.app/castlink/castprotocol"
	"go2tv.app/castlink/castprotocol/cast"
	"go2tv.app/castlink/devices"
	"go2tv.app/castlink/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

// globals are the persistent flags plus what is derived from them.
type globals struct {
	configPath string
	logLevel   string
	device     string
	pick       int

	conf *config.Config
	log  zerolog.Logger
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "castctl",
		Short: "Control Cast devices on the local network",
		Long: `castctl discovers Cast devices and drives them over the Cast v2 protocol.

Examples:
  castctl discover
  castctl status --device 192.168.1.20
  castctl launch --device 192.168.1.20 --app CC1AD845
  castctl load --pick 1 --url http://192.168.1.5:3500/movie.mp4 --type video/mp4`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Settings file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (default from settings)")
	rootCmd.PersistentFlags().StringVarP(&g.device, "device", "d", "", "Device address, host[:port]")
	rootCmd.PersistentFlags().IntVarP(&g.pick, "pick", "p", 0, "Use the n-th discovered device instead of --device")

	rootCmd.AddCommand(
		discoverCmd(g),
		statusCmd(g),
		launchCmd(g),
		stopCmd(g),
		volumeCmd(g),
		loadCmd(g),
		watchCmd(g),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Encountered error(s): %s\n", err)
		os.Exit(1)
	}
}

func (g *globals) init() error {
	var err error
	if g.configPath != "" {
		g.conf, err = config.LoadFrom(g.configPath)
	} else {
		g.conf, err = config.GetAppConfig()
	}
	if err != nil {
		return err
	}

	level := g.conf.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	g.log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(lvl).With().Timestamp().Logger()
	return nil
}

func (g *globals) locator() *devices.MDNSLocator {
	return &devices.MDNSLocator{
		Info:   devices.NewInfoClient(g.conf.DiscoveryTimeout, 2),
		Logger: g.log,
	}
}

// target resolves --device or --pick into a device.
func (g *globals) target(ctx context.Context) (devices.Device, error) {
	switch {
	case g.device != "" && g.pick > 0:
		return devices.Device{}, fmt.Errorf("can't combine --device with --pick")
	case g.device != "":
		return devices.ParseAddress(g.device)
	case g.pick > 0:
		devs, err := g.locator().FindDevices(ctx, g.conf.DiscoveryTimeout)
		if err != nil {
			return devices.Device{}, err
		}
		return devices.DevicePicker(devs, g.pick)
	}
	return devices.Device{}, fmt.Errorf("no device selected, use --device or --pick")
}

func (g *globals) newClient(opts ...castprotocol.Option) *castprotocol.Client {
	base := []castprotocol.Option{
		castprotocol.WithLogger(g.log),
		castprotocol.WithRequestTimeout(g.conf.RequestTimeout),
		castprotocol.WithHeartbeatTimeout(g.conf.HeartbeatTimeout),
		castprotocol.WithDialer(cast.TLSDialer{Timeout: g.conf.DialTimeout}),
		castprotocol.WithUserAgent("castctl/" + version),
	}
	return castprotocol.NewClient(append(base, opts...)...)
}

// connect resolves the target and connects a new client to it. The caller
// closes the client.
func (g *globals) connect(ctx context.Context, opts ...castprotocol.Option) (*castprotocol.Client, error) {
	dev, err := g.target(ctx)
	if err != nil {
		return nil, err
	}
	return g.connectTo(ctx, dev, opts...)
}

func (g *globals) connectTo(ctx context.Context, dev devices.Device, opts ...castprotocol.Option) (*castprotocol.Client, error) {
	c := g.newClient(opts...)
	if err := c.ConnectChromecast(ctx, dev); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
