package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"go2tv.app/castlink/castprotocol"
	"go2tv.app/castlink/castprotocol/cast"
)

func watchCmd(g *globals) *cobra.Command {
	var (
		metricsAddr string
		appID       string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and print status changes",
		Long: `Stay connected to the device and print device and media status changes
until interrupted or the device goes away.

With --metrics (or metrics_addr in the settings file) Prometheus metrics are
served on /metrics.

Examples:
  castctl watch --device 192.168.1.20
  castctl watch --device 192.168.1.20 --app CC1AD845 --metrics 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr == "" {
				metricsAddr = g.conf.MetricsAddr
			}

			ctx, cancel := signalContext()
			defer cancel()

			var opts []castprotocol.Option
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector())
				opts = append(opts, castprotocol.WithMetrics(reg))

				srv := serveMetrics(metricsAddr, reg)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			c, err := g.connect(ctx, opts...)
			if err != nil {
				return err
			}
			defer c.Close()

			sub := c.Subscribe()
			defer c.Unsubscribe(sub)

			printDeviceStatus(c, c.GetDeviceStatus())
			if appID != "" {
				if _, err := c.LaunchApplication(ctx, appID, true); err != nil {
					return err
				}
				printMediaStatus(c.GetMediaStatus())
			}

			return watchEvents(ctx, c, sub)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVarP(&appID, "app", "a", "", "Join or launch this application and follow its media")

	return cmd
}

func watchEvents(ctx context.Context, c *castprotocol.Client, sub *castprotocol.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				return nil
			}
			stamp := ev.At.Format(time.TimeOnly)
			switch ev.Topic {
			case castprotocol.TopicDeviceStatus:
				fmt.Printf("--- %s device status\n", stamp)
				s, _ := ev.Status.(*cast.DeviceStatus)
				printDeviceStatus(c, s)
			case castprotocol.TopicMediaStatus:
				fmt.Printf("--- %s media status\n", stamp)
				s, _ := ev.Status.(*cast.MediaStatus)
				printMediaStatus(s)
			case castprotocol.TopicDisconnected:
				fmt.Printf("--- %s disconnected\n", stamp)
				if ev.Err != nil {
					return fmt.Errorf("connection lost: %w", ev.Err)
				}
				return nil
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("metrics server: %s\n", err)
		}
	}()
	return srv
}
