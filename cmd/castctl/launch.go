package main

import (
	"github.com/spf13/cobra"
)

func launchCmd(g *globals) *cobra.Command {
	var (
		appID string
		join  bool
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Launch or join an application",
		Long: `Launch an application on the device.

With --join (the default) a running instance of the application is joined
instead of relaunched.

Examples:
  castctl launch --device 192.168.1.20
  castctl launch --device 192.168.1.20 --app 233637DE --join=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if appID == "" {
				appID = g.conf.DefaultAppID
			}

			c, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			status, err := c.LaunchApplication(ctx, appID, join)
			if err != nil {
				return err
			}
			printDeviceStatus(c, status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&appID, "app", "a", "", "Application id (default from settings)")
	cmd.Flags().BoolVar(&join, "join", true, "Join the application if it already runs")

	return cmd
}

func stopCmd(g *globals) *cobra.Command {
	var appID string

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running application",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if appID == "" {
				appID = g.conf.DefaultAppID
			}

			c, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if _, err := c.LaunchApplication(ctx, appID, true); err != nil {
				return err
			}
			status, err := c.StopApplication(ctx)
			if err != nil {
				return err
			}
			printDeviceStatus(c, status)
			return nil
		},
	}

	cmd.Flags().StringVarP(&appID, "app", "a", "", "Application id (default from settings)")

	return cmd
}
