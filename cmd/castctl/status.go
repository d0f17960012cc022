package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"go2tv.app/castlink/castprotocol"
	"go2tv.app/castlink/castprotocol/cast"
)

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show receiver status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			c, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			printDeviceStatus(c, c.GetDeviceStatus())
			return nil
		},
	}
}

func printDeviceStatus(c *castprotocol.Client, s *cast.DeviceStatus) {
	fmt.Printf("Device:  %s\n", c.Device())
	if s == nil {
		fmt.Println("Status:  unknown")
		return
	}

	muted := ""
	if s.Volume.Muted {
		muted = " (muted)"
	}
	fmt.Printf("Volume:  %.0f%%%s\n", s.Volume.Level*100, muted)
	fmt.Printf("Standby: %t\n", s.IsStandBy)

	if len(s.Applications) == 0 {
		fmt.Println("Apps:    none")
		return
	}
	for _, app := range s.Applications {
		var ns []string
		for _, n := range app.Namespaces {
			ns = append(ns, strings.TrimPrefix(n.Name, castprotocol.BaseNamespace+"."))
		}
		fmt.Printf("App:     %s (%s) session=%s transport=%s\n", app.DisplayName, app.AppID, app.SessionID, app.TransportID)
		if app.StatusText != "" {
			fmt.Printf("         %s\n", app.StatusText)
		}
		if len(ns) > 0 {
			fmt.Printf("         namespaces: %s\n", strings.Join(ns, ", "))
		}
	}
}

func printMediaStatus(s *cast.MediaStatus) {
	if s == nil {
		fmt.Println("Media:   none loaded")
		return
	}
	title := ""
	if s.Media != nil {
		title = s.Media.ContentID
		if s.Media.Metadata != nil && s.Media.Metadata.Title != "" {
			title = s.Media.Metadata.Title
		}
	}
	fmt.Printf("Media:   %s [%s] %.1fs session=%d\n", title, s.PlayerState, s.CurrentTime, s.MediaSessionID)
}
