package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go2tv.app/castlink/castprotocol/cast"
)

func volumeCmd(g *globals) *cobra.Command {
	var (
		level float64
		mute  bool
	)

	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Set the receiver volume or mute state",
		Long: `Set the receiver volume level (0.0 to 1.0) or mute state.

Examples:
  castctl volume --device 192.168.1.20 --level 0.4
  castctl volume --device 192.168.1.20 --mute
  castctl volume --device 192.168.1.20 --mute=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			levelSet := cmd.Flags().Changed("level")
			muteSet := cmd.Flags().Changed("mute")
			if !levelSet && !muteSet {
				return fmt.Errorf("one of --level or --mute is required")
			}

			ctx, cancel := signalContext()
			defer cancel()

			c, err := g.connect(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			var status *cast.DeviceStatus
			if levelSet {
				if status, err = c.SetVolume(ctx, level); err != nil {
					return err
				}
			}
			if muteSet {
				if status, err = c.SetMuted(ctx, mute); err != nil {
					return err
				}
			}
			printDeviceStatus(c, status)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&level, "level", "l", 0, "Volume level between 0.0 and 1.0")
	cmd.Flags().BoolVarP(&mute, "mute", "m", false, "Mute (or --mute=false to unmute)")

	return cmd
}
