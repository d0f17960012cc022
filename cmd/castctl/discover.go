package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func discoverCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List Cast devices on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			devs, err := g.locator().FindDevices(ctx, g.conf.DiscoveryTimeout)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "#\tNAME\tADDRESS\tMODEL\tAUDIO ONLY")
			for i, d := range devs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", i+1, d.Name, d.Address(), d.Model, d.IsAudioOnly)
			}
			return w.Flush()
		},
	}
	return cmd
}
