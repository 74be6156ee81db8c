package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/tapedeck/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices; loopback candidates are marked",
	RunE: func(cmd *cobra.Command, _ []string) error {
		devices, err := audio.ListDevices(cfg.LoopbackTokens)
		if err != nil {
			return err
		}
		printDevices(cmd, devices)
		return nil
	},
}

func printDevices(cmd *cobra.Command, devices []audio.DeviceInfo) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tHOST API\tCHANNELS\tRATE\tLOOPBACK")
	for _, d := range devices {
		mark := ""
		if d.Loopback {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f\t%s\n", d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate, mark)
	}
	_ = tw.Flush()
}
