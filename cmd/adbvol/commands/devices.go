package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gen2brain/adbvol/adb"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List devices attached over adb",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Device.CommandTimeout+5*time.Second)
		defer cancel()

		devices, err := adb.NewExecBridge(cfg.Device.Path).Devices(ctx)
		if err != nil {
			return err
		}

		if len(devices) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No devices attached.")

			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERIAL\tSTATE\tMODEL\tSELECTED")

		for _, d := range devices {
			selected := ""
			if d.Serial == cfg.Device.Serial {
				selected = "*"
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Serial, d.State, d.Attrs["model"], selected)
		}

		return w.Flush()
	},
}
