package commands

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"

	"github.com/gen2brain/adbvol/adb"
)

// Version is set at build time with -ldflags "-X ...commands.Version=v1.2.3".
var Version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), "adbvol", version())

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		adbVersion, err := adb.NewExecBridge(cfg.Device.Path).Version(ctx)
		if err != nil {
			adbVersion = "unavailable: " + err.Error()
		}

		fmt.Fprintln(cmd.OutOrStdout(), adbVersion)

		return nil
	},
}

func version() string {
	if Version != "" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "(devel)"
}
