package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gen2brain/adbvol/alsa"
	"github.com/gen2brain/adbvol/hostaudio"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List ALSA sound cards and their PCM devices",
	Long: `List ALSA sound cards and their PCM devices.

With --controls the mixer controls of every card are listed too, and the
controls adbvol would use are marked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cards, err := alsa.EnumerateCards()
		if err != nil {
			return err
		}

		if len(cards) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sound cards found.")

			return nil
		}

		showControls, _ := cmd.Flags().GetBool("controls")

		for _, c := range cards {
			fmt.Fprint(cmd.OutOrStdout(), c.String())

			if showControls {
				if err := printControls(cmd, c.ID, cfg.Host.Tag); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "  cannot read controls: %v\n", err)
				}
			}
		}

		return nil
	},
}

func init() {
	cardsCmd.Flags().Bool("controls", false, "list mixer controls")
}

func printControls(cmd *cobra.Command, id int, tag string) error {
	ctl, err := alsa.OpenControl(uint(id))
	if err != nil {
		return err
	}
	defer ctl.Close()

	elems, err := ctl.Elems()
	if err != nil {
		return err
	}

	ours := map[string]bool{
		hostaudio.VolumeControlName(tag): true,
		hostaudio.SwitchControlName(tag): true,
	}

	for _, e := range elems {
		mark := " "
		if e.Iface == alsa.SNDRV_CTL_ELEM_IFACE_MIXER && ours[e.Name] {
			mark = "*"
		}

		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", mark, e)
	}

	return nil
}
