package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gen2brain/adbvol/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML.

The output merges the defaults, the configuration file and the command line
flags, and can be used as a starting point for a configuration file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if write, _ := cmd.Flags().GetString("write"); write != "" {
			if err := config.Save(write, cfg); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Wrote", write)

			return nil
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}

		_, err = cmd.OutOrStdout().Write(data)

		return err
	},
}

func init() {
	configCmd.Flags().String("write", "", "write the configuration to this file instead of printing it")
}
