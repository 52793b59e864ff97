package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gen2brain/adbvol/config"
)

var (
	// Global flags
	configPath string
	verbose    bool
	quiet      bool
	serial     string
	card       int
	cardName   string
	player     string

	logLevel = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:   "adbvol",
	Short: "Mirror a host volume control onto an Android device",
	Long: `adbvol - sync a host mixer control with an Android device's media volume.

adbvol registers "<tag> Playback Volume" and "<tag> Playback Switch" controls
on an ALSA sound card and forwards every change to the device over adb.
Desktop volume applets, alsamixer and amixer can all drive the phone.

Configuration is read from the first of:
  ./adbvol.yaml
  ~/.config/adbvol/config.yaml
  /etc/adbvol/config.yaml

Send SIGUSR1 to toggle debug logging while running.

Examples:
  # Run against the only attached device
  adbvol run

  # Pick a device and a sound card
  adbvol --serial emulator-5554 --card-name Loopback`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE:          runBridge,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "configuration file (default: first existing search path)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.BoolVarP(&quiet, "quiet", "q", false, "log errors only")
	flags.StringVarP(&serial, "serial", "s", "", "device serial, required when several devices are attached")
	flags.IntVar(&card, "card", -1, "ALSA card number (default: from config)")
	flags.StringVar(&cardName, "card-name", "", "ALSA card id or description to search for")
	flags.StringVar(&player, "player", "", `external player for the silence burst, e.g. "aplay -q {}"`)

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(runCmd, devicesCmd, cardsCmd, configCmd, versionCmd)
}

// loadConfig reads the configuration file and applies the command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("serial") {
		cfg.Device.Serial = serial
	}

	if flags.Changed("card") {
		cfg.Host.Card = card
	}

	if flags.Changed("card-name") {
		cfg.Host.CardName = cardName
		if !flags.Changed("card") {
			cfg.Host.Card = -1
		}
	}

	if flags.Changed("player") {
		cfg.Host.Player = strings.Fields(player)
	}

	switch {
	case verbose:
		cfg.LogLevel = "debug"
	case quiet:
		cfg.LogLevel = "error"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return cfg, nil
}

// newLogger returns a text logger on w whose level can be changed at run time.
func newLogger(w io.Writer, level string) *slog.Logger {
	logLevel.Set(parseLevel(level))

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}

	return l
}

func stderrLogger(level string) *slog.Logger {
	return newLogger(os.Stderr, level)
}
