package commands

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gen2brain/adbvol"
	"github.com/gen2brain/adbvol/adb"
	"github.com/gen2brain/adbvol/hostaudio"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the volume bridge until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runBridge,
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := stderrLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go toggleDebug(ctx, logger)

	bridge := adb.NewExecBridge(cfg.Device.Path)
	if version, err := bridge.Version(ctx); err != nil {
		logger.Warn("adb is not usable yet, will keep retrying", "path", cfg.Device.Path, "error", err)
	} else {
		logger.Info("Using adb", "path", cfg.Device.Path, "version", version)
	}

	client, err := adb.NewClient(bridge, cfg.Device, logger.With("component", "adb"))
	if err != nil {
		return err
	}

	host := hostaudio.NewALSAHost(cfg.Host, logger.With("component", "host"))
	if n, err := host.Card(); err == nil {
		logger.Info("Using sound card", "card", n)
	}

	monitor := hostaudio.NewMonitor(host, cfg.Host.Tag,
		hostaudio.WithMonitorLogger(logger.With("component", "monitor")),
		hostaudio.WithSilence(cfg.Host.Silence),
	)

	status := newStatusPrinter(cmd.ErrOrStderr(), parseLevel(cfg.LogLevel) >= slog.LevelError)

	controller := adbvol.NewController(monitor, client, cfg.Sync,
		adbvol.WithLogger(logger.With("component", "sync")),
		adbvol.WithStatusFunc(status.print),
	)

	err = controller.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// toggleDebug flips between debug and the configured level on SIGUSR1.
func toggleDebug(ctx context.Context, logger *slog.Logger) {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	defer signal.Stop(usr1)

	base := logLevel.Level()

	for {
		select {
		case <-ctx.Done():
			return
		case <-usr1:
			if logLevel.Level() == slog.LevelDebug {
				logLevel.Set(base)
			} else {
				logLevel.Set(slog.LevelDebug)
			}

			logger.Info("Log level changed", "level", logLevel.Level().String())
		}
	}
}
