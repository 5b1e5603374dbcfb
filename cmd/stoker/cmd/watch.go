package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stokerbuild/stoker/internal/app"
)

var (
	watchRoot     string
	watchInterval int
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the source tree for changes",
	Long: `Poll the source tree at a fixed interval, running a refresh cycle
each time and logging any changes. Unlike 'stoker serve', no API server
is started.

Example:
  stoker watch
  stoker watch --root /path/to/site --interval-ms 500`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRoot, "root", "", "source tree to watch (default: current directory)")
	watchCmd.Flags().IntVar(&watchInterval, "interval-ms", 0, "delay between refresh cycles in milliseconds (default: 2000)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if watchInterval != 0 {
		cfg.Watch.IntervalMS = watchInterval
	}
	if err := applyOverrides(cfg, watchRoot, 0, ""); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return application.Watch(ctx)
}
