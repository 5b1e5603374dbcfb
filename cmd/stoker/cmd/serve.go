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
	serveRoot        string
	servePort        int
	serveExternalURL string
	serveNoQR        bool
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stoker daemon",
	Long: `Run the full stoker daemon: periodic refresh cycles plus the HTTP
API and WebSocket event stream.

Connected clients receive refresh_started, refresh_completed and
refresh_failed events in real time, and can trigger cycles on demand.

Example:
  stoker serve                         # Watch the current directory
  stoker serve --root /path/to/site
  stoker serve --port 8766             # Custom port

Tunnels:
  When exposing the daemon through a tunnel or a forwarded port, pass the
  public URL so connection info and the QR code point at it:

  stoker serve --external-url https://your-tunnel.example.com`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "source tree to watch (default: current directory)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port for HTTP and WebSocket (default: 8766)")
	serveCmd.Flags().StringVar(&serveExternalURL, "external-url", "", "public URL clients connect through (e.g. https://tunnel.example.com)")
	serveCmd.Flags().BoolVar(&serveNoQR, "no-qr", false, "do not print the pairing QR code")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyOverrides(cfg, serveRoot, servePort, serveExternalURL); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if serveNoQR {
		cfg.Server.ShowQR = false
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("root", cfg.Source.Root).
		Int("port", cfg.Server.Port).
		Msg("Starting stoker")

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := application.Serve(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("stoker stopped")
	return nil
}
