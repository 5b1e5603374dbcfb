// Package app wires the stoker components together: pattern matching,
// tree scanning, the source registry, the change detector, the event hub,
// and the HTTP/WebSocket server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stokerbuild/stoker/internal/adapters/classify"
	"github.com/stokerbuild/stoker/internal/adapters/match"
	"github.com/stokerbuild/stoker/internal/adapters/registry"
	"github.com/stokerbuild/stoker/internal/adapters/scan"
	"github.com/stokerbuild/stoker/internal/config"
	"github.com/stokerbuild/stoker/internal/detect"
	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/domain/ports"
	"github.com/stokerbuild/stoker/internal/hub"
	"github.com/stokerbuild/stoker/internal/pairing"
	"github.com/stokerbuild/stoker/internal/server"
)

// Pipeline states reported in status responses and heartbeats.
const (
	StateIdle       = "idle"
	StateRefreshing = "refreshing"
	StateWatching   = "watching"
)

// App orchestrates the refresh pipeline and its serving surfaces.
type App struct {
	cfg     *config.Config
	version string

	hub      *hub.Hub
	detector *detect.Detector
	registry ports.SourceRegistry
	states   ports.ScanStateStore
	server   *server.Server

	closeRegistry func() error

	// refreshMu serializes refresh cycles across all triggers: the watch
	// loop, the HTTP API, and WebSocket commands.
	refreshMu sync.Mutex

	stateMu      sync.RWMutex
	watching     bool
	refreshing   bool
	refreshCount int64
	lastCycleID  string
	lastError    string
	entryCount   int
	watermark    time.Time

	startTime time.Time

	mu      sync.RWMutex
	running bool
}

// New builds the pipeline from configuration. The caller owns the returned
// App and must Close it to release the registry.
func New(cfg *config.Config, version string) (*App, error) {
	a := &App{
		cfg:       cfg,
		version:   version,
		hub:       hub.New(),
		startTime: time.Now(),
		watermark: time.Unix(0, 0).UTC(),
	}

	matcher := match.New()
	classifier := classify.New(
		matcher,
		cfg.Source.ExcludePatterns,
		cfg.Source.IgnorePatterns,
		cfg.Source.RawPatterns,
	)
	if bad := classifier.InvalidPatterns(); len(bad) > 0 {
		log.Warn().Strs("patterns", bad).Msg("Ignoring invalid glob patterns")
	}

	switch cfg.Registry.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Registry.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
		store, err := registry.OpenSQLite(cfg.Registry.Path)
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
		a.registry = store
		a.states = store
		a.closeRegistry = store.Close

	case config.DriverMemory:
		store := registry.NewMemory()
		a.registry = store
		a.states = store

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRegistryDriver, cfg.Registry.Driver)
	}

	opts := []detect.Option{detect.WithGranularity(cfg.Source.Granularity())}

	mark, err := a.states.Watermark(context.Background(), cfg.Source.Root)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load stored watermark, treating tree as never scanned")
	} else if !mark.IsZero() {
		opts = append(opts, detect.WithWatermark(mark))
		a.watermark = mark
		log.Debug().Time("watermark", mark).Msg("Resuming from stored watermark")
	}

	a.detector = detect.New(cfg.Source.Root, classifier, scan.New(), a.registry, opts...)

	if entries, err := a.registry.AllEntries(context.Background()); err == nil {
		a.stateMu.Lock()
		a.entryCount = len(entries)
		a.stateMu.Unlock()
	}

	return a, nil
}

// Serve runs the full daemon: the event hub, the HTTP/WebSocket server,
// and the periodic refresh loop. It blocks until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("start event hub: %w", err)
	}

	logSub := hub.NewLogSubscriber("internal-logger", func(event events.Event) {
		log.Trace().
			Str("event_type", string(event.Type())).
			Time("timestamp", event.Timestamp()).
			Msg("Event broadcast")
	})
	a.hub.Subscribe(logSub)

	a.server = server.New(a.cfg.Server.Host, a.cfg.Server.Port, a.version, a, a.hub)
	if a.cfg.Server.ExternalURL != "" {
		a.server.SetExternalURL(a.cfg.Server.ExternalURL)
		log.Info().Str("external_url", a.cfg.Server.ExternalURL).Msg("Using external URL for connection info")
	}

	if err := a.server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	a.printConnectionInfo()

	go func() {
		if err := a.Watch(ctx); err != nil {
			log.Error().Err(err).Msg("Watch loop stopped")
		}
	}()

	<-ctx.Done()

	return a.shutdown()
}

// Watch runs refresh cycles at the configured interval until ctx is
// cancelled. The first cycle runs immediately.
func (a *App) Watch(ctx context.Context) error {
	a.setWatching(true)
	defer a.setWatching(false)

	interval := a.cfg.Watch.Interval()
	log.Info().
		Str("root", a.cfg.Source.Root).
		Dur("interval", interval).
		Msg("Watching for changes")

	a.runCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.runCycle(ctx)
		}
	}
}

// runCycle executes one refresh and logs the outcome. Errors are logged
// rather than returned so a transient failure does not stop the loop.
func (a *App) runCycle(ctx context.Context) {
	result, err := a.RefreshNow(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Refresh cycle failed")
		}
		return
	}

	if result.Dirty() {
		log.Info().
			Str("cycle_id", result.CycleID).
			Int("added", len(result.Added)).
			Int("changed", len(result.Changed)).
			Int("deleted", len(result.Deleted)).
			Bool("invalidate_all", result.InvalidateAll).
			Msg("Changes detected")
	}
}

// shutdown stops the serving surfaces and releases the registry.
func (a *App) shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}
	a.running = false

	log.Info().Msg("Shutting down")

	// Give in-flight events time to reach clients.
	time.Sleep(100 * time.Millisecond)

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.server.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping server")
		}
		cancel()
	}

	if err := a.hub.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping event hub")
	}

	return a.Close()
}

// Close releases the registry. Safe to call more than once.
func (a *App) Close() error {
	if a.closeRegistry == nil {
		return nil
	}
	closeFn := a.closeRegistry
	a.closeRegistry = nil
	return closeFn()
}

// UptimeSeconds returns how long the app has been running.
func (a *App) UptimeSeconds() int64 {
	return int64(time.Since(a.startTime).Seconds())
}

func (a *App) setWatching(v bool) {
	a.stateMu.Lock()
	a.watching = v
	a.stateMu.Unlock()
}

func (a *App) setRefreshing(v bool) {
	a.stateMu.Lock()
	a.refreshing = v
	a.stateMu.Unlock()
}

// printConnectionInfo prints connection information to the console.
func (a *App) printConnectionInfo() {
	rootName := filepath.Base(a.cfg.Source.Root)

	gen := pairing.NewGenerator(a.cfg.Server.Host, a.cfg.Server.Port, a.server.ServerID(), rootName)
	if a.cfg.Server.ExternalURL != "" {
		gen.SetExternalURL(a.cfg.Server.ExternalURL)
	}
	info := gen.Info()

	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       stoker ready                         ║")
	fmt.Println("╠════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  Source:     %-46s ║\n", truncateString(a.cfg.Source.Root, 46))
	fmt.Printf("║  Registry:   %-46s ║\n", a.cfg.Registry.Driver)
	fmt.Println("╠════════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API:        %-46s ║\n", truncateString(info.HTTP, 46))
	fmt.Printf("║  WebSocket:  %-46s ║\n", truncateString(info.WebSocket, 46))
	fmt.Println("╚════════════════════════════════════════════════════════════╝")
	fmt.Println()

	if a.cfg.Server.ShowQR {
		gen.PrintToTerminal()
	}
}

// truncateString truncates a string to maxLen characters.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
