package app

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/stokerbuild/stoker/internal/detect"
	"github.com/stokerbuild/stoker/internal/domain"
	"github.com/stokerbuild/stoker/internal/domain/events"
	"github.com/stokerbuild/stoker/internal/server"
)

// RefreshNow runs one refresh cycle and publishes its lifecycle events.
// Cycles are serialized: concurrent callers queue behind the running one.
// Implements server.Pipeline.
func (a *App) RefreshNow(ctx context.Context) (*detect.Result, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	a.setRefreshing(true)
	defer a.setRefreshing(false)

	a.publish(events.NewRefreshStartedEvent(a.cfg.Source.Root))

	result, err := a.detector.Refresh(ctx)
	if err != nil {
		a.recordFailure(err)
		a.publish(events.NewRefreshFailedEvent(a.cfg.Source.Root, err))
		return nil, err
	}

	// A persistence failure here only costs re-flagged paths after a
	// restart, so it does not fail the cycle.
	if err := a.states.SetWatermark(ctx, a.cfg.Source.Root, result.Watermark); err != nil {
		log.Warn().Err(err).Msg("Failed to persist watermark")
	}

	a.recordSuccess(ctx, result)
	a.publish(events.NewRefreshCompletedEvent(completedPayload(result)))

	return result, nil
}

// Entries returns the registry contents sorted by path. Implements
// server.Pipeline.
func (a *App) Entries(ctx context.Context) ([]domain.Entry, error) {
	byPath, err := a.registry.AllEntries(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.Entry, 0, len(byPath))
	for _, entry := range byPath {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	return entries, nil
}

// Info reports pipeline state for status responses and heartbeats.
// Implements server.Pipeline.
func (a *App) Info() server.PipelineInfo {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()

	state := StateIdle
	switch {
	case a.refreshing:
		state = StateRefreshing
	case a.watching:
		state = StateWatching
	}

	return server.PipelineInfo{
		State:        state,
		Root:         a.cfg.Source.Root,
		Driver:       a.cfg.Registry.Driver,
		Watermark:    a.watermark,
		EntryCount:   a.entryCount,
		RefreshCount: a.refreshCount,
		LastCycleID:  a.lastCycleID,
		LastError:    a.lastError,
	}
}

func (a *App) recordSuccess(ctx context.Context, result *detect.Result) {
	count := -1
	if entries, err := a.registry.AllEntries(ctx); err == nil {
		count = len(entries)
	}

	a.stateMu.Lock()
	a.refreshCount++
	a.lastCycleID = result.CycleID
	a.lastError = ""
	a.watermark = result.Watermark
	if count >= 0 {
		a.entryCount = count
	}
	a.stateMu.Unlock()
}

func (a *App) recordFailure(err error) {
	a.stateMu.Lock()
	a.refreshCount++
	a.lastError = err.Error()
	a.stateMu.Unlock()
}

// publish forwards an event to the hub when it is running. One-shot modes
// never start the hub, so their cycles produce no events.
func (a *App) publish(event events.Event) {
	if a.hub != nil && a.hub.IsRunning() {
		a.hub.Publish(event)
	}
}

func completedPayload(result *detect.Result) events.RefreshCompletedPayload {
	return events.RefreshCompletedPayload{
		CycleID:         result.CycleID,
		Root:            result.Root,
		Added:           result.Added,
		Changed:         result.Changed,
		Deleted:         result.Deleted,
		Excluded:        result.Excluded,
		ExcludedChanged: result.ExcludedChanged,
		InvalidateAll:   result.InvalidateAll,
		ScannedFiles:    result.ScannedFiles,
		Watermark:       result.Watermark,
		DurationMS:      result.Duration.Milliseconds(),
	}
}

var _ server.Pipeline = (*App)(nil)
