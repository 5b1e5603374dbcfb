package events

import "time"

// RefreshStartedPayload is the payload for refresh_started events. The
// cycle ID is not known until the cycle completes, so started and failed
// events identify the cycle by root and timestamp only.
type RefreshStartedPayload struct {
	Root string `json:"root"`
}

// RefreshCompletedPayload is the payload for refresh_completed events.
//
// The four path slices are the diagnostic sets computed by the detector;
// connected clients typically only care whether any of them is non-empty
// (rebuild needed) or invalidate_all is set (full rebuild needed).
type RefreshCompletedPayload struct {
	CycleID         string    `json:"cycle_id"`
	Root            string    `json:"root"`
	Added           []string  `json:"added,omitempty"`
	Changed         []string  `json:"changed,omitempty"`
	Deleted         []string  `json:"deleted,omitempty"`
	Excluded        []string  `json:"excluded,omitempty"`
	ExcludedChanged bool      `json:"excluded_changed"`
	InvalidateAll   bool      `json:"invalidate_all"`
	ScannedFiles    int       `json:"scanned_files"`
	Watermark       time.Time `json:"watermark"`
	DurationMS      int64     `json:"duration_ms"`
}

// RefreshFailedPayload is the payload for refresh_failed events.
type RefreshFailedPayload struct {
	Root  string `json:"root"`
	Error string `json:"error"`
}

// HeartbeatPayload is the payload for heartbeat events.
type HeartbeatPayload struct {
	Seq           int64  `json:"seq"`
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// NewRefreshStartedEvent creates a new refresh_started event.
func NewRefreshStartedEvent(root string) *BaseEvent {
	return NewEvent(EventTypeRefreshStarted, RefreshStartedPayload{
		Root: root,
	})
}

// NewRefreshCompletedEvent creates a new refresh_completed event.
func NewRefreshCompletedEvent(payload RefreshCompletedPayload) *BaseEvent {
	return NewEvent(EventTypeRefreshCompleted, payload)
}

// NewRefreshFailedEvent creates a new refresh_failed event.
func NewRefreshFailedEvent(root string, err error) *BaseEvent {
	payload := RefreshFailedPayload{
		Root: root,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	return NewEvent(EventTypeRefreshFailed, payload)
}

// NewHeartbeatEvent creates a new heartbeat event.
func NewHeartbeatEvent(seq int64, status string, uptimeSeconds int64) *BaseEvent {
	return NewEvent(EventTypeHeartbeat, HeartbeatPayload{
		Seq:           seq,
		Status:        status,
		UptimeSeconds: uptimeSeconds,
	})
}
