package tui

import (
	"time"

	"clipfarm/production"
)

// StatusUpdateMsg carries the latest snapshot of the watched production
type StatusUpdateMsg struct {
	Snapshot *production.Snapshot
	Err      error
}

// TickMsg is sent periodically to trigger polling
type TickMsg struct {
	Time time.Time
}

// ActionMsg reports the outcome of a user triggered request
type ActionMsg struct {
	Action string
	ID     string
	Err    error
}
