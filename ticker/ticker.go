package ticker

import (
	"time"
)

// Tick carries timing info for a single fire.
type Tick struct {
	ScheduledTime time.Time
	ActualTime    time.Time
}

// Ticker defines the periodic-scheduling mechanism interface.
// Implementations emit on Channel and never block on a slow consumer:
// if the channel is full the tick is skipped.
type Ticker interface {
	// Channel returns a read-only channel that emits ticks
	Channel() <-chan Tick

	Start() error
	Stop() error

	// IsRunning reports whether the ticker loop is live
	IsRunning() bool

	// NextRun returns the next scheduled fire time, nil if not running
	NextRun() (*time.Time, error)
}
