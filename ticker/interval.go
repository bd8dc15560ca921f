package ticker

import (
	"fmt"
	"sync"
	"time"
)

// IntervalTicker implements the Ticker interface with a fixed interval.
// The first fire happens one full interval after Start.
type IntervalTicker struct {
	interval time.Duration

	ch      chan Tick
	stopCh  chan struct{}
	running bool
	nextAt  time.Time
	mu      sync.RWMutex
}

// NewIntervalTicker creates a new fixed-interval ticker
func NewIntervalTicker(interval time.Duration) (*IntervalTicker, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}

	return &IntervalTicker{
		interval: interval,
		ch:       make(chan Tick, 10),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins the interval schedule
func (t *IntervalTicker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	t.running = true
	t.nextAt = time.Now().Add(t.interval)
	go t.run()
	return nil
}

// run is the main ticker loop
func (t *IntervalTicker) run() {
	for {
		t.mu.RLock()
		next := t.nextAt
		t.mu.RUnlock()

		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			tick := Tick{
				ScheduledTime: next,
				ActualTime:    time.Now(),
			}

			t.mu.Lock()
			t.nextAt = next.Add(t.interval)
			t.mu.Unlock()

			// Non-blocking send
			select {
			case t.ch <- tick:
			default:
				// Channel full, skip this tick (prevents blocking)
			}
		case <-t.stopCh:
			timer.Stop()
			return
		}
	}
}

// Channel returns the tick channel
func (t *IntervalTicker) Channel() <-chan Tick {
	return t.ch
}

// Stop halts the ticker
func (t *IntervalTicker) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}

	close(t.stopCh)
	t.running = false
	return nil
}

// IsRunning reports whether the ticker loop is live
func (t *IntervalTicker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// NextRun returns the next scheduled fire time
func (t *IntervalTicker) NextRun() (*time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.running {
		return nil, nil
	}

	next := t.nextAt
	return &next, nil
}

// Interval returns the configured interval
func (t *IntervalTicker) Interval() time.Duration {
	return t.interval
}
