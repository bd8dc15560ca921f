package ticker

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CronTicker implements the Ticker interface using cron expressions.
// Used for the maintenance window, not the slideshow interval.
type CronTicker struct {
	expression string
	schedule   cron.Schedule

	ch       chan Tick
	stopCh   chan struct{}
	running  bool
	location *time.Location
	mu       sync.RWMutex
}

// NewCronTicker creates a new cron-based ticker
func NewCronTicker(expression, timezone string) (*CronTicker, error) {
	if timezone == "" {
		timezone = "UTC"
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	// Parse cron expression with standard fields
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %s: %w", expression, err)
	}

	return &CronTicker{
		expression: expression,
		schedule:   schedule,
		location:   loc,
		ch:         make(chan Tick, 10),
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins the cron schedule
func (t *CronTicker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return nil
	}

	t.running = true
	go t.run()
	return nil
}

// run is the main ticker loop
func (t *CronTicker) run() {
	for {
		now := time.Now().In(t.location)
		next := t.schedule.Next(now)

		timer := time.NewTimer(next.Sub(now))

		select {
		case <-timer.C:
			tick := Tick{
				ScheduledTime: next,
				ActualTime:    time.Now().In(t.location),
			}

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
func (t *CronTicker) Channel() <-chan Tick {
	return t.ch
}

// Stop halts the ticker
func (t *CronTicker) Stop() error {
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
func (t *CronTicker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// NextRun calculates the next scheduled run time
func (t *CronTicker) NextRun() (*time.Time, error) {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()

	if !running {
		return nil, nil
	}

	next := t.schedule.Next(time.Now().In(t.location))
	return &next, nil
}
