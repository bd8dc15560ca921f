package maintenance

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/ahmed-com/inkframe/ticker"
)

// DefaultRefreshSchedule redraws the panel in the small hours, clearing any
// ghosting the e-ink accumulates over a day of partial updates.
const DefaultRefreshSchedule = "30 3 * * *"

// Refresher redraws whatever is currently on the panel.
type Refresher interface {
	Rerender(ctx context.Context) bool
}

// NightlyRefresh drives a Refresher from a cron schedule.
type NightlyRefresh struct {
	refresher Refresher
	tick      ticker.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewNightlyRefresh creates the refresh loop. An empty schedule uses
// DefaultRefreshSchedule; timezone follows ticker.NewCronTicker semantics.
func NewNightlyRefresh(refresher Refresher, schedule, timezone string) (*NightlyRefresh, error) {
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}
	tick, err := ticker.NewCronTicker(schedule, timezone)
	if err != nil {
		return nil, err
	}

	return &NightlyRefresh{
		refresher: refresher,
		tick:      tick,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins the refresh loop.
func (n *NightlyRefresh) Start(ctx context.Context) error {
	if err := n.tick.Start(); err != nil {
		return err
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-n.stopCh:
				return
			case _, ok := <-n.tick.Channel():
				if !ok {
					return
				}
				n.fire(ctx)
			}
		}
	}()
	return nil
}

func (n *NightlyRefresh) fire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("nightly refresh panicked: %v", r)
		}
	}()

	if !n.refresher.Rerender(ctx) {
		klog.Warningf("nightly refresh did not redraw")
		return
	}
	klog.Infof("nightly refresh redrew the panel")
}

// NextRun reports when the next refresh fires.
func (n *NightlyRefresh) NextRun() (*time.Time, error) {
	return n.tick.NextRun()
}

// Stop halts the loop and the underlying ticker.
func (n *NightlyRefresh) Stop() {
	close(n.stopCh)
	n.tick.Stop()
	n.wg.Wait()
}
