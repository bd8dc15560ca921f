package rotation

import (
	"context"
	"sync"
	"time"

	"k8s.io/klog/v2"

	inkframe "github.com/ahmed-com/inkframe"
	"github.com/ahmed-com/inkframe/ticker"
)

// Advancer is the slice of the engine the timer drives.
type Advancer interface {
	Advance(ctx context.Context) bool
}

// TimerController owns the single recurring slideshow job. Start replaces
// any prior job, so repeated calls are idempotent: at most one periodic job
// is live at any time.
type TimerController struct {
	engine Advancer

	mu       sync.Mutex
	tick     ticker.Ticker
	interval int // minutes; 0 when stopped
	stopCh   chan struct{}
	wg       sync.WaitGroup

	newTicker func(d time.Duration) (ticker.Ticker, error)
}

// NewTimerController creates a timer controller driving the given engine.
func NewTimerController(engine Advancer) *TimerController {
	return &TimerController{
		engine: engine,
		newTicker: func(d time.Duration) (ticker.Ticker, error) {
			return ticker.NewIntervalTicker(d)
		},
	}
}

// Start installs the recurring job at the given interval, replacing any
// prior job. Intervals outside the whitelist are coerced to the default.
// One advance fires synchronously so the panel updates immediately rather
// than waiting a full interval.
func (t *TimerController) Start(intervalMinutes int) bool {
	if !inkframe.ValidInterval(intervalMinutes) {
		klog.Warningf("interval %dmin not an allowed option, using %dmin", intervalMinutes, inkframe.DefaultIntervalMinutes)
		intervalMinutes = inkframe.DefaultIntervalMinutes
	}

	t.mu.Lock()
	t.removeLocked()

	tk, err := t.newTicker(time.Duration(intervalMinutes) * time.Minute)
	if err != nil {
		t.mu.Unlock()
		klog.Errorf("start slideshow: %v", err)
		return false
	}
	if err := tk.Start(); err != nil {
		t.mu.Unlock()
		klog.Errorf("start slideshow ticker: %v", err)
		return false
	}

	stopCh := make(chan struct{})
	t.tick = tk
	t.interval = intervalMinutes
	t.stopCh = stopCh
	t.wg.Add(1)
	go t.watch(tk, stopCh)
	t.mu.Unlock()

	klog.Infof("started slideshow with %dmin interval", intervalMinutes)
	t.fire(context.Background())
	return true
}

// Stop removes the job if present and reports whether one existed.
// Not finding a job to remove is not an error.
func (t *TimerController) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	existed := t.removeLocked()
	if existed {
		klog.Infof("stopped slideshow")
	}
	return existed
}

// removeLocked tears down the live job, if any. Caller holds t.mu.
func (t *TimerController) removeLocked() bool {
	if t.tick == nil {
		return false
	}
	t.tick.Stop()
	close(t.stopCh)
	t.tick = nil
	t.stopCh = nil
	t.interval = 0
	return true
}

// watch forwards ticks into the engine until the job is removed.
func (t *TimerController) watch(tk ticker.Ticker, stopCh chan struct{}) {
	defer t.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case tick := <-tk.Channel():
			klog.V(1).Infof("cycling to next photo (scheduled %s)", tick.ScheduledTime.Format(time.RFC3339))
			t.fire(context.Background())
		}
	}
}

// fire runs one advance. A panic inside the callback is caught and logged;
// it must never end the timer's ability to fire again.
func (t *TimerController) fire(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("slideshow advance panicked: %v", r)
		}
	}()

	if !t.engine.Advance(ctx) {
		klog.V(1).Infof("slideshow advance skipped: no photos")
	}
}

// Running reports whether a slideshow job is installed.
func (t *TimerController) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tick != nil
}

// Interval returns the effective interval in minutes, 0 when stopped.
func (t *TimerController) Interval() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interval
}

// Status returns whether a job is installed and, if so, its next fire time
// queried live from the ticker.
func (t *TimerController) Status() (bool, *time.Time) {
	t.mu.Lock()
	tk := t.tick
	t.mu.Unlock()

	if tk == nil {
		return false, nil
	}

	next, err := tk.NextRun()
	if err != nil {
		klog.Errorf("slideshow next run: %v", err)
		return true, nil
	}
	return true, next
}

// Shutdown removes the job and waits for the watch loop to exit.
func (t *TimerController) Shutdown() {
	t.Stop()
	t.wg.Wait()
}
