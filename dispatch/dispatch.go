// Package dispatch serializes manual trigger events (button presses, HTTP
// calls) into the rotation engine. A bounded queue with a single consumer
// replaces thread-per-press handling: rapid repeated input drops commands
// instead of piling up goroutines.
package dispatch

import (
	"context"
	"sync"

	"k8s.io/klog/v2"

	inkframe "github.com/ahmed-com/inkframe"
	"github.com/ahmed-com/inkframe/metrics"
)

// Engine is the slice of the rotation engine the dispatcher drives.
type Engine interface {
	Advance(ctx context.Context) bool
	Retreat(ctx context.Context) bool
	JumpTo(ctx context.Context, photoID string) bool
}

// Hooks are the non-rotation command handlers. Nil hooks make the
// corresponding command a no-op.
type Hooks struct {
	ShowInfo   func(ctx context.Context)
	EnterSetup func(ctx context.Context)
}

// Queue is a bounded single-consumer command queue.
type Queue struct {
	engine  Engine
	hooks   Hooks
	metrics metrics.Collector

	cmds    chan inkframe.Command
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// NewQueue creates a command queue with the given capacity.
func NewQueue(engine Engine, hooks Hooks, capacity int) *Queue {
	if capacity <= 0 {
		capacity = 8 // default
	}

	return &Queue{
		engine:  engine,
		hooks:   hooks,
		metrics: metrics.NewNoOpCollector(),
		cmds:    make(chan inkframe.Command, capacity),
		stopCh:  make(chan struct{}),
	}
}

// SetMetrics sets the metrics collector for this queue
func (q *Queue) SetMetrics(m metrics.Collector) {
	q.metrics = m
}

// Start starts the consumer goroutine
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return
	}

	q.started = true
	q.wg.Add(1)
	go q.worker()
}

// worker processes commands serially
func (q *Queue) worker() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		case cmd := <-q.cmds:
			q.handle(cmd)
		}
	}
}

// handle executes one command. A panic in a handler is caught so one bad
// command cannot stop the consumer.
func (q *Queue) handle(cmd inkframe.Command) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("command %s panicked: %v", cmd.Kind, r)
		}
	}()

	ctx := context.Background()

	switch cmd.Kind {
	case inkframe.CommandAdvance:
		q.engine.Advance(ctx)
	case inkframe.CommandRetreat:
		q.engine.Retreat(ctx)
	case inkframe.CommandJumpTo:
		q.engine.JumpTo(ctx, cmd.PhotoID)
	case inkframe.CommandShowInfo:
		if q.hooks.ShowInfo != nil {
			q.hooks.ShowInfo(ctx)
		}
	case inkframe.CommandEnterSetup:
		if q.hooks.EnterSetup != nil {
			q.hooks.EnterSetup(ctx)
		}
	default:
		klog.Warningf("unknown command kind: %s", cmd.Kind)
	}
}

// Submit enqueues a command without blocking. When the queue is full the
// command is dropped and false returned; at human input cadence the next
// press simply tries again.
func (q *Queue) Submit(cmd inkframe.Command) bool {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	if !started {
		// Not started yet, execute the command synchronously
		q.handle(cmd)
		return true
	}

	select {
	case <-q.stopCh:
		// Queue is stopped, don't accept new commands
		return false
	default:
	}

	select {
	case q.cmds <- cmd:
		return true
	default:
		q.metrics.IncDroppedCommands()
		klog.Warningf("command queue full, dropping %s", cmd.Kind)
		return false
	}
}

// Stop stops the consumer and waits for it to finish
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.started {
		return
	}

	close(q.stopCh)
	q.wg.Wait()
	q.started = false
}

// QueueLength returns the current number of pending commands
func (q *Queue) QueueLength() int {
	return len(q.cmds)
}
