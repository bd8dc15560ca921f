// Package rotation is the photo frame's core: it decides which photo is
// current, walks the library under the configured order mode, and owns the
// slideshow timer. All mutations of the shuffle bag, history and current
// selection happen under one mutex per engine instance; the render handoff
// happens outside the lock so a slow panel refresh never blocks callers.
package rotation

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"k8s.io/klog/v2"

	inkframe "github.com/ahmed-com/inkframe"
	"github.com/ahmed-com/inkframe/metrics"
	"github.com/ahmed-com/inkframe/settings"
)

// historyLimit bounds the retreat history; oldest entries are evicted first.
const historyLimit = 100

// Source supplies the candidate photo set in canonical ascending order.
// The set may shrink or grow between calls.
type Source interface {
	OrderedIDs(ctx context.Context) ([]string, error)
	CountPhotos(ctx context.Context) (int, error)
}

// Renderer pushes a photo to the display. It must not panic; it returns
// false when the render was rejected (busy panel) or failed.
type Renderer interface {
	Render(ctx context.Context, photoID string) bool
}

// Config supplies the user-facing slideshow settings.
type Config interface {
	OrderMode() inkframe.OrderMode
	Slideshow() settings.SlideshowSettings
}

// Engine is the single source of truth for what is on screen and what
// comes next.
type Engine struct {
	source   Source
	renderer Renderer
	cfg      Config
	metrics  metrics.Collector
	timer    *TimerController

	mu      sync.Mutex
	current string // empty = nothing selected yet
	bag     []string
	history []string

	shuffle func([]string)
}

// NewEngine creates a rotation engine over the given collaborators.
func NewEngine(source Source, renderer Renderer, cfg Config) *Engine {
	return &Engine{
		source:   source,
		renderer: renderer,
		cfg:      cfg,
		metrics:  metrics.NewNoOpCollector(),
		shuffle: func(ids []string) {
			rand.Shuffle(len(ids), func(i, j int) {
				ids[i], ids[j] = ids[j], ids[i]
			})
		},
	}
}

// SetMetrics sets the metrics collector for this engine
func (e *Engine) SetMetrics(m metrics.Collector) {
	e.metrics = m
}

// SetTimer attaches the timer controller so Status can report it.
// Call once during wiring, before the engine starts serving.
func (e *Engine) SetTimer(t *TimerController) {
	e.timer = t
}

// Advance moves to the next photo and renders it. Returns false only when
// no photos are available.
func (e *Engine) Advance(ctx context.Context) bool {
	ids, ok := e.candidates(ctx, metrics.OpAdvance)
	if !ok {
		return false
	}
	order := e.cfg.OrderMode()

	e.mu.Lock()
	var next string
	if order == inkframe.OrderRandom {
		next = e.nextFromBagLocked(ids)
	} else {
		next = e.sequentialLocked(ids, 1)
	}
	e.pushHistoryLocked()
	e.current = next
	depth := len(e.history)
	e.mu.Unlock()

	e.metrics.SetPhotoCount(len(ids))
	e.metrics.SetHistoryDepth(depth)
	e.metrics.IncRotations(metrics.OpAdvance, metrics.ResultOK)
	e.render(ctx, next)
	return true
}

// Retreat moves to the previous photo and renders it. In random mode it
// walks back through history, discarding entries that no longer exist; an
// exhausted history falls through to the shuffle bag, so retreat fails only
// when no photos exist at all.
func (e *Engine) Retreat(ctx context.Context) bool {
	ids, ok := e.candidates(ctx, metrics.OpRetreat)
	if !ok {
		return false
	}
	order := e.cfg.OrderMode()

	e.mu.Lock()
	var next string
	if order == inkframe.OrderRandom {
		next = e.popHistoryLocked(ids)
		if next == "" {
			next = e.nextFromBagLocked(ids)
		}
	} else {
		next = e.sequentialLocked(ids, -1)
	}
	e.current = next
	depth := len(e.history)
	e.mu.Unlock()

	e.metrics.SetPhotoCount(len(ids))
	e.metrics.SetHistoryDepth(depth)
	e.metrics.IncRotations(metrics.OpRetreat, metrics.ResultOK)
	e.render(ctx, next)
	return true
}

// JumpTo selects a specific photo. Returns false without mutating anything
// when the photo is not among the current candidates. The shuffle bag is
// left untouched.
func (e *Engine) JumpTo(ctx context.Context, photoID string) bool {
	ids, ok := e.candidates(ctx, metrics.OpJumpTo)
	if !ok {
		return false
	}

	found := false
	for _, id := range ids {
		if id == photoID {
			found = true
			break
		}
	}
	if !found {
		klog.V(1).Infof("jump: photo %s not in library", photoID)
		e.metrics.IncRotations(metrics.OpJumpTo, metrics.ResultNotFound)
		return false
	}

	e.mu.Lock()
	e.pushHistoryLocked()
	e.current = photoID
	depth := len(e.history)
	e.mu.Unlock()

	e.metrics.SetHistoryDepth(depth)
	e.metrics.IncRotations(metrics.OpJumpTo, metrics.ResultOK)
	e.render(ctx, photoID)
	return true
}

// Current returns the current selection, if any.
func (e *Engine) Current() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.current != ""
}

// Rerender pushes the current selection to the display again without
// advancing. Used by the nightly full-refresh job.
func (e *Engine) Rerender(ctx context.Context) bool {
	e.mu.Lock()
	current := e.current
	e.mu.Unlock()

	if current == "" {
		return false
	}
	e.render(ctx, current)
	return true
}

// Status merges timer state, slideshow settings and the library size into
// one snapshot. Best-effort: it reads settings and the photo count outside
// the engine lock.
func (e *Engine) Status(ctx context.Context) inkframe.ScheduleStatus {
	ss := e.cfg.Slideshow()

	count, err := e.source.CountPhotos(ctx)
	if err != nil {
		klog.Errorf("status: count photos: %v", err)
		count = 0
	}

	st := inkframe.ScheduleStatus{
		Enabled:         ss.Enabled,
		IntervalMinutes: ss.IntervalMinutes,
		Order:           inkframe.ParseOrderMode(ss.Order),
		PhotoCount:      count,
	}

	if e.timer != nil {
		running, next := e.timer.Status()
		st.Running = running
		if next != nil {
			iso := next.UTC().Format(time.RFC3339)
			st.NextRun = &iso
		}
	}
	return st
}

// candidates fetches the current photo set, handling the empty-library case.
func (e *Engine) candidates(ctx context.Context, op string) ([]string, bool) {
	ids, err := e.source.OrderedIDs(ctx)
	if err != nil {
		klog.Errorf("%s: list photos: %v", op, err)
		e.metrics.IncRotations(op, metrics.ResultNoCandidates)
		return nil, false
	}
	if len(ids) == 0 {
		klog.V(1).Infof("%s: no photos available", op)
		e.metrics.IncRotations(op, metrics.ResultNoCandidates)
		return nil, false
	}
	return ids, true
}

// nextFromBagLocked pops the next photo from the shuffle bag, refilling it
// when exhausted. Every photo is shown exactly once per cycle. Caller holds
// e.mu.
func (e *Engine) nextFromBagLocked(ids []string) string {
	valid := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		valid[id] = struct{}{}
	}

	// Drop bag entries for photos that no longer exist
	kept := make([]string, 0, len(e.bag))
	for _, id := range e.bag {
		if _, ok := valid[id]; ok {
			kept = append(kept, id)
		}
	}
	e.bag = kept

	if len(e.bag) == 0 {
		e.bag = append(e.bag, ids...)
		e.shuffle(e.bag)
		// Avoid repeating the last shown photo across the cycle boundary
		if len(e.bag) > 1 && e.bag[0] == e.current {
			swap := 1 + rand.IntN(len(e.bag)-1)
			e.bag[0], e.bag[swap] = e.bag[swap], e.bag[0]
		}
	}

	next := e.bag[0]
	e.bag = e.bag[1:]
	return next
}

// sequentialLocked computes the sequential-mode neighbor in the given
// direction. A missing current selection starts at the first photo going
// forward, the last going backward. Caller holds e.mu.
func (e *Engine) sequentialLocked(ids []string, step int) string {
	pos := -1
	for i, id := range ids {
		if id == e.current {
			pos = i
			break
		}
	}

	if pos == -1 {
		if step > 0 {
			return ids[0]
		}
		return ids[len(ids)-1]
	}
	return ids[(pos+step+len(ids))%len(ids)]
}

// pushHistoryLocked saves the current selection before it is overwritten,
// evicting the oldest entry past the bound. Caller holds e.mu.
func (e *Engine) pushHistoryLocked() {
	if e.current == "" {
		return
	}
	e.history = append(e.history, e.current)
	if len(e.history) > historyLimit {
		e.history = e.history[1:]
	}
}

// popHistoryLocked pops the most recent still-valid history entry, or ""
// if the stack empties first. Stale entries are discarded as they surface.
// Caller holds e.mu.
func (e *Engine) popHistoryLocked(ids []string) string {
	valid := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		valid[id] = struct{}{}
	}

	for len(e.history) > 0 {
		last := e.history[len(e.history)-1]
		e.history = e.history[:len(e.history)-1]
		if _, ok := valid[last]; ok {
			return last
		}
	}
	return ""
}

// render hands the photo to the display sink outside the engine lock. A
// rejected render leaves the engine state committed; the panel catches up
// on the next cycle.
func (e *Engine) render(ctx context.Context, photoID string) {
	start := time.Now()
	ok := e.renderer.Render(ctx, photoID)
	e.metrics.ObserveRenderDuration(time.Since(start))

	if ok {
		e.metrics.IncRenders(metrics.ResultOK)
		return
	}
	e.metrics.IncRenders(metrics.ResultRejected)
	klog.Warningf("render of %s not applied, panel lags engine state", photoID)
}
