// Package display pushes rendered frames to the e-ink panel. The panel is
// slow (a full refresh takes tens of seconds), so the sink self-guards:
// while one render is in flight any new request is dropped, not queued.
package display

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/ahmed-com/inkframe/imaging"
)

// Sink renders a prepared frame to the physical or mock device.
// Implementations must not panic; false means the frame was not applied.
type Sink interface {
	Render(ctx context.Context, img image.Image) bool
}

// Guard wraps a Sink with a single-flight busy flag. A render arriving
// while another is in progress returns false immediately.
type Guard struct {
	sink Sink
	busy atomic.Bool
}

// NewGuard wraps the given sink.
func NewGuard(sink Sink) *Guard {
	return &Guard{sink: sink}
}

// Render forwards to the wrapped sink unless one is already in flight.
func (g *Guard) Render(ctx context.Context, img image.Image) bool {
	if !g.busy.CompareAndSwap(false, true) {
		klog.V(1).Infof("display busy, dropping render")
		return false
	}
	defer g.busy.Store(false)

	return g.sink.Render(ctx, img)
}

// Busy reports whether a render is currently in flight.
func (g *Guard) Busy() bool {
	return g.busy.Load()
}

// FileSink writes frames to a spool file picked up by the panel driver
// process. The write is atomic (temp file + rename) so the driver never
// sees a half-written frame.
type FileSink struct {
	path string
}

// NewFileSink creates a sink spooling to the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Render(ctx context.Context, img image.Image) bool {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		klog.Errorf("display spool mkdir: %v", err)
		return false
	}

	tmp := s.path + ".tmp"
	if err := imaging.SavePNG(tmp, img); err != nil {
		klog.Errorf("display spool write: %v", err)
		return false
	}
	if err := os.Rename(tmp, s.path); err != nil {
		klog.Errorf("display spool rename: %v", err)
		return false
	}

	klog.Infof("displayed frame %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	return true
}

// NullSink is the headless-mode sink: it logs what it would display and
// reports success, matching running without a panel attached.
type NullSink struct{}

func (NullSink) Render(ctx context.Context, img image.Image) bool {
	klog.Infof("would display frame %dx%d", img.Bounds().Dx(), img.Bounds().Dy())
	return true
}
