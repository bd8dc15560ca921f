package display

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type slowSink struct {
	release chan struct{}
	renders int32
}

func (s *slowSink) Render(ctx context.Context, img image.Image) bool {
	if s.release != nil {
		<-s.release
	}
	atomic.AddInt32(&s.renders, 1)
	return true
}

func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}

func TestGuardPassesThrough(t *testing.T) {
	sink := &slowSink{}
	guard := NewGuard(sink)

	if !guard.Render(context.Background(), testFrame()) {
		t.Error("Idle guard should pass the render through")
	}
	if atomic.LoadInt32(&sink.renders) != 1 {
		t.Error("Sink should have rendered once")
	}
}

func TestGuardDropsOverlappingRender(t *testing.T) {
	release := make(chan struct{})
	sink := &slowSink{release: release}
	guard := NewGuard(sink)
	ctx := context.Background()

	started := make(chan struct{})
	var firstResult bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		firstResult = guard.Render(ctx, testFrame())
	}()

	<-started
	// Wait until the first render is actually inside the sink
	for !guard.Busy() {
		time.Sleep(time.Millisecond)
	}

	if guard.Render(ctx, testFrame()) {
		t.Error("Overlapping render should be dropped")
	}

	close(release)
	wg.Wait()

	if !firstResult {
		t.Error("First render should succeed")
	}
	if got := atomic.LoadInt32(&sink.renders); got != 1 {
		t.Errorf("Expected 1 render reaching the sink, got %d", got)
	}
}

func TestGuardRecoversAfterRender(t *testing.T) {
	sink := &slowSink{}
	guard := NewGuard(sink)
	ctx := context.Background()

	guard.Render(ctx, testFrame())
	if !guard.Render(ctx, testFrame()) {
		t.Error("Guard should accept renders again after the previous completed")
	}
}

func TestFileSinkWritesSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spool", "frame.png")
	sink := NewFileSink(path)

	if !sink.Render(context.Background(), testFrame()) {
		t.Fatal("FileSink render failed")
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected spool file at %s: %v", path, err)
	}

	// No stray temp file left behind
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file should have been renamed away")
	}
}

func TestNullSink(t *testing.T) {
	if !(NullSink{}).Render(context.Background(), testFrame()) {
		t.Error("NullSink should always succeed")
	}
}

func TestInfoScreen(t *testing.T) {
	img := InfoScreen(800, 480, "InkFrame", []string{"Photos: 12", "http://inkframe.local/"})

	b := img.Bounds()
	if b.Dx() != 800 || b.Dy() != 480 {
		t.Errorf("Expected 800x480 info screen, got %dx%d", b.Dx(), b.Dy())
	}
}
