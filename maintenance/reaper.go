// Package maintenance runs the background housekeeping loops: the orphan
// file reaper and the nightly display refresh.
package maintenance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/ahmed-com/inkframe/photo"
)

// PhotoLister is the slice of the photo store the reaper needs.
type PhotoLister interface {
	ListPhotos(ctx context.Context) ([]*photo.Photo, error)
}

// Reaper periodically scans the library directories and removes files no
// photo record points at. Orphans appear when a delete is interrupted
// between removing the record and removing its artifacts.
type Reaper struct {
	photos   PhotoLister
	dirs     []string
	interval time.Duration
	stopCh   chan struct{}
}

// NewReaper creates a reaper over the given library directories.
func NewReaper(photos PhotoLister, dirs []string, interval time.Duration) *Reaper {
	if interval == 0 {
		interval = time.Hour // default
	}

	return &Reaper{
		photos:   photos,
		dirs:     dirs,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the reaper goroutine
func (r *Reaper) Start(ctx context.Context) {
	go r.run(ctx)
}

// run is the main reaper loop
func (r *Reaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.ReapOrphans(ctx)
		}
	}
}

// ReapOrphans removes library files that no photo record references.
// Returns the number of files removed.
func (r *Reaper) ReapOrphans(ctx context.Context) int {
	photos, err := r.photos.ListPhotos(ctx)
	if err != nil {
		klog.Errorf("reaper: list photos: %v", err)
		return 0
	}

	expected := make(map[string]struct{}, len(photos)*3)
	for _, p := range photos {
		expected[p.OriginalPath] = struct{}{}
		expected[p.DisplayPath] = struct{}{}
		expected[p.ThumbnailPath] = struct{}{}
	}

	removed := 0
	for _, dir := range r.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				klog.Errorf("reaper: read %s: %v", dir, err)
			}
			continue
		}

		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			// Leave dotfiles and in-flight temp files alone
			if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
				continue
			}

			path := filepath.Join(dir, name)
			if _, ok := expected[path]; ok {
				continue
			}
			if err := os.Remove(path); err != nil {
				klog.Warningf("reaper: remove %s: %v", path, err)
				continue
			}
			klog.Infof("reaper: removed orphan %s", path)
			removed++
		}
	}
	return removed
}

// Stop stops the reaper
func (r *Reaper) Stop() {
	close(r.stopCh)
}
