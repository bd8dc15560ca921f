// Package ingest brings photos into the library: it scans and watches the
// incoming drop directory, extracts EXIF metadata, copies the original into
// the library tree, produces the display and thumbnail variants and
// registers the record in the photo store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"github.com/otiai10/copy"
	"k8s.io/klog/v2"

	"github.com/ahmed-com/inkframe/id"
	"github.com/ahmed-com/inkframe/imaging"
	"github.com/ahmed-com/inkframe/photo"
)

const (
	// displayMaxHeight bounds the pre-scaled display variant; the renderer
	// fits it to the exact panel geometry at display time.
	displayMaxHeight = 1200
	thumbMaxHeight   = 180
	thumbQuality     = 75
	displayQuality   = 85

	// settleDelay gives the uploader time to finish writing before a
	// watched file is picked up.
	settleDelay = 250 * time.Millisecond
)

var mimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// AllowedFile reports whether the filename carries a supported photo
// extension.
func AllowedFile(filename string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Config holds the library directory layout.
type Config struct {
	IncomingDir  string
	OriginalsDir string
	DisplayDir   string
	ThumbsDir    string
}

// Ingestor moves photos from the incoming directory into the library.
type Ingestor struct {
	photos photo.Store
	cfg    Config
}

// New creates an ingestor over the given store and directory layout.
func New(photos photo.Store, cfg Config) *Ingestor {
	return &Ingestor{photos: photos, cfg: cfg}
}

// ScanIncoming ingests everything already sitting in the incoming
// directory. Called once at boot before the watcher takes over.
func (in *Ingestor) ScanIncoming(ctx context.Context) error {
	if _, err := os.Stat(in.cfg.IncomingDir); os.IsNotExist(err) {
		return nil
	}

	return godirwalk.Walk(in.cfg.IncomingDir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			if _, err := in.IngestFile(ctx, path); err != nil {
				klog.Errorf("ingest %s: %v", path, err)
			}
			return nil
		},
	})
}

// Watch follows the incoming directory and ingests files as they appear.
// Returns once the watcher is installed; the loop runs until ctx is done.
func (in *Ingestor) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	if err := w.Add(in.cfg.IncomingDir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", in.cfg.IncomingDir, err)
	}
	klog.Infof("watching %s for new photos", in.cfg.IncomingDir)

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					time.Sleep(settleDelay)
					if _, err := in.IngestFile(ctx, event.Name); err != nil {
						klog.Errorf("ingest %s: %v", event.Name, err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				klog.Errorf("watch error: %v", err)
			}
		}
	}()
	return nil
}

// IngestFile brings one file into the library and removes it from the
// incoming directory. Unsupported and already-known files are skipped with
// a nil photo and nil error.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (*photo.Photo, error) {
	filename := filepath.Base(path)
	if !AllowedFile(filename) {
		klog.V(2).Infof("skipping non-photo file %s", filename)
		return nil, nil
	}
	mime := mimeTypes[strings.ToLower(filepath.Ext(filename))]

	pid := id.GeneratePhotoID(filename)
	if existing, err := in.photos.GetPhoto(ctx, pid); err == nil {
		klog.V(1).Infof("already ingested %s as %s", filename, pid)
		in.removeIncoming(path)
		return existing, nil
	}

	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}

	taken, err := imaging.DateTaken(path)
	if err != nil {
		klog.V(1).Infof("no capture date for %s: %v", filename, err)
	}

	originalPath := filepath.Join(in.cfg.OriginalsDir, filename)
	if err := copy.Copy(path, originalPath); err != nil {
		return nil, fmt.Errorf("copy: %w", err)
	}

	img, err := imaging.LoadOriented(originalPath)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	displayPath := filepath.Join(in.cfg.DisplayDir, pid+".jpg")
	if err := os.MkdirAll(in.cfg.DisplayDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	if err := imaging.SaveJPEG(displayPath, imaging.ScaleToHeight(img, displayMaxHeight), displayQuality); err != nil {
		return nil, err
	}

	thumbPath := filepath.Join(in.cfg.ThumbsDir, pid+".jpg")
	if err := os.MkdirAll(in.cfg.ThumbsDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	if err := imaging.SaveJPEG(thumbPath, imaging.ScaleToHeight(img, thumbMaxHeight), thumbQuality); err != nil {
		return nil, err
	}

	p := &photo.Photo{
		ID:            pid,
		Filename:      filename,
		OriginalPath:  originalPath,
		DisplayPath:   displayPath,
		ThumbnailPath: thumbPath,
		Width:         bounds.Dx(),
		Height:        bounds.Dy(),
		FileSize:      st.Size(),
		MimeType:      mime,
		DateTaken:     taken,
		UploadedAt:    time.Now(),
	}
	if err := in.photos.CreatePhoto(ctx, p); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	in.removeIncoming(path)
	klog.Infof("ingested %s (%dx%d) as %s", filename, p.Width, p.Height, pid)
	return p, nil
}

// removeIncoming clears a processed file out of the drop directory.
func (in *Ingestor) removeIncoming(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		klog.Warningf("remove incoming %s: %v", path, err)
	}
}
