package display

import (
	"context"
	"time"

	"k8s.io/klog/v2"

	"github.com/ahmed-com/inkframe/imaging"
	"github.com/ahmed-com/inkframe/photo"
	"github.com/ahmed-com/inkframe/settings"
)

// PhotoRenderer turns a photo ID into a panel frame: it looks the photo up,
// prepares it per the current display settings, and hands the frame to the
// sink. It satisfies the rotation engine's Renderer dependency.
type PhotoRenderer struct {
	photos photo.Store
	cfg    *settings.Store
	sink   Sink
	width  int
	height int
}

// NewPhotoRenderer creates a renderer targeting a width x height panel.
func NewPhotoRenderer(photos photo.Store, cfg *settings.Store, sink Sink, width, height int) *PhotoRenderer {
	return &PhotoRenderer{
		photos: photos,
		cfg:    cfg,
		sink:   sink,
		width:  width,
		height: height,
	}
}

// Render prepares and displays the given photo. Returns false when the
// photo is unknown, preparation fails, or the sink rejects the frame.
func (r *PhotoRenderer) Render(ctx context.Context, photoID string) bool {
	p, err := r.photos.GetPhoto(ctx, photoID)
	if err != nil {
		klog.Errorf("render %s: %v", photoID, err)
		return false
	}

	dc := r.cfg.Load().Display
	w, h := r.width, r.height
	if dc.Orientation == "vertical" {
		w, h = h, w
	}

	start := time.Now()
	img, err := imaging.PrepareForPanel(p.DisplayPath, imaging.Options{
		Width:      w,
		Height:     h,
		Fit:        imaging.ParseFitMode(dc.FitMode),
		Saturation: dc.Saturation,
	})
	if err != nil {
		klog.Errorf("render %s: prepare: %v", photoID, err)
		return false
	}
	klog.V(1).Infof("prepared %s in %s", p.Filename, time.Since(start).Round(time.Millisecond))

	return r.sink.Render(ctx, img)
}
