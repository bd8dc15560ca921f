// Package imaging prepares uploaded photos for the e-ink panel: EXIF
// orientation, fit-to-panel resizing, saturation adjustment and thumbnails.
package imaging

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/rwcarlsen/goexif/exif"
	"k8s.io/klog/v2"
)

// FitMode controls how a photo fills the panel.
type FitMode string

const (
	FitContain FitMode = "contain" // fit inside, letterboxed
	FitCover   FitMode = "cover"   // fill, cropping overflow
	FitStretch FitMode = "stretch" // fill, distorting aspect
)

// ParseFitMode maps a settings value to a FitMode, defaulting to contain.
func ParseFitMode(s string) FitMode {
	switch FitMode(s) {
	case FitCover, FitStretch:
		return FitMode(s)
	default:
		return FitContain
	}
}

// Options describe the target panel and adjustments.
type Options struct {
	Width      int
	Height     int
	Fit        FitMode
	Saturation float64 // 0..1, 0.5 = unchanged
}

// PrepareForPanel loads a photo and produces the panel-ready image:
// EXIF-oriented, fitted to the panel geometry, saturation adjusted.
func PrepareForPanel(path string, opts Options) (image.Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imgio.Open: %w", err)
	}

	img = applyOrientation(img, orientationOf(path))
	img = fit(img, opts.Width, opts.Height, opts.Fit)

	// Settings store saturation as 0..1 with 0.5 neutral; bild wants a
	// signed change around 0.
	if change := opts.Saturation*2 - 1; change != 0 {
		img = adjust.Saturation(img, change)
	}
	return img, nil
}

// LoadOriented loads a photo with its EXIF orientation applied.
func LoadOriented(path string) (image.Image, error) {
	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imgio.Open: %w", err)
	}
	return applyOrientation(img, orientationOf(path)), nil
}

// ScaleToHeight scales an image down to the given height, preserving
// aspect. Images already small enough pass through untouched.
func ScaleToHeight(img image.Image, maxY int) image.Image {
	b := img.Bounds()
	if b.Dy() <= maxY {
		return img
	}
	x := b.Dx() * maxY / b.Dy()
	return transform.Resize(img, x, maxY, transform.Lanczos)
}

// Thumbnail scales a photo down to the given height, preserving aspect.
func Thumbnail(path string, maxY int) (image.Image, error) {
	img, err := LoadOriented(path)
	if err != nil {
		return nil, err
	}
	return ScaleToHeight(img, maxY), nil
}

// SavePNG writes an image as PNG.
func SavePNG(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("imgio.Save: %w", err)
	}
	return nil
}

// SaveJPEG writes an image as JPEG at the given quality.
func SaveJPEG(path string, img image.Image, quality int) error {
	if err := imgio.Save(path, img, imgio.JPEGEncoder(quality)); err != nil {
		return fmt.Errorf("imgio.Save: %w", err)
	}
	return nil
}

// DateTaken extracts the EXIF capture time, if present.
func DateTaken(path string) (*time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("exif.Decode: %w", err)
	}

	taken, err := x.DateTime()
	if err != nil {
		return nil, fmt.Errorf("exif datetime: %w", err)
	}
	return &taken, nil
}

// fit resizes img into a w x h panel per the fit mode.
func fit(img image.Image, w, h int, mode FitMode) image.Image {
	if w <= 0 || h <= 0 {
		return img
	}

	b := img.Bounds()
	iw, ih := b.Dx(), b.Dy()
	if iw == 0 || ih == 0 {
		return img
	}

	switch mode {
	case FitStretch:
		return transform.Resize(img, w, h, transform.Lanczos)

	case FitCover:
		// Fill the panel completely, cropping the overflowing axis
		if iw*h > ih*w {
			// Wider than the panel: crop the sides
			cw := ih * w / h
			left := (iw - cw) / 2
			img = transform.Crop(img, image.Rect(b.Min.X+left, b.Min.Y, b.Min.X+left+cw, b.Max.Y))
		} else {
			ch := iw * h / w
			top := (ih - ch) / 2
			img = transform.Crop(img, image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Min.Y+top+ch))
		}
		return transform.Resize(img, w, h, transform.Lanczos)

	default: // contain
		if iw*h > ih*w {
			h = ih * w / iw
		} else {
			w = iw * h / ih
		}
		return transform.Resize(img, w, h, transform.Lanczos)
	}
}

// orientationOf reads the EXIF orientation tag, 1 (normal) when absent.
func orientationOf(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 1
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// applyOrientation rotates/flips per the EXIF orientation value. Only the
// rotation cases appear in practice; mirrored variants fall through.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 3:
		return transform.Rotate(img, 180, nil)
	case 6:
		return transform.Rotate(img, 90, nil)
	case 8:
		return transform.Rotate(img, -90, nil)
	case 1:
		return img
	default:
		klog.V(2).Infof("unhandled EXIF orientation %d", orientation)
		return img
	}
}
