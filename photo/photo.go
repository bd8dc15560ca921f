package photo

import (
	"context"
	"time"
)

// Store defines the interface for persisting photo metadata.
//
// OrderedIDs is the canonical ascending order used by sequential mode:
// upload time first, ID as tiebreak. It excludes nothing but deleted
// photos; callers must tolerate the set shrinking or growing between calls.
type Store interface {
	CreatePhoto(ctx context.Context, p *Photo) error
	GetPhoto(ctx context.Context, photoID string) (*Photo, error)
	UpdatePhoto(ctx context.Context, p *Photo) error
	DeletePhoto(ctx context.Context, photoID string) error
	ListPhotos(ctx context.Context) ([]*Photo, error)

	// OrderedIDs returns all photo IDs in canonical ascending order.
	OrderedIDs(ctx context.Context) ([]string, error)

	// CountPhotos returns the number of stored photos.
	CountPhotos(ctx context.Context) (int, error)

	// Close closes the storage connection
	Close() error
}

// Photo represents a photo record in storage.
type Photo struct {
	ID            string
	Filename      string
	OriginalPath  string
	DisplayPath   string
	ThumbnailPath string
	Width         int
	Height        int
	FileSize      int64
	MimeType      string
	DateTaken     *time.Time
	UploadedAt    time.Time
	Favorite      bool
}
