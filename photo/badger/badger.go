package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ahmed-com/inkframe/photo"
)

// BadgerStore implements the photo.Store interface using BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a new BadgerDB photo store instance
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable default logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) photoKey(id string) []byte {
	return []byte(fmt.Sprintf("photo/%s", id))
}

func (s *BadgerStore) CreatePhoto(ctx context.Context, p *photo.Photo) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := s.photoKey(p.ID)

		// Check if already exists
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("photo already exists: %s", p.ID)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}

		if p.UploadedAt.IsZero() {
			p.UploadedAt = time.Now()
		}

		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal photo: %w", err)
		}

		return txn.Set(key, data)
	})
}

func (s *BadgerStore) GetPhoto(ctx context.Context, photoID string) (*photo.Photo, error) {
	var p photo.Photo

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.photoKey(photoID))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, fmt.Errorf("photo not found: %s", photoID)
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

func (s *BadgerStore) UpdatePhoto(ctx context.Context, p *photo.Photo) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := s.photoKey(p.ID)

		// Check if exists
		_, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("photo not found: %s", p.ID)
		}
		if err != nil {
			return err
		}

		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal photo: %w", err)
		}

		return txn.Set(key, data)
	})
}

func (s *BadgerStore) DeletePhoto(ctx context.Context, photoID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.photoKey(photoID))
	})
}

func (s *BadgerStore) ListPhotos(ctx context.Context) ([]*photo.Photo, error) {
	var photos []*photo.Photo

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("photo/")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			err := item.Value(func(val []byte) error {
				var p photo.Photo
				if err := json.Unmarshal(val, &p); err != nil {
					return err
				}
				photos = append(photos, &p)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortCanonical(photos)
	return photos, nil
}

func (s *BadgerStore) OrderedIDs(ctx context.Context) ([]string, error) {
	photos, err := s.ListPhotos(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(photos))
	for _, p := range photos {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *BadgerStore) CountPhotos(ctx context.Context) (int, error) {
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("photo/")
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Close closes the badger database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// sortCanonical orders photos by upload time ascending, ID as tiebreak.
// Sequential mode depends on this ordering being stable across calls.
func sortCanonical(photos []*photo.Photo) {
	sort.Slice(photos, func(i, j int) bool {
		if !photos[i].UploadedAt.Equal(photos[j].UploadedAt) {
			return photos[i].UploadedAt.Before(photos[j].UploadedAt)
		}
		return photos[i].ID < photos[j].ID
	})
}
