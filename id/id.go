package id

import (
	"fmt"

	"github.com/google/uuid"
)

// PhotoNamespace is the UUIDv5 namespace for photo identifiers.
var PhotoNamespace = uuid.MustParse("6ba7b815-9dad-11d1-80b4-00c04fd430c8")

// GeneratePhotoID generates a deterministic ID for a photo based on its filename.
// The same filename always maps to the same ID, so re-ingesting an already-known
// file resolves to the existing record.
func GeneratePhotoID(filename string) string {
	id := uuid.NewSHA1(PhotoNamespace, []byte(filename))
	return fmt.Sprintf("photo_%s", id.String())
}
