// Package idgen generates lexicographically sortable identifiers.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// GenerateSortableID returns a ULID. IDs generated by one process sort in creation order.
func GenerateSortableID() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustGenerateSortableID is GenerateSortableID that panics on failure.
func MustGenerateSortableID() string {
	id, err := GenerateSortableID()
	if err != nil {
		panic(err)
	}
	return id
}
