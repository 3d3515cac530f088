package blob

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/apperr"
)

// MemStore keeps objects in memory. Used for development and tests.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Error injection
	UploadError error
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func memKey(bucket, path string) string {
	return bucket + "/" + path
}

// Upload stores a copy of data.
func (s *MemStore) Upload(ctx context.Context, bucket, path string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.UploadError != nil {
		return "", apperr.Storage("upload "+memKey(bucket, path), s.UploadError)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[memKey(bucket, path)] = slices.Clone(data)
	return "mem://" + memKey(bucket, path), nil
}

// Download returns a copy of the stored object.
func (s *MemStore) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[memKey(bucket, path)]
	if !ok {
		return nil, apperr.NotFound("blob", memKey(bucket, path))
	}
	return slices.Clone(data), nil
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
