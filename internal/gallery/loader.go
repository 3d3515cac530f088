package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kozaktomas/face-attendance/internal/apperr"
	"github.com/kozaktomas/face-attendance/internal/blob"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Loader returns the currently published gallery of a scope. Decoded
// galleries are cached per version, so a publish is picked up on the next
// call without invalidation.
type Loader struct {
	store database.GalleryStore
	blobs blob.Store
	cache *cache.Cache
}

// NewLoader creates a loader caching decoded galleries for ttl.
func NewLoader(store database.GalleryStore, blobs blob.Store, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Loader{
		store: store,
		blobs: blobs,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Meta returns the published metadata of scope or ErrNoGallery.
func (l *Loader) Meta(ctx context.Context, scope string) (*database.GalleryMeta, error) {
	meta, err := l.store.GetGalleryMeta(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("loading gallery metadata: %w", err)
	}
	if meta == nil {
		return nil, fmt.Errorf("%w for scope %s", apperr.ErrNoGallery, scope)
	}
	return meta, nil
}

// Load returns the published gallery of scope.
func (l *Loader) Load(ctx context.Context, scope string) (*Gallery, error) {
	meta, err := l.Meta(ctx, scope)
	if err != nil {
		return nil, err
	}

	key := meta.Scope + "@" + meta.Version
	if cached, ok := l.cache.Get(key); ok {
		return cached.(*Gallery), nil
	}

	data, err := l.blobs.Download(ctx, meta.Bucket, meta.Path)
	if err != nil {
		return nil, fmt.Errorf("downloading gallery %s: %w", key, err)
	}
	g, err := DecodeArtifact(data)
	if err != nil {
		return nil, err
	}
	if g.Version == "" {
		g.Version = meta.Version
	}

	l.cache.Set(key, g, cache.DefaultExpiration)
	return g, nil
}
