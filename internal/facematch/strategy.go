package facematch

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
)

// Strategy finds the gallery entry nearest to a probe. It returns nil when
// the gallery holds no comparable entry. Ties resolve to the entry that
// comes first in gallery order.
type Strategy interface {
	Name() string
	Metric() database.Metric
	Nearest(ctx context.Context, g *gallery.Gallery, probe []float32) (*database.NearestEntry, error)
}

const (
	StrategyLinear   = "linear"
	StrategyHNSW     = "hnsw"
	StrategyPgvector = "pgvector"
)

// NewStrategy returns the named strategy. reader is only used by pgvector.
func NewStrategy(name string, metric database.Metric, reader database.GalleryEntryReader, ttl time.Duration) (Strategy, error) {
	switch name {
	case "", StrategyLinear:
		return NewLinearStrategy(metric), nil
	case StrategyHNSW:
		return NewHNSWStrategy(metric, ttl), nil
	case StrategyPgvector:
		if reader == nil {
			return nil, fmt.Errorf("pgvector strategy requires a gallery entry reader")
		}
		return NewPgvectorStrategy(reader, metric), nil
	}
	return nil, fmt.Errorf("unknown matching strategy %q", name)
}

// LinearStrategy compares the probe against every entry.
type LinearStrategy struct {
	metric database.Metric
}

func NewLinearStrategy(metric database.Metric) *LinearStrategy {
	return &LinearStrategy{metric: metric}
}

func (s *LinearStrategy) Name() string { return StrategyLinear }
func (s *LinearStrategy) Metric() database.Metric { return s.metric }

func (s *LinearStrategy) Nearest(_ context.Context, g *gallery.Gallery, probe []float32) (*database.NearestEntry, error) {
	var best *database.NearestEntry
	for _, e := range g.Entries {
		d := s.metric.Distance(probe, e.Embedding)
		if best == nil || d < best.Distance {
			best = &database.NearestEntry{GalleryEntry: e, Distance: d}
		}
	}
	return best, nil
}

// HNSWStrategy searches an HNSW graph built lazily per gallery version.
// Candidates are re-ranked by exact distance.
type HNSWStrategy struct {
	metric  database.Metric
	indexes *cache.Cache
}

func NewHNSWStrategy(metric database.Metric, ttl time.Duration) *HNSWStrategy {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &HNSWStrategy{metric: metric, indexes: cache.New(ttl, 2*ttl)}
}

func (s *HNSWStrategy) Name() string { return StrategyHNSW }
func (s *HNSWStrategy) Metric() database.Metric { return s.metric }

func (s *HNSWStrategy) index(g *gallery.Gallery) *database.HNSWIndex {
	key := g.Scope + "@" + g.Version
	if cached, ok := s.indexes.Get(key); ok {
		return cached.(*database.HNSWIndex)
	}
	idx := database.NewHNSWIndex(s.metric)
	idx.Build(g.Entries)
	s.indexes.Set(key, idx, cache.DefaultExpiration)
	return idx
}

func (s *HNSWStrategy) Nearest(_ context.Context, g *gallery.Gallery, probe []float32) (*database.NearestEntry, error) {
	idx := s.index(g)
	if idx.IsEmpty() {
		return nil, nil
	}
	candidates, err := idx.Search(probe, database.HNSWCandidates)
	if err != nil {
		return nil, fmt.Errorf("searching hnsw index: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// PgvectorStrategy lets PostgreSQL find the nearest entry of the published version.
type PgvectorStrategy struct {
	reader database.GalleryEntryReader
	metric database.Metric
}

func NewPgvectorStrategy(reader database.GalleryEntryReader, metric database.Metric) *PgvectorStrategy {
	return &PgvectorStrategy{reader: reader, metric: metric}
}

func (s *PgvectorStrategy) Name() string { return StrategyPgvector }
func (s *PgvectorStrategy) Metric() database.Metric { return s.metric }

func (s *PgvectorStrategy) Nearest(ctx context.Context, g *gallery.Gallery, probe []float32) (*database.NearestEntry, error) {
	nearest, err := s.reader.NearestEntry(ctx, g.Version, probe, s.metric)
	if err != nil {
		return nil, fmt.Errorf("querying nearest entry: %w", err)
	}
	return nearest, nil
}
