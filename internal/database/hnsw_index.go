package database

import (
	"errors"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex wraps an HNSW graph over the entries of one gallery version.
// Node keys are entry positions, so results map back to gallery order.
type HNSWIndex struct {
	graph   *hnsw.Graph[int]
	entries []GalleryEntry
	metric  Metric
	mu      sync.RWMutex
}

// NewHNSWIndex creates an empty index using the given metric.
func NewHNSWIndex(metric Metric) *HNSWIndex {
	return &HNSWIndex{metric: metric}
}

// Build replaces the index contents with entries.
func (h *HNSWIndex) Build(entries []GalleryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = entries
	if len(entries) == 0 {
		h.graph = nil
		return
	}

	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors)
	g.EfSearch = HNSWEfSearch
	if h.metric == MetricCosine {
		g.Distance = hnsw.CosineDistance
	} else {
		g.Distance = hnsw.EuclideanDistance
	}

	dim := len(entries[0].Embedding)
	for i := range entries {
		// the graph rejects mixed dimensions
		if len(entries[i].Embedding) != dim || dim == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(i, entries[i].Embedding))
	}
	h.graph = g
}

// Search returns up to k candidate entries closest to the query, re-ranked by
// exact distance. Equal distances keep gallery order.
func (h *HNSWIndex) Search(query []float32, k int) ([]NearestEntry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 {
		return nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	results := make([]NearestEntry, 0, len(neighbors))
	for _, n := range neighbors {
		results = append(results, NearestEntry{
			GalleryEntry: h.entries[n.Key],
			Distance:     h.metric.Distance(query, n.Value),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Position < results[j].Position
	})
	return results, nil
}

// Count returns the number of indexed entries.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}

// IsEmpty returns true if the index has no graph data loaded.
func (h *HNSWIndex) IsEmpty() bool {
	return h.Count() == 0
}
