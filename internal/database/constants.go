package database

// HNSW graph parameters for gallery search. Galleries hold a few hundred
// 128-dim encodings, so the graph is small and built in memory per version.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 64

	// HNSWCandidates is how many approximate neighbors are re-ranked exactly.
	HNSWCandidates = 8
)
