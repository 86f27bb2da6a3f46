package gallery

import (
	"math/rand"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/faceid/internal/constants"
)

// Index is an HNSW graph over every embedding of one snapshot. It is only
// used to shortlist candidate identities; scores always come from an exact
// comparison against the snapshot.
type Index struct {
	graph  *hnsw.Graph[int]
	owners []string // node key -> identity key
}

// BuildIndex indexes all embeddings of snap using distance. efSearch is the
// candidate list size used by searches. The level generator is seeded so the
// same snapshot always yields the same graph.
func BuildIndex(snap *Snapshot, distance hnsw.DistanceFunc, efSearch int) *Index {
	g := hnsw.NewGraph[int]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = distance
	g.EfSearch = max(efSearch, g.EfSearch)
	g.Rng = rand.New(rand.NewSource(1)) //nolint:gosec // determinism, not security

	idx := &Index{graph: g, owners: make([]string, 0, snap.EmbeddingCount())}
	for _, rec := range snap.Records() {
		for _, e := range rec.Entries {
			g.Add(hnsw.MakeNode(len(idx.owners), []float32(e.Vector)))
			idx.owners = append(idx.owners, rec.Key)
		}
	}
	return idx
}

// Len returns the number of indexed embeddings.
func (i *Index) Len() int {
	return len(i.owners)
}

// Candidates returns the distinct identities owning the k embeddings nearest
// to query, nearest first.
func (i *Index) Candidates(query []float32, k int) []string {
	if len(i.owners) == 0 || k <= 0 {
		return nil
	}
	neighbors := i.graph.Search(query, k)

	seen := make(map[string]struct{}, len(neighbors))
	keys := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		owner := i.owners[n.Key]
		if _, ok := seen[owner]; ok {
			continue
		}
		seen[owner] = struct{}{}
		keys = append(keys, owner)
	}
	return keys
}
