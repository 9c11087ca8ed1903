package search

import (
	"sync"

	"github.com/coder/hnsw"
	"github.com/poiesic/sentvec/core"
)

// defaultEfSearch is the HNSW candidate list size used at query time.
const defaultEfSearch = 100

// vectorIndex is a concurrency-safe HNSW graph keyed by record ID.
// All vectors in one index share a dimension, fixed by the first insert.
type vectorIndex struct {
	mu       sync.RWMutex
	graph    *hnsw.Graph[core.ID]
	dims     int
	lastID   core.ID // highest record ID seen
	rejected map[core.ID]struct{}
}

func newVectorIndex() *vectorIndex {
	g := hnsw.NewGraph[core.ID]()
	g.EfSearch = defaultEfSearch
	return &vectorIndex{graph: g, rejected: make(map[core.ID]struct{})}
}

// add indexes records not yet present. Records whose dimension differs from
// the index, or whose vector is all zeros, are skipped and counted.
func (x *vectorIndex) add(records []*core.Record) (added, skipped int) {
	x.mu.Lock()
	defer x.mu.Unlock()

	nodes := make([]hnsw.Node[core.ID], 0, len(records))
	for _, r := range records {
		if r.Id > x.lastID {
			x.lastID = r.Id
		}
		if _, exists := x.rejected[r.Id]; exists {
			continue
		}
		if _, exists := x.graph.Lookup(r.Id); exists {
			continue
		}
		if len(r.Vector) == 0 || isZero(r.Vector) {
			x.rejected[r.Id] = struct{}{}
			skipped++
			continue
		}
		if x.dims == 0 {
			x.dims = len(r.Vector)
		}
		if len(r.Vector) != x.dims {
			x.rejected[r.Id] = struct{}{}
			skipped++
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(r.Id, core.ToFloat32(r.Vector)))
	}
	if len(nodes) > 0 {
		x.graph.Add(nodes...)
	}
	return len(nodes), skipped
}

// search returns up to k candidate IDs nearest to vector. ok is false when
// the index cannot answer the query, either empty or of another dimension.
func (x *vectorIndex) search(vector []float64, k int) (ids []core.ID, ok bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.graph.Len() == 0 || len(vector) != x.dims || k <= 0 {
		return nil, false
	}
	neighbors := x.graph.Search(core.ToFloat32(vector), k)
	ids = make([]core.ID, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
	}
	return ids, true
}

func (x *vectorIndex) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph.Len()
}

// seen returns the number of distinct records examined, indexed or rejected.
func (x *vectorIndex) seen() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph.Len() + len(x.rejected)
}

func (x *vectorIndex) watermark() core.ID {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.lastID
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
