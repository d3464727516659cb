package retrieval

import (
	"fmt"
	"sort"
)

// flatIndex is an exact, append-only nearest-neighbor index over raw
// float32 vectors. Rows are stored contiguously; a row's position is the
// identity of the chunk it belongs to.
type flatIndex struct {
	dim  int
	data []float32 // len(data) == count*dim
}

func newFlatIndex(dim int) *flatIndex {
	return &flatIndex{dim: dim}
}

func (ix *flatIndex) count() int {
	return len(ix.data) / ix.dim
}

// add appends vectors in input order. All-or-nothing: the first mis-sized
// vector aborts the call and the caller is expected to truncate back.
func (ix *flatIndex) add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimensionMismatch, i, len(v), ix.dim)
		}
	}
	for _, v := range vectors {
		ix.data = append(ix.data, v...)
	}
	return nil
}

// truncate drops rows beyond count. Used to roll back a failed append.
func (ix *flatIndex) truncate(count int) {
	if count*ix.dim < len(ix.data) {
		ix.data = ix.data[:count*ix.dim]
	}
}

// hit is one search result: a row position and its squared L2 distance
// to the query.
type hit struct {
	pos  int
	dist float32
}

// search scans every row and returns up to k hits ordered by ascending
// squared Euclidean distance, position breaking ties. The scan is exact;
// there is no approximation and no normalization of either side.
func (ix *flatIndex) search(query []float32, k int) []hit {
	n := ix.count()
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	hits := make([]hit, n)
	for row := 0; row < n; row++ {
		base := row * ix.dim
		var d float32
		for j, q := range query {
			diff := ix.data[base+j] - q
			d += diff * diff
		}
		hits[row] = hit{pos: row, dist: d}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].pos < hits[j].pos
	})
	return hits[:k]
}
