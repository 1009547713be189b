// Package hnsw implements a Hierarchical Navigable Small World graph
// backend for the ann.Index capability: same layered node/graph
// structure, greedySearchLayer/searchLayer beam search, and neighbour
// selection/pruning as a classic HNSW implementation, but using plain
// Euclidean (L2) distance instead of cosine similarity over
// pre-normalized vectors, a bulk Build constructor instead of a
// streaming Insert API, and a Query(n, radius) wrapper that performs a
// k=20-then-filter fallback for radius search.
package hnsw

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
)

const (
	// DefaultM is the base number of bi-directional connections per node.
	DefaultM = 16
	// DefaultEfConstruction is the size of the dynamic candidate list
	// during graph construction.
	DefaultEfConstruction = 100
	// DefaultEfSearch bounds the query-time candidate pool.
	DefaultEfSearch = 50
	// queryK is the fixed k used for the k-then-filter radius fallback.
	queryK = 20
)

type node struct {
	neighbors [][]uint32
	vec       []float32
}

// Graph is the HNSW-backed ann.Index implementation.
type Graph struct {
	nodes          []node
	entryPoint     uint32
	maxLayer       int
	m              int
	efConstruction int
	efSearch       int
	ml             float64
	rng            *rand.Rand
}

// New returns an empty HNSW graph with default parameters.
func New() *Graph {
	return &Graph{
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearch:       DefaultEfSearch,
		ml:             1.0 / math.Log(float64(DefaultM)),
		rng:            rand.New(rand.NewSource(42)),
	}
}

// Len returns the number of indexed vectors.
func (g *Graph) Len() int { return len(g.nodes) }

// Row returns the vector stored at index n (diagnostic).
func (g *Graph) Row(n int) []float32 { return g.nodes[n].vec }

// Build inserts every item sequentially, assigning index n to items[n]
// in order.
func (g *Graph) Build(items [][]float32) error {
	for _, vec := range items {
		g.insert(vec)
	}
	return nil
}

func (g *Graph) randomLevel() int {
	return int(math.Floor(-math.Log(g.rng.Float64()) * g.ml))
}

// score is negative squared L2 distance: higher is closer, which lets
// every heap below stay a "highest score wins" max-heap.
func score(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return -sum
}

func (g *Graph) insert(vec []float32) {
	id := uint32(len(g.nodes))
	level := g.randomLevel()

	neighbors := make([][]uint32, level+1)
	for l := 0; l <= level; l++ {
		maxConn := g.m
		if l == 0 {
			maxConn = 2 * g.m
		}
		neighbors[l] = make([]uint32, 0, maxConn)
	}

	g.nodes = append(g.nodes, node{neighbors: neighbors, vec: vec})

	if id == 0 {
		g.entryPoint = 0
		g.maxLayer = level
		return
	}

	ep := g.entryPoint
	epLevel := g.maxLayer

	for lc := epLevel; lc > level; lc-- {
		ep = g.greedySearchLayer(vec, ep, lc)
	}

	for lc := min(level, epLevel); lc >= 0; lc-- {
		candidates := g.searchLayer(vec, ep, g.efConstruction, lc)
		selected := g.selectNeighbours(candidates, g.m)

		g.nodes[id].neighbors[lc] = selected

		for _, nb := range selected {
			g.nodes[nb].neighbors[lc] = append(g.nodes[nb].neighbors[lc], id)
			maxConn := g.m
			if lc == 0 {
				maxConn = 2 * g.m
			}
			if len(g.nodes[nb].neighbors[lc]) > maxConn {
				g.nodes[nb].neighbors[lc] = g.pruneNeighbours(nb, g.nodes[nb].neighbors[lc], maxConn)
			}
		}

		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > epLevel {
		g.entryPoint = id
		g.maxLayer = level
	}
}

// Query returns the indices of vectors within L2 distance radius of
// items[n]. The graph only exposes k-NN directly, so this calls
// k=queryK and filters by true distance < radius.
func (g *Graph) Query(n int, radius float32) ([]int, error) {
	if n < 0 || n >= len(g.nodes) {
		return nil, nil
	}
	query := g.nodes[n].vec

	ep := g.entryPoint
	epLevel := g.maxLayer
	for lc := epLevel; lc > 0; lc-- {
		ep = g.greedySearchLayer(query, ep, lc)
	}

	ef := g.efSearch
	if queryK > ef {
		ef = queryK
	}
	candidates := g.searchLayer(query, ep, ef, 0)
	if len(candidates) > queryK {
		candidates = candidates[:queryK]
	}

	r2 := radius * radius
	out := make([]int, 0, len(candidates))
	for _, c := range candidates {
		if -c.dist < r2 {
			out = append(out, int(c.id))
		}
	}
	sort.Ints(out)
	return out, nil
}

type candidate struct {
	id   uint32
	dist float32 // score: higher = closer
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (g *Graph) greedySearchLayer(query []float32, ep uint32, lc int) uint32 {
	best := ep
	bestScore := score(query, g.nodes[ep].vec)

	changed := true
	for changed {
		changed = false
		if lc < len(g.nodes[best].neighbors) {
			for _, nb := range g.nodes[best].neighbors[lc] {
				s := score(query, g.nodes[nb].vec)
				if s > bestScore {
					bestScore = s
					best = nb
					changed = true
				}
			}
		}
	}
	return best
}

// searchLayer performs the ef-based beam search at layer lc, returning
// candidates sorted descending by score (index 0 = closest).
func (g *Graph) searchLayer(query []float32, ep uint32, ef, lc int) []candidate {
	visited := make(map[uint32]bool)
	visited[ep] = true

	epScore := score(query, g.nodes[ep].vec)

	C := &maxHeap{{id: ep, dist: epScore}}
	heap.Init(C)

	W := []candidate{{id: ep, dist: epScore}}
	worstScore := epScore

	minScoreInW := func() float32 {
		m := W[0].dist
		for _, c := range W[1:] {
			if c.dist < m {
				m = c.dist
			}
		}
		return m
	}

	for C.Len() > 0 {
		c := heap.Pop(C).(candidate)

		if len(W) >= ef && c.dist < worstScore {
			break
		}

		if lc < len(g.nodes[c.id].neighbors) {
			for _, nb := range g.nodes[c.id].neighbors[lc] {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				s := score(query, g.nodes[nb].vec)

				if len(W) < ef || s > worstScore {
					heap.Push(C, candidate{id: nb, dist: s})
					W = append(W, candidate{id: nb, dist: s})
					if len(W) > ef {
						minIdx := 0
						for i := 1; i < len(W); i++ {
							if W[i].dist < W[minIdx].dist {
								minIdx = i
							}
						}
						W[minIdx] = W[len(W)-1]
						W = W[:len(W)-1]
					}
					worstScore = minScoreInW()
				}
			}
		}
	}

	sort.Slice(W, func(i, j int) bool { return W[i].dist > W[j].dist })
	return W
}

func (g *Graph) selectNeighbours(candidates []candidate, m int) []uint32 {
	if len(candidates) <= m {
		ids := make([]uint32, len(candidates))
		for i, c := range candidates {
			ids[i] = c.id
		}
		return ids
	}
	ids := make([]uint32, m)
	for i := 0; i < m; i++ {
		ids[i] = candidates[i].id
	}
	return ids
}

func (g *Graph) pruneNeighbours(id uint32, nbs []uint32, maxConn int) []uint32 {
	type nb struct {
		id   uint32
		dist float32
	}
	scored := make([]nb, len(nbs))
	for i, n := range nbs {
		scored[i] = nb{id: n, dist: score(g.nodes[id].vec, g.nodes[n].vec)}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].dist > scored[j].dist })
	if len(scored) > maxConn {
		scored = scored[:maxConn]
	}
	out := make([]uint32, len(scored))
	for i, s := range scored {
		out[i] = s.id
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
