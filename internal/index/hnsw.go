// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Strata Contributors

// Package index implements an HNSW approximate nearest-neighbor index over
// record embeddings, one instance per storage tier.
//
// The graph is a multi-layer proximity structure: insertion assigns each
// element a probabilistic maximum layer and links it to its nearest
// neighbors at every layer; search descends greedily from the top layer to
// layer 0, expanding an ef-bounded candidate list at the base. Vectors are
// unit-normalized on insert, so distance is 1 - dot product and the score
// reported to callers is cosine similarity.
//
// Below a configurable element count, Search scans linearly instead of
// traversing the graph. Removals are tombstones; once enough accumulate,
// the next mutation rebuilds the graph from live elements into a fresh
// structure that is swapped in under the write lock, so readers never
// observe a partially-linked graph.
package index

import (
	"context"
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	strataerr "github.com/strata-dev/strata/pkg/errors"
)

// Result is a single search hit. Score is cosine similarity: higher is
// more similar, 1.0 an exact match.
type Result struct {
	ID    string
	Score float64
}

// Stats reports index occupancy and an estimate of resident memory.
type Stats struct {
	Count       int
	MemoryBytes int64
}

type node struct {
	id        string
	vec       []float32
	level     int
	neighbors [][]int
	deleted   bool
}

// graph is the linked structure. It is rebuilt wholesale when tombstones
// accumulate; Index swaps the pointer under its write lock.
type graph struct {
	cfg      Config
	nodes    []*node
	byID     map[string]int
	entry    int
	maxLevel int
	live     int
	// levelMult is 1/ln(M), the standard HNSW level-sampling factor.
	levelMult float64
}

// Index is a thread-safe HNSW index for one tier.
type Index struct {
	mu      sync.RWMutex
	cfg     Config
	g       *graph
	pending int
	scratch bufPool
}

// New builds an empty index, rejecting invalid configuration.
func New(cfg Config) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Index{cfg: cfg, g: newGraph(cfg)}, nil
}

func newGraph(cfg Config) *graph {
	return &graph{
		cfg:       cfg,
		byID:      make(map[string]int),
		entry:     -1,
		maxLevel:  -1,
		levelMult: 1 / math.Log(float64(cfg.MaxConnections)),
	}
}

// Add inserts or replaces a vector. Replacement tombstones the old element
// and inserts fresh, so it counts toward the rebuild threshold.
func (ix *Index) Add(id string, vec []float32) error {
	norm, err := ix.normalized(vec)
	if err != nil {
		return err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.addLocked(id, norm)
}

// AddBatch inserts many vectors. With UseParallel set, normalization is
// fanned out across workers; graph linking itself is serialized under the
// write lock since it mutates shared adjacency.
func (ix *Index) AddBatch(items map[string][]float32) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	norms := make([][]float32, len(ids))
	if ix.cfg.UseParallel && len(ids) >= 256 {
		var (
			wg       sync.WaitGroup
			firstErr error
			errOnce  sync.Once
		)
		workers := runtime.GOMAXPROCS(0)
		chunk := (len(ids) + workers - 1) / workers
		for w := 0; w < workers; w++ {
			lo := w * chunk
			if lo >= len(ids) {
				break
			}
			hi := min(lo+chunk, len(ids))
			wg.Add(1)
			go func(lo, hi int) {
				defer wg.Done()
				for i := lo; i < hi; i++ {
					n, err := ix.normalized(items[ids[i]])
					if err != nil {
						errOnce.Do(func() { firstErr = err })
						return
					}
					norms[i] = n
				}
			}(lo, hi)
		}
		wg.Wait()
		if firstErr != nil {
			return firstErr
		}
	} else {
		for i, id := range ids {
			n, err := ix.normalized(items[id])
			if err != nil {
				return err
			}
			norms[i] = n
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, id := range ids {
		if err := ix.addLocked(id, norms[i]); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Index) addLocked(id string, norm []float32) error {
	// Tombstone a same-id element first: replacement does not grow the
	// live count, so it must pass even at capacity.
	if old, ok := ix.g.byID[id]; ok {
		ix.g.nodes[old].deleted = true
		ix.g.live--
		delete(ix.g.byID, id)
		ix.pending++
	}

	if ix.g.live >= ix.cfg.MaxElements {
		return strataerr.Errorf(strataerr.CodeIndexCapacityExceeded,
			"index holds %d elements, max_elements is %d", ix.g.live, ix.cfg.MaxElements)
	}

	ix.maybeRebuildLocked()
	ix.g.insert(id, norm)
	return nil
}

// Remove tombstones an element, reporting whether it was present. The
// element stays in the graph for routing until the next rebuild.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	idx, ok := ix.g.byID[id]
	if !ok {
		return false
	}
	ix.g.nodes[idx].deleted = true
	ix.g.live--
	delete(ix.g.byID, id)
	ix.pending++

	ix.maybeRebuildLocked()
	return true
}

// maybeRebuildLocked rebuilds the graph from live elements once pending
// tombstones pass the threshold. The rebuild holds the exclusive lock for
// its whole duration and is not cancellable: abandoning it would leave a
// half-built graph.
func (ix *Index) maybeRebuildLocked() {
	if ix.pending <= ix.cfg.rebuildThreshold() {
		return
	}

	fresh := newGraph(ix.cfg)
	for _, n := range ix.g.nodes {
		if n.deleted {
			continue
		}
		fresh.insert(n.id, n.vec)
	}
	ix.g = fresh
	ix.pending = 0
}

// Search returns the k most similar elements, best first. The context is
// checked at expansion steps; cancellation abandons the traversal from the
// caller's perspective without mutating the graph.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	norm := ix.scratch.get(len(query))
	defer ix.scratch.put(norm)
	if err := normalizeInto(norm, query, ix.cfg.Dimension); err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	g := ix.g
	if g.live == 0 {
		return nil, nil
	}

	if g.live <= ix.cfg.linearScanThreshold() {
		return ix.linearScan(ctx, g, norm, k)
	}

	return g.search(ctx, norm, k, ix.cfg.EfSearch)
}

// linearScan is the small-N fallback: exact, no graph traversal.
func (ix *Index) linearScan(ctx context.Context, g *graph, norm []float32, k int) ([]Result, error) {
	var top maxQueue
	for i, n := range g.nodes {
		if i%1024 == 0 {
			if err := ctxErr(ctx); err != nil {
				return nil, err
			}
		}
		if n.deleted {
			continue
		}
		d := distance(norm, n.vec)
		if top.Len() < k {
			top.push(candidate{idx: i, dist: d})
		} else if d < top.peek().dist {
			top.pop()
			top.push(candidate{idx: i, dist: d})
		}
	}
	return g.results(top), nil
}

// Len returns the number of live elements.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.g.live
}

// Stats estimates occupancy and memory. The memory figure counts vectors
// and adjacency lists, not Go runtime overhead.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var mem int64
	for _, n := range ix.g.nodes {
		mem += int64(len(n.vec)) * 4
		mem += int64(len(n.id))
		for _, layer := range n.neighbors {
			mem += int64(len(layer)) * 8
		}
	}
	return Stats{Count: ix.g.live, MemoryBytes: mem}
}

// Config returns the index configuration.
func (ix *Index) Config() Config {
	return ix.cfg
}

func (ix *Index) normalized(vec []float32) ([]float32, error) {
	out := make([]float32, ix.cfg.Dimension)
	if err := normalizeInto(out, vec, ix.cfg.Dimension); err != nil {
		return nil, err
	}
	return out, nil
}

// --- graph internals ---

func (g *graph) randomLevel() int {
	level := int(-math.Log(rand.Float64()) * g.levelMult)
	if level >= g.cfg.MaxLayers {
		level = g.cfg.MaxLayers - 1
	}
	return level
}

// insert links a new element into the graph. Callers hold the write lock.
func (g *graph) insert(id string, vec []float32) {
	level := g.randomLevel()
	n := &node{
		id:        id,
		vec:       vec,
		level:     level,
		neighbors: make([][]int, level+1),
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.byID[id] = idx
	g.live++

	if g.entry == -1 {
		g.entry = idx
		g.maxLevel = level
		return
	}

	curr := g.entry

	// Greedy descent through layers above the new element's level.
	for l := g.maxLevel; l > level; l-- {
		curr = g.greedyClosest(vec, curr, l)
	}

	// Link at each layer from min(level, maxLevel) down to 0.
	top := min(level, g.maxLevel)
	for l := top; l >= 0; l-- {
		cands := g.searchLayer(vec, curr, g.cfg.EfConstruction, l)
		selected := g.selectNeighbors(cands, g.cfg.MaxConnections)

		n.neighbors[l] = selected
		for _, peer := range selected {
			g.link(peer, idx, l)
		}

		if len(cands) > 0 {
			curr = cands[0].idx
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = idx
	}
}

// link adds idx to peer's layer-l adjacency, pruning to the layer cap.
func (g *graph) link(peer, idx, l int) {
	p := g.nodes[peer]
	if l >= len(p.neighbors) {
		return
	}
	p.neighbors[l] = append(p.neighbors[l], idx)

	limit := g.cfg.MaxConnections
	if l == 0 {
		limit = g.cfg.MaxConnections * 2
	}
	if len(p.neighbors[l]) <= limit {
		return
	}

	// Keep the closest limit neighbors.
	cands := make([]candidate, 0, len(p.neighbors[l]))
	for _, nb := range p.neighbors[l] {
		cands = append(cands, candidate{idx: nb, dist: distance(p.vec, g.nodes[nb].vec)})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	p.neighbors[l] = p.neighbors[l][:0]
	for i := 0; i < limit; i++ {
		p.neighbors[l] = append(p.neighbors[l], cands[i].idx)
	}
}

// greedyClosest walks layer l toward the query, one best step at a time.
func (g *graph) greedyClosest(query []float32, start, l int) int {
	curr := start
	currDist := distance(query, g.nodes[curr].vec)
	for {
		improved := false
		n := g.nodes[curr]
		if l < len(n.neighbors) {
			for _, nb := range n.neighbors[l] {
				d := distance(query, g.nodes[nb].vec)
				if d < currDist {
					curr, currDist = nb, d
					improved = true
				}
			}
		}
		if !improved {
			return curr
		}
	}
}

// searchLayer expands an ef-bounded candidate list at layer l, returning
// candidates sorted closest first.
func (g *graph) searchLayer(query []float32, entry, ef, l int) []candidate {
	visited := map[int]bool{entry: true}
	entryDist := distance(query, g.nodes[entry].vec)

	frontier := minQueue{{idx: entry, dist: entryDist}}
	found := maxQueue{{idx: entry, dist: entryDist}}

	for frontier.Len() > 0 {
		c := frontier.pop()
		if c.dist > found.peek().dist && found.Len() >= ef {
			break
		}

		n := g.nodes[c.idx]
		if l >= len(n.neighbors) {
			continue
		}
		for _, nb := range n.neighbors[l] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d := distance(query, g.nodes[nb].vec)
			if found.Len() < ef || d < found.peek().dist {
				frontier.push(candidate{idx: nb, dist: d})
				found.push(candidate{idx: nb, dist: d})
				if found.Len() > ef {
					found.pop()
				}
			}
		}
	}

	out := []candidate(found)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// selectNeighbors picks up to m closest candidates.
func (g *graph) selectNeighbors(cands []candidate, m int) []int {
	if len(cands) > m {
		cands = cands[:m]
	}
	out := make([]int, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.idx)
	}
	return out
}

// search descends from the top layer to layer 0, then expands an
// efSearch-bounded candidate list and returns the k best live elements.
func (g *graph) search(ctx context.Context, query []float32, k, efSearch int) ([]Result, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	curr := g.entry
	for l := g.maxLevel; l > 0; l-- {
		curr = g.greedyClosest(query, curr, l)
	}

	if err := ctxErr(ctx); err != nil {
		return nil, err
	}

	ef := max(efSearch, k)
	cands := g.searchLayer(query, curr, ef, 0)

	var top maxQueue
	for _, c := range cands {
		if g.nodes[c.idx].deleted {
			continue
		}
		if top.Len() < k {
			top.push(c)
		} else if c.dist < top.peek().dist {
			top.pop()
			top.push(c)
		}
	}
	return g.results(top), nil
}

// results drains a farthest-first queue into best-first Results.
func (g *graph) results(top maxQueue) []Result {
	out := make([]Result, top.Len())
	for i := top.Len() - 1; i >= 0; i-- {
		c := top.pop()
		out[i] = Result{ID: g.nodes[c.idx].id, Score: 1 - float64(c.dist)}
	}
	return out
}

func ctxErr(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return strataerr.Wrap(ctx.Err(), strataerr.CodeQuerySearchTimeout, "index search timed out")
		}
		return strataerr.Wrap(ctx.Err(), strataerr.CodeQuerySearchFailure, "index search cancelled")
	default:
		return nil
	}
}
