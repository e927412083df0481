// Package index maintains the incremental adjacency index over stored links.
//
// For every relation the index keeps forward (from → targets) and reverse
// (to → sources) adjacency plus per-block in-degree and out-degree counters.
// Counters are updated on every AddEdge/RemoveEdge and never recomputed.
//
// Reads operate on relation views: the view of r contains the stored r
// edges, the stored edges of r's inverse walked backwards, and for symmetric
// relations the stored r edges walked backwards as well. Storing
// "A blocks B" therefore also makes "B is_blocked_by A" visible.
//
// The index is not safe for concurrent use; its owner serializes access.
package index

import (
	"sort"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

type blockSet map[string]struct{}

// relationEdges is the adjacency of one stored relation.
type relationEdges struct {
	forward   map[string]blockSet
	reverse   map[string]blockSet
	inDegree  map[string]int
	outDegree map[string]int
}

func newRelationEdges() *relationEdges {
	return &relationEdges{
		forward:   make(map[string]blockSet),
		reverse:   make(map[string]blockSet),
		inDegree:  make(map[string]int),
		outDegree: make(map[string]int),
	}
}

// LinkIndex is the auxiliary structure behind dependency and traversal
// queries.
type LinkIndex struct {
	relations map[types.Relation]*relationEdges
	edges     int
}

// New returns an empty index.
func New() *LinkIndex {
	return &LinkIndex{relations: make(map[types.Relation]*relationEdges)}
}

// AddEdge records from → to under r. The caller guarantees the edge is not
// already present; adding it twice double-counts degrees.
func (ix *LinkIndex) AddEdge(from, to string, r types.Relation) {
	re, ok := ix.relations[r]
	if !ok {
		re = newRelationEdges()
		ix.relations[r] = re
	}
	addTo(re.forward, from, to)
	addTo(re.reverse, to, from)
	re.outDegree[from]++
	re.inDegree[to]++
	ix.edges++
}

// RemoveEdge removes from → to under r. Removing an absent edge is a no-op.
func (ix *LinkIndex) RemoveEdge(from, to string, r types.Relation) {
	re, ok := ix.relations[r]
	if !ok {
		return
	}
	if _, ok := re.forward[from][to]; !ok {
		return
	}
	removeFrom(re.forward, from, to)
	removeFrom(re.reverse, to, from)
	decrement(re.outDegree, from)
	decrement(re.inDegree, to)
	ix.edges--
	if len(re.forward) == 0 {
		delete(ix.relations, r)
	}
}

// HasEdge reports whether from → to is stored under r.
func (ix *LinkIndex) HasEdge(from, to string, r types.Relation) bool {
	re, ok := ix.relations[r]
	if !ok {
		return false
	}
	_, ok = re.forward[from][to]
	return ok
}

// Len returns the number of stored edges across all relations.
func (ix *LinkIndex) Len() int {
	return ix.edges
}

// OutNeighbors returns the sorted targets of from in the view of r.
func (ix *LinkIndex) OutNeighbors(from string, r types.Relation) []string {
	out := make(blockSet)
	if re, ok := ix.relations[r]; ok {
		union(out, re.forward[from])
		if r.IsSymmetric() {
			union(out, re.reverse[from])
		}
	}
	if inv := r.Inverse(); inv != r {
		if re, ok := ix.relations[inv]; ok {
			union(out, re.reverse[from])
		}
	}
	return sorted(out)
}

// InNeighbors returns the sorted sources of to in the view of r.
func (ix *LinkIndex) InNeighbors(to string, r types.Relation) []string {
	in := make(blockSet)
	if re, ok := ix.relations[r]; ok {
		union(in, re.reverse[to])
		if r.IsSymmetric() {
			union(in, re.forward[to])
		}
	}
	if inv := r.Inverse(); inv != r {
		if re, ok := ix.relations[inv]; ok {
			union(in, re.forward[to])
		}
	}
	return sorted(in)
}

// InDegree returns the in-degree of block in the view of r, computed from
// the stored counters.
func (ix *LinkIndex) InDegree(block string, r types.Relation) int {
	n := 0
	if re, ok := ix.relations[r]; ok {
		n += re.inDegree[block]
		if r.IsSymmetric() {
			n += re.outDegree[block]
		}
	}
	if inv := r.Inverse(); inv != r {
		if re, ok := ix.relations[inv]; ok {
			n += re.outDegree[block]
		}
	}
	return n
}

// ReadyBlocks returns, sorted, every block that participates in the view of r
// and has no unresolved r links. A block is unresolved when it has inbound
// edges in the view of r's inverse: after "A blocks B", B is_blocked_by A,
// so ReadyBlocks(is_blocked_by) holds A but not B. Blocks with no edges of r
// or its inverse are unknown to the index and never reported.
func (ix *LinkIndex) ReadyBlocks(r types.Relation) []string {
	participants := make(blockSet)
	for _, rel := range []types.Relation{r, r.Inverse()} {
		re, ok := ix.relations[rel]
		if !ok {
			continue
		}
		for b := range re.outDegree {
			participants[b] = struct{}{}
		}
		for b := range re.inDegree {
			participants[b] = struct{}{}
		}
	}

	dep := r.Inverse()
	ready := make(blockSet)
	for b := range participants {
		if ix.InDegree(b, dep) == 0 {
			ready[b] = struct{}{}
		}
	}
	return sorted(ready)
}

// Blocks returns, sorted, every block with at least one stored edge of r.
func (ix *LinkIndex) Blocks(r types.Relation) []string {
	out := make(blockSet)
	if re, ok := ix.relations[r]; ok {
		for b := range re.outDegree {
			out[b] = struct{}{}
		}
		for b := range re.inDegree {
			out[b] = struct{}{}
		}
	}
	return sorted(out)
}

func addTo(m map[string]blockSet, key, member string) {
	s, ok := m[key]
	if !ok {
		s = make(blockSet)
		m[key] = s
	}
	s[member] = struct{}{}
}

func removeFrom(m map[string]blockSet, key, member string) {
	s, ok := m[key]
	if !ok {
		return
	}
	delete(s, member)
	if len(s) == 0 {
		delete(m, key)
	}
}

func decrement(m map[string]int, key string) {
	if m[key] <= 1 {
		delete(m, key)
		return
	}
	m[key]--
}

func union(dst, src blockSet) {
	for b := range src {
		dst[b] = struct{}{}
	}
}

func sorted(s blockSet) []string {
	out := make([]string, 0, len(s))
	for b := range s {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}
