// Package graph implements the traversal algorithms of the link graph:
// cycle detection before insert, cycle probing from a start block, and
// deterministic topological ordering of a block subset.
package graph

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// Adjacency is the read side of the link index the algorithms walk.
// Neighbor lists are returned sorted.
type Adjacency interface {
	OutNeighbors(from string, r types.Relation) []string
	InNeighbors(to string, r types.Relation) []string
}

// WouldCreateCycle reports whether adding from → to under r closes a cycle,
// that is whether from is already reachable from to.
func WouldCreateCycle(adj Adjacency, from, to string, r types.Relation) bool {
	if from == to {
		return true
	}
	visited := map[string]bool{to: true}
	stack := []string{to}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj.OutNeighbors(n, r) {
			if next == from {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// HasCycle reports whether a cycle of r is reachable from start.
func HasCycle(adj Adjacency, start string, r types.Relation) bool {
	const (
		white = iota
		grey
		black
	)
	colour := make(map[string]int)

	// Iterative three-colour DFS. Each frame remembers the next neighbor to
	// visit so the grey set always equals the current path.
	type frame struct {
		node      string
		neighbors []string
		next      int
	}
	colour[start] = grey
	stack := []*frame{{node: start, neighbors: adj.OutNeighbors(start, r)}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next == len(top.neighbors) {
			colour[top.node] = black
			stack = stack[:len(stack)-1]
			continue
		}
		n := top.neighbors[top.next]
		top.next++
		switch colour[n] {
		case grey:
			return true
		case white:
			colour[n] = grey
			stack = append(stack, &frame{node: n, neighbors: adj.OutNeighbors(n, r)})
		}
	}
	return false
}

// TopoSort orders ids so that every r edge between two of them points from an
// earlier to a later block. Edges leaving the set are ignored. Ties are broken
// by lexical block ID, so the result is deterministic. Duplicate ids collapse.
// Returns ErrCycleDetected naming the unresolved blocks if no order exists.
func TopoSort(adj Adjacency, ids []string, r types.Relation) ([]string, error) {
	members := make(map[string]bool, len(ids))
	for _, id := range ids {
		members[id] = true
	}

	inDegree := make(map[string]int, len(members))
	for id := range members {
		for _, src := range adj.InNeighbors(id, r) {
			if members[src] && src != id {
				inDegree[id]++
			}
		}
	}

	queue := &minHeap{}
	for id := range members {
		if inDegree[id] == 0 {
			heap.Push(queue, id)
		}
	}

	order := make([]string, 0, len(members))
	for queue.Len() > 0 {
		n := heap.Pop(queue).(string)
		order = append(order, n)
		for _, next := range adj.OutNeighbors(n, r) {
			if !members[next] || next == n {
				continue
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				heap.Push(queue, next)
			}
		}
	}

	if len(order) < len(members) {
		var stuck []string
		for id := range members {
			if inDegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %s among %s", types.ErrCycleDetected, r, strings.Join(stuck, ", "))
	}
	return order, nil
}

// minHeap is a lexical min-heap of block IDs.
type minHeap []string

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(string)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
