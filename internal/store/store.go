// Package store holds the authoritative link map. It enforces uniqueness,
// the self-loop ban, and acyclicity before mutating, and keeps the link index
// in step with every change.
//
// LinkStore performs no locking; its owner serializes writers against readers.
package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/linkgraph/internal/graph"
	"github.com/mesh-intelligence/linkgraph/internal/index"
	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// entry is a stored link plus its insertion sequence, which breaks ordering
// ties between links with identical priority and timestamp.
type entry struct {
	link types.Link
	seq  uint64
}

type keySet map[types.LinkKey]struct{}

// LinkStore is the composite-key map of links.
type LinkStore struct {
	links  map[types.LinkKey]*entry
	byFrom map[string]keySet
	byTo   map[string]keySet
	index  *index.LinkIndex
	seq    uint64
	now    func() time.Time
}

// New returns an empty store that writes through to ix. A nil clock uses
// time.Now.
func New(ix *index.LinkIndex, now func() time.Time) *LinkStore {
	if now == nil {
		now = time.Now
	}
	return &LinkStore{
		links:  make(map[types.LinkKey]*entry),
		byFrom: make(map[string]keySet),
		byTo:   make(map[string]keySet),
		index:  ix,
		now:    now,
	}
}

// Index returns the index the store maintains, for read-only traversal.
func (s *LinkStore) Index() *index.LinkIndex {
	return s.index
}

// Len returns the number of stored links.
func (s *LinkStore) Len() int {
	return len(s.links)
}

// Get returns the link stored under key.
func (s *LinkStore) Get(key types.LinkKey) (types.Link, bool) {
	e, ok := s.links[key]
	if !ok {
		return types.Link{}, false
	}
	return e.link.Clone(), true
}

// Insert validates and stores link. Checks run in order: field validation
// (including the self-loop ban), duplicate key, then cycle detection for
// acyclic relations. A rejected link leaves the store and index untouched.
// LinkID and CreatedAt are filled in when empty.
func (s *LinkStore) Insert(link types.Link) (types.Link, error) {
	if err := link.Validate(); err != nil {
		return types.Link{}, err
	}
	key := link.Key()
	if _, ok := s.links[key]; ok {
		return types.Link{}, fmt.Errorf("%w: %s", types.ErrDuplicateLink, key)
	}
	if link.Relation.IsAcyclic() && graph.WouldCreateCycle(s.index, link.FromID, link.ToID, link.Relation) {
		return types.Link{}, fmt.Errorf("%w: %s", types.ErrCycleDetected, key)
	}

	link = link.Clone()
	if link.LinkID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return types.Link{}, fmt.Errorf("generating UUID v7: %w", err)
		}
		link.LinkID = id.String()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = s.now().UTC()
	}

	s.seq++
	s.links[key] = &entry{link: link, seq: s.seq}
	addKey(s.byFrom, link.FromID, key)
	addKey(s.byTo, link.ToID, key)
	s.index.AddEdge(link.FromID, link.ToID, link.Relation)
	return link.Clone(), nil
}

// Upsert inserts link, or when its key exists updates the priority, metadata
// and created_by of the stored link. Identity fields, LinkID and CreatedAt of
// an existing link never change.
func (s *LinkStore) Upsert(link types.Link) (types.Link, types.Operation, error) {
	if err := link.Validate(); err != nil {
		return types.Link{}, "", err
	}
	e, ok := s.links[link.Key()]
	if !ok {
		stored, err := s.Insert(link)
		if err != nil {
			return types.Link{}, "", err
		}
		return stored, types.OpCreate, nil
	}
	e.link.Priority = link.Priority
	e.link.Metadata = link.Clone().Metadata
	e.link.CreatedBy = link.CreatedBy
	return e.link.Clone(), types.OpUpdate, nil
}

// Remove deletes the link with the given key. It reports false when no such
// link exists.
func (s *LinkStore) Remove(from, to string, r types.Relation) (types.Link, bool) {
	key := types.LinkKey{FromID: from, ToID: to, Relation: r}
	e, ok := s.links[key]
	if !ok {
		return types.Link{}, false
	}
	s.removeEntry(key, e)
	return e.link, true
}

// RemoveAllForBlock deletes every link whose source or target is blockID and
// returns them in ordering-contract order. Nothing in the batch can fail, so
// the removal is all-or-nothing under the owner's lock.
func (s *LinkStore) RemoveAllForBlock(blockID string) []types.Link {
	keys := make(keySet)
	for k := range s.byFrom[blockID] {
		keys[k] = struct{}{}
	}
	for k := range s.byTo[blockID] {
		keys[k] = struct{}{}
	}

	entries := make([]*entry, 0, len(keys))
	for k := range keys {
		entries = append(entries, s.links[k])
	}
	sortEntries(entries)

	removed := make([]types.Link, 0, len(entries))
	for _, e := range entries {
		s.removeEntry(e.link.Key(), e)
		removed = append(removed, e.link)
	}
	return removed
}

func (s *LinkStore) removeEntry(key types.LinkKey, e *entry) {
	delete(s.links, key)
	removeKey(s.byFrom, e.link.FromID, key)
	removeKey(s.byTo, e.link.ToID, key)
	s.index.RemoveEdge(e.link.FromID, e.link.ToID, e.link.Relation)
}

// GetOutbound returns links leaving blockID, and with q.Depth() > 1 links
// leaving the blocks reached through them.
func (s *LinkStore) GetOutbound(blockID string, q types.LinkQuery) (types.Page, error) {
	return s.collect(blockID, q, true, false)
}

// GetInbound returns links arriving at blockID, and with q.Depth() > 1 links
// arriving at the blocks reached through them.
func (s *LinkStore) GetInbound(blockID string, q types.LinkQuery) (types.Page, error) {
	return s.collect(blockID, q, false, true)
}

// GetBoth returns the union of GetOutbound and GetInbound.
func (s *LinkStore) GetBoth(blockID string, q types.LinkQuery) (types.Page, error) {
	return s.collect(blockID, q, true, true)
}

// collect walks up to q.Depth() hops from blockID breadth-first, gathers the
// matching links, orders them (priority desc, created_at desc, insertion desc)
// and cuts the page at the cursor and limit.
func (s *LinkStore) collect(blockID string, q types.LinkQuery, outbound, inbound bool) (types.Page, error) {
	if err := q.Validate(); err != nil {
		return types.Page{}, err
	}
	if blockID == "" {
		return types.Page{}, fmt.Errorf("%w: block ID is required", types.ErrInvalidID)
	}

	seen := make(map[types.LinkKey]*entry)
	visited := map[string]bool{blockID: true}
	frontier := []string{blockID}
	for depth := 0; depth < q.Depth() && len(frontier) > 0; depth++ {
		var next []string
		for _, b := range frontier {
			if outbound {
				next = s.expand(s.byFrom[b], q.Relation(), seen, visited, next, func(l types.Link) string { return l.ToID })
			}
			if inbound {
				next = s.expand(s.byTo[b], q.Relation(), seen, visited, next, func(l types.Link) string { return l.FromID })
			}
		}
		frontier = next
	}

	entries := make([]*entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sortEntries(entries)

	if c := q.Cursor(); c != "" {
		pos, err := types.DecodeCursor(c)
		if err != nil {
			return types.Page{}, err
		}
		i := sort.Search(len(entries), func(i int) bool { return after(entries[i], pos) })
		entries = entries[i:]
	}

	page := types.Page{Links: make([]types.Link, 0, min(len(entries), q.Limit()))}
	for i, e := range entries {
		if i == q.Limit() {
			last := entries[i-1]
			page.NextCursor = types.EncodeCursor(position(last))
			break
		}
		page.Links = append(page.Links, e.link.Clone())
	}
	return page, nil
}

func (s *LinkStore) expand(keys keySet, rel types.Relation, seen map[types.LinkKey]*entry, visited map[string]bool, next []string, far func(types.Link) string) []string {
	for k := range keys {
		if rel != "" && k.Relation != rel {
			continue
		}
		e := s.links[k]
		seen[k] = e
		b := far(e.link)
		if !visited[b] {
			visited[b] = true
			next = append(next, b)
		}
	}
	return next
}

// All returns every stored link in ordering-contract order.
func (s *LinkStore) All() []types.Link {
	entries := make([]*entry, 0, len(s.links))
	for _, e := range s.links {
		entries = append(entries, e)
	}
	sortEntries(entries)
	out := make([]types.Link, len(entries))
	for i, e := range entries {
		out[i] = e.link.Clone()
	}
	return out
}

// sortEntries orders by priority desc, created_at desc, insertion seq desc.
func sortEntries(entries []*entry) {
	sort.Slice(entries, func(i, j int) bool {
		return before(entries[i], entries[j])
	})
}

func before(a, b *entry) bool {
	if a.link.Priority != b.link.Priority {
		return a.link.Priority > b.link.Priority
	}
	if !a.link.CreatedAt.Equal(b.link.CreatedAt) {
		return a.link.CreatedAt.After(b.link.CreatedAt)
	}
	return a.seq > b.seq
}

func position(e *entry) types.CursorPosition {
	return types.CursorPosition{
		Priority:  e.link.Priority,
		CreatedAt: e.link.CreatedAt.UnixNano(),
		Seq:       e.seq,
	}
}

// after reports whether e sorts strictly after the cursor position.
func after(e *entry, pos types.CursorPosition) bool {
	if e.link.Priority != pos.Priority {
		return e.link.Priority < pos.Priority
	}
	if ts := e.link.CreatedAt.UnixNano(); ts != pos.CreatedAt {
		return ts < pos.CreatedAt
	}
	return e.seq < pos.Seq
}

func addKey(m map[string]keySet, block string, key types.LinkKey) {
	s, ok := m[block]
	if !ok {
		s = make(keySet)
		m[block] = s
	}
	s[key] = struct{}{}
}

func removeKey(m map[string]keySet, block string, key types.LinkKey) {
	s, ok := m[block]
	if !ok {
		return
	}
	delete(s, key)
	if len(s) == 0 {
		delete(m, block)
	}
}
