package sqlite

import (
	"context"
	"sync"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// mirror is the persistence hook that keeps the links table, the parent
// pointers and links.jsonl in step with the engine.
//
// Hooks for different mutations may run concurrently and out of commit
// order, so mirror never replays the change it is given. It reads the
// engine's current state for the changed key and writes that, which makes the
// last hook to run for a key leave the mirror correct.
type mirror struct {
	b  *Backend
	mu sync.Mutex
}

func (mi *mirror) OnLinkChanged(ctx context.Context, c types.LinkChange) error {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	b := mi.b
	key := c.Link.Key()
	if current, ok := b.manager.Get(key); ok {
		if err := b.links.upsert(ctx, b.db, current); err != nil {
			return err
		}
	} else if err := b.links.delete(ctx, key); err != nil {
		return err
	}
	if child, _, isParent := parentEdge(c.Link, b.parentRel); isParent {
		if err := mi.refreshParent(ctx, child); err != nil {
			return err
		}
	}

	if b.shouldPersistImmediately() {
		return b.persistJSONL(ctx)
	}
	return b.queueWrite(c.Op, key)
}

// refreshParent points child at the parent named by its first remaining
// parent link, in ordering contract order, or clears the pointer when none
// is left. A block may have several parent links; the pointer follows the
// most important one.
func (mi *mirror) refreshParent(ctx context.Context, child string) error {
	b := mi.b
	q := types.NewQuery().WithDirection(types.DirectionBoth)
	for {
		page, err := b.manager.Links(ctx, child, q)
		if err != nil {
			return err
		}
		for _, l := range page.Links {
			if c, parent, ok := parentEdge(l, b.parentRel); ok && c == child {
				return b.links.setParent(ctx, b.db, child, parent, l.LinkID)
			}
		}
		if page.NextCursor == "" {
			return b.links.clearParent(ctx, child)
		}
		q = q.WithCursor(page.NextCursor)
	}
}
