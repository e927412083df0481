package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// ExistenceCache memoizes block existence answers for the lifetime of one
// request or batch. The caller owns it; nothing caches across calls.
type ExistenceCache struct {
	oracle types.BlockOracle

	mu    sync.Mutex
	known map[string]bool
}

// NewExistenceCache wraps oracle. A nil oracle accepts every block.
func NewExistenceCache(oracle types.BlockOracle) *ExistenceCache {
	return &ExistenceCache{oracle: oracle, known: make(map[string]bool)}
}

// Exists reports whether id exists, asking the oracle at most once per id.
func (c *ExistenceCache) Exists(ctx context.Context, id string) (bool, error) {
	if c == nil || c.oracle == nil {
		return true, nil
	}
	c.mu.Lock()
	exists, ok := c.known[id]
	c.mu.Unlock()
	if ok {
		return exists, nil
	}

	exists, err := c.oracle.BlockExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("checking block %s: %w", id, err)
	}
	c.mu.Lock()
	c.known[id] = exists
	c.mu.Unlock()
	return exists, nil
}

// Require returns ErrBlockNotFound for the first id that does not exist.
func (c *ExistenceCache) Require(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		exists, err := c.Exists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: %s", types.ErrBlockNotFound, id)
		}
	}
	return nil
}

// Forget drops the cached answer for id, e.g. after the block was deleted.
func (c *ExistenceCache) Forget(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.known, id)
	c.mu.Unlock()
}
