// Package engine implements the in-process LinkManager. Manager owns the link
// store and index exclusively and is the single lock owner: every mutation
// runs its checks and its index update inside one write-locked section, reads
// share a read lock, and persistence hooks run after the lock is released.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/linkgraph/internal/graph"
	"github.com/mesh-intelligence/linkgraph/internal/index"
	"github.com/mesh-intelligence/linkgraph/internal/store"
	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// maxHookConcurrency bounds how many hooks receive one batch of changes at
// the same time.
const maxHookConcurrency = 8

var _ types.LinkManager = (*Manager)(nil)

// Manager is the in-process LinkManager.
type Manager struct {
	mu    sync.RWMutex
	store *store.LinkStore

	hooks  []types.PersistenceHook
	oracle types.BlockOracle
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHooks appends persistence hooks. Hooks are called in no particular
// order relative to each other. The changes of one mutation reach each hook
// in order; notifications of concurrent mutations may interleave.
func WithHooks(hooks ...types.PersistenceHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, hooks...) }
}

// WithBlockOracle makes creates and upserts reject links to unknown blocks.
func WithBlockOracle(oracle types.BlockOracle) Option {
	return func(m *Manager) { m.oracle = oracle }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.store = store.New(index.New(), m.now)
	return m
}

// NewCache returns an existence cache backed by the manager's oracle, for a
// caller that wants to share block lookups across several calls.
func (m *Manager) NewCache() *ExistenceCache {
	return NewExistenceCache(m.oracle)
}

// Validate checks spec without touching the graph: field validation first,
// then block existence through cache.
func (m *Manager) Validate(ctx context.Context, cache *ExistenceCache, spec types.LinkSpec) error {
	if err := spec.Link().Validate(); err != nil {
		return err
	}
	return cache.Require(ctx, spec.FromID, spec.ToID)
}

// CreateLink implements types.LinkManager.
func (m *Manager) CreateLink(ctx context.Context, spec types.LinkSpec) (types.Result, error) {
	if err := m.Validate(ctx, m.NewCache(), spec); err != nil {
		return types.Result{}, err
	}

	m.mu.Lock()
	link, err := m.store.Insert(spec.Link())
	m.mu.Unlock()
	if err != nil {
		return types.Result{}, err
	}
	m.logger.Debug("link created", "link", link.Key().String())

	warning := m.notify(ctx, types.LinkChange{Link: link, Op: types.OpCreate})
	return types.Result{Link: link, Operation: types.OpCreate, Warning: warning}, nil
}

// DeleteLink implements types.LinkManager. It never fails for an absent link.
func (m *Manager) DeleteLink(ctx context.Context, from, to string, r types.Relation) (types.DeleteResult, error) {
	m.mu.Lock()
	link, ok := m.store.Remove(from, to, r)
	m.mu.Unlock()
	if !ok {
		return types.DeleteResult{}, nil
	}
	m.logger.Debug("link deleted", "link", link.Key().String())

	warning := m.notify(ctx, types.LinkChange{Link: link, Op: types.OpDelete})
	return types.DeleteResult{Deleted: true, Link: link, Warning: warning}, nil
}

// LinksFrom implements types.LinkManager.
func (m *Manager) LinksFrom(_ context.Context, blockID string, q types.LinkQuery) (types.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetOutbound(blockID, q)
}

// LinksTo implements types.LinkManager.
func (m *Manager) LinksTo(_ context.Context, blockID string, q types.LinkQuery) (types.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.GetInbound(blockID, q)
}

// Links implements types.LinkManager.
func (m *Manager) Links(_ context.Context, blockID string, q types.LinkQuery) (types.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch q.Direction() {
	case types.DirectionInbound:
		return m.store.GetInbound(blockID, q)
	case types.DirectionBoth:
		return m.store.GetBoth(blockID, q)
	default:
		return m.store.GetOutbound(blockID, q)
	}
}

// ReadyBlocks implements types.LinkManager.
func (m *Manager) ReadyBlocks(_ context.Context, r types.Relation) ([]string, error) {
	if _, err := r.Category(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Index().ReadyBlocks(r), nil
}

// HasCycle implements types.LinkManager.
func (m *Manager) HasCycle(_ context.Context, start string, r types.Relation) (bool, error) {
	if _, err := r.Category(); err != nil {
		return false, err
	}
	if start == "" {
		return false, fmt.Errorf("%w: start block is required", types.ErrInvalidID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return graph.HasCycle(m.store.Index(), start, r), nil
}

// TopoSort implements types.LinkManager.
func (m *Manager) TopoSort(_ context.Context, ids []string, r types.Relation) ([]string, error) {
	if _, err := r.Category(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: empty block ID in sort set", types.ErrInvalidID)
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return graph.TopoSort(m.store.Index(), ids, r)
}

// BulkUpsert implements types.LinkManager with one existence cache shared by
// the whole batch.
func (m *Manager) BulkUpsert(ctx context.Context, specs []types.LinkSpec) []types.BulkOutcome {
	return m.BulkUpsertCached(ctx, m.NewCache(), specs)
}

// BulkUpsertCached is BulkUpsert with a caller-owned existence cache. Each
// entry is validated, applied under its own write lock, and reported
// independently.
func (m *Manager) BulkUpsertCached(ctx context.Context, cache *ExistenceCache, specs []types.LinkSpec) []types.BulkOutcome {
	outcomes := make([]types.BulkOutcome, len(specs))
	for i, spec := range specs {
		outcomes[i].Index = i
		if err := m.Validate(ctx, cache, spec); err != nil {
			outcomes[i].Err = err
			continue
		}

		m.mu.Lock()
		link, op, err := m.store.Upsert(spec.Link())
		m.mu.Unlock()
		if err != nil {
			outcomes[i].Err = err
			continue
		}
		outcomes[i].Link = link
		outcomes[i].Operation = op
		outcomes[i].Warning = m.notify(ctx, types.LinkChange{Link: link, Op: op})
	}

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	m.logger.Debug("bulk upsert applied", "entries", len(specs), "failed", failed)
	return outcomes
}

// DeleteLinksForBlock implements types.LinkManager. Hooks fire once per
// removed link so side effects such as parent pointers are cleared.
func (m *Manager) DeleteLinksForBlock(ctx context.Context, blockID string) (types.CascadeResult, error) {
	if blockID == "" {
		return types.CascadeResult{}, fmt.Errorf("%w: block ID is required", types.ErrInvalidID)
	}

	m.mu.Lock()
	removed := m.store.RemoveAllForBlock(blockID)
	m.mu.Unlock()

	changes := make([]types.LinkChange, len(removed))
	for i, l := range removed {
		changes[i] = types.LinkChange{Link: l, Op: types.OpDelete}
	}
	m.logger.Debug("block links removed", "block", blockID, "count", len(removed))

	return types.CascadeResult{
		Count:   len(removed),
		Removed: removed,
		Warning: m.notify(ctx, changes...),
	}, nil
}

// Restore loads links that are already durable, e.g. on startup. Links are
// inserted oldest first with full validation and cycle checks; no hooks
// fire. It returns how many were loaded and one error per rejected link.
func (m *Manager) Restore(links []types.Link) (int, []error) {
	ordered := make([]types.Link, len(links))
	copy(ordered, links)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	loaded := 0
	for _, l := range ordered {
		if _, err := m.store.Insert(l); err != nil {
			m.logger.Warn("rejected stored link", "link", l.Key().String(), "error", err)
			errs = append(errs, fmt.Errorf("restoring %s: %w", l.Key(), err))
			continue
		}
		loaded++
	}
	return loaded, errs
}

// Get returns the link stored under key.
func (m *Manager) Get(key types.LinkKey) (types.Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Get(key)
}

// Snapshot returns every link in ordering-contract order.
func (m *Manager) Snapshot() []types.Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.All()
}

// Len returns the number of links.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Len()
}

// notify delivers changes to every hook. It must be called without m.mu
// held. Hooks run concurrently with each other; each receives the changes
// in order. Failures are logged and returned joined, never rolled back.
func (m *Manager) notify(ctx context.Context, changes ...types.LinkChange) error {
	if len(m.hooks) == 0 || len(changes) == 0 {
		return nil
	}

	errs := make([]error, len(m.hooks))
	var g errgroup.Group
	g.SetLimit(maxHookConcurrency)
	for i, h := range m.hooks {
		g.Go(func() error {
			for _, c := range changes {
				if err := h.OnLinkChanged(ctx, c); err != nil {
					errs[i] = errors.Join(errs[i], fmt.Errorf("%s %s: %w", c.Op, c.Link.Key(), err))
				}
			}
			return errs[i]
		})
	}
	_ = g.Wait()

	err := errors.Join(errs...)
	if err != nil {
		m.logger.Warn("persistence hook failed", "changes", len(changes), "error", err)
	}
	return err
}
