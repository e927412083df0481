// Package sqlite implements the persistence-backed LinkManager. The in-process
// engine stays authoritative for every invariant; a SQLite database mirrors
// it for parent lookups, and links.jsonl in DataDir is the source of truth
// that both are rebuilt from on attach.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/linkgraph/internal/engine"
	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// dbFile is the mirror database inside DataDir.
const dbFile = "linkgraph.db"

var _ types.LinkManager = (*Backend)(nil)

// Backend implements types.LinkManager on top of engine.Manager with SQLite
// and JSONL persistence.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	links    *linksTable
	manager  *engine.Manager

	parentRel types.Relation
	logger    *slog.Logger
	oracle    types.BlockOracle
	hooks     []types.PersistenceHook

	// Sync strategy state.
	syncStrategy  string
	batchSize     int
	batchInterval time.Duration
	pendingWrites []pendingWrite
	batchTimer    *time.Timer
	batchMu       sync.Mutex
}

// pendingWrite records a mirrored change whose JSONL write is deferred by the
// on_close and batch strategies.
type pendingWrite struct {
	op  types.Operation
	key types.LinkKey
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger passed down to the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// WithBlockOracle rejects links to blocks the oracle does not know.
func WithBlockOracle(oracle types.BlockOracle) Option {
	return func(b *Backend) { b.oracle = oracle }
}

// WithHooks adds hooks that run after the mirror hook.
func WithHooks(hooks ...types.PersistenceHook) Option {
	return func(b *Backend) { b.hooks = append(b.hooks, hooks...) }
}

// NewBackend creates a new backend. It is not attached; call Attach with a
// Config to initialize.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach opens the backend on config.DataDir. It creates the directory and
// an empty links.jsonl if needed, rebuilds linkgraph.db from the JSONL file,
// and restores the links into the engine with full validation. Links that
// fail validation are dropped from the mirror and the file.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if err := ensureJSONL(filepath.Join(dataDir, linksJSONL)); err != nil {
		return err
	}

	// The database is a derived mirror; start from a fresh file every time.
	dbPath := filepath.Join(dataDir, dbFile)
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbFile, err)
	}
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return err
	}

	ctx := context.Background()
	read, inserted, filled, err := loadJSONL(ctx, db, dataDir, b.logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.config = config
	b.config.DataDir = dataDir
	b.db = db
	b.links = &linksTable{db: db}
	b.parentRel = config.GetParentRelation()

	stored, err := b.links.all(ctx)
	if err != nil {
		db.Close()
		return err
	}
	hooks := append([]types.PersistenceHook{&mirror{b: b}}, b.hooks...)
	b.manager = engine.New(
		engine.WithHooks(hooks...),
		engine.WithBlockOracle(b.oracle),
		engine.WithLogger(b.logger),
	)
	loaded, rejected := b.manager.Restore(stored)

	if err := b.links.replaceAll(ctx, b.manager.Snapshot(), b.parentRel); err != nil {
		db.Close()
		return err
	}
	if loaded != read || filled > 0 {
		// Rewrite the file so it drops records the engine refused and keeps
		// the IDs assigned to records that had none.
		if err := b.persistJSONL(ctx); err != nil {
			db.Close()
			return err
		}
	}
	b.logger.Info("link graph attached", "data_dir", dataDir, "links", loaded, "rejected", len(rejected), "skipped", read-inserted)

	b.syncStrategy = config.SQLiteConfig.GetSyncStrategy()
	b.batchSize = config.SQLiteConfig.GetBatchSize()
	b.batchInterval = time.Duration(config.SQLiteConfig.GetBatchInterval()) * time.Second
	b.pendingWrites = nil
	if b.syncStrategy == types.SyncBatch && b.batchInterval > 0 {
		b.startBatchTimer()
	}

	b.attached = true
	return nil
}

// Detach flushes deferred writes and releases the database. After Detach all
// operations return ErrDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	b.stopBatchTimer()
	if err := b.flushPendingWritesLocked(); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	b.manager = nil
	b.links = nil
	return nil
}

// use returns the engine under a read lock. The caller must call release.
func (b *Backend) use() (m *engine.Manager, release func(), err error) {
	b.mu.RLock()
	if !b.attached {
		b.mu.RUnlock()
		return nil, nil, types.ErrDetached
	}
	return b.manager, b.mu.RUnlock, nil
}

// CreateLink implements types.LinkManager.
func (b *Backend) CreateLink(ctx context.Context, spec types.LinkSpec) (types.Result, error) {
	m, release, err := b.use()
	if err != nil {
		return types.Result{}, err
	}
	defer release()
	return m.CreateLink(ctx, spec)
}

// DeleteLink implements types.LinkManager.
func (b *Backend) DeleteLink(ctx context.Context, from, to string, r types.Relation) (types.DeleteResult, error) {
	m, release, err := b.use()
	if err != nil {
		return types.DeleteResult{}, err
	}
	defer release()
	return m.DeleteLink(ctx, from, to, r)
}

// LinksFrom implements types.LinkManager.
func (b *Backend) LinksFrom(ctx context.Context, blockID string, q types.LinkQuery) (types.Page, error) {
	m, release, err := b.use()
	if err != nil {
		return types.Page{}, err
	}
	defer release()
	return m.LinksFrom(ctx, blockID, q)
}

// LinksTo implements types.LinkManager.
func (b *Backend) LinksTo(ctx context.Context, blockID string, q types.LinkQuery) (types.Page, error) {
	m, release, err := b.use()
	if err != nil {
		return types.Page{}, err
	}
	defer release()
	return m.LinksTo(ctx, blockID, q)
}

// Links implements types.LinkManager.
func (b *Backend) Links(ctx context.Context, blockID string, q types.LinkQuery) (types.Page, error) {
	m, release, err := b.use()
	if err != nil {
		return types.Page{}, err
	}
	defer release()
	return m.Links(ctx, blockID, q)
}

// ReadyBlocks implements types.LinkManager.
func (b *Backend) ReadyBlocks(ctx context.Context, r types.Relation) ([]string, error) {
	m, release, err := b.use()
	if err != nil {
		return nil, err
	}
	defer release()
	return m.ReadyBlocks(ctx, r)
}

// HasCycle implements types.LinkManager.
func (b *Backend) HasCycle(ctx context.Context, start string, r types.Relation) (bool, error) {
	m, release, err := b.use()
	if err != nil {
		return false, err
	}
	defer release()
	return m.HasCycle(ctx, start, r)
}

// TopoSort implements types.LinkManager.
func (b *Backend) TopoSort(ctx context.Context, ids []string, r types.Relation) ([]string, error) {
	m, release, err := b.use()
	if err != nil {
		return nil, err
	}
	defer release()
	return m.TopoSort(ctx, ids, r)
}

// BulkUpsert implements types.LinkManager. A detached backend reports
// ErrDetached for every entry.
func (b *Backend) BulkUpsert(ctx context.Context, specs []types.LinkSpec) []types.BulkOutcome {
	m, release, err := b.use()
	if err != nil {
		outcomes := make([]types.BulkOutcome, len(specs))
		for i := range outcomes {
			outcomes[i] = types.BulkOutcome{Index: i, Err: err}
		}
		return outcomes
	}
	defer release()
	return m.BulkUpsert(ctx, specs)
}

// DeleteLinksForBlock implements types.LinkManager.
func (b *Backend) DeleteLinksForBlock(ctx context.Context, blockID string) (types.CascadeResult, error) {
	m, release, err := b.use()
	if err != nil {
		return types.CascadeResult{}, err
	}
	defer release()
	return m.DeleteLinksForBlock(ctx, blockID)
}

// Snapshot returns every link, most important first.
func (b *Backend) Snapshot() ([]types.Link, error) {
	m, release, err := b.use()
	if err != nil {
		return nil, err
	}
	defer release()
	return m.Snapshot(), nil
}

// ParentOf returns the parent pointer of block maintained from the configured
// parent relation.
func (b *Backend) ParentOf(ctx context.Context, block string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return "", false, types.ErrDetached
	}
	return b.links.parentOf(ctx, block)
}

// ChildrenOf returns the blocks whose parent pointer is parent, sorted.
func (b *Backend) ChildrenOf(ctx context.Context, parent string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrDetached
	}
	return b.links.childrenOf(ctx, parent)
}

// Flush writes any deferred changes to links.jsonl.
func (b *Backend) Flush() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrDetached
	}
	return b.flushPendingWritesLocked()
}

// persistJSONL rewrites links.jsonl from the links table.
func (b *Backend) persistJSONL(ctx context.Context) error {
	records, err := b.links.records(ctx)
	if err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(b.config.DataDir, linksJSONL), records); err != nil {
		return fmt.Errorf("persisting %s: %w", linksJSONL, err)
	}
	return nil
}

// shouldPersistImmediately reports whether every change rewrites the JSONL
// file as it happens.
func (b *Backend) shouldPersistImmediately() bool {
	return b.syncStrategy == types.SyncImmediate || b.syncStrategy == ""
}

// queueWrite defers the JSONL write for one change. With the batch strategy
// the queue is flushed once it reaches batchSize. The caller must hold b.mu.
func (b *Backend) queueWrite(op types.Operation, key types.LinkKey) error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	b.pendingWrites = append(b.pendingWrites, pendingWrite{op: op, key: key})
	if b.syncStrategy == types.SyncBatch && b.batchSize > 0 && len(b.pendingWrites) >= b.batchSize {
		return b.flushPendingWritesBatchLocked()
	}
	return nil
}

// flushPendingWritesLocked flushes deferred writes. The caller must hold b.mu,
// for reading or writing.
func (b *Backend) flushPendingWritesLocked() error {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()
	return b.flushPendingWritesBatchLocked()
}

// flushPendingWritesBatchLocked rewrites the JSONL file once for every queued
// change. The caller must hold b.batchMu. On failure the queue is kept so the
// next flush retries.
func (b *Backend) flushPendingWritesBatchLocked() error {
	if len(b.pendingWrites) == 0 {
		return nil
	}
	if err := b.persistJSONL(context.Background()); err != nil {
		return fmt.Errorf("flush %d pending writes: %w", len(b.pendingWrites), err)
	}
	b.logger.Debug("flushed pending writes", "count", len(b.pendingWrites))
	b.pendingWrites = nil
	return nil
}

// startBatchTimer starts the interval flush for the batch strategy.
func (b *Backend) startBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		return
	}

	// The flush holds b.mu for reading so it never queues behind a running
	// hook.
	b.batchTimer = time.AfterFunc(b.batchInterval, func() {
		b.mu.RLock()
		defer b.mu.RUnlock()

		if !b.attached {
			return
		}
		if err := b.flushPendingWritesLocked(); err != nil {
			b.logger.Warn("batch flush failed", "error", err)
		}

		b.batchMu.Lock()
		if b.batchTimer != nil {
			b.batchTimer.Reset(b.batchInterval)
		}
		b.batchMu.Unlock()
	})
}

// stopBatchTimer stops the interval flush if running.
func (b *Backend) stopBatchTimer() {
	b.batchMu.Lock()
	defer b.batchMu.Unlock()

	if b.batchTimer != nil {
		b.batchTimer.Stop()
		b.batchTimer = nil
	}
}
