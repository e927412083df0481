package types

import (
	"context"
	"errors"
)

// LinkManager is the operation contract of the link graph. Every mutation of
// the graph flows through it so invariants are enforced in one place.
type LinkManager interface {
	// CreateLink inserts a new link. Returns ErrDuplicateLink if the
	// composite key exists, ErrSelfLoop when from and to match, and
	// ErrCycleDetected when an acyclic relation would close a cycle.
	CreateLink(ctx context.Context, spec LinkSpec) (Result, error)

	// DeleteLink removes a link. Deleting an absent link is not an error;
	// DeleteResult.Deleted reports whether anything was removed.
	DeleteLink(ctx context.Context, from, to string, r Relation) (DeleteResult, error)

	// LinksFrom returns links whose source is blockID (or reachable from it
	// within q.Depth hops), most important and most recent first.
	LinksFrom(ctx context.Context, blockID string, q LinkQuery) (Page, error)

	// LinksTo returns links whose target is blockID, ordered like LinksFrom.
	LinksTo(ctx context.Context, blockID string, q LinkQuery) (Page, error)

	// Links honors q.Direction: outbound, inbound, or both.
	Links(ctx context.Context, blockID string, q LinkQuery) (Page, error)

	// ReadyBlocks returns the blocks with no unresolved links of r.
	ReadyBlocks(ctx context.Context, r Relation) ([]string, error)

	// HasCycle reports whether a cycle of r is reachable from start.
	HasCycle(ctx context.Context, start string, r Relation) (bool, error)

	// TopoSort orders ids so every r link among them points forward.
	// Returns ErrCycleDetected if no such order exists.
	TopoSort(ctx context.Context, ids []string, r Relation) ([]string, error)

	// BulkUpsert creates or updates each spec independently. One outcome is
	// returned per spec, in input order; failures do not revert successes.
	BulkUpsert(ctx context.Context, specs []LinkSpec) []BulkOutcome

	// DeleteLinksForBlock removes every link touching blockID.
	DeleteLinksForBlock(ctx context.Context, blockID string) (CascadeResult, error)
}

// Operation names a kind of link mutation.
type Operation string

// Link mutation operations.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// LinkChange describes one committed mutation.
type LinkChange struct {
	Link Link      `json:"link"`
	Op   Operation `json:"op"`
}

// PersistenceHook receives every committed mutation after the graph lock is
// released. Its failure is reported as a warning and never rolls back the
// in-memory change.
type PersistenceHook interface {
	OnLinkChanged(ctx context.Context, change LinkChange) error
}

// HookFunc adapts a function to PersistenceHook.
type HookFunc func(ctx context.Context, change LinkChange) error

// OnLinkChanged calls f.
func (f HookFunc) OnLinkChanged(ctx context.Context, change LinkChange) error {
	return f(ctx, change)
}

// BlockOracle answers whether a block exists. The engine stores no block
// content; callers supply an oracle to reject links to unknown blocks.
type BlockOracle interface {
	BlockExists(ctx context.Context, id string) (bool, error)
}

// BlockOracleFunc adapts a function to BlockOracle.
type BlockOracleFunc func(ctx context.Context, id string) (bool, error)

// BlockExists calls f.
func (f BlockOracleFunc) BlockExists(ctx context.Context, id string) (bool, error) {
	return f(ctx, id)
}

// Result is the outcome of a successful create or upsert.
type Result struct {
	Link      Link
	Operation Operation

	// Warning carries persistence hook failures. The mutation is committed
	// regardless.
	Warning error
}

// DeleteResult is the outcome of DeleteLink.
type DeleteResult struct {
	Deleted bool
	Link    Link
	Warning error
}

// BulkOutcome is the per-entry outcome of BulkUpsert.
type BulkOutcome struct {
	Index     int
	Link      Link
	Operation Operation
	Err       error
	Warning   error
}

// CascadeResult is the outcome of DeleteLinksForBlock.
type CascadeResult struct {
	Count   int
	Removed []Link
	Warning error
}

// Backend lifecycle errors.
var (
	ErrDetached        = errors.New("link manager is detached")
	ErrAlreadyAttached = errors.New("link manager is already attached")
)
