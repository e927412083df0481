package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

func attach(t *testing.T, dir string, opts ...Option) *Backend {
	t.Helper()
	b := NewBackend(opts...)
	if err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	return b
}

func mustCreate(t *testing.T, b *Backend, from, to string, r types.Relation) types.Link {
	t.Helper()
	res, err := b.CreateLink(context.Background(), types.LinkSpec{FromID: from, ToID: to, Relation: r})
	if err != nil {
		t.Fatalf("CreateLink(%s, %s, %s) failed: %v", from, to, r, err)
	}
	if res.Warning != nil {
		t.Fatalf("CreateLink(%s, %s, %s) warned: %v", from, to, r, res.Warning)
	}
	return res.Link
}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()
	b := attach(t, tmpDir)

	for _, name := range []string{dbFile, linksJSONL} {
		if _, err := os.Stat(filepath.Join(tmpDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: tmpDir})
	if !errors.Is(err, types.ErrAlreadyAttached) {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}
	b.Detach()
}

func TestBackend_AttachInvalidConfig(t *testing.T) {
	b := NewBackend()
	err := b.Attach(types.Config{Backend: "postgres", DataDir: t.TempDir()})
	if !errors.Is(err, types.ErrBackendUnknown) {
		t.Errorf("expected ErrBackendUnknown, got %v", err)
	}
}

func TestBackend_Detach(t *testing.T) {
	b := attach(t, t.TempDir())

	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := b.Detach(); err != nil {
		t.Errorf("second Detach should not error, got %v", err)
	}

	ctx := context.Background()
	if _, err := b.CreateLink(ctx, types.LinkSpec{FromID: "A", ToID: "B", Relation: types.RelBlocks}); !errors.Is(err, types.ErrDetached) {
		t.Errorf("CreateLink: expected ErrDetached, got %v", err)
	}
	if _, err := b.ReadyBlocks(ctx, types.RelIsBlockedBy); !errors.Is(err, types.ErrDetached) {
		t.Errorf("ReadyBlocks: expected ErrDetached, got %v", err)
	}
	if _, _, err := b.ParentOf(ctx, "A"); !errors.Is(err, types.ErrDetached) {
		t.Errorf("ParentOf: expected ErrDetached, got %v", err)
	}
	outcomes := b.BulkUpsert(ctx, []types.LinkSpec{{FromID: "A", ToID: "B", Relation: types.RelBlocks}})
	if len(outcomes) != 1 || !errors.Is(outcomes[0].Err, types.ErrDetached) {
		t.Errorf("BulkUpsert: expected ErrDetached outcome, got %+v", outcomes)
	}
}

func TestBackend_PersistsAcrossAttach(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()

	b := attach(t, tmpDir)
	first := mustCreate(t, b, "A", "B", types.RelBlocks)
	mustCreate(t, b, "A", "C", types.RelBlocks)
	res, err := b.CreateLink(ctx, types.LinkSpec{
		FromID: "doc", ToID: "A", Relation: types.RelDocuments,
		Priority: 4, Metadata: map[string]any{"section": "intro"}, CreatedBy: "alice",
	})
	if err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	if _, err := b.DeleteLink(ctx, "A", "C", types.RelBlocks); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	b = attach(t, tmpDir)
	defer b.Detach()

	snap, err := b.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 links after reattach, got %d", len(snap))
	}
	doc := snap[0]
	if doc.LinkID != res.Link.LinkID || doc.Priority != 4 || doc.Metadata["section"] != "intro" || doc.CreatedBy != "alice" {
		t.Errorf("documents link not restored faithfully: %+v", doc)
	}
	if !doc.CreatedAt.Equal(res.Link.CreatedAt) {
		t.Errorf("created_at changed: got %v, want %v", doc.CreatedAt, res.Link.CreatedAt)
	}
	if snap[1].LinkID != first.LinkID {
		t.Errorf("expected blocks link %s, got %s", first.LinkID, snap[1].LinkID)
	}

	ready, err := b.ReadyBlocks(ctx, types.RelIsBlockedBy)
	if err != nil {
		t.Fatalf("ReadyBlocks failed: %v", err)
	}
	if len(ready) != 1 || ready[0] != "A" {
		t.Errorf("expected [A] ready, got %v", ready)
	}

	// Invariants still hold on the restored graph.
	if _, err := b.CreateLink(ctx, types.LinkSpec{FromID: "B", ToID: "A", Relation: types.RelBlocks}); !errors.Is(err, types.ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected after reattach, got %v", err)
	}
}

func TestBackend_ParentPointer(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	b := attach(t, tmpDir)

	mustCreate(t, b, "task-1", "epic", types.RelChildOf)
	mustCreate(t, b, "epic", "task-2", types.RelParentOf)
	mustCreate(t, b, "task-3", "epic", types.RelReferences)

	parent, ok, err := b.ParentOf(ctx, "task-1")
	if err != nil || !ok || parent != "epic" {
		t.Errorf("ParentOf(task-1) = %q, %v, %v; want epic", parent, ok, err)
	}
	parent, ok, err = b.ParentOf(ctx, "task-2")
	if err != nil || !ok || parent != "epic" {
		t.Errorf("ParentOf(task-2) = %q, %v, %v; want epic via inverse relation", parent, ok, err)
	}
	if _, ok, _ := b.ParentOf(ctx, "task-3"); ok {
		t.Error("references must not set a parent")
	}

	children, err := b.ChildrenOf(ctx, "epic")
	if err != nil {
		t.Fatalf("ChildrenOf failed: %v", err)
	}
	if strings.Join(children, ",") != "task-1,task-2" {
		t.Errorf("ChildrenOf(epic) = %v", children)
	}

	if _, err := b.DeleteLink(ctx, "task-1", "epic", types.RelChildOf); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if _, ok, _ := b.ParentOf(ctx, "task-1"); ok {
		t.Error("parent pointer should be cleared after delete")
	}

	// Pointers are rebuilt on attach.
	b.Detach()
	b = attach(t, tmpDir)
	defer b.Detach()
	parent, ok, err = b.ParentOf(ctx, "task-2")
	if err != nil || !ok || parent != "epic" {
		t.Errorf("ParentOf(task-2) after reattach = %q, %v, %v", parent, ok, err)
	}
}

func TestBackend_ParentRelationConfig(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	err := b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir(), ParentRelation: types.RelBelongsTo})
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer b.Detach()

	mustCreate(t, b, "x", "y", types.RelChildOf)
	mustCreate(t, b, "x", "group", types.RelBelongsTo)

	parent, ok, err := b.ParentOf(ctx, "x")
	if err != nil || !ok || parent != "group" {
		t.Errorf("ParentOf(x) = %q, %v, %v; want group", parent, ok, err)
	}
}

func TestBackend_DeleteLinksForBlockClearsParents(t *testing.T) {
	ctx := context.Background()
	b := attach(t, t.TempDir())
	defer b.Detach()

	mustCreate(t, b, "a", "root", types.RelChildOf)
	mustCreate(t, b, "b", "root", types.RelChildOf)
	mustCreate(t, b, "c", "a", types.RelChildOf)

	res, err := b.DeleteLinksForBlock(ctx, "a")
	if err != nil {
		t.Fatalf("DeleteLinksForBlock failed: %v", err)
	}
	if res.Count != 2 {
		t.Errorf("expected 2 removed links, got %d", res.Count)
	}
	if res.Warning != nil {
		t.Errorf("unexpected warning: %v", res.Warning)
	}
	for _, id := range []string{"a", "c"} {
		if _, ok, _ := b.ParentOf(ctx, id); ok {
			t.Errorf("parent of %s should be cleared", id)
		}
	}
	if p, ok, _ := b.ParentOf(ctx, "b"); !ok || p != "root" {
		t.Errorf("parent of b should survive, got %q", p)
	}
}

func TestBackend_UpsertUpdatesMirror(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	b := attach(t, tmpDir)

	outcomes := b.BulkUpsert(ctx, []types.LinkSpec{
		{FromID: "A", ToID: "B", Relation: types.RelDependsOn, Priority: 1},
		{FromID: "A", ToID: "B", Relation: types.RelDependsOn, Priority: 8},
	})
	for _, o := range outcomes {
		if o.Err != nil {
			t.Fatalf("outcome %d failed: %v", o.Index, o.Err)
		}
	}
	b.Detach()

	b = attach(t, tmpDir)
	defer b.Detach()
	snap, _ := b.Snapshot()
	if len(snap) != 1 || snap[0].Priority != 8 {
		t.Errorf("expected one link with priority 8, got %+v", snap)
	}
}

func TestBackend_BlockOracle(t *testing.T) {
	oracle := types.BlockOracleFunc(func(_ context.Context, id string) (bool, error) {
		return id != "ghost", nil
	})
	b := attach(t, t.TempDir(), WithBlockOracle(oracle))
	defer b.Detach()

	_, err := b.CreateLink(context.Background(), types.LinkSpec{FromID: "A", ToID: "ghost", Relation: types.RelBlocks})
	if !errors.Is(err, types.ErrBlockNotFound) {
		t.Errorf("expected ErrBlockNotFound, got %v", err)
	}
}

func TestBackend_ExtraHooksRun(t *testing.T) {
	var seen []types.Operation
	hook := types.HookFunc(func(_ context.Context, c types.LinkChange) error {
		seen = append(seen, c.Op)
		return nil
	})
	b := attach(t, t.TempDir(), WithHooks(hook))
	defer b.Detach()

	mustCreate(t, b, "A", "B", types.RelRelatedTo)
	if _, err := b.DeleteLink(context.Background(), "A", "B", types.RelRelatedTo); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != types.OpCreate || seen[1] != types.OpDelete {
		t.Errorf("unexpected hook calls: %v", seen)
	}
}

func TestBackend_ParentPointerFollowsRemainingParent(t *testing.T) {
	tmpDir := t.TempDir()
	ctx := context.Background()
	b := attach(t, tmpDir)

	mustCreate(t, b, "task", "p1", types.RelChildOf)
	mustCreate(t, b, "task", "p2", types.RelChildOf)

	if p, ok, _ := b.ParentOf(ctx, "task"); !ok || p != "p2" {
		t.Errorf("ParentOf(task) = %q, %v; want newest parent p2", p, ok)
	}

	if _, err := b.DeleteLink(ctx, "task", "p2", types.RelChildOf); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if p, ok, _ := b.ParentOf(ctx, "task"); !ok || p != "p1" {
		t.Errorf("ParentOf(task) = %q, %v; want remaining parent p1", p, ok)
	}

	// A higher-priority parent link wins over a newer one.
	if _, err := b.CreateLink(ctx, types.LinkSpec{FromID: "p3", ToID: "task", Relation: types.RelParentOf, Priority: 5}); err != nil {
		t.Fatalf("CreateLink failed: %v", err)
	}
	mustCreate(t, b, "task", "p4", types.RelChildOf)
	if p, ok, _ := b.ParentOf(ctx, "task"); !ok || p != "p3" {
		t.Errorf("ParentOf(task) = %q, %v; want high-priority parent p3", p, ok)
	}

	// Attach rebuilds the same pointer.
	b.Detach()
	b = attach(t, tmpDir)
	defer b.Detach()
	if p, ok, _ := b.ParentOf(ctx, "task"); !ok || p != "p3" {
		t.Errorf("ParentOf(task) after reattach = %q, %v; want p3", p, ok)
	}

	if _, err := b.DeleteLink(ctx, "p3", "task", types.RelParentOf); err != nil {
		t.Fatalf("DeleteLink failed: %v", err)
	}
	if p, ok, _ := b.ParentOf(ctx, "task"); !ok || p != "p4" {
		t.Errorf("ParentOf(task) = %q, %v; want p4", p, ok)
	}
	children, err := b.ChildrenOf(ctx, "p2")
	if err != nil || len(children) != 0 {
		t.Errorf("ChildrenOf(p2) = %v, %v; want none", children, err)
	}
}
