package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

const linkColumns = "link_id, from_id, to_id, relation, priority, metadata, created_by, created_at"

const upsertLinkSQL = `INSERT INTO links (` + linkColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(from_id, to_id, relation) DO UPDATE SET
    link_id = excluded.link_id,
    priority = excluded.priority,
    metadata = excluded.metadata,
    created_by = excluded.created_by,
    created_at = excluded.created_at`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// linksTable reads and writes the links and block_parents tables.
type linksTable struct {
	db *sql.DB
}

func (lt *linksTable) upsert(ctx context.Context, ex execer, l types.Link) error {
	metadata, err := encodeMetadata(l.Metadata)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, upsertLinkSQL,
		l.LinkID, l.FromID, l.ToID, string(l.Relation), l.Priority,
		metadata, nullString(l.CreatedBy), l.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting link %s: %w", l.Key(), err)
	}
	return nil
}

func (lt *linksTable) delete(ctx context.Context, key types.LinkKey) error {
	_, err := lt.db.ExecContext(ctx,
		"DELETE FROM links WHERE from_id = ? AND to_id = ? AND relation = ?",
		key.FromID, key.ToID, string(key.Relation),
	)
	if err != nil {
		return fmt.Errorf("deleting link %s: %w", key, err)
	}
	return nil
}

// all returns every row, oldest first.
func (lt *linksTable) all(ctx context.Context) ([]types.Link, error) {
	rows, err := lt.db.QueryContext(ctx,
		"SELECT "+linkColumns+" FROM links ORDER BY created_at ASC, link_id ASC")
	if err != nil {
		return nil, fmt.Errorf("querying links: %w", err)
	}
	defer rows.Close()

	var links []types.Link
	for rows.Next() {
		l, err := hydrateLink(rows)
		if err != nil {
			return nil, fmt.Errorf("hydrating link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating links: %w", err)
	}
	return links, nil
}

// replaceAll swaps the table contents for links in one transaction and
// rebuilds the parent pointers for parentRel. links must be in ordering
// contract order: a child's pointer comes from its first parent link.
func (lt *linksTable) replaceAll(ctx context.Context, links []types.Link, parentRel types.Relation) error {
	tx, err := lt.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM links"); err != nil {
		return fmt.Errorf("clearing links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM block_parents"); err != nil {
		return fmt.Errorf("clearing block_parents: %w", err)
	}
	hasParent := make(map[string]bool)
	for _, l := range links {
		if err := lt.upsert(ctx, tx, l); err != nil {
			return err
		}
		if child, parent, ok := parentEdge(l, parentRel); ok && !hasParent[child] {
			hasParent[child] = true
			if err := lt.setParent(ctx, tx, child, parent, l.LinkID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing links: %w", err)
	}
	return nil
}

func (lt *linksTable) setParent(ctx context.Context, ex execer, child, parent, linkID string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO block_parents (block_id, parent_id, link_id) VALUES (?, ?, ?)
ON CONFLICT(block_id) DO UPDATE SET parent_id = excluded.parent_id, link_id = excluded.link_id`,
		child, parent, linkID,
	)
	if err != nil {
		return fmt.Errorf("setting parent of %s: %w", child, err)
	}
	return nil
}

// clearParent removes the parent pointer of child.
func (lt *linksTable) clearParent(ctx context.Context, child string) error {
	_, err := lt.db.ExecContext(ctx, "DELETE FROM block_parents WHERE block_id = ?", child)
	if err != nil {
		return fmt.Errorf("clearing parent of %s: %w", child, err)
	}
	return nil
}

func (lt *linksTable) parentOf(ctx context.Context, block string) (string, bool, error) {
	var parent string
	err := lt.db.QueryRowContext(ctx,
		"SELECT parent_id FROM block_parents WHERE block_id = ?", block,
	).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying parent of %s: %w", block, err)
	}
	return parent, true, nil
}

func (lt *linksTable) childrenOf(ctx context.Context, parent string) ([]string, error) {
	rows, err := lt.db.QueryContext(ctx,
		"SELECT block_id FROM block_parents WHERE parent_id = ? ORDER BY block_id", parent)
	if err != nil {
		return nil, fmt.Errorf("querying children of %s: %w", parent, err)
	}
	defer rows.Close()

	children := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning child: %w", err)
		}
		children = append(children, id)
	}
	return children, rows.Err()
}

// records renders every row as a JSONL record.
func (lt *linksTable) records(ctx context.Context) ([]json.RawMessage, error) {
	links, err := lt.all(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]json.RawMessage, 0, len(links))
	for _, l := range links {
		data, err := json.Marshal(l)
		if err != nil {
			return nil, fmt.Errorf("marshaling link %s: %w", l.Key(), err)
		}
		records = append(records, data)
	}
	return records, nil
}

// parentEdge reports the child and parent a link describes when its relation
// is parentRel or the inverse of it.
func parentEdge(l types.Link, parentRel types.Relation) (child, parent string, ok bool) {
	switch l.Relation {
	case parentRel:
		return l.FromID, l.ToID, true
	case parentRel.Inverse():
		return l.ToID, l.FromID, true
	}
	return "", "", false
}

func hydrateLink(rows *sql.Rows) (types.Link, error) {
	var (
		l         types.Link
		relation  string
		metadata  sql.NullString
		createdBy sql.NullString
		createdAt string
	)
	if err := rows.Scan(&l.LinkID, &l.FromID, &l.ToID, &relation, &l.Priority, &metadata, &createdBy, &createdAt); err != nil {
		return types.Link{}, err
	}
	l.Relation = types.Relation(relation)
	l.CreatedBy = createdBy.String
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &l.Metadata); err != nil {
			return types.Link{}, fmt.Errorf("parsing metadata: %w", err)
		}
	}
	var err error
	l.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return types.Link{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return l, nil
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}
	return string(data), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
