package sqlite

import (
	"database/sql"
	"fmt"
)

// Schema DDL. The database is a query mirror rebuilt from links.jsonl on
// every attach, so there are no migrations.
const (
	createLinks = `CREATE TABLE links (
    link_id TEXT PRIMARY KEY,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    relation TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    metadata TEXT,
    created_by TEXT,
    created_at TEXT NOT NULL
);`

	createBlockParents = `CREATE TABLE block_parents (
    block_id TEXT PRIMARY KEY,
    parent_id TEXT NOT NULL,
    link_id TEXT NOT NULL
);`
)

// Index DDL for the lookups the mirror serves.
const (
	idxLinksUnique        = `CREATE UNIQUE INDEX idx_links_unique ON links(from_id, to_id, relation);`
	idxLinksRelationFrom  = `CREATE INDEX idx_links_relation_from ON links(relation, from_id);`
	idxLinksRelationTo    = `CREATE INDEX idx_links_relation_to ON links(relation, to_id);`
	idxBlockParentsParent = `CREATE INDEX idx_block_parents_parent ON block_parents(parent_id);`
)

var schemaDDL = []string{
	createLinks,
	createBlockParents,
}

var indexDDL = []string{
	idxLinksUnique,
	idxLinksRelationFrom,
	idxLinksRelationTo,
	idxBlockParentsParent,
}

// createSchema runs every table and index statement against db.
func createSchema(db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}
	for _, stmt := range indexDDL {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}
