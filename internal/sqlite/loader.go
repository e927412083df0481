package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/linkgraph/pkg/types"
)

// loadJSONL reads links.jsonl from dataDir into the links table in one
// transaction: all records load or the table stays empty. Lines that are not
// JSON, do not decode into a link, or repeat an existing key are skipped.
// Unknown fields are ignored. Records written without a link_id or
// created_at, as the interchange format allows, get a UUID v7 and the load
// time. It returns the number of records read, the number inserted and how
// many of those were filled in.
func loadJSONL(ctx context.Context, db *sql.DB, dataDir string, logger *slog.Logger) (read, inserted, filled int, err error) {
	path := filepath.Join(dataDir, linksJSONL)
	records, err := readJSONL(path)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("reading %s: %w", linksJSONL, err)
	}
	if len(records) == 0 {
		return 0, 0, 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertLinkSQL)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	seen := make(map[types.LinkKey]bool, len(records))
	for i, rec := range records {
		var l types.Link
		if err := json.Unmarshal(rec, &l); err != nil {
			logger.Warn("skipping malformed link record", "file", linksJSONL, "record", i, "error", err)
			continue
		}
		if seen[l.Key()] {
			logger.Warn("skipping duplicate link record", "file", linksJSONL, "record", i, "link", l.Key().String())
			continue
		}
		seen[l.Key()] = true

		complete := true
		if l.LinkID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return 0, 0, 0, fmt.Errorf("generating UUID v7: %w", err)
			}
			l.LinkID = id.String()
			complete = false
		}
		if l.CreatedAt.IsZero() {
			l.CreatedAt = now
			complete = false
		}

		metadata, err := encodeMetadata(l.Metadata)
		if err != nil {
			continue
		}
		_, err = stmt.ExecContext(ctx,
			l.LinkID, l.FromID, l.ToID, string(l.Relation), l.Priority,
			metadata, nullString(l.CreatedBy), l.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			logger.Warn("skipping link record", "file", linksJSONL, "record", i, "error", err)
			continue
		}
		inserted++
		if !complete {
			filled++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, 0, fmt.Errorf("committing load transaction: %w", err)
	}
	return len(records), inserted, filled, nil
}
