// Link entity represents a directed, typed edge between two blocks.
package types

import (
	"fmt"
	"maps"
	"time"
)

// Link represents a directed edge in the block graph.
type Link struct {
	// LinkID is a UUID v7, generated on first insert. It is a storage handle,
	// not part of the link's identity.
	LinkID string `json:"link_id,omitempty"`

	// FromID is the source block ID.
	FromID string `json:"from_id"`

	// ToID is the target block ID.
	ToID string `json:"to_id"`

	// Relation is the link type.
	Relation Relation `json:"relation"`

	// Priority orders links; higher is more important. Never negative.
	Priority int `json:"priority"`

	// Metadata holds opaque caller data.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedBy records provenance; empty when unknown.
	CreatedBy string `json:"created_by,omitempty"`

	// CreatedAt is the timestamp of creation.
	CreatedAt time.Time `json:"created_at"`
}

// LinkKey is the composite primary key of a link.
type LinkKey struct {
	FromID   string
	ToID     string
	Relation Relation
}

// String renders the key as "from -[relation]-> to".
func (k LinkKey) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", k.FromID, k.Relation, k.ToID)
}

// Key returns the composite key of l.
func (l Link) Key() LinkKey {
	return LinkKey{FromID: l.FromID, ToID: l.ToID, Relation: l.Relation}
}

// Validate checks the fields of l that do not depend on graph state.
func (l Link) Validate() error {
	if l.FromID == "" || l.ToID == "" {
		return fmt.Errorf("%w: from_id and to_id are required", ErrInvalidID)
	}
	if !l.Relation.IsValid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrUnknownRelation, string(l.Relation))
	}
	if l.Priority < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, l.Priority)
	}
	if l.FromID == l.ToID {
		return fmt.Errorf("%w: %s", ErrSelfLoop, l.FromID)
	}
	return nil
}

// Clone returns a copy of l whose metadata map is not shared.
func (l Link) Clone() Link {
	if l.Metadata != nil {
		l.Metadata = maps.Clone(l.Metadata)
	}
	return l
}

// LinkSpec describes a link to create or upsert.
type LinkSpec struct {
	FromID    string
	ToID      string
	Relation  Relation
	Priority  int
	Metadata  map[string]any
	CreatedBy string
}

// Link converts the spec into an unsaved Link.
func (s LinkSpec) Link() Link {
	return Link{
		FromID:    s.FromID,
		ToID:      s.ToID,
		Relation:  s.Relation,
		Priority:  s.Priority,
		Metadata:  maps.Clone(s.Metadata),
		CreatedBy: s.CreatedBy,
	}
}
