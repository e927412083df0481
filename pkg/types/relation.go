package types

import (
	"fmt"
	"sort"
)

// Relation is the semantic label carried by a link.
type Relation string

// Category groups relations by the role they play in the graph.
type Category string

// Relation categories.
const (
	CategoryCore       Category = "core"
	CategoryHierarchy  Category = "hierarchy"
	CategoryDependency Category = "dependency"
	CategoryDomain     Category = "domain"
)

// Core relations.
const (
	RelRelatedTo    Relation = "related_to"
	RelReferences   Relation = "references"
	RelReferencedBy Relation = "referenced_by"
	RelScopedTo     Relation = "scoped_to" // block limited to a context block, no inverse
)

// Hierarchy relations.
const (
	RelChildOf       Relation = "child_of"
	RelParentOf      Relation = "parent_of"
	RelBelongsTo     Relation = "belongs_to"
	RelContains      Relation = "contains"
	RelBelongsToEpic Relation = "belongs_to_epic"
	RelEpicContains  Relation = "epic_contains"
	RelBranchesFrom  Relation = "branches_from" // block forked from another, no inverse
)

// Dependency relations.
const (
	RelBlocks       Relation = "blocks"
	RelIsBlockedBy  Relation = "is_blocked_by"
	RelDependsOn    Relation = "depends_on"
	RelDependencyOf Relation = "dependency_of"
)

// Domain relations.
const (
	RelImplements    Relation = "implements"
	RelImplementedBy Relation = "implemented_by"
	RelDocuments     Relation = "documents"
	RelDocumentedBy  Relation = "documented_by"
	RelDuplicates    Relation = "duplicates"
	RelDuplicatedBy  Relation = "duplicated_by"
	RelSupersedes    Relation = "supersedes"
	RelSupersededBy  Relation = "superseded_by"
)

// allRelations lists every registered relation in declaration order.
var allRelations = []Relation{
	RelRelatedTo, RelReferences, RelReferencedBy, RelScopedTo,
	RelChildOf, RelParentOf, RelBelongsTo, RelContains, RelBelongsToEpic, RelEpicContains, RelBranchesFrom,
	RelBlocks, RelIsBlockedBy, RelDependsOn, RelDependencyOf,
	RelImplements, RelImplementedBy, RelDocuments, RelDocumentedBy,
	RelDuplicates, RelDuplicatedBy, RelSupersedes, RelSupersededBy,
}

// AllRelations returns every registered relation in declaration order.
func AllRelations() []Relation {
	out := make([]Relation, len(allRelations))
	copy(out, allRelations)
	return out
}

// ParseRelation converts s into a registered Relation.
// Returns ErrUnknownRelation if s is not registered.
func ParseRelation(s string) (Relation, error) {
	r := Relation(s)
	if !r.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRelation, s)
	}
	return r, nil
}

// IsValid reports whether r is a registered relation.
func (r Relation) IsValid() bool {
	_, err := r.Category()
	return err == nil
}

// Category returns the category r belongs to.
// Returns ErrUnknownRelation if r is not registered.
func (r Relation) Category() (Category, error) {
	switch r {
	case RelRelatedTo, RelReferences, RelReferencedBy, RelScopedTo:
		return CategoryCore, nil
	case RelChildOf, RelParentOf, RelBelongsTo, RelContains,
		RelBelongsToEpic, RelEpicContains, RelBranchesFrom:
		return CategoryHierarchy, nil
	case RelBlocks, RelIsBlockedBy, RelDependsOn, RelDependencyOf:
		return CategoryDependency, nil
	case RelImplements, RelImplementedBy, RelDocuments, RelDocumentedBy,
		RelDuplicates, RelDuplicatedBy, RelSupersedes, RelSupersededBy:
		return CategoryDomain, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRelation, string(r))
	}
}

// Inverse returns the relation implied in the opposite direction. Relations
// without an inverse, and symmetric relations, return themselves.
func (r Relation) Inverse() Relation {
	switch r {
	case RelReferences:
		return RelReferencedBy
	case RelReferencedBy:
		return RelReferences
	case RelChildOf:
		return RelParentOf
	case RelParentOf:
		return RelChildOf
	case RelBelongsTo:
		return RelContains
	case RelContains:
		return RelBelongsTo
	case RelBelongsToEpic:
		return RelEpicContains
	case RelEpicContains:
		return RelBelongsToEpic
	case RelBlocks:
		return RelIsBlockedBy
	case RelIsBlockedBy:
		return RelBlocks
	case RelDependsOn:
		return RelDependencyOf
	case RelDependencyOf:
		return RelDependsOn
	case RelImplements:
		return RelImplementedBy
	case RelImplementedBy:
		return RelImplements
	case RelDocuments:
		return RelDocumentedBy
	case RelDocumentedBy:
		return RelDocuments
	case RelDuplicates:
		return RelDuplicatedBy
	case RelDuplicatedBy:
		return RelDuplicates
	case RelSupersedes:
		return RelSupersededBy
	case RelSupersededBy:
		return RelSupersedes
	default:
		return r
	}
}

// HasInverse reports whether r maps to a different relation.
func (r Relation) HasInverse() bool {
	return r.Inverse() != r
}

// IsSymmetric reports whether a link of r from A to B implies the same link
// from B to A.
func (r Relation) IsSymmetric() bool {
	return r == RelRelatedTo
}

// IsAcyclic reports whether links of r must never form a cycle. Hierarchy and
// dependency relations describe containment or ordering and are acyclic.
func (r Relation) IsAcyclic() bool {
	c, err := r.Category()
	if err != nil {
		return false
	}
	return c == CategoryHierarchy || c == CategoryDependency
}

// String returns the relation identifier.
func (r Relation) String() string {
	return string(r)
}

// RelationsIn returns the registered relations of category c, sorted.
func RelationsIn(c Category) []Relation {
	var out []Relation
	for _, r := range allRelations {
		if rc, _ := r.Category(); rc == c {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
