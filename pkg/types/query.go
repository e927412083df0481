// LinkQuery is the filter and pagination descriptor consumed by link reads.
package types

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Direction selects which side of a block a query walks.
type Direction string

// Query directions.
const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
	DirectionBoth     Direction = "both"
)

// Query defaults.
const (
	DefaultQueryLimit = 100
	DefaultQueryDepth = 1
)

// LinkQuery is an immutable read descriptor. Build one with NewQuery and the
// With methods; each With method returns a modified copy.
type LinkQuery struct {
	relation  Relation
	direction Direction
	depth     int
	limit     int
	cursor    string

	// depthSet and limitSet mark values given through WithDepth and
	// WithLimit, so an explicit 0 is rejected instead of defaulted.
	depthSet bool
	limitSet bool
}

// NewQuery returns a query matching any relation, outbound, depth 1, limit 100.
func NewQuery() LinkQuery {
	return LinkQuery{
		direction: DirectionOutbound,
		depth:     DefaultQueryDepth,
		limit:     DefaultQueryLimit,
	}
}

// WithRelation restricts the query to r.
func (q LinkQuery) WithRelation(r Relation) LinkQuery {
	q.relation = r
	return q
}

// WithDirection sets the traversal direction.
func (q LinkQuery) WithDirection(d Direction) LinkQuery {
	q.direction = d
	return q
}

// WithDepth sets the traversal hop limit.
func (q LinkQuery) WithDepth(depth int) LinkQuery {
	q.depth = depth
	q.depthSet = true
	return q
}

// WithLimit sets the page size.
func (q LinkQuery) WithLimit(limit int) LinkQuery {
	q.limit = limit
	q.limitSet = true
	return q
}

// WithCursor resumes after the position encoded in cursor.
func (q LinkQuery) WithCursor(cursor string) LinkQuery {
	q.cursor = cursor
	return q
}

// Relation returns the relation filter; empty means any relation.
func (q LinkQuery) Relation() Relation { return q.relation }

// Direction returns the traversal direction, defaulting to outbound.
func (q LinkQuery) Direction() Direction {
	if q.direction == "" {
		return DirectionOutbound
	}
	return q.direction
}

// Depth returns the traversal hop limit, defaulting to 1.
func (q LinkQuery) Depth() int {
	if !q.depthSet && q.depth == 0 {
		return DefaultQueryDepth
	}
	return q.depth
}

// Limit returns the page size, defaulting to 100.
func (q LinkQuery) Limit() int {
	if !q.limitSet && q.limit == 0 {
		return DefaultQueryLimit
	}
	return q.limit
}

// Cursor returns the opaque pagination token.
func (q LinkQuery) Cursor() string { return q.cursor }

// Validate checks the query. The zero LinkQuery is valid and behaves like
// NewQuery(); a depth or limit set below 1 is not.
func (q LinkQuery) Validate() error {
	if q.relation != "" && !q.relation.IsValid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidQuery, ErrUnknownRelation, string(q.relation))
	}
	switch q.Direction() {
	case DirectionOutbound, DirectionInbound, DirectionBoth:
	default:
		return fmt.Errorf("%w: direction %q", ErrInvalidQuery, string(q.direction))
	}
	if q.Depth() < 1 {
		return fmt.Errorf("%w: depth must be positive", ErrInvalidQuery)
	}
	if q.Limit() < 1 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidQuery)
	}
	if q.cursor != "" {
		if _, err := DecodeCursor(q.cursor); err != nil {
			return err
		}
	}
	return nil
}

// Page is one page of links plus the cursor for the next page.
type Page struct {
	Links []Link `json:"links"`

	// NextCursor is empty when no further links exist.
	NextCursor string `json:"next_cursor,omitempty"`
}

// CursorPosition is the decoded form of a pagination cursor: the sort key of
// the last link on the previous page.
type CursorPosition struct {
	Priority  int
	CreatedAt int64 // UnixNano
	Seq       uint64
}

const cursorVersion = "v1"

// EncodeCursor renders p as an opaque token.
func EncodeCursor(p CursorPosition) string {
	raw := fmt.Sprintf("%s:%d:%d:%d", cursorVersion, p.Priority, p.CreatedAt, p.Seq)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(cursor string) (CursorPosition, error) {
	var p CursorPosition
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return p, fmt.Errorf("%w: malformed cursor", ErrInvalidQuery)
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 || parts[0] != cursorVersion {
		return p, fmt.Errorf("%w: malformed cursor", ErrInvalidQuery)
	}
	if p.Priority, err = strconv.Atoi(parts[1]); err != nil {
		return p, fmt.Errorf("%w: malformed cursor", ErrInvalidQuery)
	}
	if p.CreatedAt, err = strconv.ParseInt(parts[2], 10, 64); err != nil {
		return p, fmt.Errorf("%w: malformed cursor", ErrInvalidQuery)
	}
	if p.Seq, err = strconv.ParseUint(parts[3], 10, 64); err != nil {
		return p, fmt.Errorf("%w: malformed cursor", ErrInvalidQuery)
	}
	return p, nil
}
