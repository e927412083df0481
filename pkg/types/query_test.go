package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQueryDefaults(t *testing.T) {
	q := NewQuery()
	assert.Equal(t, Relation(""), q.Relation())
	assert.Equal(t, DirectionOutbound, q.Direction())
	assert.Equal(t, 1, q.Depth())
	assert.Equal(t, 100, q.Limit())
	assert.Empty(t, q.Cursor())
	assert.NoError(t, q.Validate())

	var zero LinkQuery
	assert.Equal(t, NewQuery().Limit(), zero.Limit())
	assert.NoError(t, zero.Validate())
}

func TestQueryBuildersReturnCopies(t *testing.T) {
	base := NewQuery()
	narrowed := base.WithRelation(RelBlocks).WithLimit(5).WithDepth(3).WithDirection(DirectionBoth)

	assert.Equal(t, Relation(""), base.Relation(), "base query must not change")
	assert.Equal(t, 100, base.Limit())
	assert.Equal(t, RelBlocks, narrowed.Relation())
	assert.Equal(t, 5, narrowed.Limit())
	assert.Equal(t, 3, narrowed.Depth())
	assert.Equal(t, DirectionBoth, narrowed.Direction())
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   LinkQuery
		wantErr bool
	}{
		{"valid", NewQuery().WithRelation(RelChildOf), false},
		{"unknown relation", NewQuery().WithRelation("likes"), true},
		{"negative depth", NewQuery().WithDepth(-1), true},
		{"negative limit", NewQuery().WithLimit(-10), true},
		{"zero depth", NewQuery().WithDepth(0), true},
		{"zero limit", NewQuery().WithLimit(0), true},
		{"zero limit on zero query", LinkQuery{}.WithLimit(0), true},
		{"bad direction", NewQuery().WithDirection("sideways"), true},
		{"malformed cursor", NewQuery().WithCursor("%%%"), true},
		{"foreign cursor", NewQuery().WithCursor("aGVsbG8"), true},
		{"valid cursor", NewQuery().WithCursor(EncodeCursor(CursorPosition{Priority: 1, CreatedAt: 2, Seq: 3})), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuery)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	pos := CursorPosition{Priority: 5, CreatedAt: 1760000000123456789, Seq: 42}
	cursor := EncodeCursor(pos)
	assert.NotContains(t, cursor, ":", "cursor is opaque")

	got, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, pos, got)
}
