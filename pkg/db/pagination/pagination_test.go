package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*row{{id: "3"}, {id: "2"}, {id: "1"}}
	extract := func(r *row) string { return r.id }

	info := BuildCursorPageInfo(rows, 2, extract)
	require.NotNil(t, info)
	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)

	info = BuildCursorPageInfo(rows, 5, extract)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	info = BuildCursorPageInfo([]*row{}, 5, extract)
	assert.False(t, info.HasMore)
}

func TestCursorTokenIsURLSafe(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1234567890123", Date: "2025-03-01"})
	require.NoError(t, err)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", cursor.Date)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}
