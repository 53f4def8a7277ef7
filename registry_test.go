package mcp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/JoshuaNocturne/TinyMCP"
)

func noopFactory() mcp.HandlerFactory {
	return func() mcp.ToolHandlerFunc {
		return func(ctx context.Context, args json.RawMessage, progress mcp.ProgressFunc) (mcp.CallToolResult, error) {
			return mcp.CallToolResult{}, nil
		}
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := mcp.NewRegistry(false)
	tool := mcp.Tool{Name: "echo"}
	require.NoError(t, r.Register(tool, noopFactory()))

	factory, ok := r.Lookup("echo")
	assert.True(t, ok)
	assert.NotNil(t, factory)

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	r := mcp.NewRegistry(false)
	tool := mcp.Tool{Name: "echo"}
	require.NoError(t, r.Register(tool, noopFactory()))
	assert.Error(t, r.Register(tool, noopFactory()))
}

func TestRegistry_FrozenRejectsRegistration(t *testing.T) {
	r := mcp.NewRegistry(false)
	r.Freeze()
	assert.Error(t, r.Register(mcp.Tool{Name: "echo"}, noopFactory()))
}

func TestRegistry_List_PaginationDisabled(t *testing.T) {
	r := mcp.NewRegistry(false)
	require.NoError(t, r.Register(mcp.Tool{Name: "a"}, noopFactory()))
	require.NoError(t, r.Register(mcp.Tool{Name: "b"}, noopFactory()))

	result, err := r.List("")
	require.NoError(t, err)
	assert.Len(t, result.Tools, 2)
	assert.Empty(t, result.NextCursor)
}

func TestRegistry_List_PaginationEnabled(t *testing.T) {
	r := mcp.NewRegistry(true)
	require.NoError(t, r.Register(mcp.Tool{Name: "a"}, noopFactory()))
	require.NoError(t, r.Register(mcp.Tool{Name: "b"}, noopFactory()))
	require.NoError(t, r.Register(mcp.Tool{Name: "c"}, noopFactory()))

	first, err := r.List("")
	require.NoError(t, err)
	require.Len(t, first.Tools, 1)
	assert.Equal(t, "a", first.Tools[0].Name)
	assert.Equal(t, "1", first.NextCursor)

	second, err := r.List(first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Tools, 1)
	assert.Equal(t, "b", second.Tools[0].Name)
	assert.Equal(t, "2", second.NextCursor)

	last, err := r.List(second.NextCursor)
	require.NoError(t, err)
	require.Len(t, last.Tools, 1)
	assert.Equal(t, "c", last.Tools[0].Name)
	assert.Empty(t, last.NextCursor, "the last page carries no nextCursor")
}

func TestRegistry_List_SingleToolNoCursor(t *testing.T) {
	r := mcp.NewRegistry(true)
	require.NoError(t, r.Register(mcp.Tool{Name: "solo"}, noopFactory()))

	result, err := r.List("")
	require.NoError(t, err)
	assert.Len(t, result.Tools, 1)
	assert.Empty(t, result.NextCursor, "a single registered tool never yields a nextCursor")
}

func TestRegistry_List_InvalidCursor(t *testing.T) {
	r := mcp.NewRegistry(true)
	require.NoError(t, r.Register(mcp.Tool{Name: "a"}, noopFactory()))

	_, err := r.List("not-a-number")
	assert.Error(t, err)

	_, err = r.List("99")
	assert.Error(t, err)
}
