package mcp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/JoshuaNocturne/TinyMCP"
)

func TestSession_InitialState(t *testing.T) {
	s := mcp.NewSession()
	assert.Equal(t, mcp.StateOriginal, s.State())
}

func TestSession_HappyPathTransitions(t *testing.T) {
	s := mcp.NewSession()

	require.NoError(t, s.AdvanceAfterInitialize())
	assert.Equal(t, mcp.StateInitializing, s.State())

	require.NoError(t, s.AdvanceAfterInitialized())
	assert.Equal(t, mcp.StateInitialized, s.State())
}

func TestSession_IllegalTransitionsReturnError(t *testing.T) {
	s := mcp.NewSession()

	assert.Error(t, s.AdvanceAfterInitialized(), "cannot initialize before initializing")

	require.NoError(t, s.AdvanceAfterInitialize())
	assert.Error(t, s.AdvanceAfterInitialize(), "cannot initialize twice")

	require.NoError(t, s.AdvanceAfterInitialized())
	assert.Error(t, s.AdvanceAfterInitialized(), "cannot re-enter initialized")
}

func TestSession_Terminate(t *testing.T) {
	s := mcp.NewSession()
	s.Terminate()
	assert.Equal(t, mcp.StateTerminated, s.State())
}
