package mcp_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/JoshuaNocturne/TinyMCP"
)

func TestRequestID_RoundTripPreservesWireType(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"string id", `"abc-123"`},
		{"integer id", `42`},
		{"null id", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id mcp.RequestID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &id))

			out, err := json.Marshal(id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(out))
		})
	}
}

func TestRequestID_IntegerNeverStringified(t *testing.T) {
	id := mcp.NewRequestIDInt(7)
	out, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, "7", string(out), "numeric request ids must round-trip as JSON numbers, not strings")
}

func TestRequestID_Equal(t *testing.T) {
	assert.True(t, mcp.NewRequestIDInt(1).Equal(mcp.NewRequestIDInt(1)))
	assert.False(t, mcp.NewRequestIDInt(1).Equal(mcp.NewRequestIDInt(2)))
	assert.False(t, mcp.NewRequestIDInt(1).Equal(mcp.NewRequestIDString("1")))
}

func TestJSONRPCMessage_EnvelopeShapes(t *testing.T) {
	id := mcp.NewRequestIDInt(1)

	request := mcp.JSONRPCMessage{JSONRPC: mcp.JSONRPCVersion, ID: &id, Method: mcp.MethodPing}
	notification := mcp.JSONRPCMessage{JSONRPC: mcp.JSONRPCVersion, Method: mcp.MethodNotificationsInitialized}
	response := mcp.JSONRPCMessage{JSONRPC: mcp.JSONRPCVersion, ID: &id, Result: json.RawMessage(`{}`)}

	for _, msg := range []mcp.JSONRPCMessage{request, notification, response} {
		raw, err := json.Marshal(msg)
		require.NoError(t, err)

		var roundTripped mcp.JSONRPCMessage
		require.NoError(t, json.Unmarshal(raw, &roundTripped))
		assert.Equal(t, msg.Method, roundTripped.Method)
	}
}

func TestJSONRPCError_Error(t *testing.T) {
	err := &mcp.JSONRPCError{Code: mcp.CodeInvalidParams, Message: "bad params"}
	assert.Contains(t, err.Error(), "bad params")
}
