package mcp

import "encoding/json"

// Implementation identifies a client or server by name and version.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises server-side capability flags. Only Tools is meaningful for
// this runtime; the full MCP capability surface (prompts, resources, logging, roots) is out
// of scope.
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

// ToolsCapability advertises whether the tool list can change after initialization.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ClientCapabilities is the client-side counterpart sent with InitializeRequest. No client
// capability flags are interpreted by this server; the field exists so initialize.params
// round-trips the full envelope.
type ClientCapabilities struct{}

// ParamsMeta carries the optional progress token attached to a request's "_meta" field.
type ParamsMeta struct {
	ProgressToken *ProgressToken `json:"progressToken,omitempty"`
}

// Tool describes one callable capability: a unique name, a human-readable description, and
// a JSON Schema object describing its arguments.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content is one element of a CallToolResult's content array.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// InitializeParams is the payload of an InitializeRequest.
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the payload of the matching InitializeResult response.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

// PingResult is the (always empty) payload of a PingResult response.
type PingResult struct{}

// ListToolsParams is the payload of a ListToolsRequest.
type ListToolsParams struct {
	Cursor string     `json:"cursor,omitempty"`
	Meta   ParamsMeta `json:"_meta,omitempty"`
}

// ListToolsResult is the payload of the matching ListToolsResult response.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams is the payload of a CallToolRequest.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Meta      ParamsMeta      `json:"_meta,omitempty"`
}

// CallToolResult is the payload of the matching CallToolResult response.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ProgressNotificationParams is the payload of an outbound ProgressNotification.
type ProgressNotificationParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         float64       `json:"total,omitempty"`
}

// CancelledNotificationParams is the payload of an inbound CancelledNotification.
type CancelledNotificationParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}
