package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ProgressFunc reports incremental progress for a long-running tool invocation. Calling it
// is a no-op if the originating request carried no progressToken.
type ProgressFunc func(current, total float64)

// ToolHandlerFunc implements a tool's behaviour. It receives the raw "arguments" JSON, a
// context cancelled when the task is cancelled, and a ProgressFunc.
type ToolHandlerFunc func(ctx context.Context, args json.RawMessage, progress ProgressFunc) (CallToolResult, error)

// HandlerFactory yields a fresh ToolHandlerFunc per invocation. A Go closure needs no
// runtime cloning to be handed a fresh binding per call, unlike a polymorphic task prototype
// that must be copied before use.
type HandlerFactory func() ToolHandlerFunc

// registeredTool pairs a Tool descriptor with the factory that produces its handler.
type registeredTool struct {
	tool    Tool
	factory HandlerFactory
}

// Registry holds the server's tool catalogue: an ordered list (registration order, used for
// pagination) and a name-indexed handler map. Registration must happen before Initialize
// returns; the registry is frozen thereafter.
type Registry struct {
	paginate bool
	ordered  []registeredTool
	byName   map[string]*registeredTool
	frozen   bool
}

// NewRegistry constructs an empty Registry. paginate controls whether List serves one
// tool per page (true) or the full list in one response (false).
func NewRegistry(paginate bool) *Registry {
	return &Registry{
		paginate: paginate,
		byName:   make(map[string]*registeredTool),
	}
}

// Register adds tool with the given handler factory. Registering a duplicate name or
// registering after Freeze returns an error.
func (r *Registry) Register(tool Tool, factory HandlerFactory) error {
	if r.frozen {
		return fmt.Errorf("mcp: registry frozen, cannot register tool %q", tool.Name)
	}
	if _, exists := r.byName[tool.Name]; exists {
		return fmt.Errorf("mcp: tool %q already registered", tool.Name)
	}
	rt := registeredTool{tool: tool, factory: factory}
	r.ordered = append(r.ordered, rt)
	r.byName[tool.Name] = &r.ordered[len(r.ordered)-1]
	return nil
}

// Freeze marks the registry immutable. Called by the server facade at the start of Run,
// before the transport is connected.
func (r *Registry) Freeze() {
	r.frozen = true
}

// Lookup returns the handler factory for name, or false if no such tool is registered.
func (r *Registry) Lookup(name string) (HandlerFactory, bool) {
	rt, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return rt.factory, true
}

// List implements the exact pagination arithmetic of the reference implementation's
// ProcessListToolsRequest::Execute (original_source/Source/Protocol/Task/BasicTask.cpp):
//
//   - pagination disabled: the full list, no cursor.
//   - pagination enabled, cursor empty: the first tool, plus nextCursor "1" only if more
//     than one tool is registered.
//   - pagination enabled, cursor present: parsed as a decimal index; out of range or
//     unparsable -> InvalidParams; otherwise that tool, plus nextCursor (index+1) unless it
//     was the last tool.
func (r *Registry) List(cursor string) (ListToolsResult, error) {
	if !r.paginate {
		tools := make([]Tool, len(r.ordered))
		for i, rt := range r.ordered {
			tools[i] = rt.tool
		}
		return ListToolsResult{Tools: tools}, nil
	}

	idx := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 || parsed >= len(r.ordered) {
			return ListToolsResult{}, newProtoError(CodeInvalidParams, "")
		}
		idx = parsed
	}
	if idx >= len(r.ordered) {
		return ListToolsResult{}, newProtoError(CodeInvalidParams, "")
	}

	result := ListToolsResult{Tools: []Tool{r.ordered[idx].tool}}
	if idx+1 < len(r.ordered) {
		result.NextCursor = strconv.Itoa(idx + 1)
	}
	return result, nil
}
