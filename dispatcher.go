package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Dispatcher runs the read loop: read one frame, classify it, check session-state legality,
// then either answer synchronously or enqueue onto the async engine. It is also the sole
// writer of outbound frames, which keeps the one-reply-per-request invariant enforceable in
// one place.
type Dispatcher struct {
	transport  Transport
	session    *Session
	registry   *Registry
	engine     *Engine
	logger     *slog.Logger
	serverInfo Implementation
}

// NewDispatcher wires a Transport, Session, Registry and Engine together.
func NewDispatcher(transport Transport, session *Session, registry *Registry, engine *Engine,
	serverInfo Implementation, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport:  transport,
		session:    session,
		registry:   registry,
		engine:     engine,
		logger:     logger,
		serverInfo: serverInfo,
	}
}

// Run drives the read loop until the transport terminates or ctx is done. It returns nil on
// clean termination.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		raw, handle, err := d.readFrame(ctx)
		if err != nil {
			if err == errTerminated {
				d.session.Terminate()
				return nil
			}
			return err
		}
		d.handleFrame(ctx, raw, handle)
	}
}

func (d *Dispatcher) readFrame(ctx context.Context) ([]byte, any, error) {
	if hr, ok := d.transport.(handleReader); ok {
		return hr.ReadWithHandle(ctx)
	}
	raw, err := d.transport.Read(ctx)
	return raw, nil, err
}

// handleFrame implements §4.5 steps 2-7 for a single inbound frame.
func (d *Dispatcher) handleFrame(ctx context.Context, raw []byte, handle any) {
	msg, err := decodeEnvelope(raw)
	if err != nil {
		d.logger.Error("dropping unparsable frame", slog.String("err", err.Error()))
		return
	}

	switch classify(msg) {
	case categoryRequest:
		d.handleRequest(ctx, msg, handle)
	case categoryNotification:
		d.handleNotification(msg)
	case categoryResponse:
		// This server never originates client-bound requests, so an inbound Response is
		// always unexpected.
		d.logger.Warn("dropping unexpected response frame", slog.String("id", msg.ID.String()))
	default:
		d.logger.Error("dropping frame with neither id nor method")
	}
}

func (d *Dispatcher) handleRequest(ctx context.Context, msg JSONRPCMessage, handle any) {
	id := *msg.ID

	switch d.session.checkLegality(msg.Method) {
	case legalReject:
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeInvalidRequest, ""))
		return
	case legalIgnore:
		// Only notifications reach legalIgnore in practice; requests always accept or
		// reject. Treat defensively as reject.
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeInvalidRequest, ""))
		return
	}

	switch msg.Method {
	case MethodInitialize:
		d.handleInitialize(ctx, id, msg, handle)
	case MethodPing:
		d.reply(ctx, handle, id, PingResult{})
	case MethodToolsList:
		d.handleToolsList(ctx, id, msg, handle)
	case MethodToolsCall:
		d.handleToolsCall(ctx, id, msg, handle)
	default:
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeMethodNotFound, ""))
	}
}

func (d *Dispatcher) handleInitialize(ctx context.Context, id RequestID, msg JSONRPCMessage, handle any) {
	var params InitializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			d.writeTo(ctx, handle, newErrorResponse(&id, CodeInvalidParams, ""))
			return
		}
	}

	if err := d.session.AdvanceAfterInitialize(); err != nil {
		d.logger.Error("illegal session transition", slog.String("err", err.Error()))
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeInternalError, ""))
		return
	}

	result := InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
		ServerInfo:      d.serverInfo,
	}
	d.reply(ctx, handle, id, result)
}

func (d *Dispatcher) handleToolsList(ctx context.Context, id RequestID, msg JSONRPCMessage, handle any) {
	var params ListToolsParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			d.writeTo(ctx, handle, newErrorResponse(&id, CodeInvalidParams, ""))
			return
		}
	}

	result, err := d.registry.List(params.Cursor)
	if err != nil {
		d.writeErr(ctx, handle, id, err)
		return
	}
	d.reply(ctx, handle, id, result)
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, id RequestID, msg JSONRPCMessage, handle any) {
	var params CallToolParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeInvalidParams, ""))
		return
	}

	factory, ok := d.registry.Lookup(params.Name)
	if !ok {
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeInvalidParams, ""))
		return
	}
	handler := factory()
	if handler == nil {
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeInternalError, ""))
		return
	}

	task := NewTask(context.Background(), id, params.Meta.ProgressToken, handle, handler, params.Arguments, d)
	if err := d.engine.Submit(task); err != nil {
		d.writeErr(ctx, handle, id, err)
		return
	}
	// The read loop does not wait for completion (§4.5 step 5); the task engine delivers
	// the eventual CallToolResult/ErrorResponse via the TaskWriter methods below.
}

func (d *Dispatcher) handleNotification(msg JSONRPCMessage) {
	switch d.session.checkLegality(msg.Method) {
	case legalIgnore:
		return
	case legalReject:
		d.logger.Error("protocol violation: notification illegal in current state",
			slog.String("method", msg.Method), slog.String("state", d.session.State().String()))
		return
	}

	switch msg.Method {
	case MethodNotificationsInitialized:
		if err := d.session.AdvanceAfterInitialized(); err != nil {
			d.logger.Error("illegal session transition", slog.String("err", err.Error()))
		}
	case MethodNotificationsCancelled:
		var params CancelledNotificationParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			d.logger.Error("malformed cancelled notification", slog.String("err", err.Error()))
			return
		}
		d.engine.Cancel(params.RequestID)
	default:
		// Unknown notification methods are silently dropped (§4.1).
	}
}

// reply marshals result into a success Response and writes it.
func (d *Dispatcher) reply(ctx context.Context, handle any, id RequestID, result any) {
	msg, err := newResponse(id, result)
	if err != nil {
		d.logger.Error("failed to marshal response", slog.String("err", err.Error()))
		d.writeTo(ctx, handle, newErrorResponse(&id, CodeInternalError, ""))
		return
	}
	d.writeTo(ctx, handle, msg)
}

// writeErr turns a protoError (or a plain error) into an ErrorResponse for id.
func (d *Dispatcher) writeErr(ctx context.Context, handle any, id RequestID, err error) {
	code := CodeInternalError
	msg := ""
	if pe, ok := err.(*protoError); ok {
		code = pe.code
		msg = pe.message
	}
	d.writeTo(ctx, handle, newErrorResponse(&id, code, msg))
}

// writeTo emits msg, routing to handle via replyRouter when the transport supports it
// (the HTTP variant) and falling back to a plain Write otherwise (the stdio variant).
func (d *Dispatcher) writeTo(ctx context.Context, handle any, msg JSONRPCMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		d.logger.Error("failed to marshal outbound frame", slog.String("err", err.Error()))
		return
	}

	if router, ok := d.transport.(replyRouter); ok && handle != nil {
		if err := router.WriteTo(ctx, handle, raw); err != nil {
			d.logger.Error("failed to write routed reply", slog.String("err", err.Error()))
		}
		return
	}
	if err := d.transport.Write(ctx, raw); err != nil {
		d.logger.Error("failed to write reply", slog.String("err", err.Error()))
	}
}

// The following three methods implement TaskWriter, letting the Engine deliver a Task's
// frames without ever touching a Transport directly.

// WriteResult implements TaskWriter.
func (d *Dispatcher) WriteResult(t *Task, result CallToolResult) {
	d.reply(context.Background(), t.connHandle, t.requestID, result)
}

// WriteError implements TaskWriter.
func (d *Dispatcher) WriteError(t *Task, code int, msg string) {
	id := t.requestID
	d.writeTo(context.Background(), t.connHandle, newErrorResponse(&id, code, msg))
}

// WriteProgress implements TaskWriter. A transport that implements progressBroadcaster has
// no HTTP response to ride a progress notification on between the POST and the final reply
// (the connHandle's one-shot reply channel must stay reserved for the eventual
// WriteResult/WriteError), so progress goes out solely over its broadcast stream. Transports
// without a broadcaster (stdio) have no other way to deliver progress, so they still route
// it through connHandle.
func (d *Dispatcher) WriteProgress(t *Task, current, total float64) {
	params := ProgressNotificationParams{ProgressToken: *t.progressToken, Progress: current, Total: total}

	if broadcaster, ok := d.transport.(progressBroadcaster); ok {
		broadcaster.BroadcastProgress(params)
		return
	}

	msg, err := newNotification(MethodNotificationsProgress, params)
	if err != nil {
		d.logger.Error("failed to marshal progress notification", slog.String("err", err.Error()))
		return
	}
	d.writeTo(context.Background(), t.connHandle, msg)
}

var _ TaskWriter = (*Dispatcher)(nil)

// progressBroadcaster is implemented by the HTTP transport to fan progress notifications out
// over the auxiliary GET /events SSE stream.
type progressBroadcaster interface {
	BroadcastProgress(params ProgressNotificationParams)
}
