package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"
)

// HTTPTransport implements Transport as a single JSON-RPC POST endpoint, plus an auxiliary
// GET /events SSE stream that broadcasts progress notifications.
//
// A design that threads one raw connection handle through the whole request lifecycle is
// overwritten by the next accept before a slow request's response is ready, so a progress
// notification or the final reply can be flushed onto the wrong socket. HTTPTransport
// instead hands each request its own *connectionContext at read time and threads that
// handle through Task.connHandle, so a write always reaches the HTTP response writer that
// is actually still blocked waiting for it, however many other requests have arrived since.
type HTTPTransport struct {
	addr   string
	logger *slog.Logger

	server   *http.Server
	listener net.Listener
	incoming chan *connectionContext

	mu      sync.Mutex
	stopped bool
	done    chan struct{}

	sseMu       sync.Mutex
	sseSessions map[string]*sse.Session
}

// connectionContext is the per-request handle threaded through the dispatcher and cached
// inside a Task so the eventual reply (possibly written from the async engine's worker
// goroutine, long after the POST handler's own call stack has nothing left to do but wait)
// lands on the correct ResponseWriter.
type connectionContext struct {
	frame    []byte
	resultCh chan []byte
	once     sync.Once
}

func newConnectionContext(frame []byte) *connectionContext {
	return &connectionContext{frame: frame, resultCh: make(chan []byte, 1)}
}

// deliver completes the connection exactly once; later attempts (which should not happen
// given §3's one-reply-per-request invariant, but are possible if a handler is buggy) are
// silently dropped rather than panicking on a full channel.
func (c *connectionContext) deliver(frame []byte) {
	c.once.Do(func() {
		c.resultCh <- frame
	})
}

// NewHTTPTransport constructs an HTTPTransport bound to addr (e.g. ":8080"). Connect starts
// serving.
func NewHTTPTransport(addr string, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{
		addr:        addr,
		logger:      logger,
		incoming:    make(chan *connectionContext),
		done:        make(chan struct{}),
		sseSessions: make(map[string]*sse.Session),
	}
}

// Connect starts the HTTP server in the background. It binds the listener synchronously, so
// Addr is valid as soon as Connect returns without error — useful when addr requests an
// ephemeral port ("127.0.0.1:0").
func (h *HTTPTransport) Connect(_ context.Context) error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("mcp: http transport failed to bind %s: %w", h.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleRPC)
	mux.HandleFunc("/events", h.handleEvents)

	h.server = &http.Server{Handler: mux}
	h.listener = listener

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("http transport serve failed", slog.String("err", err.Error()))
		}
	}()
	return nil
}

// Addr returns the address the listener is actually bound to. Only valid after Connect
// returns successfully.
func (h *HTTPTransport) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Disconnect gracefully shuts the HTTP server down.
func (h *HTTPTransport) Disconnect(ctx context.Context) error {
	h.Stop()
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// Stop causes any blocked handler and any future request to receive a 503, and any blocked
// ReadWithHandle to return errTerminated. Idempotent.
func (h *HTTPTransport) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.done)
}

func (h *HTTPTransport) isStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// handleRPC is the single JSON-RPC POST endpoint. It parks the request goroutine until
// WriteTo delivers a response for this exact connectionContext, the server is stopped, or
// the client disconnects.
func (h *HTTPTransport) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.isStopped() {
		writeStoppedError(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16*1024*1024))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	cc := newConnectionContext(body)
	select {
	case h.incoming <- cc:
	case <-h.done:
		writeStoppedError(w)
		return
	case <-r.Context().Done():
		return
	}

	select {
	case frame := <-cc.resultCh:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(frame)
	case <-h.done:
		writeStoppedError(w)
	case <-r.Context().Done():
	}
}

func writeStoppedError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "Server stopped"})
}

// handleEvents upgrades GET /events into an SSE stream carrying progress notifications
// broadcast via BroadcastProgress. There is no per-client filtering: every connected client
// observes every progress notification the server emits, which is sufficient for the single
// logical session this runtime models.
func (h *HTTPTransport) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to upgrade sse session: %v", err), http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	h.sseMu.Lock()
	h.sseSessions[id] = sess
	h.sseMu.Unlock()
	defer func() {
		h.sseMu.Lock()
		delete(h.sseSessions, id)
		h.sseMu.Unlock()
	}()

	select {
	case <-h.done:
	case <-r.Context().Done():
	}
}

// BroadcastProgress implements progressBroadcaster, fanning a progress notification out to
// every connected GET /events client.
func (h *HTTPTransport) BroadcastProgress(params ProgressNotificationParams) {
	payload, err := json.Marshal(params)
	if err != nil {
		h.logger.Error("failed to marshal sse progress payload", slog.String("err", err.Error()))
		return
	}

	msg := &sse.Message{Type: sse.Type("progress")}
	msg.AppendData(string(payload))

	h.sseMu.Lock()
	defer h.sseMu.Unlock()
	for id, sess := range h.sseSessions {
		if err := sess.Send(msg); err != nil {
			h.logger.Warn("dropping sse client after send failure", slog.String("id", id), slog.String("err", err.Error()))
			delete(h.sseSessions, id)
			continue
		}
		_ = sess.Flush()
	}
}

// ReadWithHandle implements handleReader: it returns the next request frame together with
// the connectionContext the eventual reply must be routed to.
func (h *HTTPTransport) ReadWithHandle(ctx context.Context) ([]byte, any, error) {
	select {
	case cc := <-h.incoming:
		return cc.frame, cc, nil
	case <-h.done:
		return nil, nil, errTerminated
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// WriteTo implements replyRouter, delivering frame to the connectionContext produced by the
// matching ReadWithHandle call.
func (h *HTTPTransport) WriteTo(_ context.Context, handle any, frame []byte) error {
	cc, ok := handle.(*connectionContext)
	if !ok || cc == nil {
		return fmt.Errorf("mcp: http transport: invalid routing handle %T", handle)
	}
	cc.deliver(frame)
	return nil
}

// Read and Write exist to satisfy the Transport interface for callers that do not type-
// assert for handleReader/replyRouter; HTTPTransport always prefers the handle-routed path.
func (h *HTTPTransport) Read(ctx context.Context) ([]byte, error) {
	frame, _, err := h.ReadWithHandle(ctx)
	return frame, err
}

// Write always returns an error: HTTPTransport has no implicit "current" connection to send
// an unaddressed frame to, so every reply must go through WriteTo with its handle. It exists
// solely for Transport interface conformance.
func (h *HTTPTransport) Write(_ context.Context, _ []byte) error {
	return fmt.Errorf("mcp: http transport requires a routing handle, use WriteTo")
}

var (
	_ Transport           = (*HTTPTransport)(nil)
	_ handleReader        = (*HTTPTransport)(nil)
	_ replyRouter         = (*HTTPTransport)(nil)
	_ progressBroadcaster = (*HTTPTransport)(nil)
)
