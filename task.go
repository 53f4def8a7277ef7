package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of an in-flight tool invocation.
type TaskStatus int32

const (
	TaskQueued TaskStatus = iota
	TaskRunning
	TaskFinished
	TaskCancelled
)

// TaskWriter delivers a Task's outbound frames. The Dispatcher implements it so that a
// Task never talks to a Transport directly; this keeps the HTTP variant's connection
// handle threading entirely inside the dispatcher.
type TaskWriter interface {
	WriteResult(t *Task, result CallToolResult)
	WriteError(t *Task, code int, msg string)
	WriteProgress(t *Task, current, total float64)
}

// Task is one in-flight tools/call invocation: a handler bound to a specific request. The
// registry's HandlerFactory produces the ToolHandlerFunc; the dispatcher wraps it in a Task
// per call, a fresh factory-produced handler rather than a cloned task prototype.
type Task struct {
	id            string
	requestID     RequestID
	connHandle    any
	progressToken *ProgressToken
	handler       ToolHandlerFunc
	args          json.RawMessage
	writer        TaskWriter

	ctx      context.Context
	cancelFn context.CancelFunc

	status       atomic.Int32
	mu           sync.Mutex
	notifiedDone bool
}

// NewTask binds handler to a specific request. connHandle is the transport-specific routing
// handle (nil for stdio, a *connectionContext for HTTP) threaded through so the eventual
// write routes to the right caller regardless of what the transport's Read has moved on to.
func NewTask(parent context.Context, requestID RequestID, progressToken *ProgressToken, connHandle any,
	handler ToolHandlerFunc, args json.RawMessage, writer TaskWriter) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		id:            uuid.NewString(),
		requestID:     requestID,
		connHandle:    connHandle,
		progressToken: progressToken,
		handler:       handler,
		args:          args,
		writer:        writer,
		ctx:           ctx,
		cancelFn:      cancel,
	}
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() TaskStatus {
	return TaskStatus(t.status.Load())
}

// RequestID returns the id of the request this task was bound to.
func (t *Task) RequestID() RequestID {
	return t.requestID
}

func (t *Task) isDone() bool {
	s := t.Status()
	return s == TaskFinished || s == TaskCancelled
}

// execute starts the handler in its own goroutine and returns immediately. A non-nil error
// means the task never started (e.g. a nil handler) and should be reported as a failure by
// the caller instead of cached.
func (t *Task) execute() error {
	if t.handler == nil {
		return newProtoError(CodeInternalError, "nil tool handler")
	}
	t.status.Store(int32(TaskRunning))
	go t.run()
	return nil
}

func (t *Task) run() {
	result, err := t.handler(t.ctx, t.args, t.progress)
	if err != nil {
		t.fail(err)
		return
	}
	t.notifyResult(result)
}

// progress is the ProgressFunc handed to the handler. It is a no-op once the originating
// request carried no progressToken, or once the task is already done: progress
// notifications are emitted only if the originating request carried a progressToken.
func (t *Task) progress(current, total float64) {
	if t.progressToken == nil || !t.progressToken.IsValid() {
		return
	}
	if t.isDone() {
		return
	}
	t.writer.WriteProgress(t, current, total)
}

// notifyResult marks the task Finished before attempting the write, mirroring the reference
// implementation's NotifyResult ordering (original_source/Source/Protocol/Task/BasicTask.cpp)
// so a failed write never leaves a task stuck Running.
func (t *Task) notifyResult(result CallToolResult) {
	if !t.markDoneOnce(TaskFinished) {
		return
	}
	t.writer.WriteResult(t, result)
}

func (t *Task) fail(err error) {
	if !t.markDoneOnce(TaskFinished) {
		return
	}
	t.writer.WriteError(t, CodeInternalError, err.Error())
}

// cancel transitions the task to Cancelled. Subsequent notifyResult/progress calls become
// no-ops; no final reply is ever sent for a cancelled task.
func (t *Task) cancel() {
	if !t.markDoneOnce(TaskCancelled) {
		return
	}
	t.cancelFn()
}

// markDoneOnce atomically transitions to status exactly once, returning false if the task
// was already finished or cancelled.
func (t *Task) markDoneOnce(status TaskStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.notifiedDone {
		return false
	}
	t.notifiedDone = true
	t.status.Store(int32(status))
	return true
}

// Engine is the single-worker async task engine: one executor owning a FIFO queue of Tasks
// and a set of pending-cancellation RequestIds, grounded directly on
// original_source/Source/Protocol/Session/Session.cpp's AsyncThreadProc.
type Engine struct {
	logger *slog.Logger

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*Task
	cancelSet  map[RequestID]bool
	cache      map[string]*Task
	stopped    bool
	workerDone chan struct{}
}

// NewEngine constructs an Engine. Call Start to launch its worker goroutine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:     logger,
		cancelSet:  make(map[RequestID]bool),
		cache:      make(map[string]*Task),
		workerDone: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Start launches the worker goroutine.
func (e *Engine) Start() {
	go e.workerLoop()
}

// Submit enqueues task and wakes the worker. Fails if the engine has been stopped.
func (e *Engine) Submit(task *Task) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return newProtoError(CodeInternalError, "async engine stopped")
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
	return nil
}

// Cancel adds requestID to the pending-cancellation set and wakes the worker. Idempotent;
// unknown ids are silently ignored once the worker looks them up.
func (e *Engine) Cancel(requestID RequestID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelSet[requestID] = true
	e.cond.Signal()
}

// Stop sets the stop flag, wakes the worker, and blocks until every in-flight and queued
// task has been marked Cancelled and the worker has exited.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.cond.Signal()
	e.mu.Unlock()
	<-e.workerDone
}

func (e *Engine) workerLoop() {
	defer close(e.workerDone)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && len(e.cancelSet) == 0 && !e.stopped {
			e.cond.Wait()
		}

		if e.stopped {
			for _, t := range e.cache {
				t.cancel()
			}
			for _, t := range e.queue {
				t.cancel()
			}
			e.queue = nil
			e.mu.Unlock()
			return
		}

		for id := range e.cancelSet {
			for _, t := range e.cache {
				if t.requestID == id {
					t.cancel()
				}
			}
		}
		e.cancelSet = make(map[RequestID]bool)

		for key, t := range e.cache {
			if t.isDone() {
				delete(e.cache, key)
			}
		}

		todo := e.queue
		e.queue = nil
		e.mu.Unlock()

		for _, t := range todo {
			if err := t.execute(); err != nil {
				t.writer.WriteError(t, CodeInternalError, err.Error())
				continue
			}
			e.mu.Lock()
			e.cache[t.id] = t
			e.mu.Unlock()
		}
	}
}
