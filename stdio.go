package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// StdIO implements the Transport interface over a pair of io.Reader/io.Writer, framing
// messages as newline-terminated UTF-8 JSON. It has exactly one logical caller at a time, so
// it does not need a replyRouter: Write always answers whatever Read most recently returned.
//
// Writes are serialised through a single writer goroutine draining a channel rather than a
// recursive mutex: a recursive mutex is needed when a progress callback can re-enter Write
// from the same call stack that is already holding the stdout lock. Routing every write
// through one goroutine's channel makes re-entrant writes
// queue instead of deadlock or interleave, which satisfies the same invariant (serialised,
// non-interleaved writes) without the C++ design's reentrancy hazard.
type StdIO struct {
	reader io.Reader
	writer io.Writer
	logger *slog.Logger

	mu      sync.Mutex
	lines   chan []byte
	writeCh chan writeRequest
	done    chan struct{}
	stopped bool
}

type writeRequest struct {
	frame []byte
	errCh chan error
}

// NewStdIO constructs a StdIO transport over reader/writer. Connect must be called before
// use.
func NewStdIO(reader io.Reader, writer io.Writer, logger *slog.Logger) *StdIO {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdIO{
		reader: reader,
		writer: writer,
		logger: logger,
	}
}

// Connect starts the background reader and writer goroutines.
func (s *StdIO) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lines != nil {
		return fmt.Errorf("mcp: stdio transport already connected")
	}
	s.lines = make(chan []byte)
	s.writeCh = make(chan writeRequest)
	s.done = make(chan struct{})

	go s.readLoop()
	go s.writeLoop()
	return nil
}

// Disconnect stops the transport; StdIO owns no OS resources of its own beyond what Stop
// already releases (the caller owns the underlying reader/writer).
func (s *StdIO) Disconnect(_ context.Context) error {
	s.Stop()
	return nil
}

// Stop causes any blocked Read to return errTerminated. Idempotent.
func (s *StdIO) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.done)
}

func (s *StdIO) readLoop() {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("stdio read failed", slog.String("err", err.Error()))
	}
	s.Stop()
}

func (s *StdIO) writeLoop() {
	for {
		select {
		case req := <-s.writeCh:
			_, err := s.writer.Write(req.frame)
			req.errCh <- err
		case <-s.done:
			return
		}
	}
}

// Read blocks until one newline-delimited frame is available, the transport stops, or ctx is
// done.
func (s *StdIO) Read(ctx context.Context) ([]byte, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			return nil, errTerminated
		}
		return line, nil
	case <-s.done:
		return nil, errTerminated
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write emits frame followed by a newline, atomically with respect to other writers.
func (s *StdIO) Write(ctx context.Context, frame []byte) error {
	framed := append(append([]byte(nil), frame...), '\n')
	req := writeRequest{frame: framed, errCh: make(chan error, 1)}
	select {
	case s.writeCh <- req:
	case <-s.done:
		return errTerminated
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.errCh:
		if err != nil {
			return fmt.Errorf("mcp: stdio write: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
