package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Server is the facade that wires a Transport, Session, Registry and Engine together and
// drives them through the Configure -> Run -> Stop lifecycle.
type Server struct {
	info     Implementation
	registry *Registry
	session  *Session
	engine   *Engine
	logger   *slog.Logger

	transport  Transport
	dispatcher *Dispatcher

	logFile io.Closer
}

// NewServer constructs a Server identifying itself as info once initialized. paginate
// controls ListTools pagination behaviour.
func NewServer(info Implementation, paginate bool) *Server {
	return &Server{
		info:     info,
		registry: NewRegistry(paginate),
		session:  NewSession(),
	}
}

// RegisterTool adds a tool to the server's catalogue. Must be called before Run.
func (s *Server) RegisterTool(tool Tool, factory HandlerFactory) error {
	return s.registry.Register(tool, factory)
}

// Configure builds the logger and transport from cfg and prepares the server to run. It does
// not block.
func (s *Server) Configure(cfg Config) error {
	cfg = cfg.withDefaults()

	logger, closer, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("mcp: configuring logger: %w", err)
	}
	s.logFile = closer

	transport, err := buildTransport(cfg.Transport, logger)
	if err != nil {
		return fmt.Errorf("mcp: configuring transport: %w", err)
	}
	return s.configureWithTransport(transport, logger)
}

// ConfigureForTest wires the server to a StdIO transport built directly over reader/writer,
// bypassing CLI/TOML configuration. It exists for tests that need to drive a Server over an
// in-process pipe.
func (s *Server) ConfigureForTest(reader io.Reader, writer io.Writer) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return s.configureWithTransport(NewStdIO(reader, writer, logger), logger)
}

func (s *Server) configureWithTransport(transport Transport, logger *slog.Logger) error {
	s.logger = logger
	s.transport = transport
	s.engine = NewEngine(logger)
	s.dispatcher = NewDispatcher(transport, s.session, s.registry, s.engine, s.info, logger)
	return nil
}

// buildLogger constructs a slog.Logger: a levelled text handler writing to stderr by
// default, or to cfg.File when set. The second
// return value, when non-nil, must be closed once the server is done logging.
func buildLogger(cfg LoggingConfig) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := io.Writer(os.Stderr)
	var closer io.Closer
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closer = f
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closer, nil
}

// buildTransport constructs the wire Transport named by cfg.Kind.
func buildTransport(cfg TransportConfig, logger *slog.Logger) (Transport, error) {
	switch cfg.Kind {
	case "stdio":
		return NewStdIO(os.Stdin, os.Stdout, logger), nil
	case "http":
		return NewHTTPTransport(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), logger), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// Run connects the transport, freezes the tool registry, starts the async engine, and blocks
// running the dispatcher's read loop until the transport terminates, ctx is cancelled, or
// Stop is called. It always tears down the engine and transport before returning.
func (s *Server) Run(ctx context.Context) error {
	if s.transport == nil || s.dispatcher == nil {
		return fmt.Errorf("mcp: server not configured, call Configure first")
	}

	s.registry.Freeze()

	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("mcp: connecting transport: %w", err)
	}
	s.engine.Start()

	runErr := s.dispatcher.Run(ctx)

	s.engine.Stop()
	if err := s.transport.Disconnect(context.Background()); err != nil {
		s.logger.Error("failed to disconnect transport cleanly", slog.String("err", err.Error()))
	}
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
	return runErr
}

// Stop terminates an in-progress Run: it stops the transport (unblocking the dispatcher's
// read loop) and marks the session Terminated.
func (s *Server) Stop() {
	if s.transport != nil {
		s.transport.Stop()
	}
	s.session.Terminate()
}
