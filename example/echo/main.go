// Command echo runs a minimal MCP server exposing a single "echo" tool, mirroring the
// reference implementation's EchoServer example.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcp "github.com/JoshuaNocturne/TinyMCP"
)

const (
	serverName    = "echo_server"
	serverVersion = "1.0.0.1"
)

func main() {
	stdio := flag.Bool("stdio", true, "serve over stdio (default)")
	httpMode := flag.Bool("http", false, "serve over HTTP instead of stdio")
	host := flag.String("host", "0.0.0.0", "HTTP listen host, used with -http")
	port := flag.Int("port", 8080, "HTTP listen port, used with -http")
	configPath := flag.String("config", "", "path to a TOML config file")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	logFile := flag.String("log-file", "", "path to write logs to, defaults to stderr")
	flag.Parse()

	fileCfg, err := mcp.LoadConfigFile(*configPath)
	if err != nil {
		log.Fatalf("echo: %v", err)
	}

	// Only flags given on the command line override the config file; unset flags leave the
	// file's values (or the built-in defaults) in place.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	override := mcp.Config{}
	if *httpMode {
		override.Transport.Kind = "http"
	} else if set["stdio"] && *stdio {
		override.Transport.Kind = "stdio"
	}
	if set["host"] {
		override.Transport.Host = *host
	}
	if set["port"] {
		override.Transport.Port = *port
	}
	override.Logging.Level = *logLevel
	override.Logging.File = *logFile

	cfg := fileCfg.Merge(override)

	server := mcp.NewServer(mcp.Implementation{Name: serverName, Version: serverVersion}, false)
	if err := server.RegisterTool(echoTool(), echoHandlerFactory); err != nil {
		log.Fatalf("echo: registering tool: %v", err)
	}
	if err := server.Configure(cfg); err != nil {
		log.Fatalf("echo: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		// Mirrors the reference implementation's signal handler, which stops the
		// transport directly rather than routing through a higher-level shutdown
		// sequence.
		server.Stop()
		cancel()
	}()

	if err := server.Run(ctx); err != nil {
		log.Fatalf("echo: %v", err)
	}
}

func echoTool() mcp.Tool {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"message": {"type": "string", "description": "text to echo back"}
		},
		"required": ["message"]
	}`)
	return mcp.Tool{
		Name:        "echo",
		Description: "Echoes back the provided message.",
		InputSchema: schema,
	}
}

type echoArgs struct {
	Message string `json:"message"`
}

// echoHandlerFactory produces a fresh handler per invocation, replacing the reference
// implementation's per-call task clone with an ordinary closure.
func echoHandlerFactory() mcp.ToolHandlerFunc {
	return func(ctx context.Context, raw json.RawMessage, progress mcp.ProgressFunc) (mcp.CallToolResult, error) {
		var args echoArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return mcp.CallToolResult{}, fmt.Errorf("echo: invalid arguments: %w", err)
		}

		progress(0, 1)
		select {
		case <-ctx.Done():
			return mcp.CallToolResult{}, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		progress(1, 1)

		return mcp.CallToolResult{
			Content: []mcp.Content{{Type: "text", Text: args.Message}},
		}, nil
	}
}
