// Package mcp implements a server-side Model Context Protocol (MCP) runtime: the JSON-RPC
// message codec, the session handshake state machine, a tool registry with cursor-based
// pagination, and an async task engine that runs tools/call invocations off the read loop so
// a slow tool never blocks the next request. Two Transport implementations are provided,
// newline-framed stdio and a single-endpoint HTTP server with an auxiliary SSE progress
// stream.
//
// This package implements only the server side of the protocol and only the subset of
// methods needed to run tools: initialize, ping, tools/list, tools/call, and the
// notifications/initialized, notifications/cancelled and notifications/progress
// notifications. It does not implement prompts, resources, sampling, roots, or an MCP
// client.
package mcp
