package mcp_test

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcp "github.com/JoshuaNocturne/TinyMCP"
)

func TestHTTPTransport_RoutesReplyToTheRightRequest(t *testing.T) {
	ht := mcp.NewHTTPTransport("127.0.0.1:0", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ht.Connect(ctx))
	defer ht.Disconnect(context.Background())

	url := "http://" + ht.Addr() + "/"

	type postResult struct {
		body []byte
		err  error
	}
	resultCh := make(chan postResult, 1)
	go func() {
		resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
		if err != nil {
			resultCh <- postResult{err: err}
			return
		}
		defer resp.Body.Close()
		buf := make([]byte, 4096)
		n, _ := resp.Body.Read(buf)
		resultCh <- postResult{body: buf[:n]}
	}()

	frame, handle, err := ht.ReadWithHandle(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"method":"ping"`)

	require.NoError(t, ht.WriteTo(ctx, handle, []byte(`{"jsonrpc":"2.0","id":1,"result":{}}`)))

	res := <-resultCh
	require.NoError(t, res.err)
	assert.Contains(t, string(res.body), `"result"`)
}

func TestHTTPTransport_StopReturns503ToParkedRequest(t *testing.T) {
	ht := mcp.NewHTTPTransport("127.0.0.1:0", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, ht.Connect(ctx))

	url := "http://" + ht.Addr() + "/"

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))
		if err == nil {
			respCh <- resp
		}
	}()

	// Drain the frame so the handler has moved on to waiting for a reply, then stop before
	// one is ever produced.
	_, _, err := ht.ReadWithHandle(ctx)
	require.NoError(t, err)
	ht.Stop()

	select {
	case resp := <-respCh:
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	case <-time.After(5 * time.Second):
		t.Fatal("request was never completed after Stop")
	}
}
