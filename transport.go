package mcp

import "context"

// Transport is the bytes-to-frames boundary. Both variants (stdio, HTTP) satisfy it; the
// dispatcher and server facade only ever talk to a Transport, never to a concrete variant.
//
// Connect must be called before the first Read or Write. Stop must cause any blocked Read to
// return promptly (target: within one poll quantum) with errTerminated. Disconnect releases
// any resources Connect acquired and may be called at most once, after Stop.
type Transport interface {
	// Connect prepares the transport for reading and writing.
	Connect(ctx context.Context) error

	// Disconnect releases resources. The caller guarantees this is called at most once.
	Disconnect(ctx context.Context) error

	// Stop requests that any blocked Read return errTerminated. Idempotent.
	Stop()

	// Read blocks until one complete frame is available, the transport is stopped, or ctx is
	// done. On normal termination it returns errTerminated.
	Read(ctx context.Context) ([]byte, error)

	// Write emits one complete frame atomically. Safe for concurrent use.
	Write(ctx context.Context, frame []byte) error
}

// replyRouter lets a Transport variant accept an out-of-band addressed write: a reply that
// must go to a specific in-flight caller rather than "whatever Read returned most recently".
// The HTTP variant implements this to thread the connection handle through a Task; the
// stdio variant does not need it because it has exactly one caller at a time.
type replyRouter interface {
	// WriteTo emits frame as the reply to the read identified by handle, previously returned
	// alongside a frame from ReadWithHandle.
	WriteTo(ctx context.Context, handle any, frame []byte) error
}

// handleReader is implemented by transports whose Read also needs to hand back a routing
// handle for later use with replyRouter.WriteTo. The stdio transport does not implement it;
// the dispatcher then uses a nil handle.
type handleReader interface {
	ReadWithHandle(ctx context.Context) ([]byte, any, error)
}
