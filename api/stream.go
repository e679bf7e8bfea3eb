// File: api/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Stream is a pipe-backed byte stream driven by the loop. The core wires
// one Stream per child-process file descriptor role; buffering and flow
// control are the stream's concern, not the supervisor's.
type Stream interface {
	// SetOnRead installs the inbound callback. It receives the bytes
	// currently buffered and returns how many it consumed; unconsumed
	// bytes are presented again together with the next read.
	SetOnRead(fn func(p []byte) int)

	// OnClosed registers an additional terminal observer. All observers
	// fire exactly once, in registration order, when every handle owned
	// by the stream has been closed.
	OnClosed(fn func())

	// Write queues p for transmission.
	Write(p []byte) error

	// CloseWhenEmpty closes the write handle once all queued bytes have
	// been flushed.
	CloseWhenEmpty()

	// Close closes all handles immediately, discarding queued bytes.
	Close() error
}

// StreamFactory builds a Stream over parent-side pipe descriptors.
// Either descriptor may be -1 when the stream is unidirectional.
type StreamFactory func(loop Loop, readFD, writeFD int) Stream
