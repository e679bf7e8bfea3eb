// File: api/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Message is one discrete unit carried by a Channel: a tag plus an ordered
// list of opaque serialized values. The wire encoding is the channel
// implementation's concern; the core relies only on ordered, reliable,
// FIFO delivery with an explicit EOF condition.
type Message struct {
	Tag    string
	Values [][]byte
}

// Well-known message tags used by the worker protocol.
const (
	TagCall   = "call"
	TagReturn = "return"
	TagError  = "error"
)

// Channel is the parent-side end of an ordered message channel to a child
// process. Receive is callback-driven; Send never blocks the loop.
type Channel interface {
	// Send queues one message for delivery in FIFO order.
	Send(m Message) error

	// SetOnReceive installs the inbound callback. On peer close the
	// callback is invoked once with err == ErrChannelClosed and no
	// further messages are delivered.
	SetOnReceive(fn func(m Message, err error))

	// CloseSend flushes queued messages and then closes the outbound
	// handle, delivering EOF to the peer.
	CloseSend()
}
