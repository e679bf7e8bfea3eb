// File: channel/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package channel carries ordered, reliable, FIFO discrete messages
// between the event loop and a child process over pipe-backed streams.
// The parent side is loop-driven (api.Channel); the child side is a plain
// blocking end used inside the worker loop.
package channel

import (
	"github.com/momentics/hioload-proc/api"
)

// Parent is the loop-side channel end, framed over an api.Stream. A
// send-only channel rides a write-wired stream, a receive-only channel a
// read-wired stream; a bidirectional stdio stream supports both.
type Parent struct {
	stream     api.Stream
	onReceive  func(m api.Message, err error)
	sendClosed bool
	eofSent    bool
	feedErr    error
}

// NewParent attaches a channel to s. The stream's read callback is claimed
// by the channel; close observation is shared with other observers.
func NewParent(s api.Stream) *Parent {
	c := &Parent{stream: s}
	s.SetOnRead(c.feed)
	s.OnClosed(c.closed)
	return c
}

// Send queues one message in FIFO order.
func (c *Parent) Send(m api.Message) error {
	if c.sendClosed {
		return api.ErrChannelClosed
	}
	frame, err := encodeFrame(m)
	if err != nil {
		return err
	}
	return c.stream.Write(frame)
}

// SetOnReceive installs the inbound callback.
func (c *Parent) SetOnReceive(fn func(m api.Message, err error)) {
	c.onReceive = fn
}

// CloseSend flushes queued frames, then closes the outbound handle so the
// peer observes EOF.
func (c *Parent) CloseSend() {
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	c.stream.CloseWhenEmpty()
}

// feed consumes whole frames from the stream buffer, leaving partial
// frames for the next readiness event.
func (c *Parent) feed(p []byte) int {
	total := 0
	for {
		m, n, err := decodeFrame(p[total:])
		if err != nil {
			// A corrupt frame poisons the channel; surface it once as
			// a receive error and swallow the rest of the buffer.
			c.feedErr = err
			c.deliverEOF(err)
			return len(p)
		}
		if n == 0 {
			return total
		}
		total += n
		if c.onReceive != nil {
			c.onReceive(m, nil)
		}
	}
}

func (c *Parent) closed() {
	c.deliverEOF(api.ErrChannelClosed)
}

func (c *Parent) deliverEOF(err error) {
	if c.eofSent {
		return
	}
	c.eofSent = true
	if c.onReceive != nil {
		c.onReceive(api.Message{}, err)
	}
}
