// File: channel/child.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package channel

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/momentics/hioload-proc/api"
)

// ChildEnd is the blocking channel end used inside a spawned worker
// process, where the loop does not exist and plain reads are correct.
type ChildEnd struct {
	in  io.Reader
	out io.Writer
}

// NewChildEnd wraps the inherited descriptors of the child side.
func NewChildEnd(in io.Reader, out io.Writer) *ChildEnd {
	return &ChildEnd{in: in, out: out}
}

// Recv blocks for the next message. Returns io.EOF when the parent has
// closed its sending end.
func (c *ChildEnd) Recv() (api.Message, error) {
	var m api.Message
	var hdr [headerLen]byte
	if _, err := io.ReadFull(c.in, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return m, err
	}
	payload := int(binary.BigEndian.Uint32(hdr[:]))
	if payload > MaxFramePayload {
		return m, fmt.Errorf("channel: frame payload %d exceeds maximum", payload)
	}
	buf := make([]byte, headerLen+payload)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(c.in, buf[headerLen:]); err != nil {
		return m, err
	}
	msg, _, err := decodeFrame(buf)
	return msg, err
}

// Send writes one message, blocking until fully flushed.
func (c *ChildEnd) Send(m api.Message) error {
	frame, err := encodeFrame(m)
	if err != nil {
		return err
	}
	_, err = c.out.Write(frame)
	return err
}
