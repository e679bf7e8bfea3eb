// File: fake/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fake

import (
	"bytes"

	"github.com/momentics/hioload-proc/api"
)

// Stream is an in-memory api.Stream. Tests inject inbound bytes with
// Feed and inspect outbound bytes in Written; FinishRead simulates the
// peer closing its end.
type Stream struct {
	onRead   func(p []byte) int
	onClosed []func()

	carry   []byte
	Written bytes.Buffer

	readDone  bool
	writeDone bool
	closed    bool
}

// NewStream builds an open bidirectional fake stream.
func NewStream() *Stream { return &Stream{} }

// NewStreamFactory returns a StreamFactory handing out the given
// streams in order, recording them for later inspection.
func NewStreamFactory(streams ...*Stream) api.StreamFactory {
	i := 0
	return func(api.Loop, int, int) api.Stream {
		s := streams[i]
		i++
		return s
	}
}

func (s *Stream) SetOnRead(fn func(p []byte) int) { s.onRead = fn }

func (s *Stream) OnClosed(fn func()) { s.onClosed = append(s.onClosed, fn) }

func (s *Stream) Write(p []byte) error {
	if s.closed || s.writeDone {
		return api.ErrStreamClosed
	}
	s.Written.Write(p)
	return nil
}

// CloseWhenEmpty closes the write side; the fake has no kernel buffer,
// so it is immediate.
func (s *Stream) CloseWhenEmpty() {
	s.writeDone = true
	s.maybeClosed()
}

func (s *Stream) Close() error {
	s.readDone = true
	s.writeDone = true
	s.maybeClosed()
	return nil
}

// Feed presents p to the read callback, honouring partial consumption
// the way the real stream does.
func (s *Stream) Feed(p []byte) {
	s.carry = append(s.carry, p...)
	for len(s.carry) > 0 && s.onRead != nil {
		n := s.onRead(s.carry)
		if n <= 0 {
			return
		}
		s.carry = s.carry[n:]
	}
}

// FinishRead simulates EOF from the peer.
func (s *Stream) FinishRead() {
	s.readDone = true
	s.maybeClosed()
}

func (s *Stream) maybeClosed() {
	if s.closed || !s.readDone || !s.writeDone {
		return
	}
	s.closed = true
	for _, fn := range s.onClosed {
		fn()
	}
}
