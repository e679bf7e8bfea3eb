//go:build unix

// File: stream/stream.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package stream implements the pipe-backed byte stream the supervisor
// wires to child file descriptors: non-blocking reads delivered through a
// consumed-count callback, buffered writes flushed on write readiness, and
// a single closed notification once every owned handle is gone.
package stream

import (
	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/internal/bufpool"
	"golang.org/x/sys/unix"
)

const readBufSize = 4096

var readBufs = bufpool.New(readBufSize)

// Pipe is the default api.Stream. Either side may be absent (-1): a
// read-only stream closes at EOF, a write-only stream closes when flushed
// after CloseWhenEmpty. All methods run on the loop goroutine.
type Pipe struct {
	loop api.Loop
	rfd  int
	wfd  int

	onRead   func(p []byte) int
	onClosed []func()

	carry []byte // delivered but unconsumed inbound bytes
	wbuf  []byte // outbound bytes not yet written

	rOpen, wOpen   bool
	watchingWrite  bool
	closeWhenEmpty bool
	closedFired    bool
}

// New builds a stream over parent-side pipe descriptors and registers the
// read side with the loop. Matches api.StreamFactory.
func New(loop api.Loop, readFD, writeFD int) api.Stream {
	p := &Pipe{loop: loop, rfd: readFD, wfd: writeFD}
	if readFD >= 0 {
		_ = unix.SetNonblock(readFD, true)
		p.rOpen = true
		_ = loop.WatchRead(readFD, p.handleRead)
	}
	if writeFD >= 0 {
		_ = unix.SetNonblock(writeFD, true)
		p.wOpen = true
	}
	return p
}

// SetOnRead installs the inbound callback.
func (p *Pipe) SetOnRead(fn func(p []byte) int) { p.onRead = fn }

// OnClosed registers an additional terminal observer.
func (p *Pipe) OnClosed(fn func()) { p.onClosed = append(p.onClosed, fn) }

// Write queues bytes and arms write-readiness.
func (p *Pipe) Write(b []byte) error {
	if !p.wOpen {
		return api.ErrStreamClosed
	}
	if len(b) == 0 {
		return nil
	}
	p.wbuf = append(p.wbuf, b...)
	if !p.watchingWrite {
		p.watchingWrite = true
		return p.loop.WatchWrite(p.wfd, p.handleWrite)
	}
	return nil
}

// CloseWhenEmpty closes the write handle once queued bytes are flushed.
func (p *Pipe) CloseWhenEmpty() {
	p.closeWhenEmpty = true
	if p.wOpen && len(p.wbuf) == 0 {
		p.closeWrite()
	}
}

// Close tears down both handles, discarding unflushed bytes.
func (p *Pipe) Close() error {
	p.wbuf = nil
	if p.wOpen {
		p.closeWrite()
	}
	if p.rOpen {
		p.closeRead()
	}
	return nil
}

func (p *Pipe) handleRead() {
	buf := readBufs.Get()
	defer readBufs.Put(buf)
	for {
		n, err := unix.Read(p.rfd, buf)
		switch {
		case n > 0:
			p.carry = append(p.carry, buf[:n]...)
			p.deliver()
			if n < len(buf) {
				return
			}
		case err == unix.EAGAIN:
			return
		default:
			// EOF or hard error: the peer end is gone.
			p.closeRead()
			return
		}
	}
}

func (p *Pipe) deliver() {
	if p.onRead == nil || len(p.carry) == 0 {
		return
	}
	consumed := p.onRead(p.carry)
	if consumed <= 0 {
		return
	}
	if consumed >= len(p.carry) {
		p.carry = p.carry[:0]
		return
	}
	p.carry = append(p.carry[:0], p.carry[consumed:]...)
}

func (p *Pipe) handleWrite() {
	for len(p.wbuf) > 0 {
		n, err := unix.Write(p.wfd, p.wbuf)
		if n > 0 {
			p.wbuf = p.wbuf[n:]
			continue
		}
		if err == unix.EAGAIN {
			return
		}
		// Peer closed its read end; nothing more can be delivered.
		p.wbuf = nil
		p.closeWrite()
		return
	}
	if p.watchingWrite {
		p.watchingWrite = false
		_ = p.loop.UnwatchWrite(p.wfd)
	}
	if p.closeWhenEmpty {
		p.closeWrite()
	}
}

func (p *Pipe) closeRead() {
	if !p.rOpen {
		return
	}
	p.rOpen = false
	_ = p.loop.UnwatchRead(p.rfd)
	unix.Close(p.rfd)
	p.maybeClosed()
}

func (p *Pipe) closeWrite() {
	if !p.wOpen {
		return
	}
	p.wOpen = false
	if p.watchingWrite {
		p.watchingWrite = false
		_ = p.loop.UnwatchWrite(p.wfd)
	}
	unix.Close(p.wfd)
	p.maybeClosed()
}

func (p *Pipe) maybeClosed() {
	if p.rOpen || p.wOpen || p.closedFired {
		return
	}
	p.closedFired = true
	for _, fn := range p.onClosed {
		fn()
	}
}
