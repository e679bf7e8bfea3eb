// File: internal/bufpool/bufpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package bufpool recycles fixed-size read buffers for the stream and
// channel hot paths.
package bufpool

import "sync"

// Pool hands out fixed-size byte slices.
type Pool struct {
	size int
	p    sync.Pool
}

// New creates a pool of size-byte buffers.
func New(size int) *Pool {
	bp := &Pool{size: size}
	bp.p.New = func() any { return make([]byte, size) }
	return bp
}

// Get returns a buffer of the pool's size.
func (bp *Pool) Get() []byte {
	return bp.p.Get().([]byte)
}

// Put returns a buffer for reuse. Foreign-sized buffers are dropped.
func (bp *Pool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	bp.p.Put(buf[:bp.size])
}
