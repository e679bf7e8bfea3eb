//go:build unix

// File: stream/stream_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package stream_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/fake"
	"github.com/momentics/hioload-proc/stream"
)

// pipePair returns (r, w) descriptors; the stream owns whichever side it
// is handed, the test closes the peer side.
func pipePair(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	return fds[0], fds[1]
}

func TestPipe_DeliversInboundBytes(t *testing.T) {
	loop := fake.NewLoop()
	r, w := pipePair(t)
	defer unix.Close(w)

	s := stream.New(loop, r, -1)
	var got []byte
	s.SetOnRead(func(p []byte) int {
		got = append(got, p...)
		return len(p)
	})

	_, err := unix.Write(w, []byte("hello"))
	require.NoError(t, err)
	loop.TriggerRead(r)

	assert.Equal(t, []byte("hello"), got)
}

func TestPipe_RedeliversUnconsumedBytes(t *testing.T) {
	loop := fake.NewLoop()
	r, w := pipePair(t)
	defer unix.Close(w)

	s := stream.New(loop, r, -1)
	var seen []string
	consume := 2
	s.SetOnRead(func(p []byte) int {
		seen = append(seen, string(p))
		n := consume
		consume = len(p) // take everything on the next delivery
		return n
	})

	_, err := unix.Write(w, []byte("abcde"))
	require.NoError(t, err)
	loop.TriggerRead(r)

	_, err = unix.Write(w, []byte("fg"))
	require.NoError(t, err)
	loop.TriggerRead(r)

	require.Len(t, seen, 2)
	assert.Equal(t, "abcde", seen[0])
	// Three unconsumed bytes precede the fresh ones.
	assert.Equal(t, "cdefg", seen[1])
}

func TestPipe_EOFClosesReadOnlyStream(t *testing.T) {
	loop := fake.NewLoop()
	r, w := pipePair(t)

	s := stream.New(loop, r, -1)
	closedCount := 0
	s.OnClosed(func() { closedCount++ })
	s.OnClosed(func() { closedCount++ })

	unix.Close(w)
	loop.TriggerRead(r)

	assert.Equal(t, 2, closedCount)
	assert.False(t, loop.Watching(r))

	// A second readiness event after teardown must not re-fire.
	loop.TriggerRead(r)
	assert.Equal(t, 2, closedCount)
}

func TestPipe_FlushesOnWriteReadiness(t *testing.T) {
	loop := fake.NewLoop()
	r, w := pipePair(t)
	defer unix.Close(r)

	s := stream.New(loop, -1, w)
	require.NoError(t, s.Write([]byte("out")))
	require.True(t, loop.WatchingWrite(w))

	loop.TriggerWrite(w)
	assert.False(t, loop.WatchingWrite(w))

	buf := make([]byte, 16)
	n, err := unix.Read(r, buf)
	require.NoError(t, err)
	assert.Equal(t, "out", string(buf[:n]))
}

func TestPipe_CloseWhenEmptyWaitsForFlush(t *testing.T) {
	loop := fake.NewLoop()
	r, w := pipePair(t)
	defer unix.Close(r)

	s := stream.New(loop, -1, w)
	closed := false
	s.OnClosed(func() { closed = true })

	require.NoError(t, s.Write([]byte("tail")))
	s.CloseWhenEmpty()
	assert.False(t, closed)

	loop.TriggerWrite(w)
	assert.True(t, closed)
	assert.ErrorIs(t, s.Write([]byte("x")), api.ErrStreamClosed)
}

func TestPipe_CloseWhenEmptyOnIdleStream(t *testing.T) {
	loop := fake.NewLoop()
	r, w := pipePair(t)
	defer unix.Close(r)

	s := stream.New(loop, -1, w)
	closed := false
	s.OnClosed(func() { closed = true })

	s.CloseWhenEmpty()
	assert.True(t, closed)
}

func TestPipe_BidirectionalClosesAfterBothSides(t *testing.T) {
	loop := fake.NewLoop()
	inR, inW := pipePair(t)
	outR, outW := pipePair(t)
	defer unix.Close(outR)

	s := stream.New(loop, inR, outW)
	closed := false
	s.OnClosed(func() { closed = true })

	s.CloseWhenEmpty()
	assert.False(t, closed)

	unix.Close(inW)
	loop.TriggerRead(inR)
	assert.True(t, closed)
}

func TestPipe_CloseDiscardsQueuedBytes(t *testing.T) {
	loop := fake.NewLoop()
	r, w := pipePair(t)
	defer unix.Close(r)

	s := stream.New(loop, -1, w)
	require.NoError(t, s.Write([]byte("never sent")))
	require.NoError(t, s.Close())
	assert.False(t, loop.WatchingWrite(w))
}
