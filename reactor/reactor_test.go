//go:build linux

// File: reactor/reactor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-proc/reactor"
)

func newLoop(t *testing.T) *reactor.Loop {
	t.Helper()
	l, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoop_ReadReadiness(t *testing.T) {
	l := newLoop(t)

	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_CLOEXEC))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var got []byte
	require.NoError(t, l.WatchRead(fds[0], func() {
		buf := make([]byte, 16)
		n, err := unix.Read(fds[0], buf)
		require.NoError(t, err)
		got = buf[:n]
		require.NoError(t, l.UnwatchRead(fds[0]))
		l.Stop()
	}))

	_, err := unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.Equal(t, []byte("ping"), got)
}

func TestLoop_DeferFromAnotherGoroutine(t *testing.T) {
	l := newLoop(t)

	ran := false
	go func() {
		time.Sleep(20 * time.Millisecond)
		l.Defer(func() {
			ran = true
			l.Stop()
		})
	}()

	require.NoError(t, l.Run())
	assert.True(t, ran)
}

func TestLoop_TimersFireInDeadlineOrder(t *testing.T) {
	l := newLoop(t)

	var order []string
	l.AfterFunc(30*time.Millisecond, func() { order = append(order, "late") })
	l.AfterFunc(10*time.Millisecond, func() { order = append(order, "early") })
	l.AfterFunc(50*time.Millisecond, l.Stop)

	require.NoError(t, l.Run())
	assert.Equal(t, []string{"early", "late"}, order)
}

func TestLoop_TimerStop(t *testing.T) {
	l := newLoop(t)

	fired := false
	tm := l.AfterFunc(10*time.Millisecond, func() { fired = true })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())

	l.AfterFunc(30*time.Millisecond, l.Stop)
	require.NoError(t, l.Run())
	assert.False(t, fired)
}

func TestLoop_TimerReset(t *testing.T) {
	l := newLoop(t)

	fired := false
	tm := l.AfterFunc(time.Hour, func() { fired = true })
	tm.Reset(10 * time.Millisecond)

	l.AfterFunc(50*time.Millisecond, l.Stop)
	require.NoError(t, l.Run())
	assert.True(t, fired)
}

func TestLoop_DeferredRunAfterReadiness(t *testing.T) {
	l := newLoop(t)

	var order []string
	l.Defer(func() {
		order = append(order, "first")
		l.Defer(func() {
			order = append(order, "second")
			l.Stop()
		})
	})

	require.NoError(t, l.Run())
	assert.Equal(t, []string{"first", "second"}, order)
}
