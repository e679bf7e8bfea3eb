//go:build linux

// File: pool/integration_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-proc/pool"
	"github.com/momentics/hioload-proc/process"
	"github.com/momentics/hioload-proc/reactor"
	"github.com/momentics/hioload-proc/sigbridge"
)

func TestMain(m *testing.M) {
	pool.RegisterWorker("double", func(args []any) ([]any, error) {
		n, ok := args[0].(int)
		if !ok {
			return nil, fmt.Errorf("want int, got %T", args[0])
		}
		if n < 0 {
			return nil, fmt.Errorf("negative input %d", n)
		}
		return []any{n * 2}, nil
	})
	process.Init()
	os.Exit(m.Run())
}

type rig struct {
	loop   *reactor.Loop
	reaper *process.ChildReaper
}

func newRig(t *testing.T) *rig {
	t.Helper()
	loop, err := reactor.New()
	require.NoError(t, err)
	bridge, err := sigbridge.New(loop, zerolog.Nop())
	require.NoError(t, err)
	reaper, err := process.NewReaper(loop, bridge, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = reaper.Close()
		_ = bridge.Close()
		_ = loop.Close()
	})
	return &rig{loop: loop, reaper: reaper}
}

func (r *rig) run(t *testing.T) {
	t.Helper()
	guard := r.loop.AfterFunc(15*time.Second, func() {
		t.Error("loop watchdog expired")
		r.loop.Stop()
	})
	require.NoError(t, r.loop.Run())
	guard.Stop()
}

func TestPool_RoundTrip(t *testing.T) {
	r := newRig(t)
	p, err := pool.New(pool.Config{
		Code:       "double",
		MinWorkers: 1,
		MaxWorkers: 2,
		Loop:       r.loop,
		Reaper:     r.reaper,
		Metrics:    pool.NewMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	var got []any
	require.NoError(t, p.Call(pool.CallSpec{
		Args: []any{21},
		OnReturn: func(values []any) {
			got = values
			p.Stop()
			r.loop.Stop()
		},
		OnError: func(text string) {
			t.Errorf("unexpected error %q", text)
			p.Stop()
			r.loop.Stop()
		},
	}))
	r.run(t)

	assert.Equal(t, []any{42}, got)
}

func TestPool_ErrorRoundTrip(t *testing.T) {
	r := newRig(t)
	p, err := pool.New(pool.Config{
		Code:       "double",
		MinWorkers: 1,
		MaxWorkers: 1,
		Loop:       r.loop,
		Reaper:     r.reaper,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	var gotText string
	require.NoError(t, p.Call(pool.CallSpec{
		Args: []any{-5},
		OnResult: func(res pool.Result) {
			if res.IsError {
				gotText = res.ErrText
			}
			p.Stop()
			r.loop.Stop()
		},
	}))
	r.run(t)

	assert.Equal(t, "negative input -5", gotText)
}

func TestPool_ManyCallsAcrossWorkers(t *testing.T) {
	r := newRig(t)
	p, err := pool.New(pool.Config{
		Code:       "double",
		MinWorkers: 1,
		MaxWorkers: 3,
		Loop:       r.loop,
		Reaper:     r.reaper,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start())

	const calls = 10
	results := make([]int, 0, calls)
	for i := 0; i < calls; i++ {
		require.NoError(t, p.Call(pool.CallSpec{
			Args: []any{i},
			OnReturn: func(values []any) {
				results = append(results, values[0].(int))
				if len(results) == calls {
					p.Stop()
					r.loop.Stop()
				}
			},
			OnError: func(text string) {
				t.Errorf("unexpected error %q", text)
				p.Stop()
				r.loop.Stop()
			},
		}))
	}
	r.run(t)

	require.Len(t, results, calls)
	sum := 0
	for _, v := range results {
		sum += v
	}
	// 2 * (0 + 1 + ... + 9)
	assert.Equal(t, 90, sum)
}
