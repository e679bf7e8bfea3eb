//go:build unix

// File: process/process_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/fake"
)

func newUnstarted(t *testing.T) *ChildProcess {
	t.Helper()
	return New(Config{Loop: fake.NewLoop(), Reaper: fake.NewReaper()})
}

func TestChildProcess_ExactlyOneBody(t *testing.T) {
	p := newUnstarted(t)
	assert.ErrorIs(t, p.Start(), api.ErrNoBody)

	// The conflicting second body fails at the configuration call, in
	// either order.
	p = newUnstarted(t)
	require.NoError(t, p.SetCommand([]string{"true"}))
	assert.ErrorIs(t, p.SetCode("entry"), api.ErrNoBody)

	p = newUnstarted(t)
	require.NoError(t, p.SetCode("entry"))
	assert.ErrorIs(t, p.SetCommand([]string{"true"}), api.ErrNoBody)
}

func TestChildProcess_BodyValidation(t *testing.T) {
	p := newUnstarted(t)
	assert.ErrorIs(t, p.SetCommand(nil), api.ErrNoBody)
	assert.ErrorIs(t, p.SetCode(""), api.ErrNoBody)
}

func TestChildProcess_StdioExcludesLowFDs(t *testing.T) {
	p := newUnstarted(t)
	require.NoError(t, p.SetStdio(FDConfig{Via: ViaPipeRDWR}))
	assert.ErrorIs(t, p.SetStdin(FDConfig{From: []byte("x")}), api.ErrFDConflict)
	assert.ErrorIs(t, p.SetStdout(FDConfig{OnRead: func([]byte) int { return 0 }}), api.ErrFDConflict)

	// And the other way round.
	p = newUnstarted(t)
	require.NoError(t, p.SetStdin(FDConfig{From: []byte("x")}))
	assert.ErrorIs(t, p.SetStdio(FDConfig{Via: ViaPipeRDWR}), api.ErrFDConflict)

	// Stderr is independent of the stdio slot.
	p = newUnstarted(t)
	require.NoError(t, p.SetStdio(FDConfig{Via: ViaPipeRDWR}))
	assert.NoError(t, p.SetStderr(FDConfig{OnRead: func([]byte) int { return 0 }}))
}

func TestChildProcess_RejectsDoubleWire(t *testing.T) {
	p := newUnstarted(t)
	require.NoError(t, p.SetFD(3, FDConfig{Via: ViaPipeWrite}))
	assert.ErrorIs(t, p.SetFD(3, FDConfig{Via: ViaPipeWrite}), api.ErrFDConflict)
}

func TestChildProcess_SetFDValidatesEagerly(t *testing.T) {
	p := newUnstarted(t)
	assert.ErrorIs(t, p.SetFD(3, FDConfig{}), api.ErrModeConflict)
	assert.ErrorIs(t, p.SetFD(-2, FDConfig{Via: ViaPipeRead}), api.ErrFDConflict)
}

func TestChildProcess_KillBeforeStart(t *testing.T) {
	p := newUnstarted(t)
	assert.Error(t, p.Kill("TERM"))
}
