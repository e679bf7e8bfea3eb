// File: pool/worker_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-proc/api"
)

func callMessage(t *testing.T, args ...any) api.Message {
	t.Helper()
	values, err := encodeValues(args)
	require.NoError(t, err)
	return api.Message{Tag: api.TagCall, Values: values}
}

func TestInvoke_ReturnValues(t *testing.T) {
	double := func(args []any) ([]any, error) {
		return []any{args[0].(int) * 2}, nil
	}
	out := invoke(double, callMessage(t, 21))
	require.Equal(t, api.TagReturn, out.Tag)
	values, err := decodeValues(out.Values)
	require.NoError(t, err)
	assert.Equal(t, []any{42}, values)
}

func TestInvoke_ErrorBecomesTaggedError(t *testing.T) {
	failing := func([]any) ([]any, error) {
		return nil, errors.New("no such user")
	}
	out := invoke(failing, callMessage(t, "alice"))
	require.Equal(t, api.TagError, out.Tag)
	assert.Equal(t, "no such user", string(out.Values[0]))
}

func TestInvoke_PanicIsCaught(t *testing.T) {
	panicking := func([]any) ([]any, error) {
		panic("index out of range")
	}
	out := invoke(panicking, callMessage(t))
	require.Equal(t, api.TagError, out.Tag)
	assert.Contains(t, string(out.Values[0]), "index out of range")
}
