// File: channel/channel_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package channel

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/fake"
)

type received struct {
	m   api.Message
	err error
}

func newParent(t *testing.T) (*Parent, *fake.Stream, *[]received) {
	t.Helper()
	s := fake.NewStream()
	c := NewParent(s)
	var got []received
	c.SetOnReceive(func(m api.Message, err error) {
		got = append(got, received{m, err})
	})
	return c, s, &got
}

func frame(t *testing.T, m api.Message) []byte {
	t.Helper()
	b, err := encodeFrame(m)
	require.NoError(t, err)
	return b
}

func TestParent_SendFramesMessages(t *testing.T) {
	c, s, _ := newParent(t)
	msg := api.Message{Tag: api.TagCall, Values: [][]byte{[]byte("a"), []byte("bc")}}
	require.NoError(t, c.Send(msg))

	decoded, n, err := decodeFrame(s.Written.Bytes())
	require.NoError(t, err)
	assert.Equal(t, s.Written.Len(), n)
	assert.Equal(t, msg, decoded)
}

func TestParent_ReceivesSplitFrame(t *testing.T) {
	_, s, got := newParent(t)
	raw := frame(t, api.Message{Tag: api.TagReturn, Values: [][]byte{[]byte("x")}})

	s.Feed(raw[:3])
	assert.Empty(t, *got)

	s.Feed(raw[3:])
	require.Len(t, *got, 1)
	assert.NoError(t, (*got)[0].err)
	assert.Equal(t, api.TagReturn, (*got)[0].m.Tag)
}

func TestParent_ReceivesBackToBackFrames(t *testing.T) {
	_, s, got := newParent(t)
	var raw []byte
	for _, tag := range []string{api.TagCall, api.TagReturn, api.TagError} {
		raw = append(raw, frame(t, api.Message{Tag: tag})...)
	}
	s.Feed(raw)

	require.Len(t, *got, 3)
	assert.Equal(t, api.TagCall, (*got)[0].m.Tag)
	assert.Equal(t, api.TagReturn, (*got)[1].m.Tag)
	assert.Equal(t, api.TagError, (*got)[2].m.Tag)
}

func TestParent_CorruptFramePoisonsChannel(t *testing.T) {
	_, s, got := newParent(t)
	s.Feed([]byte{0, 0, 0, 3, 0xff, 0xff, 0xff})

	require.Len(t, *got, 1)
	assert.Error(t, (*got)[0].err)

	// Later stream close must not deliver a second terminal error.
	s.FinishRead()
	s.CloseWhenEmpty()
	assert.Len(t, *got, 1)
}

func TestParent_StreamCloseBecomesEOF(t *testing.T) {
	_, s, got := newParent(t)
	require.NoError(t, s.Close())

	require.Len(t, *got, 1)
	assert.ErrorIs(t, (*got)[0].err, api.ErrChannelClosed)
}

func TestParent_CloseSendRejectsFurtherSends(t *testing.T) {
	c, _, _ := newParent(t)
	c.CloseSend()
	assert.ErrorIs(t, c.Send(api.Message{Tag: api.TagCall}), api.ErrChannelClosed)
	// Idempotent.
	c.CloseSend()
}

func TestChildEnd_RoundTrip(t *testing.T) {
	var parentToChild, childToParent bytes.Buffer
	end := NewChildEnd(&parentToChild, &childToParent)

	want := api.Message{Tag: api.TagCall, Values: [][]byte{[]byte("payload")}}
	parentToChild.Write(frame(t, want))

	got, err := end.Recv()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	reply := api.Message{Tag: api.TagReturn, Values: [][]byte{[]byte("ok")}}
	require.NoError(t, end.Send(reply))
	decoded, _, err := decodeFrame(childToParent.Bytes())
	require.NoError(t, err)
	assert.Equal(t, reply, decoded)
}

func TestChildEnd_EOFOnClosedInput(t *testing.T) {
	end := NewChildEnd(bytes.NewReader(nil), io.Discard)
	_, err := end.Recv()
	assert.ErrorIs(t, err, io.EOF)

	// A truncated header also reads as EOF, not as a decode failure.
	end = NewChildEnd(bytes.NewReader([]byte{0, 0}), io.Discard)
	_, err = end.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestValueEnvelopeRoundTrip(t *testing.T) {
	for _, v := range []any{42, "text", 3.5, true, []any{1, "two"}, map[string]any{"k": 1}} {
		b, err := EncodeValue(v)
		require.NoError(t, err)
		got, err := DecodeValue(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
