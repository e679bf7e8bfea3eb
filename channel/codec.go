// File: channel/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire codec: length-prefixed frames carrying gob-encoded messages, with a
// frame-size guard against resource exhaustion, plus the value envelope
// used to ship opaque call arguments and results.

package channel

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/momentics/hioload-proc/api"
)

// MaxFramePayload bounds a single message frame.
const MaxFramePayload = 1 << 24 // 16 MiB

const headerLen = 4

func init() {
	// Interface-typed values crossing the channel need their concrete
	// types pre-registered with gob.
	gob.Register(int(0))
	gob.Register(int64(0))
	gob.Register(uint64(0))
	gob.Register(float64(0))
	gob.Register("")
	gob.Register(false)
	gob.Register([]byte(nil))
	gob.Register([]any(nil))
	gob.Register(map[string]any(nil))
}

// encodeFrame serializes m as one length-prefixed frame.
func encodeFrame(m api.Message) ([]byte, error) {
	var body bytes.Buffer
	body.Write(make([]byte, headerLen))
	if err := gob.NewEncoder(&body).Encode(m); err != nil {
		return nil, fmt.Errorf("channel: encode: %w", err)
	}
	frame := body.Bytes()
	payload := len(frame) - headerLen
	if payload > MaxFramePayload {
		return nil, fmt.Errorf("channel: frame payload %d exceeds maximum", payload)
	}
	binary.BigEndian.PutUint32(frame[:headerLen], uint32(payload))
	return frame, nil
}

// decodeFrame parses one frame from buf. Returns the message and the total
// bytes consumed; consumed == 0 means more bytes are needed.
func decodeFrame(buf []byte) (api.Message, int, error) {
	var m api.Message
	if len(buf) < headerLen {
		return m, 0, nil
	}
	payload := int(binary.BigEndian.Uint32(buf[:headerLen]))
	if payload > MaxFramePayload {
		return m, 0, fmt.Errorf("channel: frame payload %d exceeds maximum", payload)
	}
	if len(buf) < headerLen+payload {
		return m, 0, nil
	}
	dec := gob.NewDecoder(bytes.NewReader(buf[headerLen : headerLen+payload]))
	if err := dec.Decode(&m); err != nil {
		return m, 0, fmt.Errorf("channel: decode: %w", err)
	}
	return m, headerLen + payload, nil
}

// valueEnvelope carries one interface-typed value through gob.
type valueEnvelope struct {
	V any
}

// EncodeValue serializes one call argument or result value.
func EncodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(valueEnvelope{V: v}); err != nil {
		return nil, fmt.Errorf("channel: encode value: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue(p []byte) (any, error) {
	var env valueEnvelope
	if err := gob.NewDecoder(bytes.NewReader(p)).Decode(&env); err != nil {
		return nil, fmt.Errorf("channel: decode value: %w", err)
	}
	return env.V, nil
}
