//go:build unix && !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-Linux builds have no poller yet.

package reactor

import "github.com/momentics/hioload-proc/api"

func newPoller() (poller, error) {
	return nil, api.ErrNotSupported
}
