// File: process/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// FD role configuration, wiring-mode inference and pre-exec setup ops.
// Everything here validates eagerly, at configuration time.

package process

import (
	"bytes"
	"fmt"

	"github.com/momentics/hioload-proc/api"
)

// Via selects how a child fd is piped relative to the parent.
type Via int

const (
	// ViaDefault infers the mode from OnRead/Into/From usage.
	ViaDefault Via = iota

	// ViaPipeRead gives the parent the read end; the child writes.
	ViaPipeRead

	// ViaPipeWrite gives the parent the write end; the child reads.
	ViaPipeWrite

	// ViaPipeRDWR wires both directions. Valid only for Stdio.
	ViaPipeRDWR
)

// Stdio is the combined bidirectional pseudo-fd: one stream covering the
// child's fd 0 and fd 1. Mutually exclusive with wiring those fds
// individually.
const Stdio = -1

// FDConfig describes one fd role. At most one data direction helper per
// direction: OnRead or Into for inbound, From for outbound.
type FDConfig struct {
	// Via forces a wiring mode; inferred when left at ViaDefault.
	Via Via

	// OnRead receives inbound bytes and returns how many it consumed.
	OnRead func(p []byte) int

	// Into accumulates all inbound bytes into the buffer.
	Into *bytes.Buffer

	// From is sent to the child, after which the write end is closed.
	From []byte
}

// resolve returns the effective wiring mode, validating the configuration
// against the fd it is attached to.
func (c FDConfig) resolve(fd int) (Via, error) {
	if c.OnRead != nil && c.Into != nil {
		return ViaDefault, fmt.Errorf("%w: OnRead and Into are exclusive", api.ErrModeConflict)
	}
	wantRead := c.OnRead != nil || c.Into != nil
	wantWrite := c.From != nil

	inferred := ViaDefault
	switch {
	case wantRead && wantWrite:
		inferred = ViaPipeRDWR
	case wantRead:
		inferred = ViaPipeRead
	case wantWrite:
		inferred = ViaPipeWrite
	}

	via := c.Via
	if via == ViaDefault {
		via = inferred
	}
	if via == ViaDefault {
		return ViaDefault, fmt.Errorf("%w: fd %d has no usage to infer a mode from", api.ErrModeConflict, fd)
	}
	// An explicit ViaPipeRDWR may widen an inferred single direction;
	// anything else must agree with usage.
	if inferred != ViaDefault && via != inferred && via != ViaPipeRDWR {
		return ViaDefault, fmt.Errorf("%w: explicit mode contradicts fd %d usage", api.ErrModeConflict, fd)
	}
	if via == ViaPipeRDWR && fd != Stdio {
		return ViaDefault, fmt.Errorf("%w: bidirectional wiring requires the stdio slot, not fd %d", api.ErrFDConflict, fd)
	}
	return via, nil
}

// roleKey names the merge-point key for a wired fd.
func roleKey(fd int) string {
	switch fd {
	case Stdio:
		return "stdio"
	case 0:
		return "stdin"
	case 1:
		return "stdout"
	case 2:
		return "stderr"
	default:
		return fmt.Sprintf("fd%d", fd)
	}
}

// EnvVar is one environment assignment for SetupOp.
type EnvVar struct {
	Name  string
	Value string
}

// FDDup maps an existing parent descriptor onto a child fd.
type FDDup struct {
	ChildFD  int
	ParentFD int
}

// SetupOp is one pre-exec operation. Exactly one field is set; ops apply
// in list order.
type SetupOp struct {
	Chdir string
	Env   *EnvVar
	Dup   *FDDup
}
