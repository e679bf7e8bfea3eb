// File: process/reexec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Code-body execution by self re-exec: a child copy of the current binary
// is started with an environment marker selecting a registered entry.
// Init must run before any other work in main (and in TestMain for test
// binaries that spawn code-mode children).

package process

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

const (
	entryEnv    = "HIOLOAD_PROC_ENTRY"
	statusFDEnv = "HIOLOAD_PROC_STATUS_FD"
)

var (
	entryMu sync.Mutex
	entries = make(map[string]func() error)
)

// RegisterEntry names a code body that child processes of this binary can
// execute. Registration must happen before Init, typically from init
// functions or at the top of main.
func RegisterEntry(name string, fn func() error) {
	entryMu.Lock()
	defer entryMu.Unlock()
	if _, dup := entries[name]; dup {
		panic(fmt.Sprintf("process: entry %q registered twice", name))
	}
	entries[name] = fn
}

// Init checks whether this process was spawned to run a registered entry
// and, if so, runs it and exits. Returns only in the parent role.
func Init() {
	name := os.Getenv(entryEnv)
	if name == "" {
		return
	}
	entryMu.Lock()
	fn := entries[name]
	entryMu.Unlock()
	if fn == nil {
		fmt.Fprintf(os.Stderr, "hioload-proc: unknown entry %q\n", name)
		os.Exit(127)
	}
	if err := runShielded(fn); err != nil {
		reportStatus(err)
		os.Exit(1)
	}
	os.Exit(0)
}

// runShielded converts a panic in the entry into an ordinary error so it
// can cross the status pipe as text.
func runShielded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// reportStatus writes the failure text to the status pipe handed down by
// the supervisor, when one is present.
func reportStatus(err error) {
	raw := os.Getenv(statusFDEnv)
	if raw == "" {
		return
	}
	fd, convErr := strconv.Atoi(raw)
	if convErr != nil || fd < 3 {
		return
	}
	f := os.NewFile(uintptr(fd), "status")
	if f == nil {
		return
	}
	_, _ = f.WriteString(err.Error())
	_ = f.Close()
}
