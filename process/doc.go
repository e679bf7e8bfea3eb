// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package process supervises OS child processes for the event loop: it
// spawns a command or a registered code entry (re-executed in a child copy
// of the current binary), wires pipe-backed streams to the child's file
// descriptors, and delivers exactly one terminal callback once every wired
// stream has closed and the exit status has been reported. A SIGCHLD
// reaper built on sigbridge supplies the asynchronous exit notifications.
package process
