// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package reactor provides the default single-goroutine readiness loop
// behind api.Loop: level-triggered fd watching (epoll on Linux), deferred
// callbacks posted from any goroutine via a self-pipe wakeup, and
// heap-ordered one-shot timers.
package reactor
