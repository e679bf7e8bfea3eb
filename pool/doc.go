// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package pool maintains a bounded fleet of identical worker processes
// executing one registered function body, routes calls to them with FIFO
// dispatch, scales up under load, idles down on a timer, and translates
// worker results, failures and deaths into typed continuations.
package pool
