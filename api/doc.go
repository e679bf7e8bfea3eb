// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package api declares the contracts between the process-concurrency core
// and its external collaborators: the readiness loop (reactor), pipe-backed
// byte streams, discrete message channels, timers and the child reaper.
// Concrete implementations live in reactor/, stream/, channel/ and process/;
// deterministic test doubles live in fake/.
package api
