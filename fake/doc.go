// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package fake provides deterministic in-memory doubles for the api
// contracts. The fake loop runs nothing on its own; tests drive it by
// hand with Tick, Advance and TriggerRead, which makes ordering
// assertions exact.
package fake
