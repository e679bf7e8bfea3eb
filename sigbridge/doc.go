// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package sigbridge converts asynchronous POSIX signal delivery into
// loop-scheduled callbacks via the self-pipe trick: signal occurrences are
// appended to a FIFO queue and one wake byte is written to a dedicated
// pipe whose read end is watched by the reactor. User signal logic always
// runs as ordinary loop code, never in signal-delivery context.
package sigbridge
