//go:build unix

// File: process/process.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/merge"
	"github.com/momentics/hioload-proc/sigbridge"
	"github.com/momentics/hioload-proc/stream"
)

// Config carries the collaborators a ChildProcess runs against.
type Config struct {
	Loop   api.Loop
	Reaper api.Reaper

	// NewStream builds the stream per wired fd; defaults to stream.New.
	NewStream api.StreamFactory

	// Log is optional; nil disables logging.
	Log *zerolog.Logger
}

// ChildProcess supervises a single spawned process. Configuration happens
// before Start; afterwards the object is immutable except for its terminal
// transition, which fires exactly once. All methods run on the loop
// goroutine.
type ChildProcess struct {
	loop      api.Loop
	reaper    api.Reaper
	newStream api.StreamFactory
	log       zerolog.Logger

	command   []string
	codeEntry string
	fds       map[int]FDConfig
	setup     []SetupOp

	onFinish    func(exitCode int)
	onException func(err error, errno int, exitCode int)

	spawned bool
	running bool
	pid     int
	streams map[string]api.Stream
	point   *merge.Point

	status    api.ExitStatus
	statusBuf bytes.Buffer
}

// New returns an unstarted process bound to cfg's loop and reaper.
func New(cfg Config) *ChildProcess {
	log := zerolog.Nop()
	if cfg.Log != nil {
		log = *cfg.Log
	}
	newStream := cfg.NewStream
	if newStream == nil {
		newStream = stream.New
	}
	return &ChildProcess{
		loop:      cfg.Loop,
		reaper:    cfg.Reaper,
		newStream: newStream,
		log:       log,
		fds:       make(map[int]FDConfig),
		streams:   make(map[string]api.Stream),
		point:     merge.New(),
	}
}

// SetCommand configures an argv to execute.
func (p *ChildProcess) SetCommand(argv []string) error {
	if p.spawned {
		return api.ErrAlreadyRunning
	}
	if len(argv) == 0 {
		return fmt.Errorf("%w: empty argv", api.ErrNoBody)
	}
	if p.codeEntry != "" {
		return fmt.Errorf("%w: code body already configured", api.ErrNoBody)
	}
	p.command = argv
	return nil
}

// SetCode configures a registered re-exec entry to run in the child.
func (p *ChildProcess) SetCode(entry string) error {
	if p.spawned {
		return api.ErrAlreadyRunning
	}
	if entry == "" {
		return fmt.Errorf("%w: empty entry", api.ErrNoBody)
	}
	if p.command != nil {
		return fmt.Errorf("%w: command body already configured", api.ErrNoBody)
	}
	p.codeEntry = entry
	return nil
}

// SetFD wires a child fd role. Use Stdio for the combined bidirectional
// slot. Fails eagerly on role or mode contradictions.
func (p *ChildProcess) SetFD(fd int, cfg FDConfig) error {
	if p.spawned {
		return api.ErrAlreadyRunning
	}
	if fd < Stdio {
		return fmt.Errorf("%w: invalid fd %d", api.ErrFDConflict, fd)
	}
	if fd == Stdio {
		for _, taken := range []int{0, 1} {
			if _, ok := p.fds[taken]; ok {
				return fmt.Errorf("%w: stdio excludes fd %d", api.ErrFDConflict, taken)
			}
		}
	} else if fd == 0 || fd == 1 {
		if _, ok := p.fds[Stdio]; ok {
			return fmt.Errorf("%w: fd %d excluded by stdio", api.ErrFDConflict, fd)
		}
	}
	if _, dup := p.fds[fd]; dup {
		return fmt.Errorf("%w: fd %d wired twice", api.ErrFDConflict, fd)
	}
	if _, err := cfg.resolve(fd); err != nil {
		return err
	}
	p.fds[fd] = cfg
	return nil
}

// SetStdin wires the child's fd 0.
func (p *ChildProcess) SetStdin(cfg FDConfig) error { return p.SetFD(0, cfg) }

// SetStdout wires the child's fd 1.
func (p *ChildProcess) SetStdout(cfg FDConfig) error { return p.SetFD(1, cfg) }

// SetStderr wires the child's fd 2.
func (p *ChildProcess) SetStderr(cfg FDConfig) error { return p.SetFD(2, cfg) }

// SetStdio wires the combined bidirectional pseudo-fd.
func (p *ChildProcess) SetStdio(cfg FDConfig) error { return p.SetFD(Stdio, cfg) }

// AddSetup appends one pre-exec operation.
func (p *ChildProcess) AddSetup(op SetupOp) error {
	if p.spawned {
		return api.ErrAlreadyRunning
	}
	p.setup = append(p.setup, op)
	return nil
}

// OnFinish installs the normal-completion callback.
func (p *ChildProcess) OnFinish(fn func(exitCode int)) { p.onFinish = fn }

// OnException installs the failure callback. Without one, failures
// degrade to OnFinish with only the exit code.
func (p *ChildProcess) OnException(fn func(err error, errno int, exitCode int)) {
	p.onException = fn
}

// PID reports the child's process id; valid after Start, and still
// queryable after termination.
func (p *ChildProcess) PID() int { return p.pid }

// Running reports whether the terminal callback has not yet fired for a
// started process.
func (p *ChildProcess) Running() bool { return p.running }

// Stream returns the wired stream for a role key ("stdin", "stdio",
// "fd3", ...). Nil before Start or for unwired roles.
func (p *ChildProcess) Stream(key string) api.Stream { return p.streams[key] }

// Kill sends the named signal to the child.
func (p *ChildProcess) Kill(signame string) error {
	if !p.spawned || p.pid == 0 {
		return fmt.Errorf("process: not started")
	}
	sig := sigbridge.Signum(signame)
	if sig == 0 {
		return fmt.Errorf("process: unknown signal %q", signame)
	}
	return unix.Kill(p.pid, sig)
}

// Start resolves the wiring plan, spawns the child and registers the
// completion keys. Plan errors surface synchronously; spawn failures are
// reported asynchronously through the exception path, mirroring how a
// post-fork exec failure would arrive.
func (p *ChildProcess) Start() error {
	if p.spawned {
		return api.ErrAlreadyRunning
	}
	if (p.command == nil) == (p.codeEntry == "") {
		return api.ErrNoBody
	}
	p.spawned = true

	plan, err := p.buildPlan()
	if err != nil {
		p.spawned = false
		return err
	}

	pid, err := plan.spawn()
	if err != nil {
		plan.abort()
		p.status = api.ExitStatus{Err: err, Errno: errnoOf(err), Code: -1}
		p.loop.Defer(p.deliverTerminal)
		return nil
	}
	p.pid = pid
	p.running = true
	plan.closeChildSide()
	p.log.Debug().Int("pid", pid).Str("path", plan.path).Msg("child spawned")

	for _, w := range plan.wires {
		p.wireStream(w)
	}

	_ = p.point.Needs("exit")
	p.reaper.Watch(pid, func(st api.ExitStatus) {
		p.status = st
		_ = p.point.Done("exit", st.Code)
	})

	// No more keys after this; closing also detaches the completion
	// handler once it fires, so the process object is not pinned by its
	// own closure.
	_ = p.point.Close(func(map[string]any) { p.deliverTerminal() })
	return nil
}

// wireStream builds the stream for one resolved role and hooks its closed
// event into the merge point.
func (p *ChildProcess) wireStream(w *wire) {
	s := p.newStream(p.loop, w.readFD, w.writeFD)
	p.streams[w.key] = s

	switch {
	case w.cfg.OnRead != nil:
		s.SetOnRead(w.cfg.OnRead)
	case w.cfg.Into != nil:
		into := w.cfg.Into
		s.SetOnRead(func(b []byte) int {
			into.Write(b)
			return len(b)
		})
	}
	if w.cfg.From != nil {
		_ = s.Write(w.cfg.From)
		s.CloseWhenEmpty()
	}

	key := w.key
	_ = p.point.Needs(key)
	s.OnClosed(func() { _ = p.point.Done(key, nil) })
}

// deliverTerminal fires the single terminal callback. Exception data wins
// when present; without an exception handler it degrades to the plain
// finish path, keeping only the exit code.
func (p *ChildProcess) deliverTerminal() {
	p.running = false

	st := p.status
	code := st.Code
	if !st.Exited && st.Signal != "" {
		code = 128 + int(sigbridge.Signum(st.Signal))
	}

	excErr := st.Err
	if excErr == nil {
		if text := strings.TrimSpace(p.statusBuf.String()); text != "" {
			excErr = errors.New(text)
		}
	}

	if excErr != nil && p.onException != nil {
		p.log.Debug().Int("pid", p.pid).Err(excErr).Int("errno", st.Errno).Msg("child failed")
		p.onException(excErr, st.Errno, code)
		return
	}
	p.log.Debug().Int("pid", p.pid).Int("exit_code", code).Msg("child finished")
	if p.onFinish != nil {
		p.onFinish(code)
	}
}
