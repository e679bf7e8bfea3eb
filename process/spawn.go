//go:build unix

// File: process/spawn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wiring-plan resolution and the actual spawn. Pipes are created with raw
// descriptors (no finalizers); child-side ends are wrapped only for the
// fd-duplication plan and closed in the parent immediately after spawn.

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"

	"golang.org/x/sys/unix"
)

// wire is one resolved fd role: the merge key, the user configuration and
// the parent-side descriptors feeding the stream.
type wire struct {
	key     string
	cfg     FDConfig
	readFD  int // parent reads from the child, -1 when absent
	writeFD int // parent writes to the child, -1 when absent
}

type spawnPlan struct {
	files map[int]*os.File // child fd -> file, owned, closed after spawn
	wires []*wire
	env   []string
	dir   string
	path  string
	argv  []string
}

func rawPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, fmt.Errorf("process: pipe: %w", err)
	}
	return fds[0], fds[1], nil
}

// abort releases every descriptor the plan created.
func (pl *spawnPlan) abort() {
	for _, f := range pl.files {
		_ = f.Close()
	}
	for _, w := range pl.wires {
		if w.readFD >= 0 {
			unix.Close(w.readFD)
		}
		if w.writeFD >= 0 {
			unix.Close(w.writeFD)
		}
	}
}

// closeChildSide closes the parent's copies of child-side descriptors so
// EOF is detectable once the child exits.
func (pl *spawnPlan) closeChildSide() {
	for _, f := range pl.files {
		_ = f.Close()
	}
}

func (p *ChildProcess) buildPlan() (*spawnPlan, error) {
	pl := &spawnPlan{
		files: make(map[int]*os.File),
		env:   os.Environ(),
	}

	// Deterministic wiring order keeps pipe fds stable across runs.
	roles := make([]int, 0, len(p.fds))
	for fd := range p.fds {
		roles = append(roles, fd)
	}
	sort.Ints(roles)

	for _, fd := range roles {
		cfg := p.fds[fd]
		via, err := cfg.resolve(fd)
		if err != nil {
			pl.abort()
			return nil, err
		}
		w := &wire{key: roleKey(fd), cfg: cfg, readFD: -1, writeFD: -1}
		if err := pl.wireOne(fd, via, w); err != nil {
			pl.abort()
			return nil, err
		}
		pl.wires = append(pl.wires, w)
	}

	for _, op := range p.setup {
		switch {
		case op.Chdir != "":
			pl.dir = op.Chdir
		case op.Env != nil:
			pl.env = append(pl.env, op.Env.Name+"="+op.Env.Value)
		case op.Dup != nil:
			// The plan owns a duplicate, never the caller's descriptor:
			// the *os.File finalizer must not close an fd the parent
			// keeps using.
			dup, err := unix.Dup(op.Dup.ParentFD)
			if err != nil {
				pl.abort()
				return nil, fmt.Errorf("process: dup fd %d: %w", op.Dup.ParentFD, err)
			}
			pl.files[op.Dup.ChildFD] = os.NewFile(uintptr(dup), "dup")
		}
	}

	if p.codeEntry != "" {
		if err := pl.wireStatus(p); err != nil {
			pl.abort()
			return nil, err
		}
		exe, err := os.Executable()
		if err != nil {
			pl.abort()
			return nil, fmt.Errorf("process: executable: %w", err)
		}
		pl.path = exe
		pl.argv = []string{exe}
		pl.env = append(pl.env, entryEnv+"="+p.codeEntry)
	} else {
		path, err := exec.LookPath(p.command[0])
		if err != nil {
			pl.abort()
			return nil, fmt.Errorf("process: %w", err)
		}
		pl.path = path
		pl.argv = p.command
	}
	return pl, nil
}

// wireOne creates the pipes for one role and records both sides.
func (pl *spawnPlan) wireOne(fd int, via Via, w *wire) error {
	childFor := func(role int) int {
		if fd == Stdio {
			return role
		}
		return fd
	}
	if via == ViaPipeRead || via == ViaPipeRDWR {
		r, wr, err := rawPipe()
		if err != nil {
			return err
		}
		w.readFD = r
		pl.files[childFor(1)] = os.NewFile(uintptr(wr), "child-out")
	}
	if via == ViaPipeWrite || via == ViaPipeRDWR {
		r, wr, err := rawPipe()
		if err != nil {
			return err
		}
		w.writeFD = wr
		pl.files[childFor(0)] = os.NewFile(uintptr(r), "child-in")
	}
	return nil
}

// wireStatus adds the hidden status pipe used by code-mode children to
// report an exception before exiting.
func (pl *spawnPlan) wireStatus(p *ChildProcess) error {
	r, wr, err := rawPipe()
	if err != nil {
		return err
	}
	childFD := pl.nextFreeChildFD()
	pl.files[childFD] = os.NewFile(uintptr(wr), "status")
	pl.env = append(pl.env, statusFDEnv+"="+strconv.Itoa(childFD))
	pl.wires = append(pl.wires, &wire{
		key:     "status",
		cfg:     FDConfig{Into: &p.statusBuf},
		readFD:  r,
		writeFD: -1,
	})
	return nil
}

func (pl *spawnPlan) nextFreeChildFD() int {
	fd := 3
	for {
		if _, used := pl.files[fd]; !used {
			return fd
		}
		fd++
	}
}

// spawn starts the child. The returned pid is valid only when err is nil.
func (pl *spawnPlan) spawn() (int, error) {
	max := 2
	for fd := range pl.files {
		if fd > max {
			max = fd
		}
	}
	files := make([]*os.File, max+1)
	files[0], files[1], files[2] = os.Stdin, os.Stdout, os.Stderr
	for fd, f := range pl.files {
		files[fd] = f
	}

	proc, err := os.StartProcess(pl.path, pl.argv, &os.ProcAttr{
		Dir:   pl.dir,
		Env:   pl.env,
		Files: files,
	})
	if err != nil {
		return 0, err
	}
	pid := proc.Pid
	// The reaper collects the status via wait4; drop the handle so the
	// runtime does not hold it.
	_ = proc.Release()
	return pid, nil
}

// errnoOf digs the OS error out of a spawn failure.
func errnoOf(err error) int {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}
