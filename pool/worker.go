// File: pool/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Parent-side worker handle plus the child-side worker loop. The child
// receives calls on fd 3, answers on fd 4, and exits when the argument
// channel reaches EOF. A failing call is converted into a tagged error
// result before it crosses the channel; the loop itself never dies on a
// caught failure.

package pool

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/momentics/hioload-proc/api"
	"github.com/momentics/hioload-proc/channel"
	"github.com/momentics/hioload-proc/process"
)

// Func is the worker function body executed inside each worker process.
type Func func(args []any) ([]any, error)

// Child-side descriptor assignments, fixed by the spawn plan.
const (
	argsFD    = 3
	resultsFD = 4
)

// RegisterWorker names fn as a code entry runnable by worker processes of
// this binary. Must happen before process.Init.
func RegisterWorker(name string, fn Func) {
	process.RegisterEntry(name, func() error { return workerMain(fn) })
}

// workerMain is the child-side receive loop.
func workerMain(fn Func) error {
	end := channel.NewChildEnd(
		os.NewFile(argsFD, "args"),
		os.NewFile(resultsFD, "results"),
	)
	for {
		m, err := end.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := end.Send(invoke(fn, m)); err != nil {
			return err
		}
	}
}

// invoke runs one call inside the exception boundary.
func invoke(fn Func, m api.Message) api.Message {
	args, err := decodeValues(m.Values)
	if err != nil {
		return errorMessage(err.Error())
	}
	values, err := callShielded(fn, args)
	if err != nil {
		return errorMessage(err.Error())
	}
	encoded, err := encodeValues(values)
	if err != nil {
		return errorMessage(err.Error())
	}
	return api.Message{Tag: api.TagReturn, Values: encoded}
}

func callShielded(fn Func, args []any) (values []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(args)
}

func errorMessage(text string) api.Message {
	return api.Message{Tag: api.TagError, Values: [][]byte{[]byte(text)}}
}

func encodeValues(values []any) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		b, err := channel.EncodeValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

func decodeValues(raw [][]byte) ([]any, error) {
	out := make([]any, len(raw))
	for i, b := range raw {
		v, err := channel.DecodeValue(b)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// worker is the parent-side handle. The pool holds the strong reference;
// notifications travel back by pid and are resolved against the worker
// set at delivery time.
type worker struct {
	pid     int
	busy    bool
	current *call

	send      func(api.Message) error
	closeSend func()
	kill      func()
}

// spawnWorker starts one worker process and wires its channels. Replaced
// by a stub in deterministic tests.
func spawnWorker(p *Pool) (*worker, error) {
	proc := process.New(process.Config{
		Loop:   p.cfg.Loop,
		Reaper: p.cfg.Reaper,
		Log:    p.cfg.Log,
	})
	if err := proc.SetCode(p.cfg.Code); err != nil {
		return nil, err
	}
	if err := proc.SetFD(argsFD, process.FDConfig{Via: process.ViaPipeWrite}); err != nil {
		return nil, err
	}
	if err := proc.SetFD(resultsFD, process.FDConfig{Via: process.ViaPipeRead}); err != nil {
		return nil, err
	}
	for _, op := range p.cfg.Setup {
		if err := proc.AddSetup(op); err != nil {
			return nil, err
		}
	}
	proc.OnFinish(func(int) { p.workerFinished(proc.PID()) })
	proc.OnException(func(error, int, int) { p.workerFinished(proc.PID()) })

	if err := proc.Start(); err != nil {
		return nil, err
	}
	if !proc.Running() {
		return nil, fmt.Errorf("pool: worker spawn failed")
	}
	pid := proc.PID()

	argCh := channel.NewParent(proc.Stream("fd3"))
	resCh := channel.NewParent(proc.Stream("fd4"))
	resCh.SetOnReceive(func(m api.Message, err error) {
		if err != nil {
			p.workerEOF(pid)
			return
		}
		p.handleResult(pid, m)
	})

	return &worker{
		pid:       pid,
		send:      argCh.Send,
		closeSend: argCh.CloseSend,
		kill:      func() { _ = proc.Kill("TERM") },
	}, nil
}
