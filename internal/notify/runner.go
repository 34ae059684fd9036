package notify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// DefaultWaitDelay bounds how long a finished command may keep its output
// open, e.g. through a process it left running in the background.
const DefaultWaitDelay = time.Second

var (
	ErrCommandNotStarted = errors.New("command not started")
	ErrCommandInProgress = errors.New("command in progress")
)

type StderrFunc func(ctx context.Context, line string)

// Runner runs a single instance of an external command at a time.
type Runner struct {
	mx         sync.RWMutex
	cmd        *exec.Cmd
	cancelFunc context.CancelFunc
	result     Result
	waits      []chan Result
}

func NewRunner() *Runner {
	return &Runner{
		result: Result{Err: ErrCommandNotStarted},
	}
}

type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
	// WaitDelay overrides DefaultWaitDelay when positive
	WaitDelay time.Duration
}

type Result struct {
	Path    string
	Args    []string
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	Stdout  *bytes.Buffer
	Err     error
}

// Start runs the underlying process. It returns ErrCommandInProgress or an
// exec error, otherwise nil. Start does NOT wait for the command to finish,
// use ResultsChan for that. Env is appended to the environment of the
// current process.
func (r *Runner) Start(ctx context.Context, proto Command, stderrFunc StderrFunc) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd != nil {
		return ErrCommandInProgress
	}

	r.result = Result{
		Path: proto.Path,
		Args: append([]string(nil), proto.Args...),
	}

	var cancel context.CancelFunc
	if proto.Timeout == 0 {
		slog.WarnContext(ctx, "command has no timeout", "path", proto.Path)
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
	}

	cmd := exec.CommandContext(ctx, r.result.Path, r.result.Args...)
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	cmd.WaitDelay = DefaultWaitDelay
	if proto.WaitDelay > 0 {
		cmd.WaitDelay = proto.WaitDelay
	}
	var stderr *io.PipeReader
	var stderrW *io.PipeWriter
	if stderrFunc != nil {
		stderr, stderrW = io.Pipe()
		cmd.Stderr = stderrW
	}
	var buf bytes.Buffer
	r.result.Stdout = &buf
	cmd.Stdout = &buf

	r.result.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		cancel()
		if stderrW != nil {
			_ = stderrW.Close()
		}
		r.result.Stopped = time.Now().UTC()
		r.result.Err = err
		return err
	}
	r.cmd = cmd
	r.cancelFunc = cancel

	var stderrDone chan struct{}
	if stderr != nil {
		stderrDone = make(chan struct{})
		go func() {
			defer close(stderrDone)
			processStderr(ctx, stderr, stderrFunc)
		}()
	}
	go r.wait(cmd, stderrW, stderrDone)
	return nil
}

func processStderr(ctx context.Context, stderr io.Reader, stderrFunc StderrFunc) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		stderrFunc(ctx, scanner.Text())
	}
	err := scanner.Err()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
		slog.ErrorContext(ctx, "processing stderr", "error", err)
	}
	// keep the writer unblocked
	_, _ = io.Copy(io.Discard, stderr)
}

// wait joins the process first: output left open by a background child is
// closed by Wait after cmd.WaitDelay.
func (r *Runner) wait(cmd *exec.Cmd, stderrW *io.PipeWriter, stderrDone <-chan struct{}) {
	err := cmd.Wait()
	stopped := time.Now().UTC()
	if stderrW != nil {
		_ = stderrW.Close()
		<-stderrDone
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	r.cancelFunc()
	r.cancelFunc = nil
	r.result.Stopped = stopped
	r.result.State = cmd.ProcessState
	r.result.Err = err
	r.cmd = nil
	for _, ch := range r.waits {
		ch <- r.result
		close(ch)
	}
	r.waits = nil
}

// ResultsChan returns the channel obtaining the result of the running
// command. The channel is closed once the command ends. When nothing runs
// the last result is delivered at once.
func (r *Runner) ResultsChan() <-chan Result {
	ch := make(chan Result, 1)
	r.mx.Lock()
	defer r.mx.Unlock()
	if r.cmd == nil {
		ch <- r.result
		close(ch)
		return ch
	}
	r.waits = append(r.waits, ch)
	return ch
}

// LastResult returns the last command result
// or a result with ErrCommandNotStarted/ErrCommandInProgress.
func (r *Runner) LastResult() Result {
	r.mx.RLock()
	defer r.mx.RUnlock()
	if r.cmd != nil {
		return Result{Path: r.result.Path, Args: r.result.Args, Started: r.result.Started, Err: ErrCommandInProgress}
	}
	return r.result
}

// Close kills the running command, if any, and waits for it.
func (r *Runner) Close() {
	r.mx.Lock()
	running := r.cmd != nil
	if running {
		r.cancelFunc()
	}
	r.mx.Unlock()
	if running {
		<-r.ResultsChan()
	}
}
