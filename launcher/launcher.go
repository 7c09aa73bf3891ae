// Package launcher runs the backend start script as a supervised task.
//
// The launcher spawns the script inside a process group, then waits for
// whichever comes first: the process exiting or the task being cancelled.
// An exit observed while no cancellation was requested is "unexpected" and
// is reported through the onUnexpectedExit callback, exactly once. When
// cancellation and exit race, the callback stays silent.
//
// The launcher never kills the backend itself; terminating it is the job of
// the process group that owns it.
package launcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mrexodia/app-launcher/task"
)

// waitDelay bounds how long Wait keeps copying output after the backend
// exited, in case a grandchild still holds the pipes.
const waitDelay = 2 * time.Second

// State is the launcher lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateExited
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config describes how to start the backend.
type Config struct {
	// Command is the interpreter command line, split with shell rules.
	Command string
	// PortFlag precedes the port argument; empty passes the port positionally.
	PortFlag string
	Workdir  string
	Env      map[string]string
	// NewConsole opens a separate console window (Windows). When false the
	// output is captured to LogDir and to an in-memory tail.
	NewConsole bool
	LogDir     string

	FailurePolicy FailurePolicy
	// OnFailure receives spawn and attach errors under FailureEscalate.
	OnFailure func(error)

	// Spawner overrides how the process is started. Defaults to InGroup
	// with the group passed to Start.
	Spawner Spawner
	Logger  *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Launcher is a running launcher task.
type Launcher struct {
	cfg     Config
	port    uint16
	spawner Spawner
	onExit  func()
	log     *slog.Logger
	task    *task.Task

	state    atomic.Int32
	mu       sync.Mutex
	pid      int
	exitCode int
	err      error

	stdout *CircularBuffer
	stderr *CircularBuffer
}

// Start launches the backend on port in a new task. group is used to spawn
// the process unless cfg.Spawner is set. onUnexpectedExit may be nil.
func Start(parent context.Context, cfg Config, port uint16, group Group, onUnexpectedExit func()) *Launcher {
	spawner := cfg.Spawner
	if spawner == nil {
		spawner = InGroup(group)
	}

	l := &Launcher{
		cfg:      cfg,
		port:     port,
		spawner:  spawner,
		onExit:   task.Once(onUnexpectedExit),
		log:      cfg.logger().With("component", "launcher", "port", port),
		exitCode: -1,
		stdout:   NewCircularBuffer(outputBufferSize),
		stderr:   NewCircularBuffer(outputBufferSize),
	}
	l.task = task.Start(parent, "launcher", l.run)
	return l
}

func (l *Launcher) run(ctx context.Context) {
	if ctx.Err() != nil {
		l.setState(StateCancelled)
		return
	}

	cmd, err := BuildCommand(l.cfg, l.port)
	if err != nil {
		l.fail(err)
		return
	}

	closeLogs, err := l.attachOutput(cmd)
	if err != nil {
		l.fail(err)
		return
	}

	proc, err := l.spawner.Spawn(cmd)
	if err != nil {
		closeLogs()
		l.fail(err)
		return
	}

	l.mu.Lock()
	l.pid = proc.Pid()
	l.mu.Unlock()
	l.setState(StateRunning)
	l.log.Info("backend started", "pid", proc.Pid(), "command", cmd.String())

	exited := make(chan exitResult, 1)
	go func() {
		code, err := proc.Wait()
		closeLogs()
		exited <- exitResult{code: code, err: err}
	}()

	select {
	case <-ctx.Done():
		l.setState(StateCancelled)
		l.log.Debug("launcher cancelled while backend running", "pid", proc.Pid())
	case res := <-exited:
		l.mu.Lock()
		l.exitCode = res.code
		l.mu.Unlock()

		// An exit that races with cancellation is not reported.
		if ctx.Err() != nil {
			l.setState(StateCancelled)
			l.log.Debug("backend exited after cancellation", "exit_code", res.code)
			return
		}

		l.setState(StateExited)
		l.log.Warn("backend exited unexpectedly", "exit_code", res.code, "error", res.err)
		l.onExit()
	}
}

type exitResult struct {
	code int
	err  error
}

// attachOutput wires stdout/stderr into the tail buffers and, when LogDir
// is set, into append-only log files. The returned func closes the files.
func (l *Launcher) attachOutput(cmd *exec.Cmd) (func(), error) {
	if l.cfg.NewConsole {
		return func() {}, nil
	}

	var files []*os.File
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	var stdout, stderr io.Writer = l.stdout, l.stderr
	if l.cfg.LogDir != "" {
		if err := os.MkdirAll(l.cfg.LogDir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		for _, stream := range []string{"stdout", "stderr"} {
			path := filepath.Join(l.cfg.LogDir, fmt.Sprintf("backend-%s.log", stream))
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				closeFiles()
				return nil, fmt.Errorf("open %s log file: %w", stream, err)
			}
			files = append(files, f)
		}
		stdout = io.MultiWriter(files[0], l.stdout)
		stderr = io.MultiWriter(files[1], l.stderr)
	}

	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	var once sync.Once
	return func() { once.Do(closeFiles) }, nil
}

func (l *Launcher) fail(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	l.setState(StateFailed)

	if l.cfg.FailurePolicy == FailureEscalate {
		l.log.Error("backend failed to start", "error", err, "policy", l.cfg.FailurePolicy)
		if l.cfg.OnFailure != nil {
			l.cfg.OnFailure(err)
		}
		return
	}
	l.log.Warn("backend failed to start", "error", err, "policy", l.cfg.FailurePolicy)
}

func (l *Launcher) setState(s State) {
	l.state.Store(int32(s))
}

// State returns the current lifecycle state.
func (l *Launcher) State() State {
	return State(l.state.Load())
}

// PID returns the backend pid, or 0 if it was never started.
func (l *Launcher) PID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pid
}

// ExitCode returns the backend exit code, or -1 if no exit was observed.
func (l *Launcher) ExitCode() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exitCode
}

// Err returns the spawn or attach error, if any.
func (l *Launcher) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stdout returns the tail of the captured standard output.
func (l *Launcher) Stdout() []byte {
	return l.stdout.Bytes()
}

// Stderr returns the tail of the captured standard error.
func (l *Launcher) Stderr() []byte {
	return l.stderr.Bytes()
}

// Cancel requests cancellation without waiting.
func (l *Launcher) Cancel() {
	l.task.Cancel()
}

// Stop requests cancellation and waits for the task to return. After Stop
// returns, onUnexpectedExit can no longer be invoked. The returned error is
// the spawn or attach error, if any.
func (l *Launcher) Stop() error {
	l.task.Stop()
	return l.Err()
}

// Done is closed when the task has returned.
func (l *Launcher) Done() <-chan struct{} {
	return l.task.Done()
}
