//go:build windows

package procgroup

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	winjob "github.com/kolesnikovae/go-winjob"
)

// Group wraps a job object configured to kill its members when closed.
type Group struct {
	name   string
	log    *slog.Logger
	mu     sync.Mutex
	job    *winjob.JobObject
	closed bool
}

// New creates the job object and sets the kill-on-close limit. When setting
// the limit fails the job handle is closed before the error is returned.
func New(name string, logger *slog.Logger) (*Group, error) {
	if logger == nil {
		logger = slog.Default()
	}

	job, err := winjob.Create(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	if err := job.SetLimit(winjob.WithKillOnJobClose()); err != nil {
		_ = job.Close()
		return nil, fmt.Errorf("%w: %w", ErrConfigure, err)
	}

	return &Group{
		name: name,
		log:  logger,
		job:  job,
	}, nil
}

// Name returns the job object name.
func (g *Group) Name() string {
	return g.name
}

// Start spawns cmd suspended, assigns it to the job and only then resumes
// it, so the process cannot run or spawn children outside the job.
func (g *Group) Start(cmd *exec.Cmd) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}

	if err := winjob.StartInJobObject(cmd, g.job); err != nil {
		if cmd.Process != nil {
			// Spawned suspended but not assigned or not resumed.
			abandon(cmd)
			return fmt.Errorf("%w: %w", ErrAttach, err)
		}
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	g.log.Debug("process started in job", "group", g.name, "pid", cmd.Process.Pid)
	return nil
}

// Add assigns a running or suspended process to the job.
func (g *Group) Add(p *os.Process) error {
	if p == nil {
		return fmt.Errorf("%w: nil process", ErrAttach)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if err := g.job.Assign(p); err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrAttach, p.Pid, err)
	}

	g.log.Debug("process added to job", "group", g.name, "pid", p.Pid)
	return nil
}

// Close releases the job handle, which terminates every member. It is safe
// to call more than once.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	err := g.job.Close()
	g.job = nil
	g.log.Debug("job closed", "group", g.name)
	return err
}

// abandon kills a started process and waits for it, which releases its
// handle and the output copying goroutines.
func abandon(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}
