//go:build !windows

package procgroup

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Group tracks its members. Members started through Start lead their own
// process group, so killing -pgid takes their descendants with them. A
// guardian process kills the same groups if the supervisor dies without
// calling Close.
type Group struct {
	name    string
	log     *slog.Logger
	guard   *guardian
	mu      sync.Mutex
	leaders map[int]struct{}
	added   []*os.Process
	closed  bool
}

// New creates an empty group and its guardian. The name is used for
// logging only.
func New(name string, logger *slog.Logger) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrCreate)
	}
	if logger == nil {
		logger = slog.Default()
	}

	guard, err := startGuardian()
	if err != nil {
		return nil, fmt.Errorf("%w: start guardian: %w", ErrCreate, err)
	}

	return &Group{
		name:    name,
		log:     logger,
		guard:   guard,
		leaders: make(map[int]struct{}),
	}, nil
}

// Name returns the group name.
func (g *Group) Name() string {
	return g.name
}

// Start starts cmd as a member. Setpgid is applied by the kernel between
// fork and exec, so the child belongs to its group before it runs.
func (g *Group) Start(cmd *exec.Cmd) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pgid = 0
	configureSysProcAttr(cmd.SysProcAttr)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	pid := cmd.Process.Pid
	g.leaders[pid] = struct{}{}
	if err := g.guard.watch(pid); err != nil {
		g.log.Warn("guardian is not watching member", "group", g.name, "pid", pid, "error", err)
	}
	g.log.Debug("process started in group", "group", g.name, "pid", pid)
	return nil
}

// Add attaches an already running process. It is killed on Close through
// its *os.Process, so a process the caller has already waited for is
// skipped. Added processes are not covered by the guardian.
func (g *Group) Add(p *os.Process) error {
	if p == nil {
		return fmt.Errorf("%w: nil process", ErrAttach)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return ErrClosed
	}
	if err := p.Signal(syscall.Signal(0)); err != nil {
		return fmt.Errorf("%w: pid %d: %w", ErrAttach, p.Pid, err)
	}

	g.added = append(g.added, p)
	g.log.Debug("process added to group", "group", g.name, "pid", p.Pid)
	return nil
}

// Close kills every member and stops the guardian. It is safe to call more
// than once.
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	// A pgid stays reserved while any process is in the group, so this
	// reaches descendants even after the leader was reaped.
	for pgid := range g.leaders {
		if err := killGroup(pgid); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = append(errs, fmt.Errorf("kill group %d: %w", pgid, err))
		}
	}
	for _, p := range g.added {
		if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill pid %d: %w", p.Pid, err))
		}
	}

	if err := g.guard.stop(); err != nil {
		g.log.Debug("guardian exited with error", "group", g.name, "error", err)
	}
	g.log.Debug("process group closed", "group", g.name, "members", len(g.leaders)+len(g.added))
	g.leaders = nil
	g.added = nil

	return errors.Join(errs...)
}
